package main

import (
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	"github.com/mybudgetplus/mybudget/internal/preferences/cache"
	prefservice "github.com/mybudgetplus/mybudget/internal/preferences/service"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
)

func provideServices(cfg *config.Config, log *logger.Logger, repos *Repositories, prefsCache cache.Cache, eventBus bus.EventBus) *Services {
	prefsSvc := prefservice.NewService(repos.Preferences, prefsCache, eventBus, log, prefservice.Options{
		RejectUnknownCategories: cfg.Preferences.RejectUnknownCategories,
	})
	userSvc := userservice.NewService(repos.User, repos.Pool, prefsSvc, eventBus, log)
	return &Services{User: userSvc, Preferences: prefsSvc}
}
