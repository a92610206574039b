package main

import (
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/persistence"
	prefstore "github.com/mybudgetplus/mybudget/internal/preferences/store"
	userstore "github.com/mybudgetplus/mybudget/internal/user/store"
)

// provideRepositories opens the database and every store on it. Cleanups are
// returned in opening order; run them in reverse.
func provideRepositories(cfg *config.Config, log *logger.Logger) (*Repositories, []func() error, error) {
	cleanups := make([]func() error, 0, 3)
	pool, cleanup, err := persistence.Provide(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, cleanup)

	userRepo, cleanup, err := userstore.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		return nil, cleanups, err
	}
	cleanups = append(cleanups, cleanup)

	prefsRepo, cleanup, err := prefstore.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		return nil, cleanups, err
	}
	cleanups = append(cleanups, cleanup)

	return &Repositories{Pool: pool, User: userRepo, Preferences: prefsRepo}, cleanups, nil
}
