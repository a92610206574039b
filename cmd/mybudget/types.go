package main

import (
	"github.com/mybudgetplus/mybudget/internal/db"
	prefservice "github.com/mybudgetplus/mybudget/internal/preferences/service"
	prefstore "github.com/mybudgetplus/mybudget/internal/preferences/store"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
	userstore "github.com/mybudgetplus/mybudget/internal/user/store"
)

type Repositories struct {
	Pool        *db.Pool
	User        userstore.Repository
	Preferences prefstore.Repository
}

type Services struct {
	User        *userservice.Service
	Preferences *prefservice.Service
}
