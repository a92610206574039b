// Package controller implements the administrator views over accounts.
package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/admin/dto"
	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type UserService interface {
	ListUsers(ctx context.Context, filter usermodels.ListFilter) ([]*usermodels.User, error)
	CountMatching(ctx context.Context, filter usermodels.ListFilter) (int, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) (*usermodels.User, error)
	CountUsers(ctx context.Context) (usermodels.Stats, error)
}

type ThemeCounter interface {
	ThemeUsage(ctx context.Context) (map[prefmodels.Theme]int, error)
}

// Disconnector drops live websocket sessions of a user.
type Disconnector interface {
	DisconnectUser(userID string)
}

type Controller struct {
	users  UserService
	themes ThemeCounter
	conns  Disconnector
	logger *logger.Logger
}

// NewController builds the admin controller. conns may be nil.
func NewController(users UserService, themes ThemeCounter, conns Disconnector, log *logger.Logger) *Controller {
	return &Controller{
		users:  users,
		themes: themes,
		conns:  conns,
		logger: log.WithFields(zap.String("component", "admin-controller")),
	}
}

// ListUsers returns one page of accounts. Total counts every account matching
// search, not just the page.
func (c *Controller) ListUsers(ctx context.Context, search string, limit, offset int) (dto.ListUsersResponse, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	filter := usermodels.ListFilter{Search: search, Limit: limit, Offset: offset}
	users, err := c.users.ListUsers(ctx, filter)
	if err != nil {
		return dto.ListUsersResponse{}, err
	}
	total, err := c.users.CountMatching(ctx, filter)
	if err != nil {
		return dto.ListUsersResponse{}, err
	}
	out := make([]dto.AdminUserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, dto.FromUser(u))
	}
	return dto.ListUsersResponse{Users: out, Total: total, Limit: limit, Offset: offset}, nil
}

// SetBlocked changes the blocked flag. Admins cannot block themselves, and a
// blocked user's websocket sessions are closed right away.
func (c *Controller) SetBlocked(ctx context.Context, actorID, userID string, req dto.SetBlockedRequest) (dto.AdminUserDTO, error) {
	if req.Blocked == nil {
		return dto.AdminUserDTO{}, apperrors.ValidationError("blocked", "is required")
	}
	if *req.Blocked && actorID == userID {
		return dto.AdminUserDTO{}, apperrors.BadRequest("you cannot block your own account")
	}
	user, err := c.users.SetBlocked(ctx, userID, *req.Blocked)
	if err != nil {
		return dto.AdminUserDTO{}, err
	}
	if user.Blocked && c.conns != nil {
		c.conns.DisconnectUser(userID)
	}
	c.logger.Info("blocked flag updated",
		zap.String("actor_id", actorID),
		zap.String("user_id", userID),
		zap.Bool("blocked", user.Blocked))
	return dto.FromUser(user), nil
}

func (c *Controller) Stats(ctx context.Context) (dto.StatsResponse, error) {
	stats, err := c.users.CountUsers(ctx)
	if err != nil {
		return dto.StatsResponse{}, err
	}
	counts, err := c.themes.ThemeUsage(ctx)
	if err != nil {
		return dto.StatsResponse{}, err
	}
	themes := make(map[string]int, len(prefmodels.Themes))
	for _, t := range prefmodels.Themes {
		themes[string(t)] = counts[t]
	}
	return dto.StatsResponse{
		Users:   stats.Users,
		Admins:  stats.Admins,
		Blocked: stats.Blocked,
		Themes:  themes,
	}, nil
}
