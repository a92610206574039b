// Package store persists user accounts.
package store

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/mybudgetplus/mybudget/internal/user/models"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

type Repository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetProfilePicture(ctx context.Context, id, path string) (*models.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error)
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error

	List(ctx context.Context, filter models.ListFilter) ([]*models.User, error)
	// Count reports how many users match filter.Search, ignoring paging.
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	ListIDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (models.Stats, error)

	Close() error
}
