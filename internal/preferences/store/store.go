// Package store persists one preferences document per user.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mybudgetplus/mybudget/internal/preferences/models"
)

var (
	ErrNotFound      = errors.New("preferences not found")
	ErrAlreadyExists = errors.New("preferences already exist for user")
)

// MutateFunc edits a document in place. Returning an error aborts the write.
type MutateFunc func(doc *models.Document) error

// Repository is the preferences storage interface.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserPreferences, error)
	Create(ctx context.Context, prefs *models.UserPreferences) error
	Update(ctx context.Context, prefs *models.UserPreferences) error
	// Mutate runs fn against the stored document inside a write transaction.
	// changed is false when fn left the document as it was; nothing is written then.
	Mutate(ctx context.Context, userID string, fn MutateFunc) (prefs *models.UserPreferences, changed bool, err error)
	DeleteByUserIDTx(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error)

	CountByTheme(ctx context.Context) (map[models.Theme]int, error)
	ListAutoBackup(ctx context.Context) ([]*models.UserPreferences, error)
	MarkBackedUp(ctx context.Context, userID string, at time.Time) error

	Close() error
}
