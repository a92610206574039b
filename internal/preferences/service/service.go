// Package service implements get-or-create and per-category merge of user preferences.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	"github.com/mybudgetplus/mybudget/internal/preferences/cache"
	"github.com/mybudgetplus/mybudget/internal/preferences/models"
	"github.com/mybudgetplus/mybudget/internal/preferences/store"
)

const eventSource = "preferences-service"

// Options tunes request handling.
type Options struct {
	// RejectUnknownCategories turns an unknown category into a 400 instead of a no-op.
	RejectUnknownCategories bool
}

type Service struct {
	repo     store.Repository
	cache    cache.Cache // nil disables caching
	eventBus bus.EventBus
	logger   *logger.Logger
	opts     Options
	creates  singleflight.Group
}

func NewService(repo store.Repository, c cache.Cache, eventBus bus.EventBus, log *logger.Logger, opts Options) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", eventSource)),
		opts:     opts,
	}
}

// GetOrCreatePreferences returns the user's document, creating it with the
// defaults on first access. Concurrent first calls in this process share one
// lookup; across processes the unique user_id constraint picks the winner and
// the loser re-reads it.
func (s *Service) GetOrCreatePreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	if userID == "" {
		return nil, apperrors.BadRequest("user id is required")
	}
	if prefs, ok := s.cacheGet(ctx, userID); ok {
		return prefs, nil
	}

	v, err, _ := s.creates.Do(userID, func() (interface{}, error) {
		return s.loadOrCreate(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserPreferences).Clone(), nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (*models.UserPreferences, error) {
	prefs, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		s.cacheSet(ctx, prefs)
		return prefs, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.InternalError("failed to load preferences", err)
	}

	prefs = models.NewUserPreferences(userID)
	err = s.repo.Create(ctx, prefs)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		s.logger.Debug("preferences created concurrently, re-reading", zap.String("user_id", userID))
		prefs, err = s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, apperrors.InternalError("failed to load preferences", err)
		}
	case err != nil:
		return nil, apperrors.InternalError("failed to create preferences", err)
	default:
		s.logger.Info("created default preferences", zap.String("user_id", userID))
		s.publish(ctx, events.PreferencesCreated, prefs, models.Categories)
	}
	s.cacheSet(ctx, prefs)
	return prefs, nil
}

// UpdatePreferences merges fields into one category. An unknown category
// changes nothing and reports changed=false, unless the service was built to
// reject them.
func (s *Service) UpdatePreferences(ctx context.Context, userID, category string, fields json.RawMessage) (bool, error) {
	patch, ok, err := models.DecodePatch(category, fields)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, s.unknownCategory(userID, category)
	}
	_, changed, err := s.ApplyPatches(ctx, userID, patch)
	return changed, err
}

// UpdateFromBody applies every category present in body in a single write and
// returns the document the write committed. Every known category is validated
// before anything is written.
func (s *Service) UpdateFromBody(ctx context.Context, userID string, body map[string]json.RawMessage) (*models.UserPreferences, error) {
	patches := make([]models.Patch, 0, len(body))
	// Document order keeps validation errors deterministic.
	for _, c := range models.Categories {
		raw, present := body[string(c)]
		if !present {
			continue
		}
		patch, _, err := models.DecodePatch(string(c), raw)
		if err != nil {
			return nil, err
		}
		patches = append(patches, patch)
	}
	for name := range body {
		if _, known := models.ParseCategory(name); !known {
			if err := s.unknownCategory(userID, name); err != nil {
				return nil, err
			}
		}
	}

	prefs, _, err := s.ApplyPatches(ctx, userID, patches...)
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// ApplyPatches runs one atomic read-modify-write covering every patch.
func (s *Service) ApplyPatches(ctx context.Context, userID string, patches ...models.Patch) (*models.UserPreferences, bool, error) {
	current, err := s.GetOrCreatePreferences(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if len(patches) == 0 {
		return current, false, nil
	}
	for _, p := range patches {
		if err := p.Validate(); err != nil {
			return nil, false, err
		}
	}

	prefs, changed, err := s.repo.Mutate(ctx, userID, func(doc *models.Document) error {
		for _, p := range patches {
			p.Apply(doc)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// Account deleted between the create and the write.
		return nil, false, apperrors.NotFound("preferences")
	}
	if err != nil {
		return nil, false, apperrors.InternalError("failed to update preferences", err)
	}
	if !changed {
		return prefs, false, nil
	}

	s.cacheRefresh(ctx, prefs)
	categories := make([]models.Category, 0, len(patches))
	for _, p := range patches {
		categories = append(categories, p.Category())
	}
	s.logger.Info("preferences updated",
		zap.String("user_id", userID),
		zap.Any("categories", categories))
	s.publish(ctx, events.PreferencesUpdated, prefs, categories)
	return prefs, true, nil
}

// DeleteForUserTx removes the user's document as part of the caller's transaction.
func (s *Service) DeleteForUserTx(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	return s.repo.DeleteByUserIDTx(ctx, tx, userID)
}

// Evict drops any cached copy. Called after the deleting transaction commits.
func (s *Service) Evict(ctx context.Context, userID string) {
	s.cacheDelete(ctx, userID)
}

// ThemeUsage counts users per theme for the admin dashboard.
func (s *Service) ThemeUsage(ctx context.Context) (map[models.Theme]int, error) {
	counts, err := s.repo.CountByTheme(ctx)
	if err != nil {
		return nil, apperrors.InternalError("failed to count themes", err)
	}
	return counts, nil
}

func (s *Service) unknownCategory(userID, category string) error {
	if s.opts.RejectUnknownCategories {
		return apperrors.ValidationError("category", "unknown preferences category "+category)
	}
	s.logger.Debug("ignoring unknown preferences category",
		zap.String("user_id", userID),
		zap.String("category", category))
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, prefs *models.UserPreferences, categories []models.Category) {
	if s.eventBus == nil {
		return
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	data := map[string]interface{}{
		"user_id":     prefs.UserID,
		"categories":  names,
		"preferences": prefs.Document,
		"updated_at":  prefs.UpdatedAt.Format(time.RFC3339),
	}
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.logger.Error("failed to publish preferences event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (s *Service) cacheGet(ctx context.Context, userID string) (*models.UserPreferences, bool) {
	if s.cache == nil {
		return nil, false
	}
	prefs, err := s.cache.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("preferences cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	return prefs, true
}

func (s *Service) cacheSet(ctx context.Context, prefs *models.UserPreferences) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, prefs); err != nil {
		s.logger.Warn("preferences cache write failed", zap.String("user_id", prefs.UserID), zap.Error(err))
	}
}

// cacheRefresh stores the committed document so a slower reader elsewhere
// cannot fill the cache with the previous version. If that fails the entry
// is dropped instead.
func (s *Service) cacheRefresh(ctx context.Context, prefs *models.UserPreferences) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, prefs); err != nil {
		s.logger.Warn("preferences cache refresh failed", zap.String("user_id", prefs.UserID), zap.Error(err))
		s.cacheDelete(ctx, prefs.UserID)
	}
}

func (s *Service) cacheDelete(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("preferences cache eviction failed", zap.String("user_id", userID), zap.Error(err))
	}
}
