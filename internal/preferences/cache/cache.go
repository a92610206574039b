// Package cache keeps recently read preferences documents in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/preferences/models"
)

const (
	keyPrefix  = "mybudget:prefs:" // mybudget:prefs:{user_id}
	defaultTTL = 10 * time.Minute

	// setAttempts bounds the optimistic retries when another writer touches
	// the key between WATCH and EXEC.
	setAttempts = 3
)

// ErrMiss is returned by Get when the user has no cached document.
var ErrMiss = errors.New("cache miss")

// Cache is a best-effort store for preferences keyed by user id.
type Cache interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	// Set stores prefs unless the cached copy has a later UpdatedAt.
	Set(ctx context.Context, prefs *models.UserPreferences) error
	Delete(ctx context.Context, userID string) error
}

// entry is the cached shape; it keeps fields the public JSON form hides.
type entry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Document     models.Document `json:"document"`
	LastBackupAt *time.Time      `json:"lastBackupAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// RedisCache stores each document as a JSON string with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client. A non-positive ttl uses the default.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Provide connects to Redis when redis.addr is set. Without an address it
// returns a nil Cache and the service reads straight from the database.
func Provide(cfg *config.Config, log *logger.Logger) (Cache, func() error, error) {
	if cfg.Redis.Addr == "" {
		log.Info("Preferences cache disabled (no redis address)")
		return nil, func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("Preferences cache connected", zap.String("redis_addr", cfg.Redis.Addr))
	return NewRedisCache(client, cfg.Preferences.CacheTTLDuration()), client.Close, nil
}

func (c *RedisCache) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	data, err := c.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached preferences: %w", err)
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached preferences: %w", err)
	}
	return &models.UserPreferences{
		ID:           e.ID,
		UserID:       e.UserID,
		Document:     e.Document,
		LastBackupAt: e.LastBackupAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}, nil
}

func (c *RedisCache) Set(ctx context.Context, prefs *models.UserPreferences) error {
	data, err := json.Marshal(entry{
		ID:           prefs.ID,
		UserID:       prefs.UserID,
		Document:     prefs.Document,
		LastBackupAt: prefs.LastBackupAt,
		CreatedAt:    prefs.CreatedAt,
		UpdatedAt:    prefs.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	k := key(prefs.UserID)
	fill := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cached entry
			if json.Unmarshal(current, &cached) == nil && cached.UpdatedAt.After(prefs.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, c.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < setAttempts; attempt++ {
		err = c.client.Watch(ctx, fill, k)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to cache preferences: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to evict cached preferences: %w", err)
	}
	return nil
}

func key(userID string) string {
	return keyPrefix + userID
}
