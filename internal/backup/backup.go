// Package backup writes periodic export snapshots for users who enabled
// automatic backups in their data preferences.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	"github.com/mybudgetplus/mybudget/internal/settings/dto"
	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

const (
	eventSource     = "backup-runner"
	timestampLayout = "20060102T150405Z"
)

// PreferencesSource lists candidates and records completed backups.
type PreferencesSource interface {
	ListAutoBackup(ctx context.Context) ([]*prefmodels.UserPreferences, error)
	MarkBackedUp(ctx context.Context, userID string, at time.Time) error
}

type UserSource interface {
	GetProfile(ctx context.Context, userID string) (*usermodels.User, error)
}

// Runner performs one backup pass.
type Runner struct {
	prefs    PreferencesSource
	users    UserSource
	dir      string
	eventBus bus.EventBus
	logger   *logger.Logger
	now      func() time.Time
}

func NewRunner(prefs PreferencesSource, users UserSource, dir string, eventBus bus.EventBus, log *logger.Logger) *Runner {
	return &Runner{
		prefs:    prefs,
		users:    users,
		dir:      dir,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", eventSource)),
		now:      time.Now,
	}
}

// RunOnce backs up every user whose backup is due. A failure for one user
// does not stop the others; all failures are returned joined.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now().UTC()
	candidates, err := r.prefs.ListAutoBackup(ctx)
	if err != nil {
		return 0, fmt.Errorf("list auto-backup users: %w", err)
	}

	written := 0
	var errs []error
	for _, prefs := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if !prefs.BackupDue(now) {
			continue
		}
		path, err := r.backupUser(ctx, prefs, now)
		if err != nil {
			r.logger.Error("backup failed", zap.String("user_id", prefs.UserID), zap.Error(err))
			errs = append(errs, fmt.Errorf("user %s: %w", prefs.UserID, err))
			continue
		}
		if path == "" {
			continue
		}
		written++
		r.publish(ctx, prefs.UserID, path, now)
	}

	r.logger.Info("backup pass finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("written", written),
		zap.Int("failed", len(errs)))
	return written, errors.Join(errs...)
}

// backupUser returns an empty path when the account no longer exists.
func (r *Runner) backupUser(ctx context.Context, prefs *prefmodels.UserPreferences, now time.Time) (string, error) {
	user, err := r.users.GetProfile(ctx, prefs.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			r.logger.Warn("skipping preferences without an account", zap.String("user_id", prefs.UserID))
			return "", nil
		}
		return "", err
	}

	data, err := json.MarshalIndent(dto.NewExport(user, prefs, now), "", "  ")
	if err != nil {
		return "", err
	}
	userDir := filepath.Join(r.dir, prefs.UserID)
	if err := os.MkdirAll(userDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(userDir, now.Format(timestampLayout)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	if err := r.prefs.MarkBackedUp(ctx, prefs.UserID, now); err != nil {
		return "", fmt.Errorf("mark backed up: %w", err)
	}
	return path, nil
}

func (r *Runner) publish(ctx context.Context, userID, path string, at time.Time) {
	if r.eventBus == nil {
		return
	}
	event := bus.NewEvent(events.BackupCompleted, eventSource, map[string]interface{}{
		"user_id":      userID,
		"file":         filepath.Base(path),
		"backed_up_at": at.Format(time.RFC3339),
	})
	if err := r.eventBus.Publish(ctx, events.BackupCompleted, event); err != nil {
		r.logger.Warn("failed to publish backup event", zap.String("user_id", userID), zap.Error(err))
	}
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// into place so readers never see a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
