package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	"github.com/mybudgetplus/mybudget/internal/settings/dto"
	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakePrefs struct {
	mu      sync.Mutex
	records []*prefmodels.UserPreferences
	marked  map[string]time.Time
	markErr error
}

func (f *fakePrefs) ListAutoBackup(context.Context) ([]*prefmodels.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*prefmodels.UserPreferences, 0, len(f.records))
	for _, r := range f.records {
		if r.Document.Data.AutoBackup {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakePrefs) MarkBackedUp(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if f.marked == nil {
		f.marked = make(map[string]time.Time)
	}
	f.marked[userID] = at
	for _, r := range f.records {
		if r.UserID == userID {
			t := at
			r.LastBackupAt = &t
		}
	}
	return nil
}

type fakeUsers map[string]*usermodels.User

func (f fakeUsers) GetProfile(_ context.Context, id string) (*usermodels.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user")
}

func prefsFor(userID string, auto bool, freq prefmodels.BackupFrequency, last *time.Time) *prefmodels.UserPreferences {
	p := prefmodels.NewUserPreferences(userID)
	p.ID = "prefs-" + userID
	p.Document.Data.AutoBackup = auto
	p.Document.Data.BackupFrequency = freq
	p.LastBackupAt = last
	return p
}

func newTestRunner(t *testing.T, prefs *fakePrefs, users fakeUsers, eventBus bus.EventBus) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRunner(prefs, users, dir, eventBus, logger.NewNop())
	r.now = func() time.Time { return fixedNow }
	return r, dir
}

func TestRunOnce_WritesDueBackups(t *testing.T) {
	recent := fixedNow.Add(-2 * time.Hour)
	old := fixedNow.Add(-8 * 24 * time.Hour)
	prefs := &fakePrefs{records: []*prefmodels.UserPreferences{
		prefsFor("never", true, prefmodels.BackupDaily, nil),
		prefsFor("weekly-old", true, prefmodels.BackupWeekly, &old),
		prefsFor("daily-recent", true, prefmodels.BackupDaily, &recent),
		prefsFor("disabled", false, prefmodels.BackupDaily, nil),
	}}
	users := fakeUsers{
		"never":        {ID: "never", Email: "never@example.com", PasswordHash: "secret-hash"},
		"weekly-old":   {ID: "weekly-old", Email: "old@example.com"},
		"daily-recent": {ID: "daily-recent"},
		"disabled":     {ID: "disabled"},
	}

	log := logger.NewNop()
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)
	var mu sync.Mutex
	var notified []string
	_, err := eventBus.Subscribe(events.BackupCompleted, func(_ context.Context, e *bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, e.String("user_id"))
		return nil
	})
	require.NoError(t, err)

	runner, dir := newTestRunner(t, prefs, users, eventBus)
	written, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	assert.Equal(t, fixedNow, prefs.marked["never"])
	assert.Equal(t, fixedNow, prefs.marked["weekly-old"])
	assert.NotContains(t, prefs.marked, "daily-recent")
	assert.NotContains(t, prefs.marked, "disabled")

	path := filepath.Join(dir, "never", "20260314T093000Z.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-hash")

	var export dto.Export
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, dto.ExportVersion, export.Version)
	assert.Equal(t, "never", export.User.ID)
	assert.Equal(t, "2026-03-14T09:30:00Z", export.ExportDate)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 2
	}, time.Second, 10*time.Millisecond)

	// A second pass at the same instant finds nothing due.
	written, err = runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestRunOnce_SkipsOrphansAndCollectsFailures(t *testing.T) {
	prefs := &fakePrefs{records: []*prefmodels.UserPreferences{
		prefsFor("orphan", true, prefmodels.BackupDaily, nil),
		prefsFor("alice", true, prefmodels.BackupDaily, nil),
	}}
	users := fakeUsers{"alice": {ID: "alice"}}

	runner, _ := newTestRunner(t, prefs, users, nil)

	written, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	prefs.records = append(prefs.records, prefsFor("bob", true, prefmodels.BackupDaily, nil))
	users["bob"] = &usermodels.User{ID: "bob"}
	prefs.markErr = errors.New("database is locked")

	written, err = runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user bob")
	assert.Zero(t, written)
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	runner, _ := newTestRunner(t, &fakePrefs{}, fakeUsers{}, nil)

	_, err := NewScheduler(runner, "every tuesday", logger.NewNop())
	require.Error(t, err)

	s, err := NewScheduler(runner, "@hourly", logger.NewNop())
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
