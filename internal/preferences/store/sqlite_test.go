package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
	"github.com/mybudgetplus/mybudget/internal/preferences/models"
)

func createTestRepo(t *testing.T) (*sqlRepository, *db.Pool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	writerConn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	readerConn, err := db.OpenSQLiteReader(path)
	require.NoError(t, err)

	pool := db.NewPool(sqlx.NewDb(writerConn, dialect.SQLite3), sqlx.NewDb(readerConn, dialect.SQLite3))
	repo, err := newSQLRepositoryWithDB(pool.Writer(), pool.Reader())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, repo.Close())
		assert.NoError(t, pool.Close())
	})
	return repo, pool
}

func TestSQLRepository_CreateAndGet(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()

	prefs := models.NewUserPreferences("user-1")
	require.NoError(t, repo.Create(ctx, prefs))
	assert.NotEmpty(t, prefs.ID)
	assert.False(t, prefs.CreatedAt.IsZero())

	fetched, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, prefs.ID, fetched.ID)
	assert.Equal(t, models.DefaultDocument(), fetched.Document)
	assert.Nil(t, fetched.LastBackupAt)
}

func TestSQLRepository_GetMissing(t *testing.T) {
	repo, _ := createTestRepo(t)

	_, err := repo.GetByUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRepository_CreateTwiceIsRejected(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("user-1")))
	err := repo.Create(ctx, models.NewUserPreferences("user-1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSQLRepository_Update(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()

	prefs := models.NewUserPreferences("user-1")
	require.NoError(t, repo.Create(ctx, prefs))

	prefs.Document.Appearance.Language = models.LanguageSpanish
	require.NoError(t, repo.Update(ctx, prefs))

	fetched, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.LanguageSpanish, fetched.Document.Appearance.Language)

	err = repo.Update(ctx, models.NewUserPreferences("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRepository_Mutate(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("user-1")))

	t.Run("applies change", func(t *testing.T) {
		prefs, changed, err := repo.Mutate(ctx, "user-1", func(doc *models.Document) error {
			doc.Appearance.Theme = models.ThemeDark
			return nil
		})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.ThemeDark, prefs.Document.Appearance.Theme)
		assert.Equal(t, models.LanguageFrench, prefs.Document.Appearance.Language)
	})

	t.Run("same value is not a change", func(t *testing.T) {
		_, changed, err := repo.Mutate(ctx, "user-1", func(doc *models.Document) error {
			doc.Appearance.Theme = models.ThemeDark
			return nil
		})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := repo.Mutate(ctx, "user-1", func(doc *models.Document) error {
			doc.Appearance.Theme = models.ThemeLight
			return boom
		})
		assert.ErrorIs(t, err, boom)

		fetched, err := repo.GetByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, models.ThemeDark, fetched.Document.Appearance.Theme)
	})

	t.Run("missing user", func(t *testing.T) {
		_, _, err := repo.Mutate(ctx, "ghost", func(*models.Document) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLRepository_ConcurrentMutateKeepsEveryField(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("user-1")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := repo.Mutate(ctx, "user-1", func(doc *models.Document) error {
			doc.Notifications.Email = true
			return nil
		})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, _, err := repo.Mutate(ctx, "user-1", func(doc *models.Document) error {
			doc.Data.AutoBackup = true
			return nil
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	fetched, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, fetched.Document.Notifications.Email)
	assert.True(t, fetched.Document.Data.AutoBackup)
}

func TestSQLRepository_DeleteByUserIDTx(t *testing.T) {
	repo, pool := createTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("user-1")))

	var deleted int64
	err := pool.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		deleted, err = repo.DeleteByUserIDTx(ctx, tx, "user-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRepository_DeleteRolledBack(t *testing.T) {
	repo, pool := createTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("user-1")))

	rollback := errors.New("user delete failed")
	err := pool.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := repo.DeleteByUserIDTx(ctx, tx, "user-1"); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	_, err = repo.GetByUserID(ctx, "user-1")
	assert.NoError(t, err)
}

func TestSQLRepository_CountByTheme(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()

	themes := map[string]models.Theme{"a": models.ThemeDark, "b": models.ThemeDark, "c": models.ThemeAuto}
	for userID, theme := range themes {
		prefs := models.NewUserPreferences(userID)
		prefs.Document.Appearance.Theme = theme
		require.NoError(t, repo.Create(ctx, prefs))
	}

	counts, err := repo.CountByTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Theme]int{
		models.ThemeLight: 0,
		models.ThemeDark:  2,
		models.ThemeAuto:  1,
	}, counts)
}

func TestSQLRepository_AutoBackupListing(t *testing.T) {
	repo, _ := createTestRepo(t)
	ctx := context.Background()

	on := models.NewUserPreferences("on")
	on.Document.Data.AutoBackup = true
	require.NoError(t, repo.Create(ctx, on))
	require.NoError(t, repo.Create(ctx, models.NewUserPreferences("off")))

	list, err := repo.ListAutoBackup(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "on", list[0].UserID)
	assert.Nil(t, list[0].LastBackupAt)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.MarkBackedUp(ctx, "on", at))

	fetched, err := repo.GetByUserID(ctx, "on")
	require.NoError(t, err)
	require.NotNil(t, fetched.LastBackupAt)
	assert.True(t, at.Equal(*fetched.LastBackupAt))

	assert.ErrorIs(t, repo.MarkBackedUp(ctx, "ghost", at), ErrNotFound)
}
