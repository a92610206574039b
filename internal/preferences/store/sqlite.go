package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
	"github.com/mybudgetplus/mybudget/internal/preferences/models"
)

type sqlRepository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader
	ownsDB bool
}

var _ Repository = (*sqlRepository)(nil)

// row mirrors the user_preferences table.
type row struct {
	ID           string       `db:"id"`
	UserID       string       `db:"user_id"`
	Document     string       `db:"document"`
	LastBackupAt sql.NullTime `db:"last_backup_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

const selectColumns = `id, user_id, document, last_backup_at, created_at, updated_at`

func newSQLRepositoryWithDB(writer, reader *sqlx.DB) (*sqlRepository, error) {
	return newSQLRepository(writer, reader, false)
}

func newSQLRepository(writer, reader *sqlx.DB, ownsDB bool) (*sqlRepository, error) {
	repo := &sqlRepository{db: writer, ro: reader, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			if closeErr := writer.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *sqlRepository) initSchema() error {
	ts := dialect.TimestampType(r.db.DriverName())
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS user_preferences (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		document TEXT NOT NULL,
		last_backup_at %[1]s,
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	);
	`, ts)
	if _, err := r.db.Exec(schema); err != nil {
		return err
	}
	// Databases created before automatic backups lack this column.
	return db.EnsureColumn(context.Background(), r.db, "user_preferences", "last_backup_at", ts)
}

func (r *sqlRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	if r.ro != nil && r.ro != r.db {
		_ = r.ro.Close()
	}
	return r.db.Close()
}

func (r *sqlRepository) GetByUserID(ctx context.Context, userID string) (*models.UserPreferences, error) {
	var rec row
	err := r.ro.GetContext(ctx, &rec, r.ro.Rebind(`
		SELECT `+selectColumns+`
		FROM user_preferences WHERE user_id = ?
	`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel()
}

func (r *sqlRepository) Create(ctx context.Context, prefs *models.UserPreferences) error {
	if prefs.ID == "" {
		prefs.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	payload, err := json.Marshal(prefs.Document)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO user_preferences (id, user_id, document, last_backup_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), prefs.ID, prefs.UserID, string(payload), nullTime(prefs.LastBackupAt), prefs.CreatedAt, prefs.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *sqlRepository) Update(ctx context.Context, prefs *models.UserPreferences) error {
	payload, err := json.Marshal(prefs.Document)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	prefs.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE user_preferences SET document = ?, updated_at = ? WHERE user_id = ?
	`), string(payload), prefs.UpdatedAt, prefs.UserID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *sqlRepository) Mutate(ctx context.Context, userID string, fn MutateFunc) (*models.UserPreferences, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + selectColumns + ` FROM user_preferences WHERE user_id = ?`
	if dialect.IsPostgres(r.db.DriverName()) {
		query += ` FOR UPDATE`
	}
	var rec row
	err = tx.GetContext(ctx, &rec, tx.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	prefs, err := rec.toModel()
	if err != nil {
		return nil, false, err
	}

	before := prefs.Document
	if err := fn(&prefs.Document); err != nil {
		return nil, false, err
	}
	if prefs.Document == before {
		return prefs, false, nil
	}

	payload, err := json.Marshal(prefs.Document)
	if err != nil {
		return nil, false, fmt.Errorf("encode preferences: %w", err)
	}
	prefs.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE user_preferences SET document = ?, updated_at = ? WHERE user_id = ?
	`), string(payload), prefs.UpdatedAt, userID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return prefs, true, nil
}

func (r *sqlRepository) DeleteByUserIDTx(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM user_preferences WHERE user_id = ?`), userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sqlRepository) CountByTheme(ctx context.Context) (map[models.Theme]int, error) {
	themeExpr := dialect.JSONExtract(r.ro.DriverName(), "document", "appearance", "theme")
	rows, err := r.ro.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s AS theme, COUNT(1)
		FROM user_preferences
		GROUP BY %[1]s
	`, themeExpr))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[models.Theme]int, len(models.Themes))
	for _, t := range models.Themes {
		counts[t] = 0
	}
	for rows.Next() {
		var theme sql.NullString
		var n int
		if err := rows.Scan(&theme, &n); err != nil {
			return nil, err
		}
		if theme.Valid {
			counts[models.Theme(theme.String)] += n
		}
	}
	return counts, rows.Err()
}

func (r *sqlRepository) ListAutoBackup(ctx context.Context) ([]*models.UserPreferences, error) {
	predicate := dialect.JSONIsTrue(r.ro.DriverName(), "document", "data", "autoBackup")
	var recs []row
	if err := r.ro.SelectContext(ctx, &recs, `
		SELECT `+selectColumns+`
		FROM user_preferences
		WHERE `+predicate+`
		ORDER BY user_id ASC
	`); err != nil {
		return nil, err
	}
	out := make([]*models.UserPreferences, 0, len(recs))
	for i := range recs {
		prefs, err := recs[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, prefs)
	}
	return out, nil
}

func (r *sqlRepository) MarkBackedUp(ctx context.Context, userID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE user_preferences SET last_backup_at = ? WHERE user_id = ?
	`), at.UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (rec *row) toModel() (*models.UserPreferences, error) {
	prefs := &models.UserPreferences{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Document:  models.DefaultDocument(),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	// Unmarshalling over the defaults fills any field an older document lacks.
	if err := json.Unmarshal([]byte(rec.Document), &prefs.Document); err != nil {
		return nil, fmt.Errorf("decode preferences for user %s: %w", rec.UserID, err)
	}
	if rec.LastBackupAt.Valid {
		t := rec.LastBackupAt.Time
		prefs.LastBackupAt = &t
	}
	return prefs, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
