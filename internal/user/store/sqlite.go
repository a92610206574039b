package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
	"github.com/mybudgetplus/mybudget/internal/user/models"
)

const defaultListLimit = 50

type sqlRepository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader
	ownsDB bool
}

var _ Repository = (*sqlRepository)(nil)

type userRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	PasswordHash   string    `db:"password_hash"`
	Role           string    `db:"role"`
	Blocked        int       `db:"blocked"`
	ProfilePicture string    `db:"profile_picture"`
	PhoneNumber    string    `db:"phone_number"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const userColumns = `id, name, email, password_hash, role, blocked, profile_picture, phone_number, created_at, updated_at`

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
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		blocked INTEGER NOT NULL DEFAULT 0,
		profile_picture TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	);
	`, ts)
	if _, err := r.db.Exec(schema); err != nil {
		return err
	}
	return db.EnsureColumn(context.Background(), r.db, "users", "phone_number", "TEXT NOT NULL DEFAULT ''")
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

func (r *sqlRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role),
		dialect.BoolToInt(user.Blocked), user.ProfilePicture, user.PhoneNumber,
		user.CreatedAt, user.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *sqlRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, r.ro, `id = ?`, id)
}

func (r *sqlRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, r.ro, `email = ?`, email)
}

func (r *sqlRepository) getOne(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}) (*models.User, error) {
	var rec userRow
	err := sqlx.GetContext(ctx, q, &rec, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *sqlRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	var sets []string
	var args []interface{}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *update.Email)
	}
	if update.PhoneNumber != nil {
		sets = append(sets, "phone_number = ?")
		args = append(args, *update.PhoneNumber)
	}
	if len(sets) == 0 {
		return r.getOne(ctx, r.db, `id = ?`, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if db.IsUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return r.getOne(ctx, r.db, `id = ?`, id)
}

func (r *sqlRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`), hash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *sqlRepository) SetProfilePicture(ctx context.Context, id, path string) (*models.User, error) {
	return r.setColumn(ctx, id, "profile_picture", path)
}

func (r *sqlRepository) SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error) {
	return r.setColumn(ctx, id, "blocked", dialect.BoolToInt(blocked))
}

func (r *sqlRepository) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	return r.setColumn(ctx, id, "role", string(role))
}

// setColumn updates one trusted column name and returns the fresh row.
func (r *sqlRepository) setColumn(ctx context.Context, id, column string, value interface{}) (*models.User, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?
	`), value, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return r.getOne(ctx, r.db, `id = ?`, id)
}

func (r *sqlRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *sqlRepository) List(ctx context.Context, filter models.ListFilter) ([]*models.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	where, args := r.searchClause(filter.Search)
	query := `SELECT ` + userColumns + ` FROM users` + where
	query += ` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	var recs []userRow
	if err := r.ro.SelectContext(ctx, &recs, r.ro.Rebind(query), args...); err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(recs))
	for i := range recs {
		users = append(users, recs[i].toModel())
	}
	return users, nil
}

func (r *sqlRepository) Count(ctx context.Context, filter models.ListFilter) (int, error) {
	where, args := r.searchClause(filter.Search)
	var n int
	if err := r.ro.GetContext(ctx, &n, r.ro.Rebind(`SELECT COUNT(1) FROM users`+where), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// searchClause matches name or email case-insensitively. Empty search matches all.
func (r *sqlRepository) searchClause(search string) (string, []interface{}) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	like := dialect.Like(r.ro.DriverName())
	pattern := "%" + search + "%"
	return ` WHERE name ` + like + ` ? OR email ` + like + ` ?`, []interface{}{pattern, pattern}
}

func (r *sqlRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.ro.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY created_at ASC`); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sqlRepository) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := r.ro.QueryRowxContext(ctx, r.ro.Rebind(`
		SELECT
			COUNT(1),
			COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN blocked = 1 THEN 1 ELSE 0 END), 0)
		FROM users
	`), string(models.RoleAdmin)).Scan(&stats.Users, &stats.Admins, &stats.Blocked)
	return stats, err
}

func (rec *userRow) toModel() *models.User {
	return &models.User{
		ID:             rec.ID,
		Name:           rec.Name,
		Email:          rec.Email,
		PasswordHash:   rec.PasswordHash,
		Role:           models.Role(rec.Role),
		Blocked:        rec.Blocked != 0,
		ProfilePicture: rec.ProfilePicture,
		PhoneNumber:    rec.PhoneNumber,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
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
