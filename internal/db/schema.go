package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mybudgetplus/mybudget/internal/db/dialect"
)

// EnsureColumn adds a column to an existing table when it is missing.
// Table and column names are trusted identifiers, never user input.
func EnsureColumn(ctx context.Context, x *sqlx.DB, table, column, definition string) error {
	if dialect.IsPostgres(x.DriverName()) {
		_, err := x.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, definition))
		return err
	}

	exists, err := columnExists(ctx, x, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = x.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func columnExists(ctx context.Context, x *sqlx.DB, table, column string) (bool, error) {
	var count int
	err := x.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	return count > 0, nil
}
