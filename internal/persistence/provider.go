// Package persistence opens the database pool shared by all stores.
package persistence

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
)

// Provide opens the configured database and returns the pool with its cleanup.
func Provide(cfg *config.Config, log *logger.Logger) (*db.Pool, func() error, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		return provideSQLite(cfg.Database.Path, log)
	case "postgres":
		return providePostgres(cfg.Database, log)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func provideSQLite(path string, log *logger.Logger) (*db.Pool, func() error, error) {
	writerConn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	readerConn, err := db.OpenSQLiteReader(path)
	if err != nil {
		_ = writerConn.Close()
		return nil, nil, fmt.Errorf("failed to open sqlite reader: %w", err)
	}

	pool := db.NewPool(sqlx.NewDb(writerConn, dialect.SQLite3), sqlx.NewDb(readerConn, dialect.SQLite3))
	if log != nil {
		log.Info("Database initialized", zap.String("db_driver", "sqlite"), zap.String("db_path", path))
	}
	cleanup := func() error {
		// Refresh planner statistics before the process goes away.
		_, _ = pool.Writer().Exec("PRAGMA optimize")
		return pool.Close()
	}
	return pool, cleanup, nil
}

func providePostgres(cfg config.DatabaseConfig, log *logger.Logger) (*db.Pool, func() error, error) {
	conn, err := db.OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
	if err != nil {
		return nil, nil, err
	}
	shared := sqlx.NewDb(conn, dialect.PGX)
	pool := db.NewPool(shared, shared)
	if log != nil {
		log.Info("Database initialized",
			zap.String("db_driver", "postgres"),
			zap.String("db_host", cfg.Host),
			zap.String("db_name", cfg.DBName))
	}
	return pool, pool.Close, nil
}
