package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxConns  = 25
	defaultIdleConns = 5
	connectTimeout   = 10 * time.Second
)

// OpenPostgres parses dsn with pgx, opens it as a database/sql handle and
// pings it. Non-positive sizes use 25 open / 5 idle connections.
func OpenPostgres(dsn string, maxConns, minConns int) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connCfg.ConnectTimeout == 0 {
		connCfg.ConnectTimeout = connectTimeout
	}
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = "mybudget"
	}

	conn := stdlib.OpenDB(*connCfg)
	conn.SetMaxOpenConns(orDefault(maxConns, defaultMaxConns))
	conn.SetMaxIdleConns(orDefault(minConns, defaultIdleConns))
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", connCfg.Host, connCfg.Port, err)
	}
	return conn, nil
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
