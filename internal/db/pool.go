package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Pool pairs the write and read connections handed to every store.
//
// SQLite gets a single-connection writer and a small read-only pool so reads
// proceed alongside writes under WAL. PostgreSQL shares one *sqlx.DB for both.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer returns the connection used for INSERT, UPDATE, DELETE and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the connection used for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Driver returns the sqlx driver name of the writer.
func (p *Pool) Driver() string { return p.writer.DriverName() }

// Ping verifies the writer is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.writer.PingContext(ctx)
}

// WithTx runs fn inside a writer transaction, committing on success and
// rolling back on error or panic.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := p.writer.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes both pools, once when they are shared.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
