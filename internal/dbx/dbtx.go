// Package dbx provides the small database abstractions shared by both storage
// variants: a DBTX interface implemented by *sql.DB and *sql.Tx, a WithTx
// helper, and a Dialect that picks placeholder syntax for squirrel builders.
package dbx

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// DBTX is the subset of database/sql used by our stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Dialect selects SQL flavour details that differ between the embedded
// (SQLite) and networked (PostgreSQL) stores.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Builder returns a squirrel statement builder with the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	if d == Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Goose returns the goose dialect name.
func (d Dialect) Goose() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// Exec renders b and executes it on db.
func Exec(ctx context.Context, db DBTX, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.ExecContext(ctx, query, args...)
}

// Query renders b and runs it on db. The caller closes the rows.
func Query(ctx context.Context, db DBTX, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.QueryContext(ctx, query, args...)
}

// QueryRow renders b and runs it on db, returning a single row.
func QueryRow(ctx context.Context, db DBTX, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.QueryRowContext(ctx, query, args...), nil
}
