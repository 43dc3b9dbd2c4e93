// Package embedded is the on-device storage variant: one SQLite file holding
// records, attachment blobs and preferences. Record and blob writes inside
// RunAtomic share a single transaction.
package embedded

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/migrations"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/sqlstore"

	_ "modernc.org/sqlite"
)

// OpenDB opens (creating if needed) the SQLite file at path, applies the
// connection pragmas and runs migrations.
//
// The pool is capped at one connection: SQLite serialises writers anyway and
// a single handle keeps transactions from tripping over SQLITE_BUSY.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.Up(ctx, db, dbx.SQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return nil
}

// Backend implements storage.Backend over a SQLite database.
type Backend struct {
	db     *sql.DB
	stores *sqlstore.Stores
}

// New wraps an already opened database.
func New(db *sql.DB) *Backend {
	return &Backend{db: db, stores: sqlstore.New(db, dbx.SQLite, nil)}
}

// Open is OpenDB followed by New.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (b *Backend) Kind() storage.Kind { return storage.KindEmbedded }

func (b *Backend) Stores() storage.Stores { return b.stores }

func (b *Backend) BlobsTransactional() bool { return true }

// DB exposes the handle so preferences can share the file.
func (b *Backend) DB() *sql.DB { return b.db }

// RunAtomic runs fn in one SQLite transaction. fn must only use the passed
// stores: the pool has a single connection.
func (b *Backend) RunAtomic(ctx context.Context, scope []storage.StoreName, fn func(ctx context.Context, s storage.Stores) error) error {
	if err := storage.CheckScope(scope); err != nil {
		return err
	}
	return dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, sqlstore.New(tx, dbx.SQLite, nil))
	})
}

func (b *Backend) Close() error {
	return b.db.Close()
}
