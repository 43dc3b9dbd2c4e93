// Package networked is the remote storage variant: records in PostgreSQL
// (pgx), attachment content in an S3-compatible bucket.
//
// Record writes inside RunAtomic share one database transaction. Blob writes
// go straight to the bucket and are not rolled back with it, so callers
// upload first and clean up on failure.
package networked

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/migrations"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/sqlstore"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Options configures Open.
type Options struct {
	DSN       string
	S3        S3Options
	CacheSize int
}

// Backend implements storage.Backend over PostgreSQL and S3.
type Backend struct {
	db     *sql.DB
	blobs  storage.BlobStore
	stores *sqlstore.Stores
}

// New wraps an opened database and blob store.
func New(db *sql.DB, blobs storage.BlobStore) *Backend {
	return &Backend{db: db, blobs: blobs, stores: sqlstore.New(db, dbx.Postgres, blobs)}
}

// Open connects to PostgreSQL, runs migrations and builds the S3 client.
func Open(ctx context.Context, o Options, log logging.Logger) (*Backend, error) {
	db, err := sql.Open("pgx", o.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrations.Up(ctx, db, dbx.Postgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	api, err := NewS3Client(ctx, o.S3)
	if err != nil {
		db.Close()
		return nil, err
	}
	blobs, err := NewS3Blobs(api, o.S3.Bucket, o.CacheSize, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return New(db, blobs), nil
}

func (b *Backend) Kind() storage.Kind { return storage.KindNetworked }

func (b *Backend) Stores() storage.Stores { return b.stores }

func (b *Backend) BlobsTransactional() bool { return false }

func (b *Backend) RunAtomic(ctx context.Context, scope []storage.StoreName, fn func(ctx context.Context, s storage.Stores) error) error {
	if err := storage.CheckScope(scope); err != nil {
		return err
	}
	return dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, sqlstore.New(tx, dbx.Postgres, b.blobs))
	})
}

func (b *Backend) Close() error {
	return b.db.Close()
}
