package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
)

// BlobStore keeps attachment content in the blobs table. Only the SQLite
// schema has one.
type BlobStore struct {
	db dbx.DBTX
	b  sq.StatementBuilderType
}

func (r *BlobStore) PutBlob(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	q := r.b.Insert("blobs").Columns("key", "data").Values(key, data).
		Suffix("ON CONFLICT (key) DO UPDATE SET data = excluded.data")
	if _, err := dbx.Exec(ctx, r.db, q); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *BlobStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select("data").From("blobs").Where(sq.Eq{"key": key}))
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return data, nil
}

func (r *BlobStore) DeleteBlob(ctx context.Context, key string) error {
	if _, err := dbx.Exec(ctx, r.db, r.b.Delete("blobs").Where(sq.Eq{"key": key})); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
