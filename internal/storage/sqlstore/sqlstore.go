// Package sqlstore implements the storage record stores over database/sql.
// The same code serves SQLite (embedded) and PostgreSQL (networked); only the
// squirrel placeholder format differs, chosen by dbx.Dialect.
//
// Timestamps are stored as unix milliseconds, attachment id lists as JSON
// text.
package sqlstore

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

// Stores binds every record store to one DBTX: a *sql.DB for auto-commit use
// or a *sql.Tx inside an atomic unit.
type Stores struct {
	db    dbx.DBTX
	d     dbx.Dialect
	b     sq.StatementBuilderType
	blobs storage.BlobStore
}

// New returns stores over db. When blobs is nil the SQL blobs table is used.
func New(db dbx.DBTX, d dbx.Dialect, blobs storage.BlobStore) *Stores {
	s := &Stores{db: db, d: d, b: d.Builder(), blobs: blobs}
	if s.blobs == nil {
		s.blobs = &BlobStore{db: db, b: s.b}
	}
	return s
}

func (s *Stores) Profiles() storage.ProfileStore {
	return &ProfileStore{db: s.db, b: s.b}
}

func (s *Stores) Chats() storage.ChatStore {
	return &ChatStore{db: s.db, b: s.b}
}

func (s *Stores) Memberships() storage.MembershipStore {
	return &MembershipStore{db: s.db, b: s.b}
}

func (s *Stores) Messages() storage.MessageStore {
	return &MessageStore{db: s.db, d: s.d, b: s.b}
}

func (s *Stores) Attachments() storage.AttachmentStore {
	return &AttachmentStore{db: s.db, b: s.b}
}

func (s *Stores) Blobs() storage.BlobStore {
	return s.blobs
}

type scanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func ptrMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
