// Package preferences is the device-local key/value store: active identity,
// per-identity selected chat, the demo-seeded flag and the sync bus fallback
// slot. It always lives in the local SQLite file, whichever record backend
// is in use.
package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
)

const (
	KeyActiveProfile = "active-profile"
	KeyDemoSeeded    = "demo-seeded"
)

// SelectedChatKey is the key holding profileID's last selected chat.
func SelectedChatKey(profileID string) string {
	return "selected-chat:" + profileID
}

type Store struct {
	db dbx.DBTX
}

func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// Get returns (nil, nil) when key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference[%s]: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference[%s]: %w", key, err)
	}
	return nil
}

// Clear removes key. Clearing an absent key is not an error.
func (s *Store) Clear(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to clear preference[%s]: %w", key, err)
	}
	return nil
}

// GetString is Get for text values; absent keys read as "".
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.Set(ctx, key, []byte(value))
}
