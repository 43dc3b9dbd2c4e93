package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

var chatColumns = []string{"id", "kind", "title", "created_by", "created_at", "updated_at", "last_message_at", "direct_key"}

type ChatStore struct {
	db dbx.DBTX
	b  sq.StatementBuilderType
}

// Put upserts c. The direct key is fixed at insert time.
func (r *ChatStore) Put(ctx context.Context, c *models.Chat) error {
	q := r.b.Insert("chats").Columns(chatColumns...).
		Values(c.ID, string(c.Kind), c.Title, c.CreatedBy, millis(c.CreatedAt), millis(c.UpdatedAt),
			nullMillis(c.LastMessageAt), nullString(c.DirectKey)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at,
			last_message_at = excluded.last_message_at`)
	if _, err := dbx.Exec(ctx, r.db, q); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *ChatStore) Get(ctx context.Context, id string) (*models.Chat, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *ChatStore) GetByDirectKey(ctx context.Context, key string) (*models.Chat, error) {
	return r.getOne(ctx, sq.Eq{"direct_key": key})
}

func (r *ChatStore) getOne(ctx context.Context, where sq.Eq) (*models.Chat, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select(chatColumns...).From("chats").Where(where))
	if err != nil {
		return nil, err
	}
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *ChatStore) GetAll(ctx context.Context) ([]*models.Chat, error) {
	rows, err := dbx.Query(ctx, r.db, r.b.Select(chatColumns...).From("chats"))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanChat(s scanner) (*models.Chat, error) {
	var (
		c                models.Chat
		kind             string
		created, updated int64
		last             sql.NullInt64
		directKey        sql.NullString
	)
	if err := s.Scan(&c.ID, &kind, &c.Title, &c.CreatedBy, &created, &updated, &last, &directKey); err != nil {
		return nil, err
	}
	c.Kind = models.ChatKind(kind)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	c.LastMessageAt = ptrMillis(last)
	c.DirectKey = directKey.String
	return &c, nil
}
