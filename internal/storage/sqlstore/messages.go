package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

var messageColumns = []string{"id", "chat_id", "sender_id", "kind", "body", "attachment_ids", "created_at", "seq"}

type MessageStore struct {
	db dbx.DBTX
	d  dbx.Dialect
	b  sq.StatementBuilderType
}

// insert builds the message insert. PostgreSQL draws seq from the column's
// identity sequence; SQLite serialises writers, so MAX(seq)+1 is safe there.
func (r *MessageStore) insert(m *models.Message, idsJSON string) sq.InsertBuilder {
	values := []any{m.ID, m.ChatID, m.SenderID, string(m.Kind), m.Body, idsJSON, millis(m.CreatedAt)}
	cols := messageColumns[:len(messageColumns)-1]
	if r.d != dbx.Postgres {
		cols = messageColumns
		values = append(values, sq.Expr("(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages)"))
	}
	return r.b.Insert("messages").Columns(cols...).Values(values...)
}

// Put upserts m and sets m.Seq. A new row takes the next insertion counter;
// a replaced row keeps its counter.
func (r *MessageStore) Put(ctx context.Context, m *models.Message) error {
	ids := m.AttachmentIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode attachment ids: %w", err)
	}

	q := r.insert(m, string(idsJSON)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, body = excluded.body,
			attachment_ids = excluded.attachment_ids RETURNING seq`)
	row, err := dbx.QueryRow(ctx, r.db, q)
	if err != nil {
		return err
	}
	if err := row.Scan(&m.Seq); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select(messageColumns...).From("messages").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *MessageStore) GetAll(ctx context.Context) ([]*models.Message, error) {
	return r.list(ctx, r.b.Select(messageColumns...).From("messages"))
}

func (r *MessageStore) ByChat(ctx context.Context, chatID string) ([]*models.Message, error) {
	return r.list(ctx, r.b.Select(messageColumns...).From("messages").
		Where(sq.Eq{"chat_id": chatID}).OrderBy("created_at", "seq"))
}

func (r *MessageStore) Last(ctx context.Context, chatID string) (*models.Message, error) {
	q := r.b.Select(messageColumns...).From("messages").
		Where(sq.Eq{"chat_id": chatID}).OrderBy("created_at DESC", "seq DESC").Limit(1)
	row, err := dbx.QueryRow(ctx, r.db, q)
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *MessageStore) list(ctx context.Context, q sq.SelectBuilder) ([]*models.Message, error) {
	rows, err := dbx.Query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanMessage(s scanner) (*models.Message, error) {
	var (
		m       models.Message
		kind    string
		ids     string
		created int64
	)
	if err := s.Scan(&m.ID, &m.ChatID, &m.SenderID, &kind, &m.Body, &ids, &created, &m.Seq); err != nil {
		return nil, err
	}
	m.Kind = models.MessageKind(kind)
	m.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(ids), &m.AttachmentIDs); err != nil {
		return nil, fmt.Errorf("decode attachment ids: %w", err)
	}
	return &m, nil
}
