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

var attachmentColumns = []string{"id", "message_id", "chat_id", "kind", "file_name", "mime_type", "size_bytes", "blob_key", "created_at"}

type AttachmentStore struct {
	db dbx.DBTX
	b  sq.StatementBuilderType
}

func (r *AttachmentStore) Put(ctx context.Context, a *models.AttachmentMeta) error {
	q := r.b.Insert("attachments").Columns(attachmentColumns...).
		Values(a.ID, a.MessageID, a.ChatID, string(a.Kind), a.FileName, a.MimeType, a.SizeBytes, a.BlobKey, millis(a.CreatedAt)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET file_name = excluded.file_name, mime_type = excluded.mime_type`)
	if _, err := dbx.Exec(ctx, r.db, q); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *AttachmentStore) Get(ctx context.Context, id string) (*models.AttachmentMeta, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select(attachmentColumns...).From("attachments").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	a, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *AttachmentStore) GetAll(ctx context.Context) ([]*models.AttachmentMeta, error) {
	return r.list(ctx, nil)
}

func (r *AttachmentStore) ByMessage(ctx context.Context, messageID string) ([]*models.AttachmentMeta, error) {
	return r.list(ctx, sq.Eq{"message_id": messageID})
}

func (r *AttachmentStore) ByChat(ctx context.Context, chatID string) ([]*models.AttachmentMeta, error) {
	return r.list(ctx, sq.Eq{"chat_id": chatID})
}

func (r *AttachmentStore) TotalBytes(ctx context.Context) (int64, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select("CAST(COALESCE(SUM(size_bytes), 0) AS BIGINT)").From("attachments"))
	if err != nil {
		return 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *AttachmentStore) list(ctx context.Context, where sq.Sqlizer) ([]*models.AttachmentMeta, error) {
	q := r.b.Select(attachmentColumns...).From("attachments").OrderBy("created_at", "id")
	if where != nil {
		q = q.Where(where)
	}
	rows, err := dbx.Query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AttachmentMeta
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanAttachment(s scanner) (*models.AttachmentMeta, error) {
	var (
		a       models.AttachmentMeta
		kind    string
		created int64
	)
	if err := s.Scan(&a.ID, &a.MessageID, &a.ChatID, &kind, &a.FileName, &a.MimeType, &a.SizeBytes, &a.BlobKey, &created); err != nil {
		return nil, err
	}
	a.Kind = models.AttachmentKind(kind)
	a.CreatedAt = fromMillis(created)
	return &a, nil
}
