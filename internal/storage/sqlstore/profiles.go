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

var profileColumns = []string{"id", "name", "avatar_color", "created_at", "updated_at", "pw_salt", "pw_hash", "pw_iterations"}

type ProfileStore struct {
	db dbx.DBTX
	b  sq.StatementBuilderType
}

func (r *ProfileStore) Put(ctx context.Context, p *models.Profile) error {
	var salt, hash []byte
	var iter sql.NullInt64
	if p.Password != nil {
		salt, hash = p.Password.Salt, p.Password.Hash
		iter = sql.NullInt64{Int64: int64(p.Password.Iterations), Valid: true}
	}

	q := r.b.Insert("profiles").Columns(profileColumns...).
		Values(p.ID, p.Name, p.AvatarColor, millis(p.CreatedAt), millis(p.UpdatedAt), salt, hash, iter).
		Suffix(`ON CONFLICT (id) DO UPDATE SET name = excluded.name, avatar_color = excluded.avatar_color,
			updated_at = excluded.updated_at, pw_salt = excluded.pw_salt, pw_hash = excluded.pw_hash,
			pw_iterations = excluded.pw_iterations`)
	if _, err := dbx.Exec(ctx, r.db, q); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *ProfileStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	row, err := dbx.QueryRow(ctx, r.db, r.b.Select(profileColumns...).From("profiles").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *ProfileStore) GetAll(ctx context.Context) ([]*models.Profile, error) {
	rows, err := dbx.Query(ctx, r.db, r.b.Select(profileColumns...).From("profiles"))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanProfile(s scanner) (*models.Profile, error) {
	var (
		p                models.Profile
		created, updated int64
		salt, hash       []byte
		iter             sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Name, &p.AvatarColor, &created, &updated, &salt, &hash, &iter); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	if iter.Valid && len(hash) > 0 {
		p.Password = &models.PasswordDigest{Salt: salt, Hash: hash, Iterations: int(iter.Int64)}
	}
	return &p, nil
}
