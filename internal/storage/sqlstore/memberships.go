package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

var membershipColumns = []string{"id", "chat_id", "profile_id", "role", "joined_at", "left_at"}

type MembershipStore struct {
	db dbx.DBTX
	b  sq.StatementBuilderType
}

func (r *MembershipStore) Put(ctx context.Context, m *models.Membership) error {
	q := r.b.Insert("memberships").Columns(membershipColumns...).
		Values(m.ID, m.ChatID, m.ProfileID, string(m.Role), millis(m.JoinedAt), nullMillis(m.LeftAt)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET role = excluded.role, left_at = excluded.left_at`)
	if _, err := dbx.Exec(ctx, r.db, q); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MembershipStore) GetAll(ctx context.Context) ([]*models.Membership, error) {
	return r.list(ctx, nil)
}

func (r *MembershipStore) ByChat(ctx context.Context, chatID string) ([]*models.Membership, error) {
	return r.list(ctx, sq.Eq{"chat_id": chatID})
}

func (r *MembershipStore) ByProfile(ctx context.Context, profileID string) ([]*models.Membership, error) {
	return r.list(ctx, sq.Eq{"profile_id": profileID})
}

func (r *MembershipStore) list(ctx context.Context, where sq.Sqlizer) ([]*models.Membership, error) {
	q := r.b.Select(membershipColumns...).From("memberships").OrderBy("joined_at", "id")
	if where != nil {
		q = q.Where(where)
	}
	rows, err := dbx.Query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Membership
	for rows.Next() {
		var (
			m      models.Membership
			role   string
			joined int64
			left   sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ProfileID, &role, &joined, &left); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.Role = models.Role(role)
		m.JoinedAt = fromMillis(joined)
		m.LeftAt = ptrMillis(left)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
