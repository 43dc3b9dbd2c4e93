package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/migrations"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupStores(t *testing.T) (*Stores, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db, dbx.SQLite))
	return New(db, dbx.SQLite, nil), db
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedChat(t *testing.T, s *Stores) (*models.Profile, *models.Chat) {
	t.Helper()
	ctx := context.Background()
	p := &models.Profile{ID: "p1", Name: "Alex", AvatarColor: "hsl(1, 65%, 45%)", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.Profiles().Put(ctx, p))
	c := &models.Chat{ID: "c1", Kind: models.ChatGroup, Title: "Team", CreatedBy: "p1", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.Chats().Put(ctx, c))
	return p, c
}

func TestProfiles_PutGetUpsert(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()

	p := &models.Profile{ID: "p1", Name: "Alex", AvatarColor: "c", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.Profiles().Put(ctx, p))

	got, err := s.Profiles().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Nil(t, got.Password)

	p.Name = "Alexandra"
	p.Password = &models.PasswordDigest{Salt: []byte("s"), Hash: []byte("h"), Iterations: 7}
	require.NoError(t, s.Profiles().Put(ctx, p))

	got, err = s.Profiles().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Alexandra", got.Name)
	require.NotNil(t, got.Password)
	assert.Equal(t, 7, got.Password.Iterations)

	all, err := s.Profiles().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProfiles_GetMissing(t *testing.T) {
	s, _ := setupStores(t)
	_, err := s.Profiles().Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestChats_DirectKeyUnique(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()
	seedChat(t, s)

	d1 := &models.Chat{ID: "d1", Kind: models.ChatDirect, CreatedBy: "p1", CreatedAt: t0, UpdatedAt: t0, DirectKey: "a|b"}
	require.NoError(t, s.Chats().Put(ctx, d1))

	d2 := &models.Chat{ID: "d2", Kind: models.ChatDirect, CreatedBy: "p1", CreatedAt: t0, UpdatedAt: t0, DirectKey: "a|b"}
	assert.Error(t, s.Chats().Put(ctx, d2))

	got, err := s.Chats().GetByDirectKey(ctx, "a|b")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)

	// groups carry no key and never collide
	g := &models.Chat{ID: "g2", Kind: models.ChatGroup, CreatedBy: "p1", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.Chats().Put(ctx, g))

	_, err = s.Chats().GetByDirectKey(ctx, "x|y")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestChats_TouchPersists(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()
	_, c := seedChat(t, s)

	got, err := s.Chats().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastMessageAt)

	c.Touch(t0.Add(time.Minute))
	require.NoError(t, s.Chats().Put(ctx, c))

	got, err = s.Chats().Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(t0.Add(time.Minute)))
	assert.Equal(t, "Team", got.Title)
}

func TestMemberships_IndexesAndActiveUniqueness(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()
	seedChat(t, s)

	m := &models.Membership{ID: "m1", ChatID: "c1", ProfileID: "p1", Role: models.RoleOwner, JoinedAt: t0}
	require.NoError(t, s.Memberships().Put(ctx, m))

	dup := &models.Membership{ID: "m2", ChatID: "c1", ProfileID: "p1", Role: models.RoleMember, JoinedAt: t0}
	assert.Error(t, s.Memberships().Put(ctx, dup), "second active membership must be rejected")

	left := t0.Add(time.Hour)
	m.LeftAt = &left
	require.NoError(t, s.Memberships().Put(ctx, m))
	require.NoError(t, s.Memberships().Put(ctx, dup), "rejoin after leaving is allowed")

	byChat, err := s.Memberships().ByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byChat, 2)
	assert.False(t, byChat[0].Active())
	assert.True(t, byChat[1].Active())

	byProfile, err := s.Memberships().ByProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, byProfile, 2)

	none, err := s.Memberships().ByProfile(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMessages_SeqAndOrdering(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()
	seedChat(t, s)

	// same timestamp: insertion order wins
	a := &models.Message{ID: "m-b", ChatID: "c1", SenderID: "p1", Kind: models.MessageText, Body: "first", CreatedAt: t0}
	b := &models.Message{ID: "m-a", ChatID: "c1", SenderID: "p1", Kind: models.MessageText, Body: "second", CreatedAt: t0}
	early := &models.Message{ID: "m-z", ChatID: "c1", SenderID: "p1", Kind: models.MessageSystem, Body: "zero", CreatedAt: t0.Add(-time.Second)}
	require.NoError(t, s.Messages().Put(ctx, a))
	require.NoError(t, s.Messages().Put(ctx, b))
	require.NoError(t, s.Messages().Put(ctx, early))
	assert.Less(t, a.Seq, b.Seq)

	list, err := s.Messages().ByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"zero", "first", "second"}, []string{list[0].Body, list[1].Body, list[2].Body})
	assert.Equal(t, []string{}, list[0].AttachmentIDs)

	last, err := s.Messages().Last(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m-a", last.ID)

	// replacing keeps the counter
	seq := a.Seq
	a.AttachmentIDs = []string{"x1", "x2"}
	a.Kind = models.MessageMixed
	require.NoError(t, s.Messages().Put(ctx, a))
	assert.Equal(t, seq, a.Seq)

	got, err := s.Messages().Get(ctx, "m-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2"}, got.AttachmentIDs)
	assert.Equal(t, models.MessageMixed, got.Kind)

	_, err = s.Messages().Last(ctx, "empty")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestAttachments_TotalsAndIndexes(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()
	seedChat(t, s)

	total, err := s.Attachments().TotalBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	msg := &models.Message{ID: "m1", ChatID: "c1", SenderID: "p1", Kind: models.MessageFile, CreatedAt: t0}
	require.NoError(t, s.Messages().Put(ctx, msg))

	for i, size := range []int64{100, 250} {
		a := &models.AttachmentMeta{
			ID: []string{"a1", "a2"}[i], MessageID: "m1", ChatID: "c1", Kind: models.AttachmentFile,
			FileName: "f.txt", MimeType: "text/plain", SizeBytes: size, BlobKey: "k", CreatedAt: t0,
		}
		require.NoError(t, s.Attachments().Put(ctx, a))
	}

	total, err = s.Attachments().TotalBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)

	byMsg, err := s.Attachments().ByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, byMsg, 2)

	byChat, err := s.Attachments().ByChat(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, byChat, 2)

	got, err := s.Attachments().Get(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.SizeBytes)

	_, err = s.Attachments().Get(ctx, "zzz")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestBlobs_RoundTrip(t *testing.T) {
	s, _ := setupStores(t)
	ctx := context.Background()

	require.NoError(t, s.Blobs().PutBlob(ctx, "k1", []byte{1, 2, 3}))
	got, err := s.Blobs().GetBlob(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, s.Blobs().DeleteBlob(ctx, "k1"))
	_, err = s.Blobs().GetBlob(ctx, "k1")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestStores_InsideTxRollback(t *testing.T) {
	_, db := setupStores(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		s := New(tx, dbx.SQLite, nil)
		p := &models.Profile{ID: "p9", Name: "Ghost", AvatarColor: "c", CreatedAt: t0, UpdatedAt: t0}
		require.NoError(t, s.Profiles().Put(ctx, p))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = New(db, dbx.SQLite, nil).Profiles().Get(ctx, "p9")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestStores_ClosedDBWrapsErrors(t *testing.T) {
	s, db := setupStores(t)
	require.NoError(t, db.Close())

	_, err := s.Profiles().GetAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestMessages_InsertSeqByDialect(t *testing.T) {
	m := &models.Message{ID: "m1", ChatID: "c1", SenderID: "p1", Kind: models.MessageText, Body: "hi", CreatedAt: time.UnixMilli(1)}

	pg := &MessageStore{d: dbx.Postgres, b: dbx.Postgres.Builder()}
	query, args, err := pg.insert(m, "[]").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO messages (id,chat_id,sender_id,kind,body,attachment_ids,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)", query)
	assert.Len(t, args, 7)

	lite := &MessageStore{d: dbx.SQLite, b: dbx.SQLite.Builder()}
	query, _, err = lite.insert(m, "[]").ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "created_at,seq)")
	assert.Contains(t, query, "(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages)")
}
