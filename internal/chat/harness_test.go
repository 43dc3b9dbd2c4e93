package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/embedded"
	"github.com/dmitrijs2005/gophchat/internal/storage/sqlstore"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

var defaultQuota = Quota{MaxFileBytes: 10 * mib, MaxTotalBytes: 50 * mib}

type env struct {
	backend *embedded.Backend
	prefs   *preferences.Store
	bus     *syncbus.Bus
	repo    *Repository
}

// stepClock advances one second per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func testCreds() *cryptox.PBKDF2 {
	return &cryptox.PBKDF2{Iterations: 1000}
}

func newEnv(t *testing.T, quota Quota, opts ...Option) *env {
	t.Helper()
	b, err := embedded.Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	prefs := preferences.New(b.DB())
	bus := syncbus.New(prefs)
	t.Cleanup(bus.Dispose)

	repo, err := New(b, prefs, bus, testCreds(), quota, opts...)
	require.NoError(t, err)
	return &env{backend: b, prefs: prefs, bus: bus, repo: repo}
}

// tab builds another repository over the same backend and bus, as a second
// execution context in the same process would.
func (e *env) tab(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(e.backend, e.prefs, e.bus, testCreds(), e.repo.quota)
	require.NoError(t, err)
	return repo
}

func mustProfile(t *testing.T, r *Repository, name string) *models.Profile {
	t.Helper()
	p, err := r.CreateProfile(context.Background(), name)
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "want %v, got %v", kind, err)
	var typed *common.Error
	require.True(t, errors.As(err, &typed))
	require.NotEmpty(t, typed.Error())
}

// memBlobs is an object-store stand-in that does not take part in database
// transactions.
type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBlobs) PutBlob(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *memBlobs) GetBlob(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

func (m *memBlobs) DeleteBlob(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memBlobs) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// splitBackend keeps records in SQLite and blobs outside any transaction,
// the way the networked backend does. failTx aborts the next atomic unit
// after its writer ran.
type splitBackend struct {
	inner  *embedded.Backend
	blobs  *memBlobs
	failTx error
}

func newSplitEnv(t *testing.T, quota Quota) (*env, *splitBackend) {
	t.Helper()
	e := newEnv(t, quota)
	sb := &splitBackend{inner: e.backend, blobs: &memBlobs{data: map[string][]byte{}}}
	repo, err := New(sb, e.prefs, e.bus, testCreds(), quota)
	require.NoError(t, err)
	e.repo = repo
	return e, sb
}

func (b *splitBackend) Kind() storage.Kind { return storage.KindNetworked }

func (b *splitBackend) Stores() storage.Stores {
	return sqlstore.New(b.inner.DB(), dbx.SQLite, b.blobs)
}

func (b *splitBackend) BlobsTransactional() bool { return false }

func (b *splitBackend) RunAtomic(ctx context.Context, scope []storage.StoreName, fn func(ctx context.Context, s storage.Stores) error) error {
	return dbx.WithTx(ctx, b.inner.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := fn(ctx, sqlstore.New(tx, dbx.SQLite, b.blobs)); err != nil {
			return err
		}
		if b.failTx != nil {
			err := b.failTx
			b.failTx = nil
			return err
		}
		return nil
	})
}

func (b *splitBackend) Close() error { return nil }
