package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadQuota(t *testing.T) {
	e := newEnv(t, defaultQuota)
	_, err := New(e.backend, e.prefs, e.bus, testCreds(), Quota{MaxFileBytes: 0, MaxTotalBytes: 10})
	assert.Error(t, err)
	_, err = New(e.backend, e.prefs, e.bus, testCreds(), Quota{MaxFileBytes: 20, MaxTotalBytes: 10})
	assert.Error(t, err)
	_, err = New(nil, e.prefs, e.bus, testCreds(), defaultQuota)
	assert.Error(t, err)
}

func TestCreateProfile(t *testing.T) {
	e := newEnv(t, defaultQuota)
	ctx := context.Background()
	sub := e.bus.Subscribe(syncbus.Profiles)

	p, err := e.repo.CreateProfile(ctx, "  Alex  ")
	require.NoError(t, err)
	assert.Equal(t, "Alex", p.Name)
	assert.Equal(t, models.AvatarColor("Alex"), p.AvatarColor)
	assert.NotEmpty(t, p.ID)
	assert.Nil(t, p.Password)
	assert.Equal(t, syncbus.Profiles, (<-sub.Events()).Type)

	got, err := e.backend.Stores().Profiles().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	_, err = e.repo.CreateProfile(ctx, "   ")
	requireKind(t, err, common.ErrValidation)

	_, err = e.repo.CreateProfile(ctx, strings.Repeat("x", 65))
	requireKind(t, err, common.ErrValidation)

	p64, err := e.repo.CreateProfile(ctx, strings.Repeat("é", 64))
	require.NoError(t, err)
	assert.Equal(t, 64, len([]rune(p64.Name)))
}

func TestSignUpAndSignIn(t *testing.T) {
	e := newEnv(t, defaultQuota)
	ctx := context.Background()

	p, err := e.repo.SignUp(ctx, "Alex", "correct horse battery")
	require.NoError(t, err)
	require.NotNil(t, p.Password)

	active, err := e.repo.ActiveIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, p.ID, active.ID)

	_, err = e.repo.SignUp(ctx, "alex", "another password")
	requireKind(t, err, common.ErrAuth)

	require.NoError(t, e.repo.SignOut(ctx))
	active, err = e.repo.ActiveIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = e.repo.SignIn(ctx, "Alex", "wrong")
	requireKind(t, err, common.ErrAuth)

	_, err = e.repo.SignIn(ctx, "Nobody", "correct horse battery")
	requireKind(t, err, common.ErrAuth)

	got, err := e.repo.SignIn(ctx, " ALEX ", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	active, err = e.repo.ActiveIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, active.ID)
}

func TestSignIn_NoPasswordSet(t *testing.T) {
	e := newEnv(t, defaultQuota)
	mustProfile(t, e.repo, "Sam")

	_, err := e.repo.SignIn(context.Background(), "Sam", "anything")
	requireKind(t, err, common.ErrAuth)
	assert.Contains(t, err.Error(), "no password")
}

func TestSignUp_WeakPassword(t *testing.T) {
	e := newEnv(t, defaultQuota)
	strict := &cryptox.PBKDF2{Iterations: 1000, MinEntropy: 60}
	repo, err := New(e.backend, e.prefs, e.bus, strict, defaultQuota)
	require.NoError(t, err)

	_, err = repo.SignUp(context.Background(), "Alex", "aaaa")
	requireKind(t, err, common.ErrValidation)

	all, err := repo.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRenameAndSetPassword(t *testing.T) {
	e := newEnv(t, defaultQuota)
	ctx := context.Background()
	p := mustProfile(t, e.repo, "Sam")

	renamed, err := e.repo.RenameProfile(ctx, p.ID, "Samantha")
	require.NoError(t, err)
	assert.Equal(t, "Samantha", renamed.Name)
	assert.Equal(t, models.AvatarColor("Samantha"), renamed.AvatarColor)

	_, err = e.repo.RenameProfile(ctx, p.ID, "")
	requireKind(t, err, common.ErrValidation)
	_, err = e.repo.RenameProfile(ctx, "ghost", "Ghost")
	requireKind(t, err, common.ErrNotFound)

	require.NoError(t, e.repo.SetPassword(ctx, p.ID, "new secret words"))
	_, err = e.repo.SignIn(ctx, "Samantha", "new secret words")
	require.NoError(t, err)

	requireKind(t, e.repo.SetPassword(ctx, "ghost", "pw"), common.ErrNotFound)
	requireKind(t, e.repo.SetPassword(ctx, p.ID, ""), common.ErrValidation)
}

func TestSwitchIdentity(t *testing.T) {
	e := newEnv(t, defaultQuota)
	ctx := context.Background()
	a := mustProfile(t, e.repo, "Alex")
	b := mustProfile(t, e.repo, "Sam")

	_, err := e.repo.SwitchIdentity(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.repo.SwitchIdentity(ctx, b.ID)
	require.NoError(t, err)

	active, err := e.repo.ActiveIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	_, err = e.repo.SwitchIdentity(ctx, "ghost")
	requireKind(t, err, common.ErrNotFound)

	// a dangling preference reads as signed out
	require.NoError(t, e.prefs.SetString(ctx, preferences.KeyActiveProfile, "gone"))
	active, err = e.repo.ActiveIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestListProfiles_SortedByName(t *testing.T) {
	e := newEnv(t, defaultQuota)
	for _, n := range []string{"casey", "Alex", "Sam"} {
		mustProfile(t, e.repo, n)
	}
	all, err := e.repo.ListProfiles(context.Background())
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"Alex", "casey", "Sam"}, names)
}

func TestWithIDs(t *testing.T) {
	n := 0
	e := newEnv(t, defaultQuota, WithIDs(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	p, err := e.repo.CreateProfile(context.Background(), "Alex")
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.ID)
}

// brokenCreds passes the strength check but cannot derive a digest.
type brokenCreds struct {
	*cryptox.PBKDF2
}

func (brokenCreds) Derive([]byte) (*models.PasswordDigest, error) {
	return nil, errors.New("entropy source unavailable")
}

func TestDeriveFailureIsBackendError(t *testing.T) {
	e := newEnv(t, defaultQuota)
	ctx := context.Background()
	repo, err := New(e.backend, e.prefs, e.bus, brokenCreds{testCreds()}, defaultQuota)
	require.NoError(t, err)

	_, err = repo.SignUp(ctx, "Alex", "correct horse battery staple")
	requireKind(t, err, common.ErrBackend)
	assert.False(t, errors.Is(err, common.ErrValidation))

	p := mustProfile(t, repo, "Sam")
	err = repo.SetPassword(ctx, p.ID, "correct horse battery staple")
	requireKind(t, err, common.ErrBackend)
	assert.ErrorContains(t, err, "entropy source unavailable")

	profiles, err := repo.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}
