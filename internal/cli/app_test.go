package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/config"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	old := getPassword
	t.Cleanup(func() { getPassword = old })
	getPassword = func(w io.Writer) ([]byte, error) { return []byte(pw), nil }
}

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.LocalDBPath = dbPath
	cfg.SyncPollInterval = 10 * time.Millisecond
	return cfg
}

func openApp(t *testing.T, cfg *config.Config) (*App, *syncBuffer) {
	t.Helper()
	app, err := Open(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	out := &syncBuffer{}
	app.out = &lockedWriter{w: out}
	return app, out
}

func script(lines ...string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestApp_EndToEnd(t *testing.T) {
	stubPassword(t, testPassword)
	dir := t.TempDir()
	cfg := testConfig(t, filepath.Join(dir, "data", "chat.db"))
	app, out := openApp(t, cfg)

	attachment := filepath.Join(dir, "route.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("summit by noon"), 0o600))

	err := app.Run(context.Background(), script(
		"chats",
		"signup",
		"Alex",
		"whoami",
		"seed",
		"chats",
		"open weekend plans",
		"send see you there",
		"attach "+attachment+" the route",
		"members",
		"usage",
		"seed",
		"exit",
	))
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "error: sign in first")
	assert.Contains(t, got, "Welcome, Alex!")
	assert.Contains(t, got, "Alex (")
	assert.Contains(t, got, "password protected")
	assert.Contains(t, got, "Demo data loaded")
	assert.Contains(t, got, "Weekend Plans")
	assert.Contains(t, got, "-- Group created --")
	assert.Contains(t, got, "Casey: Hiking on Saturday?")
	assert.Contains(t, got, "Sent\n")
	assert.Contains(t, got, "Sent route.txt (text/plain")
	assert.Contains(t, got, "  Sam\n")
	assert.Contains(t, got, "Demo data is already loaded")
	assert.Contains(t, got, "Bye!")

	u, err := app.repo.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len("Trailhead 08:00, summit by noon.")+14), u.UsedBytes)
}

func TestApp_RestoresIdentityAndSelection(t *testing.T) {
	stubPassword(t, testPassword)
	cfg := testConfig(t, filepath.Join(t.TempDir(), "chat.db"))

	first, _ := openApp(t, cfg)
	require.NoError(t, first.Run(context.Background(), script("signup", "Sam", "group Band", "exit")))
	require.NoError(t, first.Close())

	second, out := openApp(t, cfg)
	require.NoError(t, second.Run(context.Background(), script("whoami", "members", "logout", "whoami", "exit")))

	got := out.String()
	assert.Contains(t, got, "chat (Sam @Band)> ")
	assert.Contains(t, got, "Sam (")
	assert.Contains(t, got, "Signed out")
	assert.Contains(t, got, "error: sign in first")
}

func TestApp_LoginWithAndWithoutPassword(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "chat.db"))
	app, out := openApp(t, cfg)

	stubPassword(t, "wrong password here")
	require.NoError(t, app.Run(context.Background(), script(
		"seed",
		"login", "Casey",
		"whoami",
		"login", "Alex",
		"exit",
	)))
	got := out.String()
	assert.Contains(t, got, "Signed in as Casey")
	assert.Contains(t, got, "no password")
	assert.Contains(t, got, "error: unknown name or wrong password")

	stubPassword(t, "gophchat-demo-alex")
	require.NoError(t, app.Run(context.Background(), script("login", "alex", "exit")))
	assert.Contains(t, out.String(), "Signed in as Alex")
}

func TestApp_SaveAttachment(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, filepath.Join(dir, "chat.db"))
	app, out := openApp(t, cfg)
	ctx := context.Background()

	_, err := app.repo.SeedDemo(ctx)
	require.NoError(t, err)
	attID := ""
	all, err := app.repo.GetVisibleChats(ctx, mustProfileID(t, app, "Sam"))
	require.NoError(t, err)
	for _, s := range all {
		views, err := app.repo.GetMessages(ctx, s.Chat.ID)
		require.NoError(t, err)
		for _, v := range views {
			for _, a := range v.Attachments {
				attID = a.Meta.ID
			}
		}
	}
	require.NotEmpty(t, attID)
	_, err = app.repo.SwitchIdentity(ctx, mustProfileID(t, app, "Sam"))
	require.NoError(t, err)

	downloads := filepath.Join(dir, "downloads") + string(filepath.Separator)
	require.NoError(t, app.Run(ctx, script("save "+attID+" "+downloads, "save nope "+downloads, "exit")))

	data, err := os.ReadFile(filepath.Join(dir, "downloads", "route.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Trailhead 08:00, summit by noon.", string(data))
	assert.Contains(t, out.String(), "error: attachment \"nope\" does not exist")
}

func mustProfileID(t *testing.T, app *App, name string) string {
	t.Helper()
	ps, err := app.repo.ListProfiles(context.Background())
	require.NoError(t, err)
	for _, p := range ps {
		if p.Name == name {
			return p.ID
		}
	}
	t.Fatalf("no profile %s", name)
	return ""
}

func TestApp_AnnouncesChangesFromOtherProcesses(t *testing.T) {
	stubPassword(t, testPassword)
	cfg := testConfig(t, filepath.Join(t.TempDir(), "chat.db"))

	watcher, out := openApp(t, cfg)
	other, _ := openApp(t, cfg)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(context.Background(), pr) }()

	// let the watcher's bus take its baseline read of the slot
	time.Sleep(50 * time.Millisecond)
	_, err := other.repo.CreateProfile(context.Background(), "Robin")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "(changed: profiles)")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "exit\n")
	require.NoError(t, err)
	require.NoError(t, <-done)
	_ = pw.Close()
}
