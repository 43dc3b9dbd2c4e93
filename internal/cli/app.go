package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/chat"
	"github.com/dmitrijs2005/gophchat/internal/config"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/storage/embedded"
	"github.com/dmitrijs2005/gophchat/internal/storage/networked"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
	"golang.org/x/sync/errgroup"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// lockedWriter serialises REPL output with event notices written from the
// watcher goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type App struct {
	repo    *chat.Repository
	bus     *syncbus.Bus
	log     logging.Logger
	closers []func() error

	reader *bufio.Reader
	out    io.Writer

	me     *models.Profile
	chatID string
	// listed remembers the last "chats" output so "open <n>" can refer to it.
	listed []chat.ChatSummary
}

// New builds an App over an existing repository and bus.
func New(repo *chat.Repository, bus *syncbus.Bus, log logging.Logger, out io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{repo: repo, bus: bus, log: log, out: &lockedWriter{w: out}}
}

// Open wires the backend selected by cfg together with the local preferences
// store, the sync bus and the repository.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(cfg.LocalDBPath); err != nil {
		return nil, err
	}
	local, err := embedded.OpenDB(ctx, cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	var backend storage.Backend
	closers := []func() error{}
	switch cfg.Backend {
	case config.BackendNetworked:
		nb, err := networked.Open(ctx, networked.Options{
			DSN: cfg.DatabaseDSN,
			S3: networked.S3Options{
				User:         cfg.S3User,
				Password:     cfg.S3Password,
				Bucket:       cfg.S3Bucket,
				Region:       cfg.S3Region,
				BaseEndpoint: cfg.S3BaseEndpoint,
			},
			CacheSize: cfg.BlobCacheSize,
		}, log)
		if err != nil {
			local.Close()
			return nil, err
		}
		backend = nb
		closers = append(closers, nb.Close, local.Close)
	default:
		eb := embedded.New(local)
		backend = eb
		closers = append(closers, eb.Close)
	}
	log.Info(ctx, "storage ready", "backend", backend.Kind(), "local_db", cfg.LocalDBPath)

	prefs := preferences.New(local)
	bus := syncbus.New(prefs, syncbus.WithLogger(log), syncbus.WithPollInterval(cfg.SyncPollInterval))
	closers = append([]func() error{func() error { bus.Dispose(); return nil }}, closers...)

	repo, err := chat.New(backend, prefs, bus, cryptox.NewPBKDF2(cfg.MinPasswordEntropy),
		chat.Quota{MaxFileBytes: cfg.MaxFileBytes, MaxTotalBytes: cfg.MaxTotalBytes},
		chat.WithLogger(log))
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	a := New(repo, bus, log, os.Stdout)
	a.closers = closers
	return a, nil
}

// Close disposes the bus and closes the databases opened by Open.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	return a.me != nil
}

func (a *App) status() string {
	if a.me == nil {
		return ""
	}
	s := a.me.Name
	if a.chatID != "" {
		s += " @" + a.chatTitle(context.Background(), a.chatID)
	}
	return "(" + s + ")"
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// restore picks up the identity and chat selection left by a previous run.
func (a *App) restore(ctx context.Context) {
	p, err := a.repo.ActiveIdentity(ctx)
	if err != nil {
		a.log.Warn(ctx, "restore identity", "error", err)
		return
	}
	if p == nil {
		return
	}
	a.me = p
	if id, err := a.repo.SelectedChat(ctx, p.ID); err == nil {
		a.chatID = id
	}
}

// watchEvents prints a notice for every change published by another process.
func (a *App) watchEvents(ctx context.Context, sub *syncbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Origin == a.bus.Origin() {
				continue
			}
			a.printf("(changed: %s)\n", ev.Type)
		}
	}
}

// Run starts the sync bus and the REPL reading from in. It returns when the
// user exits, in is exhausted or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	a.reader = bufio.NewReader(in)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := a.bus.Subscribe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.bus.Run(gctx) })
	g.Go(func() error {
		a.watchEvents(gctx, sub)
		return nil
	})

	a.restore(ctx)
	a.println("Welcome to gophchat (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader, a.out)

	cancel()
	sub.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
