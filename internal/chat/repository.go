package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
	"github.com/google/uuid"
)

// Quota bounds attachment storage.
type Quota struct {
	MaxFileBytes  int64
	MaxTotalBytes int64
}

func (q Quota) validate() error {
	if q.MaxFileBytes <= 0 || q.MaxTotalBytes <= 0 {
		return fmt.Errorf("quota limits must be positive")
	}
	return nil
}

// Credentials derives and checks password digests. *cryptox.PBKDF2
// implements it.
type Credentials interface {
	Derive(password []byte) (*models.PasswordDigest, error)
	Verify(password []byte, d *models.PasswordDigest) bool
	CheckStrength(password []byte) error
}

// Preferences is the device-local key/value store. Get returns nil for
// absent keys. *preferences.Store implements it.
type Preferences interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, key string) error
}

// Publisher announces committed changes. *syncbus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, t syncbus.EventType)
}

type Option func(*Repository)

func WithLogger(l logging.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// WithClock replaces the wall clock. Returned times are truncated to
// milliseconds, the precision both backends store.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.clock = now }
}

// WithIDs replaces the id generator.
func WithIDs(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

type Repository struct {
	backend storage.Backend
	prefs   Preferences
	bus     Publisher
	creds   Credentials
	quota   Quota
	log     logging.Logger
	clock   func() time.Time
	newID   func() string
}

func New(backend storage.Backend, prefs Preferences, bus Publisher, creds Credentials, quota Quota, opts ...Option) (*Repository, error) {
	if backend == nil || prefs == nil || bus == nil || creds == nil {
		return nil, fmt.Errorf("chat repository: missing dependency")
	}
	if err := quota.validate(); err != nil {
		return nil, err
	}
	if quota.MaxFileBytes > quota.MaxTotalBytes {
		return nil, fmt.Errorf("per-file limit %d exceeds total limit %d", quota.MaxFileBytes, quota.MaxTotalBytes)
	}

	r := &Repository{
		backend: backend,
		prefs:   prefs,
		bus:     bus,
		creds:   creds,
		quota:   quota,
		log:     logging.Nop(),
		clock:   time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *Repository) now() time.Time {
	return r.clock().UTC().Truncate(time.Millisecond)
}

func (r *Repository) stores() storage.Stores {
	return r.backend.Stores()
}

// fail wraps a storage failure as a backend error, logging it once. Errors
// that are already typed pass through.
func (r *Repository) fail(ctx context.Context, op string, err error) error {
	var typed *common.Error
	if errors.As(err, &typed) {
		return err
	}
	r.log.Error(ctx, "storage failure", "op", op, "error", err)
	return common.Backend(op, err)
}

func (r *Repository) publish(ctx context.Context, types ...syncbus.EventType) {
	for _, t := range types {
		r.bus.Publish(ctx, t)
	}
}

func (r *Repository) profile(ctx context.Context, op, id string) (*models.Profile, error) {
	p, err := r.stores().Profiles().Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NotFound(op, "profile", id)
	}
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	return p, nil
}

func (r *Repository) chat(ctx context.Context, op, id string) (*models.Chat, error) {
	c, err := r.stores().Chats().Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NotFound(op, "chat", id)
	}
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	return c, nil
}

// activeMembership returns the profile's active membership in chatID, or nil.
func (r *Repository) activeMembership(ctx context.Context, s storage.Stores, chatID, profileID string) (*models.Membership, error) {
	ms, err := s.Memberships().ByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		if m.ProfileID == profileID && m.Active() {
			return m, nil
		}
	}
	return nil, nil
}

// requireMember fails with an auth error unless profileID is an active
// member of chatID.
func (r *Repository) requireMember(ctx context.Context, op, chatID, profileID string) error {
	m, err := r.activeMembership(ctx, r.stores(), chatID, profileID)
	if err != nil {
		return r.fail(ctx, op, err)
	}
	if m == nil {
		return common.Auth(op, "you are not a member of this chat")
	}
	return nil
}

func (r *Repository) systemMessage(chatID, senderID, body string, at time.Time) *models.Message {
	return &models.Message{
		ID:            r.newID(),
		ChatID:        chatID,
		SenderID:      senderID,
		Kind:          models.MessageSystem,
		Body:          body,
		AttachmentIDs: []string{},
		CreatedAt:     at,
	}
}
