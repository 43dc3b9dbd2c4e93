// Package syncbus broadcasts change-class notifications between execution
// contexts of the same device.
//
// Contexts in one process share a *Bus and receive events through their
// Subscription channels. Contexts in other processes are reached through a
// durable slot (a preferences key) holding the most recent event; Run polls
// it and re-delivers foreign events locally. The slot keeps only the last
// event, so consumers treat every event as "something changed, re-read".
package syncbus

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/google/uuid"
)

type EventType string

const (
	Profiles      EventType = "profiles"
	Chats         EventType = "chats"
	Memberships   EventType = "memberships"
	Messages      EventType = "messages"
	SeedCompleted EventType = "seed-completed"
)

// SlotKey is the preferences key of the durable fallback slot.
const SlotKey = "sync:last-event"

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin"`
}

// Slot is the key/value store backing the fallback path.
// *preferences.Store satisfies it.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Option func(*Bus)

func WithLogger(l logging.Logger) Option {
	return func(b *Bus) { b.log = l }
}

func WithPollInterval(d time.Duration) Option {
	return func(b *Bus) { b.poll = d }
}

// WithBuffer sets each subscription's channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) { b.buffer = n }
}

// WithOrigin overrides the random context id stamped on published events.
func WithOrigin(id string) Option {
	return func(b *Bus) { b.origin = id }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

type Bus struct {
	slot   Slot
	log    logging.Logger
	poll   time.Duration
	buffer int
	origin string
	now    func() time.Time

	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	disposed bool
	done     chan struct{}
}

// New returns a bus writing its fallback slot to slot. A nil slot disables
// the cross-process path.
func New(slot Slot, opts ...Option) *Bus {
	b := &Bus{
		slot:   slot,
		log:    logging.Nop(),
		poll:   time.Second,
		buffer: 16,
		origin: uuid.NewString(),
		now:    func() time.Time { return time.Now().UTC() },
		subs:   make(map[*Subscription]struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Origin identifies this bus in published events.
func (b *Bus) Origin() string { return b.origin }

// Publish delivers an event of type t to local subscribers and records it in
// the fallback slot. Delivery is best effort: a full subscriber buffer drops
// the event and a slot write failure is logged, never returned.
func (b *Bus) Publish(ctx context.Context, t EventType) {
	ev := Event{Type: t, Timestamp: b.now(), Origin: b.origin}
	if !b.deliver(ctx, ev) {
		return
	}
	if b.slot == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn(ctx, "encode sync event", "error", err)
		return
	}
	if err := b.slot.Set(ctx, SlotKey, data); err != nil {
		b.log.Warn(ctx, "write sync slot", "type", t, "error", err)
	}
}

// deliver fans ev out and reports false once the bus is disposed.
func (b *Bus) deliver(ctx context.Context, ev Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disposed {
		return false
	}
	for s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.log.Warn(ctx, "sync event dropped", "type", ev.Type)
		}
	}
	return true
}

// Subscribe registers a listener for the given types, or all types when none
// are listed.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	s := &Subscription{bus: b, ch: make(chan Event, b.buffer)}
	if len(types) > 0 {
		s.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		close(s.ch)
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Run polls the fallback slot until ctx is done or the bus is disposed,
// delivering events written by other origins. Events already in the slot when
// Run starts are not replayed.
func (b *Bus) Run(ctx context.Context) error {
	if b.slot == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		}
	}

	last, err := b.slot.Get(ctx, SlotKey)
	if err != nil {
		b.log.Warn(ctx, "read sync slot", "error", err)
	}

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case <-ticker.C:
		}

		cur, err := b.slot.Get(ctx, SlotKey)
		if err != nil {
			b.log.Warn(ctx, "read sync slot", "error", err)
			continue
		}
		if cur == nil || bytes.Equal(cur, last) {
			continue
		}
		last = cur

		var ev Event
		if err := json.Unmarshal(cur, &ev); err != nil {
			b.log.Warn(ctx, "decode sync slot", "error", err)
			continue
		}
		if ev.Origin == b.origin {
			continue
		}
		b.log.Debug(ctx, "sync event from slot", "type", ev.Type, "origin", ev.Origin)
		b.deliver(ctx, ev)
	}
}

// Dispose closes every subscription and stops Run. Later publishes are
// ignored. Safe to call more than once.
func (b *Bus) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return
	}
	b.disposed = true
	close(b.done)
	for s := range b.subs {
		s.closed = true
		close(s.ch)
	}
	b.subs = nil
}

type Subscription struct {
	bus    *Bus
	ch     chan Event
	types  map[EventType]struct{}
	closed bool
}

// Events is closed when the subscription or its bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s)
	close(s.ch)
}
