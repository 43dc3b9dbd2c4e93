package models

import (
	"sort"
	"time"
)

type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// DefaultGroupTitle is used when a group is created with a blank title.
const DefaultGroupTitle = "Untitled Group"

// Chat is a conversation.
type Chat struct {
	ID        string
	Kind      ChatKind
	Title     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	// LastMessageAt is nil until the first message or membership event.
	LastMessageAt *time.Time
	// DirectKey is the sorted profile pair of a direct chat, "" for groups.
	// Storage keeps it unique.
	DirectKey string
}

// Activity returns LastMessageAt, falling back to UpdatedAt.
func (c *Chat) Activity() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.UpdatedAt
}

// Touch records activity at t.
func (c *Chat) Touch(t time.Time) {
	c.UpdatedAt = t
	c.LastMessageAt = &t
}

// DirectKey returns the order-independent key for the pair a, b.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Membership joins a profile to a chat.
type Membership struct {
	ID        string
	ChatID    string
	ProfileID string
	Role      Role
	JoinedAt  time.Time
	// LeftAt is nil while the membership is active.
	LeftAt *time.Time
}

func (m *Membership) Active() bool {
	return m.LeftAt == nil
}
