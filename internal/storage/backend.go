// Package storage defines the contract shared by the two storage variants:
// the on-device embedded store (package embedded) and the networked
// relational store with object storage for blobs (package networked).
//
// Record stores follow one shape: Get returns common.ErrorNotFound (wrapped)
// for absent keys, GetAll has no ordering guarantee, Put inserts or replaces
// by primary key. The indexed lookups (ByChat, ByProfile, ByMessage) are
// backed by secondary indexes in both variants.
package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/models"
)

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetAll(ctx context.Context) ([]*models.Profile, error)
	Put(ctx context.Context, p *models.Profile) error
}

type ChatStore interface {
	Get(ctx context.Context, id string) (*models.Chat, error)
	GetAll(ctx context.Context) ([]*models.Chat, error)
	Put(ctx context.Context, c *models.Chat) error
	// GetByDirectKey finds the direct chat for a sorted profile pair.
	GetByDirectKey(ctx context.Context, key string) (*models.Chat, error)
}

type MembershipStore interface {
	GetAll(ctx context.Context) ([]*models.Membership, error)
	Put(ctx context.Context, m *models.Membership) error
	ByChat(ctx context.Context, chatID string) ([]*models.Membership, error)
	ByProfile(ctx context.Context, profileID string) ([]*models.Membership, error)
}

type MessageStore interface {
	Get(ctx context.Context, id string) (*models.Message, error)
	GetAll(ctx context.Context) ([]*models.Message, error)
	// Put assigns Seq on first insert.
	Put(ctx context.Context, m *models.Message) error
	// ByChat returns the chat's messages by (CreatedAt, Seq) ascending.
	ByChat(ctx context.Context, chatID string) ([]*models.Message, error)
	// Last returns the newest message of the chat.
	Last(ctx context.Context, chatID string) (*models.Message, error)
}

type AttachmentStore interface {
	Get(ctx context.Context, id string) (*models.AttachmentMeta, error)
	GetAll(ctx context.Context) ([]*models.AttachmentMeta, error)
	Put(ctx context.Context, a *models.AttachmentMeta) error
	ByMessage(ctx context.Context, messageID string) ([]*models.AttachmentMeta, error)
	ByChat(ctx context.Context, chatID string) ([]*models.AttachmentMeta, error)
	// TotalBytes sums SizeBytes over all attachments.
	TotalBytes(ctx context.Context) (int64, error)
}

// BlobStore is the content area keyed by AttachmentMeta.BlobKey.
type BlobStore interface {
	PutBlob(ctx context.Context, key string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Stores vends the record stores bound to one handle: either the backend
// itself or an open atomic unit.
type Stores interface {
	Profiles() ProfileStore
	Chats() ChatStore
	Memberships() MembershipStore
	Messages() MessageStore
	Attachments() AttachmentStore
	Blobs() BlobStore
}

type StoreName string

const (
	StoreProfiles    StoreName = "profiles"
	StoreChats       StoreName = "chats"
	StoreMemberships StoreName = "memberships"
	StoreMessages    StoreName = "messages"
	StoreAttachments StoreName = "attachments"
	StoreBlobs       StoreName = "blobs"
)

type Kind string

const (
	KindEmbedded  Kind = "embedded"
	KindNetworked Kind = "networked"
)

// Backend is the durable store the chat repository runs on.
type Backend interface {
	Kind() Kind

	// Stores returns auto-committing stores.
	Stores() Stores

	// RunAtomic runs fn against stores scoped to the listed store names.
	// All record writes made through the passed Stores commit together or
	// not at all; an error returned by fn aborts the unit and is returned
	// unchanged. Blob writes are atomic with records only when
	// BlobsTransactional reports true.
	RunAtomic(ctx context.Context, scope []StoreName, fn func(ctx context.Context, s Stores) error) error

	// BlobsTransactional reports whether blob writes made inside RunAtomic
	// roll back with the records.
	BlobsTransactional() bool

	Close() error
}

// CheckScope rejects unknown store names.
func CheckScope(scope []StoreName) error {
	if len(scope) == 0 {
		return fmt.Errorf("atomic scope is empty")
	}
	for _, s := range scope {
		switch s {
		case StoreProfiles, StoreChats, StoreMemberships, StoreMessages, StoreAttachments, StoreBlobs:
		default:
			return fmt.Errorf("unknown store %q", s)
		}
	}
	return nil
}

// Contains reports whether scope lists name.
func Contains(scope []StoreName, name StoreName) bool {
	for _, s := range scope {
		if s == name {
			return true
		}
	}
	return false
}
