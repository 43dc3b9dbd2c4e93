package models

import (
	"strings"
	"time"
)

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageSystem MessageKind = "system"
	MessageFile   MessageKind = "file"
	MessageImage  MessageKind = "image"
	MessageMixed  MessageKind = "mixed"
)

// Message is immutable once stored.
type Message struct {
	ID            string
	ChatID        string
	SenderID      string
	Kind          MessageKind
	Body          string
	AttachmentIDs []string
	CreatedAt     time.Time
	// Seq is a storage-assigned insertion counter that breaks CreatedAt ties.
	Seq int64
}

// DeriveMessageKind picks the kind of a user-authored message:
// no files means text, a single file without text is image or file by MIME
// type, anything else is mixed.
func DeriveMessageKind(text string, mimeTypes []string) MessageKind {
	switch {
	case len(mimeTypes) == 0:
		return MessageText
	case len(mimeTypes) == 1 && strings.TrimSpace(text) == "":
		if IsImage(mimeTypes[0]) {
			return MessageImage
		}
		return MessageFile
	default:
		return MessageMixed
	}
}

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// AttachmentMeta describes one stored file. The bytes live in the blob area
// under BlobKey.
type AttachmentMeta struct {
	ID        string
	MessageID string
	ChatID    string
	Kind      AttachmentKind
	FileName  string
	MimeType  string
	SizeBytes int64
	BlobKey   string
	CreatedAt time.Time
}

// Blob is attachment content together with the name and type to offer on
// download.
type Blob struct {
	Key      string
	Data     []byte
	FileName string
	MimeType string
}

// IsImage reports whether mimeType is an image/* type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// AttachmentKindOf maps a MIME type to an attachment kind.
func AttachmentKindOf(mimeType string) AttachmentKind {
	if IsImage(mimeType) {
		return AttachmentImage
	}
	return AttachmentFile
}
