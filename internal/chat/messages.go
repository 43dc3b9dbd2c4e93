package chat

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
)

// FileInput is one file offered to SendMessage. An empty MimeType is
// detected from the name, then from the content.
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// AttachmentView is stored metadata together with its content.
type AttachmentView struct {
	Meta *models.AttachmentMeta
	Data []byte
}

// MessageView is a message joined with its attachments in message order.
type MessageView struct {
	Message     *models.Message
	Attachments []AttachmentView
}

// Usage reports attachment storage against the configured caps.
type Usage struct {
	UsedBytes     int64
	MaxTotalBytes int64
	MaxFileBytes  int64
}

var sendScope = []storage.StoreName{storage.StoreMessages, storage.StoreAttachments, storage.StoreBlobs, storage.StoreChats}

func detectMimeType(f FileInput) string {
	if mt := strings.TrimSpace(f.MimeType); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); mt != "" {
		return mt
	}
	return http.DetectContentType(f.Data)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// prepareMessage builds the message, attachment metadata and blobs for a
// send. newID is drawn for the message first, then once per file in order.
func (r *Repository) prepareMessage(newID func() string, chatID, senderID, text string, files []FileInput, now time.Time) (*models.Message, []*models.AttachmentMeta, []models.Blob) {
	msg := &models.Message{
		ID:            newID(),
		ChatID:        chatID,
		SenderID:      senderID,
		Body:          text,
		AttachmentIDs: []string{},
		CreatedAt:     now,
	}
	metas := make([]*models.AttachmentMeta, 0, len(files))
	blobs := make([]models.Blob, 0, len(files))
	mimeTypes := make([]string, 0, len(files))
	for _, f := range files {
		mt := detectMimeType(f)
		name := strings.TrimSpace(filepath.Base(f.Name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "file"
		}
		id := newID()
		meta := &models.AttachmentMeta{
			ID:        id,
			MessageID: msg.ID,
			ChatID:    chatID,
			Kind:      models.AttachmentKindOf(mt),
			FileName:  name,
			MimeType:  mt,
			SizeBytes: int64(len(f.Data)),
			BlobKey:   fmt.Sprintf("chats/%s/%s", chatID, id),
			CreatedAt: now,
		}
		metas = append(metas, meta)
		blobs = append(blobs, models.Blob{Key: meta.BlobKey, Data: f.Data, FileName: name, MimeType: mt})
		mimeTypes = append(mimeTypes, mt)
	}
	msg.Kind = models.DeriveMessageKind(text, mimeTypes)
	return msg, metas, blobs
}

// checkFileSizes rejects any file over the per-file cap and returns the total
// size of files.
func (r *Repository) checkFileSizes(op string, files []FileInput) (int64, error) {
	var total int64
	for _, f := range files {
		size := int64(len(f.Data))
		if size > r.quota.MaxFileBytes {
			return 0, common.Validation(op, fmt.Sprintf("%q is %s, over the %s per-file limit",
				f.Name, humanBytes(size), humanBytes(r.quota.MaxFileBytes)))
		}
		total += size
	}
	return total, nil
}

// SendMessage stores a message with its attachments. Every limit is checked
// before anything is written; a send that would break a limit leaves no
// trace.
func (r *Repository) SendMessage(ctx context.Context, chatID, senderID, text string, files []FileInput) (*MessageView, error) {
	const op = "send message"

	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return nil, common.Validation(op, "message is empty")
	}

	newBytes, err := r.checkFileSizes(op, files)
	if err != nil {
		return nil, err
	}

	c, err := r.chat(ctx, op, chatID)
	if err != nil {
		return nil, err
	}
	if err := r.requireMember(ctx, op, chatID, senderID); err != nil {
		return nil, err
	}
	if err := r.checkTotal(ctx, r.stores(), newBytes); err != nil {
		return nil, err
	}

	msg, metas, blobs := r.prepareMessage(r.newID, chatID, senderID, text, files, r.now())

	if r.backend.BlobsTransactional() {
		err = r.sendAtomic(ctx, c, msg, metas, blobs, newBytes)
	} else {
		err = r.sendSequenced(ctx, c, msg, metas, blobs, newBytes)
	}
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "message sent", "chat_id", chatID, "profile_id", senderID, "attachments", len(metas))
	r.publish(ctx, syncbus.Messages, syncbus.Chats)

	view := &MessageView{Message: msg}
	for i, m := range metas {
		view.Attachments = append(view.Attachments, AttachmentView{Meta: m, Data: blobs[i].Data})
	}
	return view, nil
}

// checkTotal rejects newBytes that would push stored attachments over the
// total cap.
func (r *Repository) checkTotal(ctx context.Context, s storage.Stores, newBytes int64) error {
	if newBytes == 0 {
		return nil
	}
	used, err := s.Attachments().TotalBytes(ctx)
	if err != nil {
		return r.fail(ctx, "send message", err)
	}
	if used+newBytes > r.quota.MaxTotalBytes {
		return common.Validation("send message", fmt.Sprintf("storage quota exceeded: %s used, %s more would pass the %s limit",
			humanBytes(used), humanBytes(newBytes), humanBytes(r.quota.MaxTotalBytes)))
	}
	return nil
}

// sendAtomic writes blobs, metadata, the message and the chat touch in one
// unit.
func (r *Repository) sendAtomic(ctx context.Context, c *models.Chat, msg *models.Message, metas []*models.AttachmentMeta, blobs []models.Blob, newBytes int64) error {
	for _, m := range metas {
		msg.AttachmentIDs = append(msg.AttachmentIDs, m.ID)
	}
	return r.backend.RunAtomic(ctx, sendScope, func(ctx context.Context, s storage.Stores) error {
		if err := r.checkTotal(ctx, s, newBytes); err != nil {
			return err
		}
		for _, b := range blobs {
			if err := s.Blobs().PutBlob(ctx, b.Key, b.Data); err != nil {
				return err
			}
		}
		if err := s.Messages().Put(ctx, msg); err != nil {
			return err
		}
		for _, m := range metas {
			if err := s.Attachments().Put(ctx, m); err != nil {
				return err
			}
		}
		c.Touch(msg.CreatedAt)
		return s.Chats().Put(ctx, c)
	})
}

// sendSequenced uploads blobs first, then inserts the message row, its
// attachment rows, patches the attachment id list and touches the chat in
// one database transaction. If the transaction fails the uploaded blobs are
// deleted.
func (r *Repository) sendSequenced(ctx context.Context, c *models.Chat, msg *models.Message, metas []*models.AttachmentMeta, blobs []models.Blob, newBytes int64) error {
	keys := make([]string, len(blobs))
	for i, b := range blobs {
		keys[i] = b.Key
	}

	if len(blobs) > 0 {
		if err := storage.PutBlobs(ctx, r.stores().Blobs(), blobs); err != nil {
			r.cleanupBlobs(ctx, keys)
			return err
		}
	}

	err := r.backend.RunAtomic(ctx, sendScope, func(ctx context.Context, s storage.Stores) error {
		if err := r.checkTotal(ctx, s, newBytes); err != nil {
			return err
		}
		if err := s.Messages().Put(ctx, msg); err != nil {
			return err
		}
		if len(metas) > 0 {
			for _, m := range metas {
				if err := s.Attachments().Put(ctx, m); err != nil {
					return err
				}
				msg.AttachmentIDs = append(msg.AttachmentIDs, m.ID)
			}
			if err := s.Messages().Put(ctx, msg); err != nil {
				return err
			}
		}
		c.Touch(msg.CreatedAt)
		return s.Chats().Put(ctx, c)
	})
	if err != nil {
		msg.AttachmentIDs = []string{}
		r.cleanupBlobs(ctx, keys)
		return err
	}
	return nil
}

func (r *Repository) cleanupBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if left := storage.DeleteBlobs(context.WithoutCancel(ctx), r.stores().Blobs(), keys); len(left) > 0 {
		r.log.Warn(ctx, "orphaned blobs after failed send", "keys", left)
	}
}

// GetMessages returns the chat's messages oldest first, each with its
// attachments and their content.
func (r *Repository) GetMessages(ctx context.Context, chatID string) ([]MessageView, error) {
	const op = "get messages"

	if _, err := r.chat(ctx, op, chatID); err != nil {
		return nil, err
	}
	msgs, err := r.stores().Messages().ByChat(ctx, chatID)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		if len(m.AttachmentIDs) > 0 {
			v.Attachments, err = r.attachments(ctx, m)
			if err != nil {
				return nil, r.fail(ctx, op, err)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// attachments resolves m's attachment ids in list order.
func (r *Repository) attachments(ctx context.Context, m *models.Message) ([]AttachmentView, error) {
	metas, err := r.stores().Attachments().ByMessage(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.AttachmentMeta, len(metas))
	for _, a := range metas {
		byID[a.ID] = a
	}

	ordered := make([]*models.AttachmentMeta, 0, len(m.AttachmentIDs))
	keys := make([]string, 0, len(m.AttachmentIDs))
	for _, id := range m.AttachmentIDs {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("attachment %s of message %s: %w", id, m.ID, common.ErrorNotFound)
		}
		ordered = append(ordered, a)
		keys = append(keys, a.BlobKey)
	}

	data, err := storage.GetBlobs(ctx, r.stores().Blobs(), keys)
	if err != nil {
		return nil, err
	}
	out := make([]AttachmentView, len(ordered))
	for i, a := range ordered {
		out[i] = AttachmentView{Meta: a, Data: data[i]}
	}
	return out, nil
}

// GetAttachment returns an attachment's content with the name and type to
// offer on download. profileID must be an active member of the attachment's
// chat.
func (r *Repository) GetAttachment(ctx context.Context, profileID, attachmentID string) (*models.Blob, error) {
	const op = "get attachment"

	a, err := r.stores().Attachments().Get(ctx, attachmentID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NotFound(op, "attachment", attachmentID)
	}
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	if err := r.requireMember(ctx, op, a.ChatID, profileID); err != nil {
		return nil, err
	}
	data, err := r.stores().Blobs().GetBlob(ctx, a.BlobKey)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NotFound(op, "blob", a.BlobKey)
	}
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	return &models.Blob{Key: a.BlobKey, Data: data, FileName: a.FileName, MimeType: a.MimeType}, nil
}

// TotalAttachmentBytes sums the sizes of all stored attachments.
func (r *Repository) TotalAttachmentBytes(ctx context.Context) (int64, error) {
	total, err := r.stores().Attachments().TotalBytes(ctx)
	if err != nil {
		return 0, r.fail(ctx, "total attachment bytes", err)
	}
	return total, nil
}

func (r *Repository) Usage(ctx context.Context) (Usage, error) {
	used, err := r.TotalAttachmentBytes(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{UsedBytes: used, MaxTotalBytes: r.quota.MaxTotalBytes, MaxFileBytes: r.quota.MaxFileBytes}, nil
}
