package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/chat"
	"github.com/dmitrijs2005/gophchat/internal/filex"
)

// Send posts a text message to the open chat.
func (a *App) Send(ctx context.Context, args []string) error {
	if a.chatID == "" {
		return errNoChat
	}
	if _, err := a.repo.SendMessage(ctx, a.chatID, a.me.ID, strings.Join(args, " "), nil); err != nil {
		return err
	}
	a.println("Sent")
	return nil
}

// Attach sends the file at args[0] with an optional caption.
func (a *App) Attach(ctx context.Context, args []string) error {
	if a.chatID == "" {
		return errNoChat
	}
	if len(args) == 0 {
		return errors.New("usage: attach <path> [caption]")
	}
	u, err := a.repo.Usage(ctx)
	if err != nil {
		return err
	}
	data, err := filex.ReadLimited(args[0], u.MaxFileBytes)
	if err != nil {
		return err
	}

	file := chat.FileInput{Name: filepath.Base(args[0]), Data: data}
	v, err := a.repo.SendMessage(ctx, a.chatID, a.me.ID, strings.Join(args[1:], " "), []chat.FileInput{file})
	if err != nil {
		return err
	}
	meta := v.Attachments[0].Meta
	a.printf("Sent %s (%s, %d bytes)\n", meta.FileName, meta.MimeType, meta.SizeBytes)
	return nil
}

// Save writes an attachment's content to a local path. A path ending in a
// separator, or an existing directory, receives the original file name.
func (a *App) Save(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: save <attachment-id> <path>")
	}
	blob, err := a.repo.GetAttachment(ctx, a.me.ID, args[0])
	if err != nil {
		return err
	}

	dest := args[1]
	if strings.HasSuffix(dest, string(filepath.Separator)) || filex.IsDir(dest) {
		dest = filepath.Join(dest, blob.FileName)
	}
	if err := filex.WriteFile(dest, blob.Data); err != nil {
		return err
	}
	a.printf("Saved %s (%s) to %s\n", blob.FileName, blob.MimeType, dest)
	return nil
}

// Usage reports attachment storage against the quota.
func (a *App) Usage(ctx context.Context) error {
	u, err := a.repo.Usage(ctx)
	if err != nil {
		return err
	}
	pct := float64(u.UsedBytes) * 100 / float64(u.MaxTotalBytes)
	a.printf("Attachments: %d of %d bytes used (%.1f%%), %d bytes max per file\n",
		u.UsedBytes, u.MaxTotalBytes, pct, u.MaxFileBytes)
	return nil
}

// Seed loads the demo profiles and chats once per device.
func (a *App) Seed(ctx context.Context) error {
	done, err := a.repo.SeedDemo(ctx)
	if err != nil {
		return err
	}
	if !done {
		a.println("Demo data is already loaded")
		return nil
	}
	a.println("Demo data loaded: sign in as Alex (password gophchat-demo-alex) or Casey")
	return nil
}
