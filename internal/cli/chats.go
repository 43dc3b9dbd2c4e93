package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/models"
)

var errNoChat = errors.New("no chat open, use 'open <n>' first")

func (a *App) chatTitle(ctx context.Context, chatID string) string {
	if a.me == nil {
		return chatID
	}
	list, err := a.repo.GetVisibleChats(ctx, a.me.ID)
	if err != nil {
		return chatID
	}
	for _, s := range list {
		if s.Chat.ID == chatID {
			return s.Title
		}
	}
	return chatID
}

// profilesByName resolves display names, case-insensitively, to profile ids.
func (a *App) profilesByName(ctx context.Context, names []string) ([]string, error) {
	all, err := a.repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		var found *models.Profile
		for _, p := range all {
			if strings.EqualFold(p.Name, n) {
				found = p
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("no profile named %q", n)
		}
		ids = append(ids, found.ID)
	}
	return ids, nil
}

// Chats prints the visible conversation list, numbered for "open".
func (a *App) Chats(ctx context.Context) error {
	list, err := a.repo.GetVisibleChats(ctx, a.me.ID)
	if err != nil {
		return err
	}
	a.listed = list
	if len(list) == 0 {
		a.println("No chats yet")
		return nil
	}
	for i, s := range list {
		mark := " "
		if s.Chat.ID == a.chatID {
			mark = "*"
		}
		a.printf("%s%2d. %-20s %s\n", mark, i+1, s.Title, s.Subtitle)
	}
	return nil
}

// Open selects a chat by its number or title in the last "chats" listing,
// or by id, and prints its history.
func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: open <n|title>")
	}
	chatID, err := a.resolveChat(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := a.repo.SelectChat(ctx, a.me.ID, chatID); err != nil {
		return err
	}
	a.chatID = chatID
	return a.history(ctx)
}

func (a *App) resolveChat(ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(a.listed) {
			return "", fmt.Errorf("no chat number %d, run 'chats' first", n)
		}
		return a.listed[n-1].Chat.ID, nil
	}
	for _, s := range a.listed {
		if strings.EqualFold(s.Title, ref) {
			return s.Chat.ID, nil
		}
	}
	return ref, nil
}

func (a *App) history(ctx context.Context) error {
	views, err := a.repo.GetMessages(ctx, a.chatID)
	if err != nil {
		return err
	}
	profiles, err := a.repo.ListProfiles(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.Name
	}

	for _, v := range views {
		m := v.Message
		ts := m.CreatedAt.Local().Format("2006-01-02 15:04")
		if m.Kind == models.MessageSystem {
			a.printf("[%s] -- %s --\n", ts, m.Body)
			continue
		}
		sender := names[m.SenderID]
		if sender == "" {
			sender = "Unknown"
		}
		if m.Body != "" {
			a.printf("[%s] %s: %s\n", ts, sender, m.Body)
		} else {
			a.printf("[%s] %s:\n", ts, sender)
		}
		for _, att := range v.Attachments {
			a.printf("    [%s] %s (%s, %d bytes) id=%s\n", att.Meta.Kind, att.Meta.FileName, att.Meta.MimeType, att.Meta.SizeBytes, att.Meta.ID)
		}
	}
	return nil
}

// Members prints the active members of the open chat.
func (a *App) Members(ctx context.Context) error {
	if a.chatID == "" {
		return errNoChat
	}
	members, err := a.repo.GetMembers(ctx, a.chatID)
	if err != nil {
		return err
	}
	for _, p := range members {
		a.printf("  %s\n", p.Name)
	}
	return nil
}

// Add invites the named profiles to the open group. Without names it lists
// who could be added.
func (a *App) Add(ctx context.Context, args []string) error {
	if a.chatID == "" {
		return errNoChat
	}
	if len(args) == 0 {
		candidates, err := a.repo.CandidatesForAdd(ctx, a.chatID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			a.println("Everyone is already here")
			return nil
		}
		a.println("Can be added:")
		for _, p := range candidates {
			a.printf("  %s\n", p.Name)
		}
		return nil
	}

	ids, err := a.profilesByName(ctx, args)
	if err != nil {
		return err
	}
	added, err := a.repo.AddMembers(ctx, a.chatID, a.me.ID, ids)
	if err != nil {
		return err
	}
	a.printf("Added %d member(s)\n", len(added))
	return nil
}

// Leave leaves the open group.
func (a *App) Leave(ctx context.Context) error {
	if a.chatID == "" {
		return errNoChat
	}
	if err := a.repo.LeaveGroup(ctx, a.chatID, a.me.ID); err != nil {
		return err
	}
	a.chatID = ""
	a.println("Left the group")
	return nil
}

// Group creates a group. The first argument is the title; the rest name the
// initial members.
func (a *App) Group(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: group <title> [name...]")
	}
	ids, err := a.profilesByName(ctx, args[1:])
	if err != nil {
		return err
	}
	c, err := a.repo.CreateGroup(ctx, args[0], a.me.ID, ids)
	if err != nil {
		return err
	}
	if err := a.repo.SelectChat(ctx, a.me.ID, c.ID); err != nil {
		return err
	}
	a.chatID = c.ID
	a.printf("Created group %s\n", c.Title)
	return nil
}

// Direct opens, creating it if needed, the direct chat with the named profile.
func (a *App) Direct(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: direct <name>")
	}
	ids, err := a.profilesByName(ctx, []string{strings.Join(args, " ")})
	if err != nil {
		return err
	}
	c, err := a.repo.CreateDirect(ctx, a.me.ID, ids[0])
	if err != nil {
		return err
	}
	if err := a.repo.SelectChat(ctx, a.me.ID, c.ID); err != nil {
		return err
	}
	a.chatID = c.ID
	return a.history(ctx)
}
