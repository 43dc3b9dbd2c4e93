package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

const (
	SubtitleEmpty      = "No messages yet"
	SubtitleAttachment = "Attachment"
	unknownProfile     = "Unknown"
)

// ChatSummary is one row of a profile's conversation list.
type ChatSummary struct {
	Chat     *models.Chat
	Title    string
	Subtitle string
	Activity time.Time
}

// Snapshot is the record set ProjectVisibleChats works on.
type Snapshot struct {
	Chats       []*models.Chat
	Memberships []*models.Membership
	Profiles    map[string]*models.Profile
	// LastMessages maps chat id to its newest message.
	LastMessages map[string]*models.Message
}

// ProjectVisibleChats derives profileID's conversation list: chats with an
// active membership, titled (group title, or the other member's name for
// direct chats), subtitled from the last message, newest activity first.
func ProjectVisibleChats(profileID string, snap Snapshot) []ChatSummary {
	activeByChat := make(map[string][]string)
	for _, m := range snap.Memberships {
		if m.Active() {
			activeByChat[m.ChatID] = append(activeByChat[m.ChatID], m.ProfileID)
		}
	}

	out := make([]ChatSummary, 0)
	for _, c := range snap.Chats {
		members := activeByChat[c.ID]
		if !contains(members, profileID) {
			continue
		}
		out = append(out, ChatSummary{
			Chat:     c,
			Title:    chatTitle(c, profileID, members, snap.Profiles),
			Subtitle: subtitle(snap.LastMessages[c.ID]),
			Activity: c.Activity(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Activity.Equal(out[j].Activity) {
			return out[i].Activity.After(out[j].Activity)
		}
		return out[i].Chat.ID < out[j].Chat.ID
	})
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func chatTitle(c *models.Chat, viewer string, members []string, profiles map[string]*models.Profile) string {
	if c.Kind == models.ChatGroup {
		if c.Title == "" {
			return models.DefaultGroupTitle
		}
		return c.Title
	}
	for _, id := range members {
		if id == viewer {
			continue
		}
		if p, ok := profiles[id]; ok {
			return p.Name
		}
	}
	return unknownProfile
}

func subtitle(m *models.Message) string {
	if m == nil {
		return SubtitleEmpty
	}
	if body := strings.TrimSpace(m.Body); body != "" {
		return body
	}
	if len(m.AttachmentIDs) > 0 {
		return SubtitleAttachment
	}
	return SubtitleEmpty
}

// GetVisibleChats loads profileID's chats and projects them.
func (r *Repository) GetVisibleChats(ctx context.Context, profileID string) ([]ChatSummary, error) {
	const op = "get visible chats"

	own, err := r.stores().Memberships().ByProfile(ctx, profileID)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	snap := Snapshot{
		Profiles:     make(map[string]*models.Profile),
		LastMessages: make(map[string]*models.Message),
	}
	for _, m := range own {
		if !m.Active() {
			continue
		}
		c, err := r.stores().Chats().Get(ctx, m.ChatID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, r.fail(ctx, op, err)
		}
		snap.Chats = append(snap.Chats, c)

		ms, err := r.stores().Memberships().ByChat(ctx, c.ID)
		if err != nil {
			return nil, r.fail(ctx, op, err)
		}
		snap.Memberships = append(snap.Memberships, ms...)

		if c.Kind == models.ChatDirect {
			for _, cm := range ms {
				if cm.ProfileID == profileID || !cm.Active() {
					continue
				}
				if _, ok := snap.Profiles[cm.ProfileID]; ok {
					continue
				}
				p, err := r.stores().Profiles().Get(ctx, cm.ProfileID)
				if errors.Is(err, common.ErrorNotFound) {
					continue
				}
				if err != nil {
					return nil, r.fail(ctx, op, err)
				}
				snap.Profiles[p.ID] = p
			}
		}

		last, err := r.stores().Messages().Last(ctx, c.ID)
		if err == nil {
			snap.LastMessages[c.ID] = last
		} else if !errors.Is(err, common.ErrorNotFound) {
			return nil, r.fail(ctx, op, err)
		}
	}

	return ProjectVisibleChats(profileID, snap), nil
}
