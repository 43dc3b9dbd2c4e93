package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
)

var chatScope = []storage.StoreName{storage.StoreChats, storage.StoreMemberships, storage.StoreMessages}

// CreateDirect returns the direct chat between a and b, creating it on first
// use. A concurrent creation from another context loses on the unique
// direct key and gets the winner back.
func (r *Repository) CreateDirect(ctx context.Context, a, b string) (*models.Chat, error) {
	const op = "create direct chat"

	if a == b {
		return nil, common.Validation(op, "cannot start a direct chat with yourself")
	}
	for _, id := range []string{a, b} {
		if _, err := r.profile(ctx, op, id); err != nil {
			return nil, err
		}
	}

	key := models.DirectKey(a, b)
	existing, err := r.stores().Chats().GetByDirectKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, r.fail(ctx, op, err)
	}

	now := r.now()
	c := &models.Chat{
		ID:        r.newID(),
		Kind:      models.ChatDirect,
		CreatedBy: a,
		CreatedAt: now,
		UpdatedAt: now,
		DirectKey: key,
	}
	err = r.backend.RunAtomic(ctx, chatScope, func(ctx context.Context, s storage.Stores) error {
		if err := s.Chats().Put(ctx, c); err != nil {
			return err
		}
		for i, pid := range []string{a, b} {
			role := models.RoleMember
			if i == 0 {
				role = models.RoleOwner
			}
			m := &models.Membership{ID: r.newID(), ChatID: c.ID, ProfileID: pid, Role: role, JoinedAt: now}
			if err := s.Memberships().Put(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if winner, gerr := r.stores().Chats().GetByDirectKey(ctx, key); gerr == nil {
			r.log.Debug(ctx, "direct chat created concurrently", "chat_id", winner.ID)
			return winner, nil
		}
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "direct chat created", "chat_id", c.ID, "profile_id", a)
	r.publish(ctx, syncbus.Chats, syncbus.Memberships)
	return c, nil
}

// dedupe keeps first occurrences, dropping blanks and the excluded id.
func dedupe(ids []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateGroup creates a group owned by owner with the given members, plus a
// "Group created" system message, in one atomic unit.
func (r *Repository) CreateGroup(ctx context.Context, title, owner string, members []string) (*models.Chat, error) {
	const op = "create group"

	if _, err := r.profile(ctx, op, owner); err != nil {
		return nil, err
	}
	members = dedupe(members, owner)
	for _, id := range members {
		if _, err := r.profile(ctx, op, id); err != nil {
			return nil, err
		}
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultGroupTitle
	}

	now := r.now()
	c := &models.Chat{
		ID:        r.newID(),
		Kind:      models.ChatGroup,
		Title:     title,
		CreatedBy: owner,
		CreatedAt: now,
	}
	c.Touch(now)

	err := r.backend.RunAtomic(ctx, chatScope, func(ctx context.Context, s storage.Stores) error {
		if err := s.Chats().Put(ctx, c); err != nil {
			return err
		}
		if err := s.Memberships().Put(ctx, &models.Membership{
			ID: r.newID(), ChatID: c.ID, ProfileID: owner, Role: models.RoleOwner, JoinedAt: now,
		}); err != nil {
			return err
		}
		for _, id := range members {
			if err := s.Memberships().Put(ctx, &models.Membership{
				ID: r.newID(), ChatID: c.ID, ProfileID: id, Role: models.RoleMember, JoinedAt: now,
			}); err != nil {
				return err
			}
		}
		return s.Messages().Put(ctx, r.systemMessage(c.ID, owner, "Group created", now))
	})
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "group created", "chat_id", c.ID, "profile_id", owner, "members", len(members)+1)
	r.publish(ctx, syncbus.Chats, syncbus.Memberships, syncbus.Messages)
	return c, nil
}

// AddMembers adds every listed profile that is not already an active member,
// with one system message each. It returns the new memberships; an empty
// result means nothing changed.
func (r *Repository) AddMembers(ctx context.Context, chatID, actor string, memberIDs []string) ([]*models.Membership, error) {
	const op = "add members"

	c, err := r.chat(ctx, op, chatID)
	if err != nil {
		return nil, err
	}
	if c.Kind != models.ChatGroup {
		return nil, common.Validation(op, "members can only be added to group chats")
	}
	actorProfile, err := r.profile(ctx, op, actor)
	if err != nil {
		return nil, err
	}
	current, err := r.stores().Memberships().ByChat(ctx, chatID)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	active := make(map[string]bool, len(current))
	for _, m := range current {
		if m.Active() {
			active[m.ProfileID] = true
		}
	}
	if !active[actor] {
		return nil, common.Auth(op, "you are not a member of this chat")
	}

	var toAdd []*models.Profile
	for _, id := range dedupe(memberIDs, "") {
		if active[id] {
			continue
		}
		p, err := r.profile(ctx, op, id)
		if err != nil {
			return nil, err
		}
		toAdd = append(toAdd, p)
	}
	if len(toAdd) == 0 {
		return nil, nil
	}

	now := r.now()
	added := make([]*models.Membership, 0, len(toAdd))
	err = r.backend.RunAtomic(ctx, chatScope, func(ctx context.Context, s storage.Stores) error {
		for _, p := range toAdd {
			m := &models.Membership{ID: r.newID(), ChatID: chatID, ProfileID: p.ID, Role: models.RoleMember, JoinedAt: now}
			if err := s.Memberships().Put(ctx, m); err != nil {
				return err
			}
			body := fmt.Sprintf("%s added %s", actorProfile.Name, p.Name)
			if err := s.Messages().Put(ctx, r.systemMessage(chatID, actor, body, now)); err != nil {
				return err
			}
			added = append(added, m)
		}
		c.Touch(now)
		return s.Chats().Put(ctx, c)
	})
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "members added", "chat_id", chatID, "profile_id", actor, "added", len(added))
	r.publish(ctx, syncbus.Memberships, syncbus.Messages, syncbus.Chats)
	return added, nil
}

// LeaveGroup closes the profile's active membership and records a system
// message. Leaving a chat the profile is not in is a no-op.
func (r *Repository) LeaveGroup(ctx context.Context, chatID, profileID string) error {
	const op = "leave group"

	c, err := r.chat(ctx, op, chatID)
	if err != nil {
		return err
	}
	if c.Kind != models.ChatGroup {
		return common.Validation(op, "direct chats cannot be left")
	}
	m, err := r.activeMembership(ctx, r.stores(), chatID, profileID)
	if err != nil {
		return r.fail(ctx, op, err)
	}
	if m == nil {
		return nil
	}
	p, err := r.profile(ctx, op, profileID)
	if err != nil {
		return err
	}

	now := r.now()
	err = r.backend.RunAtomic(ctx, chatScope, func(ctx context.Context, s storage.Stores) error {
		m.LeftAt = &now
		if err := s.Memberships().Put(ctx, m); err != nil {
			return err
		}
		if err := s.Messages().Put(ctx, r.systemMessage(chatID, profileID, p.Name+" left the group", now)); err != nil {
			return err
		}
		c.Touch(now)
		return s.Chats().Put(ctx, c)
	})
	if err != nil {
		return r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "left group", "chat_id", chatID, "profile_id", profileID)
	r.publish(ctx, syncbus.Memberships, syncbus.Messages, syncbus.Chats)
	return nil
}

func sortProfiles(ps []*models.Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		return strings.ToLower(ps[i].Name) < strings.ToLower(ps[j].Name)
	})
}

// GetMembers returns the profiles of all active members in join order.
func (r *Repository) GetMembers(ctx context.Context, chatID string) ([]*models.Profile, error) {
	const op = "get members"

	if _, err := r.chat(ctx, op, chatID); err != nil {
		return nil, err
	}
	ms, err := r.stores().Memberships().ByChat(ctx, chatID)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	var out []*models.Profile
	for _, m := range ms {
		if !m.Active() {
			continue
		}
		p, err := r.profile(ctx, op, m.ProfileID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CanAccess reports whether profileID holds an active membership in chatID.
func (r *Repository) CanAccess(ctx context.Context, profileID, chatID string) (bool, error) {
	m, err := r.activeMembership(ctx, r.stores(), chatID, profileID)
	if err != nil {
		return false, r.fail(ctx, "can access", err)
	}
	return m != nil, nil
}

// CandidatesForAdd lists every profile that is not an active member of
// chatID, sorted by name.
func (r *Repository) CandidatesForAdd(ctx context.Context, chatID string) ([]*models.Profile, error) {
	const op = "candidates for add"

	if _, err := r.chat(ctx, op, chatID); err != nil {
		return nil, err
	}
	ms, err := r.stores().Memberships().ByChat(ctx, chatID)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	active := make(map[string]bool, len(ms))
	for _, m := range ms {
		if m.Active() {
			active[m.ProfileID] = true
		}
	}

	all, err := r.stores().Profiles().GetAll(ctx)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	out := make([]*models.Profile, 0, len(all))
	for _, p := range all {
		if !active[p.ID] {
			out = append(out, p)
		}
	}
	sortProfiles(out)
	return out, nil
}

// SelectChat remembers chatID as profileID's current chat.
func (r *Repository) SelectChat(ctx context.Context, profileID, chatID string) error {
	const op = "select chat"

	ok, err := r.CanAccess(ctx, profileID, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return common.Auth(op, "you are not a member of this chat")
	}
	if err := r.prefs.Set(ctx, preferences.SelectedChatKey(profileID), []byte(chatID)); err != nil {
		return r.fail(ctx, op, err)
	}
	return nil
}

// SelectedChat returns profileID's remembered chat, or "" when there is none
// or the profile has since left it.
func (r *Repository) SelectedChat(ctx context.Context, profileID string) (string, error) {
	const op = "selected chat"

	v, err := r.prefs.Get(ctx, preferences.SelectedChatKey(profileID))
	if err != nil {
		return "", r.fail(ctx, op, err)
	}
	if len(v) == 0 {
		return "", nil
	}
	ok, err := r.CanAccess(ctx, profileID, string(v))
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}
