package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
)

func invalidName(op string) error {
	return common.Validation(op, fmt.Sprintf("name must be %d to %d characters", models.MinNameLength, models.MaxNameLength))
}

func (r *Repository) newProfile(name string) *models.Profile {
	now := r.now()
	return &models.Profile{
		ID:          r.newID(),
		Name:        name,
		AvatarColor: models.AvatarColor(name),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateProfile stores a new identity without a credential.
func (r *Repository) CreateProfile(ctx context.Context, name string) (*models.Profile, error) {
	const op = "create profile"

	name, ok := models.NormalizeName(name)
	if !ok {
		return nil, invalidName(op)
	}

	p := r.newProfile(name)
	if err := r.stores().Profiles().Put(ctx, p); err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "profile created", "profile_id", p.ID)
	r.publish(ctx, syncbus.Profiles)
	return p, nil
}

// findByName matches display names case-insensitively.
func (r *Repository) findByName(ctx context.Context, op, name string) (*models.Profile, error) {
	all, err := r.stores().Profiles().GetAll(ctx)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, nil
}

// SignUp creates a password-protected identity and makes it active.
func (r *Repository) SignUp(ctx context.Context, name, password string) (*models.Profile, error) {
	const op = "sign up"

	name, ok := models.NormalizeName(name)
	if !ok {
		return nil, invalidName(op)
	}
	if err := r.creds.CheckStrength([]byte(password)); err != nil {
		return nil, common.Validation(op, err.Error())
	}

	existing, err := r.findByName(ctx, op, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, common.Auth(op, fmt.Sprintf("an identity named %q already exists", existing.Name))
	}

	digest, err := r.creds.Derive([]byte(password))
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}

	p := r.newProfile(name)
	p.Password = digest
	if err := r.stores().Profiles().Put(ctx, p); err != nil {
		return nil, r.fail(ctx, op, err)
	}
	if err := r.prefs.Set(ctx, preferences.KeyActiveProfile, []byte(p.ID)); err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Info(ctx, "signed up", "profile_id", p.ID)
	r.publish(ctx, syncbus.Profiles)
	return p, nil
}

// SignIn checks the password of the named identity and makes it active.
func (r *Repository) SignIn(ctx context.Context, name, password string) (*models.Profile, error) {
	const op = "sign in"

	name, _ = models.NormalizeName(name)
	p, err := r.findByName(ctx, op, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, common.Auth(op, "unknown name or wrong password")
	}
	if p.Password == nil {
		return nil, common.Auth(op, "no password set for this identity")
	}
	if !r.creds.Verify([]byte(password), p.Password) {
		return nil, common.Auth(op, "unknown name or wrong password")
	}

	if err := r.prefs.Set(ctx, preferences.KeyActiveProfile, []byte(p.ID)); err != nil {
		return nil, r.fail(ctx, op, err)
	}
	r.log.Info(ctx, "signed in", "profile_id", p.ID)
	return p, nil
}

// RenameProfile changes a display name. The avatar colour follows the name.
func (r *Repository) RenameProfile(ctx context.Context, id, name string) (*models.Profile, error) {
	const op = "rename profile"

	name, ok := models.NormalizeName(name)
	if !ok {
		return nil, invalidName(op)
	}
	p, err := r.profile(ctx, op, id)
	if err != nil {
		return nil, err
	}

	p.Name = name
	p.AvatarColor = models.AvatarColor(name)
	p.UpdatedAt = r.now()
	if err := r.stores().Profiles().Put(ctx, p); err != nil {
		return nil, r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "profile renamed", "profile_id", p.ID)
	r.publish(ctx, syncbus.Profiles)
	return p, nil
}

// SetPassword sets or replaces the identity's credential.
func (r *Repository) SetPassword(ctx context.Context, id, password string) error {
	const op = "set password"

	if err := r.creds.CheckStrength([]byte(password)); err != nil {
		return common.Validation(op, err.Error())
	}
	p, err := r.profile(ctx, op, id)
	if err != nil {
		return err
	}
	digest, err := r.creds.Derive([]byte(password))
	if err != nil {
		return r.fail(ctx, op, err)
	}

	p.Password = digest
	p.UpdatedAt = r.now()
	if err := r.stores().Profiles().Put(ctx, p); err != nil {
		return r.fail(ctx, op, err)
	}

	r.log.Debug(ctx, "password changed", "profile_id", p.ID)
	r.publish(ctx, syncbus.Profiles)
	return nil
}

// SwitchIdentity makes id the active identity without a password check.
func (r *Repository) SwitchIdentity(ctx context.Context, id string) (*models.Profile, error) {
	const op = "switch identity"

	p, err := r.profile(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := r.prefs.Set(ctx, preferences.KeyActiveProfile, []byte(p.ID)); err != nil {
		return nil, r.fail(ctx, op, err)
	}
	return p, nil
}

// ActiveIdentity returns the active profile, or nil when none is set or the
// stored id no longer resolves.
func (r *Repository) ActiveIdentity(ctx context.Context) (*models.Profile, error) {
	const op = "active identity"

	id, err := r.prefs.Get(ctx, preferences.KeyActiveProfile)
	if err != nil {
		return nil, r.fail(ctx, op, err)
	}
	if len(id) == 0 {
		return nil, nil
	}
	p, err := r.profile(ctx, op, string(id))
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// SignOut clears the active identity.
func (r *Repository) SignOut(ctx context.Context) error {
	if err := r.prefs.Clear(ctx, preferences.KeyActiveProfile); err != nil {
		return r.fail(ctx, "sign out", err)
	}
	return nil
}

// ListProfiles returns every profile sorted by name.
func (r *Repository) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	all, err := r.stores().Profiles().GetAll(ctx)
	if err != nil {
		return nil, r.fail(ctx, "list profiles", err)
	}
	sortProfiles(all)
	return all, nil
}
