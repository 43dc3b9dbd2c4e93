package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

func (a *App) signedIn(p *models.Profile) {
	a.me = p
	a.chatID = ""
	a.listed = nil
}

// SignUp prompts for a name and password and creates a protected identity.
//
// The password byte slice is wiped before returning.
func (a *App) SignUp(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	p, err := a.repo.SignUp(ctx, name, string(password))
	if err != nil {
		return err
	}
	a.signedIn(p)
	a.printf("Welcome, %s!\n", p.Name)
	return nil
}

// Login switches to an existing identity. Identities without a password are
// switched to directly; the others are asked for theirs.
func (a *App) Login(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}

	profiles, err := a.repo.ListProfiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) && p.Password == nil {
			if _, err := a.repo.SwitchIdentity(ctx, p.ID); err != nil {
				return err
			}
			a.signedIn(p)
			a.printf("Signed in as %s\n", p.Name)
			return nil
		}
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	p, err := a.repo.SignIn(ctx, name, string(password))
	if err != nil {
		return err
	}
	a.signedIn(p)
	if id, err := a.repo.SelectedChat(ctx, p.ID); err == nil {
		a.chatID = id
	}
	a.printf("Signed in as %s\n", p.Name)
	return nil
}

// Logout clears the active identity.
func (a *App) Logout(ctx context.Context) error {
	if err := a.repo.SignOut(ctx); err != nil {
		return err
	}
	a.signedIn(nil)
	a.println("Signed out")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	protected := "no password"
	if a.me.Password != nil {
		protected = "password protected"
	}
	a.printf("%s (%s, %s)\n", a.me.Name, a.me.AvatarColor, protected)
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rename <name>")
	}
	p, err := a.repo.RenameProfile(ctx, a.me.ID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	a.me = p
	a.printf("Renamed to %s\n", p.Name)
	return nil
}

// Passwd sets or replaces the active identity's password.
func (a *App) Passwd(ctx context.Context) error {
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.repo.SetPassword(ctx, a.me.ID, string(password)); err != nil {
		return err
	}
	a.println("Password updated")
	return nil
}

// Profiles lists every identity on this device.
func (a *App) Profiles(ctx context.Context) error {
	profiles, err := a.repo.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		a.println("No profiles yet")
		return nil
	}
	for _, p := range profiles {
		mark := " "
		if a.me != nil && a.me.ID == p.ID {
			mark = "*"
		}
		a.printf("%s %s\n", mark, p.Name)
	}
	return nil
}
