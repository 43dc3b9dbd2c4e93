package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	SignUp(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Rename(ctx context.Context, args []string) error
	Passwd(ctx context.Context) error
	Profiles(ctx context.Context) error
	Chats(ctx context.Context) error
	Open(ctx context.Context, args []string) error
	Send(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	Members(ctx context.Context) error
	Add(ctx context.Context, args []string) error
	Leave(ctx context.Context) error
	Group(ctx context.Context, args []string) error
	Direct(ctx context.Context, args []string) error
	Usage(ctx context.Context) error
	Seed(ctx context.Context) error
}

const (
	helpAnonymous = "Available commands: signup, login, profiles, seed, exit"
	helpSignedIn  = "Available commands: whoami, rename <name>, passwd, profiles, chats, open <n|title>, send <text>, attach <path> [caption], " +
		"save <attachment-id> <path>, members, add <name>..., leave, group <title> [name...], direct <name>, usage, seed, logout, exit"
)

var errSignInFirst = errors.New("sign in first")

// runREPL reads commands line by line from reader and dispatches them to a.
//
// The prompt shows the current status (from statusFn). Errors returned by
// command handlers are printed and the loop continues. The loop exits on EOF
// or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "chat %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			fmt.Fprintln(w, "Bye!")
			return
		}
		if err := dispatch(ctx, a, cmd, args, w); err != nil {
			fmt.Fprintln(w, "error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			fmt.Fprintln(w, helpSignedIn)
		} else {
			fmt.Fprintln(w, helpAnonymous)
		}
		return nil
	case "signup":
		return a.SignUp(ctx)
	case "login":
		return a.Login(ctx)
	case "profiles":
		return a.Profiles(ctx)
	case "seed":
		return a.Seed(ctx)
	}

	if !a.isLoggedIn() {
		switch cmd {
		case "whoami", "rename", "passwd", "logout", "chats", "l", "open", "send", "attach", "save",
			"members", "add", "leave", "group", "direct", "usage":
			return errSignInFirst
		}
	}

	switch cmd {
	case "whoami":
		return a.Whoami(ctx)
	case "rename":
		return a.Rename(ctx, args)
	case "passwd":
		return a.Passwd(ctx)
	case "logout":
		return a.Logout(ctx)
	case "l", "chats":
		return a.Chats(ctx)
	case "open":
		return a.Open(ctx, args)
	case "send":
		return a.Send(ctx, args)
	case "attach":
		return a.Attach(ctx, args)
	case "save":
		return a.Save(ctx, args)
	case "members":
		return a.Members(ctx)
	case "add":
		return a.Add(ctx, args)
	case "leave":
		return a.Leave(ctx)
	case "group":
		return a.Group(ctx, args)
	case "direct":
		return a.Direct(ctx, args)
	case "usage":
		return a.Usage(ctx)
	default:
		fmt.Fprintln(w, "Unknown command:", cmd)
		return nil
	}
}
