// Package cli provides the interactive gophchat terminal client.
//
// It wires configuration, the selected storage backend, the preferences
// store and the sync bus into one chat.Repository and runs a small REPL on
// top of it. Changes made by other processes sharing the same local database
// are announced as "(changed: <type>)" lines while the REPL waits for input.
//
// The REPL is started via App.Run(ctx, in), which blocks until the user exits
// or in is exhausted.
package cli
