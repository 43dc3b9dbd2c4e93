// Package migrations embeds the goose SQL migrations for both dialects.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS

// Up applies all pending migrations for dialect d.
func Up(ctx context.Context, db *sql.DB, d dbx.Dialect) error {
	fsys, dir := SQLite, "sqlite"
	if d == dbx.Postgres {
		fsys, dir = Postgres, "postgres"
	}

	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(d.Goose()); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}
