// Package migrations embeds the goose migrations of the SQL turn stores.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Up applies every pending migration for dialect ("sqlite" or "postgres").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	var gooseDialect goose.Dialect
	switch dialect {
	case "sqlite":
		gooseDialect = goose.DialectSQLite3
	case "postgres":
		gooseDialect = goose.DialectPostgres
	default:
		return fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	fsys, err := fs.Sub(files, dialect)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}
