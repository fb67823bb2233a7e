package db

import (
	"context"
	"fmt"

	"douyin-image-miner/db/migrations"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending migration in db/migrations. A goose Provider
// is used instead of the package globals so concurrent callers (tests, the
// worker and the CLI) never race on the dialect.
func Migrate(ctx context.Context, db *sqlx.DB, dialect goose.Dialect) error {
	provider, err := goose.NewProvider(dialect, db.DB, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
