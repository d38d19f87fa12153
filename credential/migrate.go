package credential

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrEthical07/otpgate/credential/migrations"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded schema migrations to db. db must be opened with the
// pgx stdlib driver.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
