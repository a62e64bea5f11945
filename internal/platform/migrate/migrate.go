package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"loginway/migrations"
)

// Apply runs any pending SQL migrations bundled with the binary. The dialect
// and migration directory follow the connection's driver.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	dialect, dir, err := dialectFor(db.DriverName())
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations.Files)
	goose.SetLogger(gooseSlogLogger{logger: logger})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("migrate: goose up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("migrate: check goose version: %w", err)
	}
	if logger != nil {
		logger.Info("database schema ready", "dialect", dialect, "version", version)
	}
	return nil
}

func dialectFor(driver string) (dialect, dir string, err error) {
	switch driver {
	case "postgres":
		return "postgres", "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite3", "sqlite", nil
	default:
		return "", "", fmt.Errorf("migrate: unsupported driver %q", driver)
	}
}
