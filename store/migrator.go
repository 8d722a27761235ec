package store

import (
	"context"
	"embed"
	"log/slog"
	"path"

	"github.com/pkg/errors"
)

//go:embed migration
var migrationFS embed.FS

// latestSchemaFileName is the full schema applied to fresh installations.
const latestSchemaFileName = "LATEST.sql"

// Migrate initializes the database schema on first run. Already-initialized
// databases are left untouched.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	schemaPath := path.Join("migration", s.profile.Driver, latestSchemaFileName)
	buf, err := migrationFS.ReadFile(schemaPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema %q", schemaPath)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	slog.Info("database initialized", slog.String("driver", s.profile.Driver))
	return nil
}
