package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/wenjin/chatd/internal/version"
)

// SchemaVersion is the database layout version this build writes. It is
// recorded on migration so an older build refuses to open a data
// directory produced by a newer one instead of corrupting it.
const SchemaVersion = "0.1.0"

// Migrate applies the schema and records SchemaVersion.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return err
	}

	stored, err := s.driver.GetSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if stored != "" && !version.IsVersionGreaterOrEqualThan(SchemaVersion, stored) {
		return errors.Errorf("database schema %s is newer than this build supports (%s)", stored, SchemaVersion)
	}
	if stored != SchemaVersion {
		if err := s.driver.UpsertSchemaVersion(ctx, SchemaVersion); err != nil {
			return errors.Wrap(err, "failed to record schema version")
		}
		slog.Info("schema version recorded", "from", stored, "to", SchemaVersion)
	}
	return nil
}
