// Package migrations applies the embedded goose migrations of a storage
// engine to a *sql.DB.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

// Supported commands.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandVersion = "version"
)

// ErrUnknownCommand is returned for commands other than the ones above.
var ErrUnknownCommand = errors.New("unknown migration command")

// Run executes command against db using the migrations found at the root of fsys.
func Run(
	ctx context.Context,
	db *sql.DB,
	dialect goose.Dialect,
	fsys fs.FS,
	command string,
	logger *slog.Logger,
) error {
	log := logger.With("component", "migrations", "dialect", string(dialect), "command", command)

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	start := time.Now()
	switch command {
	case CommandUp:
		results, err := provider.Up(ctx)
		for _, r := range results {
			log.Info("applied migration",
				"version", r.Source.Version,
				"path", r.Source.Path,
				"duration_ms", r.Duration.Milliseconds())
		}
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	case CommandDown:
		r, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		if r != nil {
			log.Info("rolled back migration", "version", r.Source.Version, "path", r.Source.Path)
		}
	case CommandStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, s := range statuses {
			log.Info("migration status",
				"version", s.Source.Version,
				"path", s.Source.Path,
				"state", string(s.State))
		}
	case CommandVersion:
		v, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		log.Info("schema version", "version", v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	log.Info("migration command finished", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
