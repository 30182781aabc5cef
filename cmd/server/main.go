// Package main implements the entry point of the asyncview server, which
// serves HTML views and file downloads produced by background jobs through
// a polling protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/asyncview/internal/config"
	"github.com/phrazzld/asyncview/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Run a migration command: up, down, status, version")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if err := run(context.Background(), *migrateCmd, *verbose); err != nil {
		log.Fatalf("asyncview: %v", err)
	}
}

// run loads configuration, then either executes a migration command or
// serves until interrupted.
func run(ctx context.Context, migrateCmd string, verbose bool) error {
	live, err := config.LoadLive()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := live.Current()

	l, err := setupAppLogger(cfg, verbose)
	if err != nil {
		return err
	}
	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"task_backend", cfg.Task.Backend)

	db, err := setupAppDatabase(ctx, cfg.Database, l)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer closeDB(db, l)
		return migrate(ctx, cfg.Database.Driver, db, migrateCmd, l)
	}

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, cfg.Database.Driver, db, "up", l); err != nil {
			closeDB(db, l)
			return err
		}
	}

	app, err := newApplication(ctx, live, l, db)
	if err != nil {
		closeDB(db, l)
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// setupAppLogger configures the default logger. verbose forces debug level.
func setupAppLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	serverCfg := cfg.Server
	if verbose {
		serverCfg.LogLevel = "debug"
	}
	l, err := logger.Setup(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}
