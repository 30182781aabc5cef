package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apiMiddleware "github.com/phrazzld/asyncview/internal/api/middleware"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/config"
	"github.com/phrazzld/asyncview/internal/example"
	"github.com/phrazzld/asyncview/internal/jobs"
	"github.com/phrazzld/asyncview/internal/platform/postgres"
	redisstore "github.com/phrazzld/asyncview/internal/platform/redis"
	"github.com/phrazzld/asyncview/internal/platform/sqlite"
	"github.com/phrazzld/asyncview/internal/service/auth"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

// Task backends accepted in task.backend.
const (
	backendMemory   = "memory"
	backendDatabase = "database"
	backendRedis    = "redis"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	live   *config.Live
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	artifacts store.ArtifactStore
	taskStore task.TaskStore

	registry   *asyncop.Registry
	examples   *example.Operations
	taskRunner *task.TaskRunner
	jobs       *jobs.Adapter

	jwtService auth.JWTService
	limiter    *apiMiddleware.SubmissionLimiter

	cleanupOnce sync.Once
}

// newApplication creates a new application instance with all dependencies initialized.
// The database must already be connected and migrated. On error the database
// is left open for the caller to close.
func newApplication(ctx context.Context, live *config.Live, logger *slog.Logger, db *sql.DB) (*application, error) {
	cfg := live.Current()
	app := &application{
		live:     live,
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: asyncop.NewRegistry(),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.artifacts, err = newArtifactStore(cfg.Database.Driver, db, logger)
	if err != nil {
		return nil, err
	}

	// Operations read TTL and filename settings from live on every run.
	app.examples, err = example.NewOperations(app.registry, app.artifacts, live, cfg.Example.SlowDelay(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create example operations: %w", err)
	}

	if err := app.setupTaskStore(ctx); err != nil {
		app.release()
		return nil, err
	}

	app.taskRunner, err = setupTaskRunner(app)
	if err != nil {
		app.release()
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	app.jobs, err = jobs.NewAdapter(app.taskRunner, app.artifacts, jobs.Config{
		AwaitTimeout: cfg.Task.AwaitTimeout(),
		AwaitPoll:    cfg.Task.AwaitPoll(),
	}, logger)
	if err != nil {
		app.release()
		return nil, fmt.Errorf("failed to create job adapter: %w", err)
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		app.limiter = apiMiddleware.NewSubmissionLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	logger.Info("application initialized successfully",
		"operations", app.registry.Names(),
		"durable_storage", live.DurableStorage())
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router, err := app.setupRouter()
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to set up routes: %w", err)
	}

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newArtifactStore(driver string, db *sql.DB, logger *slog.Logger) (store.ArtifactStore, error) {
	switch driver {
	case driverSQLite:
		return sqlite.NewArtifactStore(db, logger), nil
	case driverPostgres:
		return postgres.NewPostgresArtifactStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// setupTaskStore selects where job state and ephemeral results live.
func (app *application) setupTaskStore(ctx context.Context) error {
	cfg := app.config
	switch cfg.Task.Backend {
	case backendMemory:
		app.taskStore = task.NewMemoryTaskStore()

	case backendDatabase:
		switch cfg.Database.Driver {
		case driverSQLite:
			app.taskStore = sqlite.NewTaskStore(app.db, app.logger)
		case driverPostgres:
			app.taskStore = postgres.NewPostgresTaskStore(app.db, app.logger)
		default:
			return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
		}

	case backendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		app.taskStore = redisstore.NewTaskStore(client, cfg.Task.ResultRetention(), app.logger)

	default:
		return fmt.Errorf("unsupported task backend %q", cfg.Task.Backend)
	}

	app.logger.Info("task store initialized", "backend", cfg.Task.Backend)
	return nil
}

// setupTaskRunner creates the runner, lets it rebuild stored jobs through the
// operation registry and starts it.
func setupTaskRunner(app *application) (*task.TaskRunner, error) {
	taskRunner := task.NewTaskRunner(app.taskStore, task.TaskRunnerConfig{
		QueueSize:              app.config.Task.QueueSize,
		WorkerCount:            app.config.Task.WorkerCount,
		StuckTaskAge:           app.config.Task.StuckTaskAge(),
		StuckTaskCheckInterval: 5 * time.Minute,
		ResultRetention:        app.config.Task.ResultRetention(),
	}, app.logger)
	taskRunner.SetRehydrator(jobs.NewRehydrator(app.registry))

	if err := taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}
	return taskRunner, nil
}

// release stops the task runner and closes the redis client. The database
// belongs to the caller until cleanup.
func (app *application) release() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
}

// cleanup handles graceful shutdown of application resources. Only the
// first call has an effect.
func (app *application) cleanup() {
	app.cleanupOnce.Do(func() {
		app.release()

		if app.db != nil {
			closeDB(app.db, app.logger)
		}

		app.logger.Info("application shutdown completed")
	})
}
