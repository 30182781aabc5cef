package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/store"
)

// PostgresArtifactStore implements the store.ArtifactStore interface
// using a PostgreSQL database as the storage backend.
type PostgresArtifactStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    store.Clock
}

// NewPostgresArtifactStore creates a new PostgreSQL implementation of the ArtifactStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresArtifactStore(db store.DBTX, logger *slog.Logger) *PostgresArtifactStore {
	if db == nil {
		// ALLOW-PANIC: constructor precondition
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresArtifactStore{
		db:     db,
		logger: logger.With(slog.String("component", "artifact_store")),
		now:    store.SystemClock,
	}
}

// WithClock replaces the time source used for creation and expiry.
func (s *PostgresArtifactStore) WithClock(clock store.Clock) *PostgresArtifactStore {
	s.now = clock
	return s
}

// Ensure PostgresArtifactStore implements store.ArtifactStore interface
var _ store.ArtifactStore = (*PostgresArtifactStore)(nil)

// SweepExpired implements store.ArtifactStore.SweepExpired
func (s *PostgresArtifactStore) SweepExpired(ctx context.Context) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM artifacts
		WHERE created_at + ttl_ms * INTERVAL '1 millisecond' <= $1
	`
	result, err := s.db.ExecContext(ctx, query, s.now())
	if err != nil {
		log.Error("failed to sweep expired artifacts", slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to sweep expired artifacts: %w", MapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		log.Debug("swept expired artifacts", slog.Int64("count", n))
	}
	return n, nil
}

// Create implements store.ArtifactStore.Create
func (s *PostgresArtifactStore) Create(ctx context.Context, in domain.NewArtifact) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := in.Validate(); err != nil {
		log.Warn("artifact validation failed during create", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	artifact := &domain.Artifact{
		ID:          uuid.New(),
		Content:     in.Content,
		Filename:    in.Filename,
		Mimetype:    in.Mimetype,
		CreatedAt:   s.now(),
		TTL:         in.TTL,
		OwnerID:     in.OwnerID,
		Description: in.Description,
	}

	if !in.UniqueFilenames {
		if err := s.insert(ctx, artifact, nil); err != nil {
			log.Error("failed to create artifact",
				slog.String("error", err.Error()),
				slog.String("artifact_id", artifact.ID.String()))
			return nil, err
		}
		log.Debug("artifact created", slog.String("artifact_id", artifact.ID.String()))
		return artifact, nil
	}

	// Candidates are checked against every stored filename. The UNIQUE
	// constraint on unique_filename settles races between concurrent creators.
	for n := 0; n < store.MaxFilenameCandidates; n++ {
		candidate := store.FilenameCandidate(in.Filename, n)

		taken, err := s.filenameInUse(ctx, candidate)
		if err != nil {
			log.Error("failed to check filename",
				slog.String("error", err.Error()),
				slog.String("filename", candidate))
			return nil, err
		}
		if taken {
			continue
		}

		artifact.Filename = candidate
		err = s.insert(ctx, artifact, &candidate)
		if err == nil {
			log.Debug("artifact created",
				slog.String("artifact_id", artifact.ID.String()),
				slog.String("filename", candidate))
			return artifact, nil
		}
		if !errors.Is(err, errFilenameTaken) {
			log.Error("failed to create artifact",
				slog.String("error", err.Error()),
				slog.String("artifact_id", artifact.ID.String()))
			return nil, err
		}
	}

	log.Warn("no unique filename available", slog.String("filename", in.Filename))
	return nil, store.ErrFilenameExhausted
}

var errFilenameTaken = errors.New("filename taken")

func (s *PostgresArtifactStore) filenameInUse(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM artifacts WHERE filename = $1)`, name).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check filename: %w", MapError(err))
	}
	return taken, nil
}

func (s *PostgresArtifactStore) insert(ctx context.Context, a *domain.Artifact, uniqueName *string) error {
	query := `
		INSERT INTO artifacts
			(id, content, filename, mimetype, created_at, ttl_ms, owner_id, description, unique_filename)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	content := a.Content
	if content == nil {
		content = []byte{}
	}

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		content,
		a.Filename,
		a.Mimetype,
		a.CreatedAt,
		a.TTL.Milliseconds(),
		a.OwnerID,
		a.Description,
		uniqueName,
	)
	if err != nil {
		if uniqueName != nil && IsUniqueViolation(err, uniqueFilenameConstraint) {
			return errFilenameTaken
		}
		return fmt.Errorf("failed to insert artifact: %w", MapError(err))
	}
	return nil
}

// Get implements store.ArtifactStore.Get
func (s *PostgresArtifactStore) Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, content, filename, mimetype, created_at, ttl_ms, owner_id, description
		FROM artifacts
		WHERE id = $1
	`

	var (
		a       domain.Artifact
		ttlMs   int64
		ownerID uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.Content,
		&a.Filename,
		&a.Mimetype,
		&a.CreatedAt,
		&ttlMs,
		&ownerID,
		&a.Description,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("artifact not found", slog.String("artifact_id", id.String()))
			return nil, store.ErrArtifactNotFound
		}
		log.Error("failed to get artifact",
			slog.String("error", err.Error()),
			slog.String("artifact_id", id.String()))
		return nil, fmt.Errorf("failed to get artifact: %w", MapError(err))
	}

	a.TTL = time.Duration(ttlMs) * time.Millisecond
	a.CreatedAt = a.CreatedAt.UTC()
	if ownerID.Valid {
		owner := ownerID.UUID
		a.OwnerID = &owner
	}
	return &a, nil
}
