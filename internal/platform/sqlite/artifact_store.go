package sqlite

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

// ArtifactStore implements store.ArtifactStore on SQLite.
type ArtifactStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    store.Clock
}

var _ store.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore creates an ArtifactStore. If logger is nil, a default logger will be used.
func NewArtifactStore(db *sql.DB, logger *slog.Logger) *ArtifactStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactStore{
		db:     db,
		logger: logger.With(slog.String("component", "artifact_store")),
		now:    store.SystemClock,
	}
}

// WithClock replaces the time source used for creation and expiry.
func (s *ArtifactStore) WithClock(clock store.Clock) *ArtifactStore {
	s.now = clock
	return s
}

// SweepExpired deletes artifacts whose created_at + ttl <= now.
func (s *ArtifactStore) SweepExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE created_at + ttl_ms * 1000000 <= ?`,
		toNanos(s.now()))
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to sweep expired artifacts",
			slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to sweep expired artifacts: %w", MapError(err))
	}
	return result.RowsAffected()
}

// Create persists a new artifact. Unique filename selection runs in a
// transaction so the candidate lookup and the insert see the same state.
func (s *ArtifactStore) Create(ctx context.Context, in domain.NewArtifact) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	a := &domain.Artifact{
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
		if err := insertArtifact(ctx, s.db, a, nil); err != nil {
			log.Error("failed to create artifact", slog.String("error", err.Error()))
			return nil, err
		}
		return a, nil
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for n := 0; n < store.MaxFilenameCandidates; n++ {
			candidate := store.FilenameCandidate(in.Filename, n)

			var taken int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM artifacts WHERE filename = ? OR unique_filename = ?`,
				candidate, candidate).Scan(&taken)
			if err != nil {
				return fmt.Errorf("failed to check filename: %w", err)
			}
			if taken > 0 {
				continue
			}
			a.Filename = candidate
			return insertArtifact(ctx, tx, a, &candidate)
		}
		return store.ErrFilenameExhausted
	})
	if err != nil {
		log.Warn("failed to create artifact with unique filename",
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()))
		return nil, err
	}
	return a, nil
}

func insertArtifact(ctx context.Context, db store.DBTX, a *domain.Artifact, uniqueName *string) error {
	content := a.Content
	if content == nil {
		content = []byte{}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO artifacts
			(id, content, filename, mimetype, created_at, ttl_ms, owner_id, description, unique_filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(),
		content,
		a.Filename,
		a.Mimetype,
		toNanos(a.CreatedAt),
		a.TTL.Milliseconds(),
		a.OwnerID,
		a.Description,
		uniqueName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", MapError(err))
	}
	return nil
}

// Get retrieves an artifact by ID, including expired rows not yet swept.
func (s *ArtifactStore) Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	var (
		a         domain.Artifact
		createdAt int64
		ttlMs     int64
		ownerID   uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, filename, mimetype, created_at, ttl_ms, owner_id, description
		FROM artifacts
		WHERE id = ?`, id.String()).Scan(
		&a.ID,
		&a.Content,
		&a.Filename,
		&a.Mimetype,
		&createdAt,
		&ttlMs,
		&ownerID,
		&a.Description,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", MapError(err))
	}

	a.CreatedAt = fromNanos(createdAt)
	a.TTL = time.Duration(ttlMs) * time.Millisecond
	if ownerID.Valid {
		owner := ownerID.UUID
		a.OwnerID = &owner
	}
	if a.Content == nil {
		a.Content = []byte{}
	}
	return &a, nil
}
