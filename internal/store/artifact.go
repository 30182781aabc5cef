package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
)

// MaxFilenameCandidates bounds how many suffixed names Create tries when
// unique filenames are required.
const MaxFilenameCandidates = 1000

// ArtifactStore defines the interface for durable operation results.
// Implementations must be safe for concurrent use.
type ArtifactStore interface {
	// SweepExpired deletes every artifact whose created_at + ttl <= now and
	// returns the number of rows removed.
	SweepExpired(ctx context.Context) (int64, error)

	// Create persists a new artifact and returns it with its assigned ID and
	// creation time. With UniqueFilenames set, the stored filename is the first
	// free candidate of name, name_1.ext, name_2.ext, ...
	// Returns ErrInvalidEntity when validation fails and ErrFilenameExhausted
	// when no candidate is free.
	Create(ctx context.Context, artifact domain.NewArtifact) (*domain.Artifact, error)

	// Get retrieves an artifact by its ID. Expired artifacts that have not
	// been swept yet are still returned.
	// Returns ErrArtifactNotFound if the artifact does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)
}

// Clock returns the current time. Stores accept one to make expiry testable.
type Clock func() time.Time

// SystemClock is the default Clock, truncated to microseconds so values
// round-trip through every supported database unchanged.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FilenameCandidate returns the n-th candidate for name: the name itself for
// n == 0, otherwise the stem suffixed with _n before the extension.
func FilenameCandidate(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}
