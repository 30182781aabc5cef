package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultArtifactTTL is how long an artifact is kept when no TTL is configured.
const DefaultArtifactTTL = 10 * time.Minute

// DefaultMimetype is used when an operation does not declare one.
const DefaultMimetype = "text/plain"

// Validation errors for artifacts
var (
	ErrEmptyFilename = errors.New("artifact filename cannot be empty")
	ErrNegativeTTL   = errors.New("artifact ttl cannot be negative")
)

// File is what an operation produces: raw bytes plus the metadata needed to
// deliver them.
type File struct {
	Content  []byte
	Filename string
	Mimetype string
}

// Artifact is the durable result of a completed operation.
// Artifacts are never updated; they are created once and later removed in
// bulk by the expiry sweep.
type Artifact struct {
	ID          uuid.UUID
	Content     []byte
	Filename    string
	Mimetype    string
	CreatedAt   time.Time
	TTL         time.Duration
	OwnerID     *uuid.UUID
	Description string
}

// ExpiresAt returns the instant after which the artifact may be swept.
func (a *Artifact) ExpiresAt() time.Time {
	return a.CreatedAt.Add(a.TTL)
}

// IsExpired reports whether the artifact is eligible for deletion at now.
// The boundary is inclusive: created_at + ttl <= now.
func (a *Artifact) IsExpired(now time.Time) bool {
	return !a.ExpiresAt().After(now)
}

// Opened converts the artifact to the handler-facing result shape.
func (a *Artifact) Opened() *OpenedResult {
	return &OpenedResult{
		Content:  a.Content,
		OwnerID:  a.OwnerID,
		Filename: a.Filename,
		Mimetype: a.Mimetype,
	}
}

// NewArtifact carries everything a store needs to persist an artifact.
// ID and CreatedAt are assigned by the store.
type NewArtifact struct {
	Content         []byte
	Filename        string
	Mimetype        string
	OwnerID         *uuid.UUID
	Description     string
	TTL             time.Duration
	UniqueFilenames bool
}

// Validate checks the request and fills the default mimetype.
func (n *NewArtifact) Validate() error {
	if n.Filename == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyFilename)
	}
	if n.TTL < 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNegativeTTL)
	}
	if n.Mimetype == "" {
		n.Mimetype = DefaultMimetype
	}
	return nil
}
