package domain

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidHandle is returned when a result handle carries neither or both
// of its alternatives.
var ErrInvalidHandle = errors.New("result handle must reference exactly one result")

// EphemeralResult is a finished operation's output carried directly in the
// job result instead of the artifact table. encoding/json renders Content as
// base64, which is the only text encoding boundary in the system.
type EphemeralResult struct {
	Content  []byte     `json:"content"`
	OwnerID  *uuid.UUID `json:"owner_id,omitempty"`
	Filename string     `json:"filename"`
	Mimetype string     `json:"mimetype"`
}

// ResultHandle is the value a completed job hands back.
type ResultHandle struct {
	ArtifactID *uuid.UUID       `json:"artifact_id,omitempty"`
	Ephemeral  *EphemeralResult `json:"ephemeral,omitempty"`
}

// Validate checks that exactly one alternative is set.
func (h *ResultHandle) Validate() error {
	if (h.ArtifactID == nil) == (h.Ephemeral == nil) {
		return ErrInvalidHandle
	}
	return nil
}

// OpenedResult is the handler-facing view of a finished job, identical for
// durable and ephemeral results.
type OpenedResult struct {
	Content  []byte
	OwnerID  *uuid.UUID
	Filename string
	Mimetype string
}

// OwnedBy reports whether principal may read the result under the plain
// ownership rule: unowned results are public, owned ones need an exact match.
func (r *OpenedResult) OwnedBy(principal *uuid.UUID) bool {
	if r.OwnerID == nil {
		return true
	}
	return principal != nil && *principal == *r.OwnerID
}
