package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
	}{
		{"nil", nil, false, false},
		{"generic", errors.New("boom"), false, false},
		{"not found", ErrNotFound, true, false},
		{"artifact not found", ErrArtifactNotFound, true, false},
		{"wrapped artifact not found", fmt.Errorf("get: %w", ErrArtifactNotFound), true, false},
		{"duplicate", ErrDuplicate, false, true},
		{"filename exhausted", ErrFilenameExhausted, false, true},
		{"store error", NewStoreError("artifact", "get", "lookup", ErrArtifactNotFound), true, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, IsDuplicateError(tt.err))
		})
	}
}

func TestStoreErrorMessage(t *testing.T) {
	t.Parallel()

	withCause := NewStoreError("artifact", "create", "insert failed", errors.New("disk full"))
	assert.Equal(t, "create operation on artifact failed: insert failed: disk full", withCause.Error())

	bare := NewStoreError("task", "save", "missing payload", nil)
	assert.Equal(t, "save operation on task failed: missing payload", bare.Error())

	var se *StoreError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", withCause), &se))
	assert.Equal(t, "artifact", se.Entity)
}

func TestFilenameCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"report.txt", 0, "report.txt"},
		{"report.txt", 1, "report_1.txt"},
		{"report.tar.gz", 2, "report.tar_2.gz"},
		{"README", 3, "README_3"},
		{".env", 1, ".env_1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameCandidate(tt.name, tt.n), "%s #%d", tt.name, tt.n)
	}
}
