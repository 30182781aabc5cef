package api

import (
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	other := uuid.New()

	tests := []struct {
		name         string
		owner        *uuid.UUID
		principal    *uuid.UUID
		requireOwner bool
		wantErr      error
	}{
		{"unowned result, anonymous", nil, nil, false, nil},
		{"unowned result, authenticated", nil, &other, false, nil},
		{"unowned result under required owner", nil, &other, true, domain.ErrInvariantViolation},
		{"owner reads own result", &owner, &owner, false, nil},
		{"owner reads own result under required owner", &owner, &owner, true, nil},
		{"other principal", &owner, &other, false, domain.ErrAccessDenied},
		{"anonymous on owned result", &owner, nil, false, domain.ErrAccessDenied},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := hasPermission(tt.owner, tt.principal, tt.requireOwner)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
