package shared

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
)

// Query parameters of the polling protocol.
const (
	TaskIDParam   = "task_id"
	DownloadParam = "download"
)

// Global validator instance for reuse
var validate = validator.New()

// ValidateStruct validates v using its Validate method when it has one and
// its validate struct tags otherwise.
func ValidateStruct(v interface{}) error {
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return validate.Struct(v)
}

// TaskID returns the task_id query parameter. It returns nil when the
// parameter is absent and domain.ErrInvalidID when it is not a UUID.
func TaskID(r *http.Request) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(TaskIDParam))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: task_id %q", domain.ErrInvalidID, raw)
	}
	return &id, nil
}

// FlagSet reports whether the named query parameter is "true" or "1",
// ignoring case and surrounding whitespace.
func FlagSet(r *http.Request, name string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name)))
	return v == "true" || v == "1"
}
