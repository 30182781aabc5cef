package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
)

// hasPermission applies the ownership rule to a finished result. An unowned
// result is public unless the handler requires an owner, in which case the
// missing owner is a broken invariant. An owned result is visible only to
// that principal.
func hasPermission(owner, principal *uuid.UUID, requireOwner bool) error {
	if owner == nil {
		if requireOwner {
			return fmt.Errorf("%w: result has no owner", domain.ErrInvariantViolation)
		}
		return nil
	}
	if principal == nil || *principal != *owner {
		return domain.ErrAccessDenied
	}
	return nil
}
