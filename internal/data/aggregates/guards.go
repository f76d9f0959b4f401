package aggregates

import (
	"strings"

	"github.com/yungbote/groundwork-backend/internal/domain/coding"
)

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

// RequireStateAllowed validates a candidate's current state against allowed values.
func RequireStateAllowed(current coding.State, allowed ...coding.State) error {
	if len(allowed) == 0 {
		return ValidationError("allowed states cannot be empty")
	}
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return ConflictError("candidate state " + string(current) + " not allowed here")
}
