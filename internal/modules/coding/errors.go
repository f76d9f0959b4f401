package coding

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
)

func requireProject(projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return apierr.BadRequest("missing_project", "project_id is required")
	}
	return nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apierr.BadRequest("missing_actor", "actor is required")
	}
	return nil
}

// mapError translates aggregate failures into API errors. Errors that already carry an
// API status pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierr.As(err); ok {
		return err
	}
	if errors.Is(err, aggregates.ErrIdempotencyKeyReused) {
		return apierr.New(http.StatusConflict, "idempotency_key_reused", err)
	}
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return apierr.New(http.StatusConflict, te.Code, err)
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return apierr.New(http.StatusBadRequest, "validation_failed", err)
	case domainagg.CodeNotFound:
		return apierr.New(http.StatusNotFound, "candidate_not_found", err)
	case domainagg.CodeConflict:
		return apierr.New(http.StatusConflict, "conflict", err)
	case domainagg.CodeInvariantViolation:
		return apierr.New(http.StatusConflict, "invariant_violation", err)
	case domainagg.CodePreconditionFailed:
		return apierr.New(http.StatusPreconditionFailed, "precondition_failed", err)
	case domainagg.CodeRetryable:
		return apierr.New(http.StatusServiceUnavailable, "retryable", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal", err)
	}
}

func internal(code string, err error) error {
	return apierr.New(http.StatusInternalServerError, code, err)
}
