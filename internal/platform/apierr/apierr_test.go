package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAsFindsWrappedError(t *testing.T) {
	inner := BadRequest("missing_project", "project is required")
	wrapped := fmt.Errorf("submit: %w", inner)
	ae, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected api error in chain")
	}
	if ae.Status != http.StatusBadRequest || ae.Code != "missing_project" {
		t.Fatalf("unexpected api error: %+v", ae)
	}
	if _, ok := As(errors.New("plain")); ok {
		t.Fatalf("plain error should not match")
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	if got := New(http.StatusConflict, "already_merged", nil).Error(); got != "already_merged" {
		t.Fatalf("want code fallback, got %q", got)
	}
	if got := New(http.StatusTeapot, "", nil).Error(); got != "api error (418)" {
		t.Fatalf("want status fallback, got %q", got)
	}
}
