package testutil

import (
	"errors"
	"slices"
	"testing"

	"gorm.io/gorm"

	apperrors "lims/internal/errors"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AuditActions returns the action of every audit entry in insertion order.
func AuditActions(t *testing.T, db *gorm.DB) []string {
	t.Helper()

	var out []string
	for _, e := range AuditEntries(t, db) {
		out = append(out, e.Action)
	}
	return out
}

// AssertAuditActions fails the test unless the audit trail holds exactly want,
// in order.
func AssertAuditActions(t *testing.T, db *gorm.DB, want ...string) {
	t.Helper()

	if got := AuditActions(t, db); !slices.Equal(got, want) {
		t.Errorf("expected audit actions %v, got %v", want, got)
	}
}
