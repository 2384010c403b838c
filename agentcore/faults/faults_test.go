package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TAXONOMY TESTS
// =============================================================================

func TestIntakeAmbiguityError(t *testing.T) {
	err := NewIntakeAmbiguityError("Please OCR my document")

	assert.Equal(t, "no document reference found in request", err.Error())
	assert.Equal(t, "Please OCR my document", err.Input)
}

func TestCollaboratorErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCollaboratorError("ocr", cause)

	assert.Equal(t, "ocr collaborator failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))

	var cerr *CollaboratorError
	require.True(t, errors.As(error(err), &cerr))
	assert.Equal(t, "ocr", cerr.Collaborator)
}

func TestCollaboratorErrorPreservesSentinel(t *testing.T) {
	// The size-ceiling sentinel stays distinguishable through wrapping.
	cause := fmt.Errorf("%w: /tmp/huge.pdf is 60000000 bytes, ceiling is 52428800", ErrDocumentTooLarge)
	err := NewCollaboratorError("ocr", cause)

	assert.True(t, errors.Is(err, ErrDocumentTooLarge))
}

func TestInvariantError(t *testing.T) {
	err := NewInvariantError("single_traversal", "stage \"extract\" entered twice in one run")

	assert.Contains(t, err.Error(), "invariant violated (single_traversal)")
	assert.Contains(t, err.Error(), "entered twice")
}

// =============================================================================
// SANITIZER TESTS
// =============================================================================

func TestSanitizeKnownShapes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ocr collaborator failed: connection refused", "Could not reach the service. Check your network connection and try again."},
		{"context deadline exceeded: request timed out", "The request timed out. Try again in a moment."},
		{"mistral: status 401: invalid key", "Authentication failed. Check the configured API key."},
		{"anthropic: Unauthorized", "Authentication failed. Check the configured API key."},
		{"mistral: status 403: denied", "Access to the service was denied."},
		{"mistral: status 404: no such model", "The requested resource was not found."},
		{"anthropic: status 429: too many requests", "The service is rate limiting requests. Wait a moment and retry."},
		{"rate limit exceeded, slow down", "The service is rate limiting requests. Wait a moment and retry."},
		{"mistral: status 500: oops", "The service reported an internal error. Try again later."},
		{"Internal Server Error", "The service reported an internal error. Try again later."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.raw), "raw %q", tt.raw)
	}
}

func TestSanitizeUnknownPassesThrough(t *testing.T) {
	// Messages outside the known shapes reach the user verbatim.
	raw := "document exceeds size ceiling: /tmp/huge.pdf"
	assert.Equal(t, raw, Sanitize(raw))
}

func TestSanitizeEmptyMessage(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred.", Sanitize(""))
}

func TestSanitizeCaseInsensitive(t *testing.T) {
	assert.Equal(t,
		"Could not reach the service. Check your network connection and try again.",
		Sanitize("CONNECTION RESET BY PEER"))
}

func TestSanitizeFirstMatchWins(t *testing.T) {
	// Connection outranks timeout when both substrings appear.
	assert.Equal(t,
		"Could not reach the service. Check your network connection and try again.",
		Sanitize("connection timeout"))
}
