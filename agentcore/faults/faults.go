// Package faults defines the error taxonomy of the stage pipeline and the
// user-facing message sanitizer.
//
// Taxonomy:
//   - IntakeAmbiguityError: extraction requested without a usable document
//     reference. Not fatal; routes to request-more-info.
//   - CollaboratorError: an OCR/generation/retrieval call failed. Fatal to
//     the current run; routes to the error stage.
//   - InvariantError: the pipeline reached an impossible state. A programming
//     defect, logged distinctly from user-facing failures.
package faults

import (
	"errors"
	"fmt"
)

// =============================================================================
// EXCEPTIONS
// =============================================================================

// ErrDocumentTooLarge marks a reference rejected by the OCR size ceiling.
// Collaborators wrap it so callers can distinguish it with errors.Is.
var ErrDocumentTooLarge = errors.New("document exceeds size ceiling")

// IntakeAmbiguityError is raised when extraction was requested but no valid
// document reference could be parsed from the input.
type IntakeAmbiguityError struct {
	Input string
}

func (e *IntakeAmbiguityError) Error() string {
	return "no document reference found in request"
}

// NewIntakeAmbiguityError creates a new IntakeAmbiguityError.
func NewIntakeAmbiguityError(input string) *IntakeAmbiguityError {
	return &IntakeAmbiguityError{Input: input}
}

// CollaboratorError wraps a failure from an external collaborator call.
type CollaboratorError struct {
	Collaborator string // "ocr", "generation", "retrieval"
	Cause        error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Cause)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// NewCollaboratorError creates a new CollaboratorError.
func NewCollaboratorError(collaborator string, cause error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Cause: cause}
}

// InvariantError is raised when the router or orchestrator observes a state
// that should be unreachable.
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Check, e.Detail)
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(check, detail string) *InvariantError {
	return &InvariantError{Check: check, Detail: detail}
}
