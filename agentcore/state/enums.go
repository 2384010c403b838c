// Package state provides the request State threaded through the stage pipeline.
//
// Design:
//   - One State per request, created at intake, extended stage by stage
//   - Stages never mutate a State they did not create; they work on a Clone
//   - Status and stage names are string-based enums with parse helpers
package state

import "strings"

// Status represents the lifecycle status of a request.
type Status string

const (
	// StatusIdle indicates a freshly created request with no stage run yet.
	StatusIdle Status = "idle"
	// StatusRunning indicates the pipeline is in progress.
	StatusRunning Status = "running"
	// StatusCompleted indicates a terminal stage produced a response.
	StatusCompleted Status = "completed"
	// StatusFailed indicates an unrecoverable failure; Error is set.
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StatusFromString parses a status string (case-insensitive).
// Returns StatusIdle for unknown values.
func StatusFromString(s string) Status {
	status := Status(strings.ToLower(s))
	if status.IsValid() {
		return status
	}
	return StatusIdle
}

// StageName identifies one stage of the pipeline.
type StageName string

const (
	// StageIntake parses the raw input into a query and document reference.
	StageIntake StageName = "intake"
	// StageExtract calls the OCR collaborator on the document reference.
	StageExtract StageName = "extract"
	// StageRetrieve calls the retrieval collaborator with the parsed query.
	StageRetrieve StageName = "retrieve"
	// StageRespond generates the final natural-language reply.
	StageRespond StageName = "respond"
	// StageRequestMoreInfo asks the user for a usable document reference.
	StageRequestMoreInfo StageName = "request-more-info"
	// StageError formats the failure into a user-facing message.
	StageError StageName = "error"
)

// IsValid returns true if the stage name is a known value.
func (n StageName) IsValid() bool {
	switch n {
	case StageIntake, StageExtract, StageRetrieve, StageRespond, StageRequestMoreInfo, StageError:
		return true
	}
	return false
}

// IsTerminal returns true if the loop stops after this stage runs.
func (n StageName) IsTerminal() bool {
	switch n {
	case StageRespond, StageRequestMoreInfo, StageError:
		return true
	}
	return false
}

// StageNameFromString parses a stage name (case-insensitive).
// Returns the empty StageName for unknown values.
func StageNameFromString(s string) StageName {
	name := StageName(strings.ToLower(s))
	if name.IsValid() {
		return name
	}
	return ""
}

// DocumentKind classifies a document reference by extension.
type DocumentKind string

const (
	// KindPDF is a .pdf document.
	KindPDF DocumentKind = "pdf"
	// KindImage is a raster image (jpg, png, gif, bmp, tiff).
	KindImage DocumentKind = "image"
	// KindText is a plain or markup text file.
	KindText DocumentKind = "text"
	// KindUnknown is anything else.
	KindUnknown DocumentKind = "unknown"
)

// IsValid returns true if the kind is a known value.
func (k DocumentKind) IsValid() bool {
	switch k {
	case KindPDF, KindImage, KindText, KindUnknown:
		return true
	}
	return false
}

// DocumentKindFromString parses a document kind (case-insensitive).
// Returns KindUnknown for unknown values.
func DocumentKindFromString(s string) DocumentKind {
	kind := DocumentKind(strings.ToLower(s))
	if kind.IsValid() {
		return kind
	}
	return KindUnknown
}
