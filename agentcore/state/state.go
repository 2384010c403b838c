package state

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Nested Types
// =============================================================================

// Query is the derived intent of a request. Created by intake, read-only after.
type Query struct {
	Text            string `json:"text"`
	NeedsExtraction bool   `json:"needs_extraction"`
	NeedsRetrieval  bool   `json:"needs_retrieval"`
}

// DocumentReference identifies the artifact to extract text from.
// Exactly one of LocalPath/RemoteURL is set by intake.
type DocumentReference struct {
	LocalPath string       `json:"local_path,omitempty"`
	RemoteURL string       `json:"remote_url,omitempty"`
	Kind      DocumentKind `json:"kind"`
}

// Valid returns true if the reference points at something.
func (r *DocumentReference) Valid() bool {
	if r == nil {
		return false
	}
	return r.LocalPath != "" || r.RemoteURL != ""
}

// Source returns whichever locator is set, path taking precedence.
func (r *DocumentReference) Source() string {
	if r == nil {
		return ""
	}
	if r.LocalPath != "" {
		return r.LocalPath
	}
	return r.RemoteURL
}

// ExtractionResult holds the OCR collaborator's output. Written at most once.
type ExtractionResult struct {
	RawText    string `json:"raw_text"`
	Markdown   string `json:"markdown"`
	DocumentID string `json:"document_id"`
	Succeeded  bool   `json:"succeeded"`
	Pages      int    `json:"pages"`
	HasImages  bool   `json:"has_images"`
}

// RetrievalMatch is one ranked neighbor from the retrieval collaborator.
type RetrievalMatch struct {
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RetrievalResult holds the retrieval collaborator's output.
// Matches stays empty in the minimal contract; the answer carries the result.
type RetrievalResult struct {
	Query   string           `json:"query"`
	Answer  string           `json:"answer,omitempty"`
	Matches []RetrievalMatch `json:"matches,omitempty"`
}

// StageInvocation is one entry of the append-only stage audit trail.
type StageInvocation struct {
	StageName     StageName  `json:"stage_name"`
	InputSummary  string     `json:"input_summary"`
	OutputSummary string     `json:"output_summary"`
	Succeeded     bool       `json:"succeeded"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMS    int        `json:"duration_ms"`
}

// =============================================================================
// State
// =============================================================================

// State is the per-request snapshot threaded through the pipeline.
//
// Invariants:
//   - Error is non-empty iff Status == StatusFailed
//   - Extraction and Retrieval are written at most once per request
//   - StageLog length equals the number of stage invocations in the run
type State struct {
	// Identification
	RequestID string `json:"request_id"`

	// Original input, set once, never mutated.
	InputText  string    `json:"input_text"`
	ReceivedAt time.Time `json:"received_at"`

	// Derived by intake
	Query       *Query             `json:"query,omitempty"`
	DocumentRef *DocumentReference `json:"document_ref,omitempty"`

	// Stage outputs
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Retrieval  *RetrievalResult  `json:"retrieval,omitempty"`

	// Audit Trail
	StageLog []StageInvocation `json:"stage_log"`
	Trace    []string          `json:"trace"`

	// Pipeline State
	CurrentStage StageName `json:"current_stage"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Response     string    `json:"response"`
}

// New creates an idle State for the given raw input.
func New(inputText string) *State {
	return &State{
		RequestID:    "req_" + uuid.New().String()[:16],
		InputText:    inputText,
		ReceivedAt:   time.Now().UTC(),
		StageLog:     []StageInvocation{},
		Trace:        []string{},
		CurrentStage: StageIntake,
		Status:       StatusIdle,
	}
}

// Fail marks the state failed with the given message.
// The message is stored raw; sanitization happens at the user-facing boundary.
func (s *State) Fail(msg string) {
	s.Status = StatusFailed
	if msg == "" {
		msg = "unknown error"
	}
	s.Error = msg
}

// AppendTrace appends one narration line to the decision trace.
func (s *State) AppendTrace(msg string) {
	s.Trace = append(s.Trace, msg)
}

// RecordStage appends one invocation to the stage audit trail.
func (s *State) RecordStage(inv StageInvocation) {
	s.StageLog = append(s.StageLog, inv)
}

// CheckInvariants verifies the status/error coupling and write-once fields.
// Returns the name of the violated invariant, or empty if consistent.
func (s *State) CheckInvariants() string {
	if (s.Status == StatusFailed) != (s.Error != "") {
		return "status_error_coupling"
	}
	if !s.Status.IsValid() {
		return "unknown_status"
	}
	if s.CurrentStage != "" && !s.CurrentStage.IsValid() {
		return "unknown_stage"
	}
	return ""
}

// TotalProcessingTimeMS sums stage durations from the audit trail.
func (s *State) TotalProcessingTimeMS() int {
	total := 0
	for _, inv := range s.StageLog {
		total += inv.DurationMS
	}
	return total
}

// =============================================================================
// Clone - Deep Copy for Immutable-Per-Step Stages
// =============================================================================

// Clone creates a deep copy of the state. Every stage operates on a clone so
// intermediate states stay independently inspectable and replayable.
func (s *State) Clone() *State {
	clone := &State{
		RequestID:    s.RequestID,
		InputText:    s.InputText,
		ReceivedAt:   s.ReceivedAt,
		CurrentStage: s.CurrentStage,
		Status:       s.Status,
		Error:        s.Error,
		Response:     s.Response,
	}

	if s.Query != nil {
		q := *s.Query
		clone.Query = &q
	}
	if s.DocumentRef != nil {
		ref := *s.DocumentRef
		clone.DocumentRef = &ref
	}
	if s.Extraction != nil {
		ext := *s.Extraction
		clone.Extraction = &ext
	}
	if s.Retrieval != nil {
		ret := *s.Retrieval
		ret.Matches = copyMatches(s.Retrieval.Matches)
		clone.Retrieval = &ret
	}

	clone.StageLog = copyStageLog(s.StageLog)
	clone.Trace = copyStringSlice(s.Trace)

	return clone
}

func copyStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	result := make([]string, len(s))
	copy(result, s)
	return result
}

func copyMatches(m []RetrievalMatch) []RetrievalMatch {
	if m == nil {
		return nil
	}
	result := make([]RetrievalMatch, len(m))
	copy(result, m)
	return result
}

func copyStageLog(log []StageInvocation) []StageInvocation {
	if log == nil {
		return nil
	}
	result := make([]StageInvocation, len(log))
	for i, inv := range log {
		result[i] = inv
		if inv.CompletedAt != nil {
			t := *inv.CompletedAt
			result[i].CompletedAt = &t
		}
	}
	return result
}
