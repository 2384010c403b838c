package state

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNewState(t *testing.T) {
	s := New("Extract text from /tmp/doc.pdf")

	assert.True(t, strings.HasPrefix(s.RequestID, "req_"))
	assert.Equal(t, "Extract text from /tmp/doc.pdf", s.InputText)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, StageIntake, s.CurrentStage)
	assert.Empty(t, s.Error)
	assert.Empty(t, s.StageLog)
	assert.Empty(t, s.Trace)
	assert.False(t, s.ReceivedAt.IsZero())
}

func TestNewStateUniqueIDs(t *testing.T) {
	a := New("one")
	b := New("two")
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

// =============================================================================
// FAILURE AND INVARIANT TESTS
// =============================================================================

func TestFailSetsStatusAndError(t *testing.T) {
	s := New("input")
	s.Fail("ocr collaborator failed: boom")

	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "ocr collaborator failed: boom", s.Error)
	assert.Empty(t, s.CheckInvariants())
}

func TestFailWithEmptyMessage(t *testing.T) {
	// An empty message would break the status/error coupling; Fail fills it.
	s := New("input")
	s.Fail("")

	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "unknown error", s.Error)
	assert.Empty(t, s.CheckInvariants())
}

func TestCheckInvariantsCoupling(t *testing.T) {
	// Failed without error violates the coupling.
	s := New("input")
	s.Status = StatusFailed
	assert.Equal(t, "status_error_coupling", s.CheckInvariants())

	// Error without failed violates it the other way.
	s = New("input")
	s.Error = "something broke"
	assert.Equal(t, "status_error_coupling", s.CheckInvariants())
}

func TestCheckInvariantsUnknownValues(t *testing.T) {
	s := New("input")
	s.Status = Status("exploded")
	assert.Equal(t, "unknown_status", s.CheckInvariants())

	s = New("input")
	s.CurrentStage = StageName("teleport")
	assert.Equal(t, "unknown_stage", s.CheckInvariants())
}

func TestCheckInvariantsCleanState(t *testing.T) {
	s := New("input")
	assert.Empty(t, s.CheckInvariants())

	s.Status = StatusCompleted
	s.Response = "done"
	assert.Empty(t, s.CheckInvariants())
}

// =============================================================================
// AUDIT TRAIL TESTS
// =============================================================================

func TestRecordStageAppends(t *testing.T) {
	s := New("input")
	s.RecordStage(StageInvocation{StageName: StageIntake, Succeeded: true})
	s.RecordStage(StageInvocation{StageName: StageExtract, Succeeded: false, Error: "boom"})

	require.Len(t, s.StageLog, 2)
	assert.Equal(t, StageIntake, s.StageLog[0].StageName)
	assert.Equal(t, StageExtract, s.StageLog[1].StageName)
	assert.False(t, s.StageLog[1].Succeeded)
}

func TestTotalProcessingTime(t *testing.T) {
	s := New("input")
	s.RecordStage(StageInvocation{StageName: StageIntake, DurationMS: 5})
	s.RecordStage(StageInvocation{StageName: StageExtract, DurationMS: 120})
	s.RecordStage(StageInvocation{StageName: StageRespond, DurationMS: 300})

	assert.Equal(t, 425, s.TotalProcessingTimeMS())
}

func TestAppendTrace(t *testing.T) {
	s := New("input")
	s.AppendTrace("intake: no document reference in request")
	s.AppendTrace("respond: generated 42 chars")

	require.Len(t, s.Trace, 2)
	assert.Contains(t, s.Trace[0], "intake")
}

// =============================================================================
// CLONE TESTS
// =============================================================================

func createPopulatedState() *State {
	completedAt := time.Now().UTC()
	s := New("What does this say? https://example.com/a.png")
	s.Status = StatusRunning
	s.Query = &Query{Text: "What does this say?", NeedsExtraction: true, NeedsRetrieval: true}
	s.DocumentRef = &DocumentReference{RemoteURL: "https://example.com/a.png", Kind: KindImage}
	s.Extraction = &ExtractionResult{RawText: "hello", Markdown: "# hello", DocumentID: "doc_1", Succeeded: true, Pages: 1}
	s.Retrieval = &RetrievalResult{
		Query:   "What does this say?",
		Answer:  "It says hello.",
		Matches: []RetrievalMatch{{Content: "hello", RelevanceScore: 0.9}},
	}
	s.StageLog = []StageInvocation{
		{StageName: StageIntake, Succeeded: true, CompletedAt: &completedAt},
	}
	s.Trace = []string{"intake: found image reference"}
	return s
}

func TestCloneIsDeepCopy(t *testing.T) {
	original := createPopulatedState()
	clone := original.Clone()

	assert.Equal(t, original.RequestID, clone.RequestID)
	assert.Equal(t, original.Query, clone.Query)
	assert.Equal(t, original.Extraction, clone.Extraction)
	assert.Equal(t, original.Retrieval, clone.Retrieval)
	assert.Equal(t, original.StageLog, clone.StageLog)

	// Mutating the clone must never leak into the original.
	clone.Query.Text = "changed"
	clone.DocumentRef.RemoteURL = "https://evil.example.com"
	clone.Extraction.RawText = "changed"
	clone.Retrieval.Matches[0].Content = "changed"
	clone.StageLog[0].Succeeded = false
	clone.Trace[0] = "changed"
	clone.AppendTrace("extra")

	assert.Equal(t, "What does this say?", original.Query.Text)
	assert.Equal(t, "https://example.com/a.png", original.DocumentRef.RemoteURL)
	assert.Equal(t, "hello", original.Extraction.RawText)
	assert.Equal(t, "hello", original.Retrieval.Matches[0].Content)
	assert.True(t, original.StageLog[0].Succeeded)
	assert.Equal(t, "intake: found image reference", original.Trace[0])
	assert.Len(t, original.Trace, 1)
}

func TestCloneCompletedAtIndependent(t *testing.T) {
	original := createPopulatedState()
	clone := original.Clone()

	require.NotNil(t, clone.StageLog[0].CompletedAt)
	assert.NotSame(t, original.StageLog[0].CompletedAt, clone.StageLog[0].CompletedAt)
	assert.True(t, original.StageLog[0].CompletedAt.Equal(*clone.StageLog[0].CompletedAt))
}

func TestCloneNilFields(t *testing.T) {
	s := New("bare input")
	clone := s.Clone()

	assert.Nil(t, clone.Query)
	assert.Nil(t, clone.DocumentRef)
	assert.Nil(t, clone.Extraction)
	assert.Nil(t, clone.Retrieval)
}

// =============================================================================
// DOCUMENT REFERENCE TESTS
// =============================================================================

func TestDocumentReferenceValid(t *testing.T) {
	var nilRef *DocumentReference
	assert.False(t, nilRef.Valid())
	assert.False(t, (&DocumentReference{}).Valid())
	assert.True(t, (&DocumentReference{LocalPath: "/tmp/a.pdf"}).Valid())
	assert.True(t, (&DocumentReference{RemoteURL: "https://example.com/a.png"}).Valid())
}

func TestDocumentReferenceSource(t *testing.T) {
	var nilRef *DocumentReference
	assert.Empty(t, nilRef.Source())

	// Path takes precedence when both are set.
	ref := &DocumentReference{LocalPath: "/tmp/a.pdf", RemoteURL: "https://example.com/a.pdf"}
	assert.Equal(t, "/tmp/a.pdf", ref.Source())

	ref = &DocumentReference{RemoteURL: "https://example.com/a.pdf"}
	assert.Equal(t, "https://example.com/a.pdf", ref.Source())
}
