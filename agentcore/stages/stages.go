package stages

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/config"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/faults"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/intent"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/observability"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

var tracer = otel.Tracer("mistral-ocr-agent/stages")

// systemPrompt is the fixed instruction given to the generation collaborator.
const systemPrompt = "You are a helpful assistant specialized in document processing. " +
	"Answer the user's request using the provided document context when it is " +
	"available. Be concise and accurate; if the context does not contain the " +
	"answer, say so."

// moreInfoMessage is the fixed reply when extraction was requested but no
// usable document reference was found.
const moreInfoMessage = "I'd be happy to help you process a document. " +
	"Please include a file path (for example /path/to/document.pdf) or a " +
	"direct URL to a PDF or image in your request, and I'll extract the text " +
	"for you."

// errorPrefix opens every user-facing failure message.
const errorPrefix = "I apologize, but I ran into a problem while processing your request: "

// Pipeline holds the collaborators and executes individual stages.
//
// Every stage method takes a State and returns a new one derived from it;
// the input State is never mutated. Failures never escape a stage: they are
// captured into the returned state's Status and Error fields.
type Pipeline struct {
	ocr       OCRClient
	generator Generator
	retriever Retriever
	logger    Logger
	cfg       *config.Config
}

// NewPipeline creates a Pipeline with the given collaborators.
// All collaborators and the logger are required.
func NewPipeline(ocr OCRClient, generator Generator, retriever Retriever, logger Logger, cfg *config.Config) (*Pipeline, error) {
	if ocr == nil {
		return nil, fmt.Errorf("pipeline requires an OCR collaborator")
	}
	if generator == nil {
		return nil, fmt.Errorf("pipeline requires a generation collaborator")
	}
	if retriever == nil {
		return nil, fmt.Errorf("pipeline requires a retrieval collaborator")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline requires a logger")
	}
	if cfg == nil {
		cfg = config.Get()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		ocr:       ocr,
		generator: generator,
		retriever: retriever,
		logger:    logger.Bind("component", "pipeline"),
		cfg:       cfg,
	}, nil
}

// Run executes one named stage against the given state and returns the
// derived state. Unknown stage names are an invariant violation and produce
// a failed state rather than a panic.
func (p *Pipeline) Run(ctx context.Context, name state.StageName, s *state.State) *state.State {
	ctx, span := tracer.Start(ctx, "stage.run")
	span.SetAttributes(
		attribute.String("stage.name", string(name)),
		attribute.String("request.id", s.RequestID),
	)
	defer span.End()

	startTime := time.Now()

	next := s.Clone()
	next.CurrentStage = name

	inv := state.StageInvocation{
		StageName:    name,
		InputSummary: inputSummary(name, next),
		StartedAt:    startTime.UTC(),
	}

	switch name {
	case state.StageIntake:
		p.intake(next, &inv)
	case state.StageExtract:
		p.extract(ctx, next, &inv)
	case state.StageRetrieve:
		p.retrieve(ctx, next, &inv)
	case state.StageRespond:
		p.respond(ctx, next, &inv)
	case state.StageRequestMoreInfo:
		p.requestMoreInfo(next, &inv)
	case state.StageError:
		p.errorStage(next, &inv)
	default:
		ierr := faults.NewInvariantError("known_stage", fmt.Sprintf("unknown stage %q", name))
		p.logger.Error("stage_unknown", "stage", string(name), "request_id", next.RequestID)
		next.Fail(ierr.Error())
		inv.Error = ierr.Error()
	}

	completedAt := time.Now().UTC()
	inv.CompletedAt = &completedAt
	inv.DurationMS = int(time.Since(startTime).Milliseconds())
	inv.Succeeded = inv.Error == ""
	if inv.OutputSummary == "" {
		inv.OutputSummary = outputSummary(next)
	}
	next.RecordStage(inv)

	status := "success"
	if !inv.Succeeded {
		status = "error"
		span.RecordError(fmt.Errorf("%s", inv.Error))
		span.SetStatus(codes.Error, inv.Error)
		p.logger.Error(fmt.Sprintf("%s_error", name), "request_id", next.RequestID, "error", inv.Error, "duration_ms", inv.DurationMS)
	} else {
		span.SetStatus(codes.Ok, "success")
		p.logger.Info(fmt.Sprintf("%s_completed", name), "request_id", next.RequestID, "duration_ms", inv.DurationMS)
	}
	observability.RecordStageExecution(string(name), status, inv.DurationMS)

	return next
}

// =============================================================================
// Stage Implementations
// =============================================================================

// intake parses the raw input into a query and an optional document
// reference. It never fails; a missing reference is a valid outcome.
func (p *Pipeline) intake(s *state.State, inv *state.StageInvocation) {
	q, ref := intent.Parse(s.InputText)
	s.Query = &q
	s.DocumentRef = ref
	s.Status = state.StatusRunning

	if ref != nil {
		s.AppendTrace(fmt.Sprintf("intake: found %s reference %q", ref.Kind, ref.Source()))
	} else {
		s.AppendTrace("intake: no document reference in request")
	}
	s.AppendTrace(fmt.Sprintf("intake: needs_extraction=%t needs_retrieval=%t", q.NeedsExtraction, q.NeedsRetrieval))

	inv.OutputSummary = fmt.Sprintf("query=%q extraction=%t retrieval=%t", truncate(q.Text, 80), q.NeedsExtraction, q.NeedsRetrieval)
}

// extract runs exactly one OCR call against the document reference.
func (p *Pipeline) extract(ctx context.Context, s *state.State, inv *state.StageInvocation) {
	// Router guarantees a valid reference; re-check defensively.
	if !s.DocumentRef.Valid() {
		ierr := faults.NewInvariantError("extract_precondition", "extraction entered without a valid document reference")
		p.logger.Error("invariant_violation", "request_id", s.RequestID, "check", ierr.Check)
		s.Fail(ierr.Error())
		s.AppendTrace("extract: precondition violated, no document reference")
		inv.Error = ierr.Error()
		return
	}
	if s.Extraction != nil {
		ierr := faults.NewInvariantError("extract_once", "extraction entered twice in one run")
		p.logger.Error("invariant_violation", "request_id", s.RequestID, "check", ierr.Check)
		s.Fail(ierr.Error())
		inv.Error = ierr.Error()
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.OCRTimeout())
	defer cancel()

	result, err := p.ocr.Extract(callCtx, s.DocumentRef)
	if err != nil {
		cerr := faults.NewCollaboratorError("ocr", err)
		s.Fail(cerr.Error())
		s.AppendTrace(fmt.Sprintf("extract: OCR call failed: %v", err))
		inv.Error = cerr.Error()
		return
	}

	result.Succeeded = true
	s.Extraction = result
	s.AppendTrace(fmt.Sprintf("extract: %d pages, %d chars of text", result.Pages, len(result.RawText)))
	inv.OutputSummary = fmt.Sprintf("document_id=%s pages=%d", result.DocumentID, result.Pages)
}

// retrieve runs exactly one retrieval call. A failure here keeps the
// extraction result attached so the error stage can report partial progress.
func (p *Pipeline) retrieve(ctx context.Context, s *state.State, inv *state.StageInvocation) {
	if s.Extraction == nil || !s.Extraction.Succeeded {
		ierr := faults.NewInvariantError("retrieve_precondition", "retrieval entered without a successful extraction")
		p.logger.Error("invariant_violation", "request_id", s.RequestID, "check", ierr.Check)
		s.Fail(ierr.Error())
		inv.Error = ierr.Error()
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RetrievalTimeout())
	defer cancel()

	answer, err := p.retriever.Answer(callCtx, s.DocumentRef, s.Query.Text)
	if err != nil {
		cerr := faults.NewCollaboratorError("retrieval", err)
		s.Fail(cerr.Error())
		s.AppendTrace(fmt.Sprintf("retrieve: retrieval call failed: %v", err))
		inv.Error = cerr.Error()
		return
	}

	// Matches stay empty: the minimal contract carries a single synthesized
	// answer, not ranked neighbors.
	s.Retrieval = &state.RetrievalResult{
		Query:  s.Query.Text,
		Answer: answer,
	}
	s.AppendTrace(fmt.Sprintf("retrieve: answer of %d chars", len(answer)))
	inv.OutputSummary = fmt.Sprintf("answer_chars=%d", len(answer))
}

// respond generates the final reply from whatever the run accumulated.
func (p *Pipeline) respond(ctx context.Context, s *state.State, inv *state.StageInvocation) {
	messages := []Message{
		{Role: "user", Content: s.InputText},
	}
	if s.Extraction != nil && s.Extraction.Succeeded {
		messages = append(messages, Message{
			Role:    "assistant",
			Content: "Document context: " + truncate(s.Extraction.RawText, p.cfg.ContextTruncateLimit),
		})
	}
	if s.Retrieval != nil && s.Retrieval.Answer != "" {
		messages = append(messages, Message{
			Role:    "assistant",
			Content: "Retrieved answer: " + s.Retrieval.Answer,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout())
	defer cancel()

	text, err := p.generator.Generate(callCtx, systemPrompt, messages)
	if err != nil {
		cerr := faults.NewCollaboratorError("generation", err)
		s.Fail(cerr.Error())
		s.AppendTrace(fmt.Sprintf("respond: generation call failed: %v", err))
		inv.Error = cerr.Error()
		return
	}

	s.Response = text
	s.Status = state.StatusCompleted
	s.AppendTrace(fmt.Sprintf("respond: generated %d chars", len(text)))
	inv.OutputSummary = fmt.Sprintf("response_chars=%d", len(text))
}

// requestMoreInfo emits the fixed instructional message.
func (p *Pipeline) requestMoreInfo(s *state.State, inv *state.StageInvocation) {
	s.Response = moreInfoMessage
	s.Status = state.StatusCompleted
	s.AppendTrace("request-more-info: extraction requested without a usable document reference")
	inv.OutputSummary = "asked user for a document reference"
}

// errorStage formats the failure into a user-facing message.
// Raw collaborator errors are sanitized; stack traces never reach the user.
func (p *Pipeline) errorStage(s *state.State, inv *state.StageInvocation) {
	if s.Error == "" {
		// The router sent us here without a recorded error; keep the
		// status/error invariant intact.
		s.Error = "unknown error"
		p.logger.Warn("error_stage_without_error", "request_id", s.RequestID)
	}
	s.Response = errorPrefix + faults.Sanitize(s.Error)
	s.Status = state.StatusFailed
	s.AppendTrace("error: formatted failure for the user")
	inv.OutputSummary = "formatted error response"
}

// =============================================================================
// Helpers
// =============================================================================

func inputSummary(name state.StageName, s *state.State) string {
	switch name {
	case state.StageIntake:
		return truncate(s.InputText, 120)
	case state.StageExtract:
		return s.DocumentRef.Source()
	case state.StageRetrieve, state.StageRespond:
		if s.Query != nil {
			return truncate(s.Query.Text, 120)
		}
		return ""
	default:
		return truncate(s.Error, 120)
	}
}

func outputSummary(s *state.State) string {
	if s.Status == state.StatusFailed {
		return truncate(s.Error, 120)
	}
	return string(s.Status)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
