// Package runtime provides the Orchestrator - the sequential stage loop.
package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/config"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/faults"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/observability"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/router"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/stages"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

var tracer = otel.Tracer("mistral-ocr-agent/runtime")

// Orchestrator drives one request through the stage pipeline.
//
// The loop is strictly sequential: each stage completes, including its
// blocking collaborator call, before the router picks the next stage.
// Independent requests may run concurrently; each State is exclusively
// owned by the loop processing it, so no locking is involved.
type Orchestrator struct {
	pipeline *stages.Pipeline
	cfg      *config.Config
	logger   stages.Logger
}

// NewOrchestrator creates an Orchestrator around the given pipeline.
func NewOrchestrator(pipeline *stages.Pipeline, logger stages.Logger, cfg *config.Config) (*Orchestrator, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("orchestrator requires a pipeline")
	}
	if logger == nil {
		return nil, fmt.Errorf("orchestrator requires a logger")
	}
	if cfg == nil {
		cfg = config.Get()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logger.Bind("component", "orchestrator"),
	}, nil
}

// Run executes one request end to end and returns the final state.
//
// The returned error is non-nil only for caller cancellation; collaborator
// failures are captured in the state's Status and Error fields and routed
// through the error stage, so the loop itself never needs error handling.
func (o *Orchestrator) Run(ctx context.Context, inputText string) (*state.State, error) {
	s := state.New(inputText)

	ctx, span := tracer.Start(ctx, "orchestrator.run")
	span.SetAttributes(attribute.String("request.id", s.RequestID))
	defer span.End()

	startTime := time.Now()
	o.logger.Info("request_started", "request_id", s.RequestID, "input_chars", len(inputText))

	current := state.StageIntake
	visited := make(map[state.StageName]bool)
	traversals := 0

	for {
		// Cooperative cancellation is checked between stages only; a stage
		// in flight is allowed to finish.
		if ctx.Err() != nil {
			return o.finishCancelled(span, s, ctx.Err(), startTime)
		}

		traversals++
		if traversals > o.cfg.MaxTraversals {
			ierr := faults.NewInvariantError("traversal_bound",
				fmt.Sprintf("exceeded %d stage invocations", o.cfg.MaxTraversals))
			return o.finishInvariant(ctx, span, s, ierr, startTime), nil
		}
		if visited[current] && !current.IsTerminal() {
			ierr := faults.NewInvariantError("single_traversal",
				fmt.Sprintf("stage %q entered twice in one run", current))
			return o.finishInvariant(ctx, span, s, ierr, startTime), nil
		}
		visited[current] = true

		next := o.pipeline.Run(ctx, current, s)

		// A cancellation that arrived while the stage ran discards the
		// stage's result rather than advancing the loop.
		if ctx.Err() != nil {
			return o.finishCancelled(span, s, ctx.Err(), startTime)
		}
		s = next

		// A terminal stage ends the loop unless it failed mid-flight; a
		// failed respond still owes the user an error response, so the
		// router gets one more decision (rule 1 sends it to the error
		// stage). The error stage itself always ends the run.
		if current.IsTerminal() && (current == state.StageError || s.Status != state.StatusFailed) {
			break
		}
		current = router.Decide(s)
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	span.SetAttributes(
		attribute.String("terminal.stage", string(s.CurrentStage)),
		attribute.String("request.status", string(s.Status)),
	)
	span.SetStatus(codes.Ok, string(s.Status))
	observability.RecordRequest(string(s.CurrentStage), string(s.Status), durationMS)

	o.logger.Info("request_completed",
		"request_id", s.RequestID,
		"terminal_stage", string(s.CurrentStage),
		"status", string(s.Status),
		"stage_count", len(s.StageLog),
		"duration_ms", durationMS,
	)

	return s, nil
}

// finishCancelled returns the last advanced state marked failed.
func (o *Orchestrator) finishCancelled(span trace.Span, s *state.State, cause error, startTime time.Time) (*state.State, error) {
	durationMS := int(time.Since(startTime).Milliseconds())

	final := s.Clone()
	final.Fail("request cancelled: " + cause.Error())
	final.AppendTrace("orchestrator: caller cancelled the request")

	span.RecordError(cause)
	span.SetStatus(codes.Error, "cancelled")
	observability.RecordRequest(string(final.CurrentStage), "cancelled", durationMS)

	o.logger.Warn("request_cancelled",
		"request_id", final.RequestID,
		"last_stage", string(final.CurrentStage),
		"duration_ms", durationMS,
	)

	return final, cause
}

// finishInvariant routes a programming-defect state through the error stage.
// Invariant violations are logged distinctly from user-facing failures.
func (o *Orchestrator) finishInvariant(ctx context.Context, span trace.Span, s *state.State, ierr *faults.InvariantError, startTime time.Time) *state.State {
	o.logger.Error("invariant_violation",
		"request_id", s.RequestID,
		"check", ierr.Check,
		"detail", ierr.Detail,
	)
	span.RecordError(ierr)
	span.SetStatus(codes.Error, ierr.Error())

	failed := s.Clone()
	failed.Fail(ierr.Error())
	final := o.pipeline.Run(ctx, state.StageError, failed)

	durationMS := int(time.Since(startTime).Milliseconds())
	observability.RecordRequest(string(state.StageError), string(final.Status), durationMS)

	return final
}

// Result is the caller-facing view of a finished run.
type Result struct {
	Response string                  `json:"response"`
	Status   state.Status            `json:"status"`
	Error    string                  `json:"error,omitempty"`
	StageLog []state.StageInvocation `json:"stage_log"`
}

// ResultOf projects a final state onto the caller-facing surface.
func ResultOf(s *state.State) Result {
	return Result{
		Response: s.Response,
		Status:   s.Status,
		Error:    s.Error,
		StageLog: s.StageLog,
	}
}
