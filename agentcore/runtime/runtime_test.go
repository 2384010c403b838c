package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/config"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/runtime"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/stages"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testOrchestrator struct {
	orch      *runtime.Orchestrator
	ocr       *testutil.MockOCRClient
	generator *testutil.MockGenerator
	retriever *testutil.MockRetriever
	logger    *testutil.MockLogger
}

func createTestOrchestrator(t *testing.T, cfg *config.Config) *testOrchestrator {
	t.Helper()

	to := &testOrchestrator{
		ocr:       testutil.NewMockOCRClient(),
		generator: testutil.NewMockGenerator(),
		retriever: testutil.NewMockRetriever(),
		logger:    testutil.NewMockLogger(),
	}

	pipeline, err := stages.NewPipeline(to.ocr, to.generator, to.retriever, to.logger, cfg)
	require.NoError(t, err)

	orch, err := runtime.NewOrchestrator(pipeline, to.logger, cfg)
	require.NoError(t, err)
	to.orch = orch
	return to
}

// =============================================================================
// CONSTRUCTOR TESTS
// =============================================================================

func TestNewOrchestratorRequiresPipeline(t *testing.T) {
	_, err := runtime.NewOrchestrator(nil, testutil.NewMockLogger(), nil)
	assert.Error(t, err)
}

func TestNewOrchestratorRequiresLogger(t *testing.T) {
	pipeline, err := stages.NewPipeline(
		testutil.NewMockOCRClient(), testutil.NewMockGenerator(),
		testutil.NewMockRetriever(), testutil.NewMockLogger(), nil)
	require.NoError(t, err)

	_, err = runtime.NewOrchestrator(pipeline, nil, nil)
	assert.Error(t, err)
}

// =============================================================================
// END-TO-END PATH TESTS
// =============================================================================

func TestExtractionPath(t *testing.T) {
	// Local document, no retrieval intent: intake, extract, respond.
	to := createTestOrchestrator(t, nil)

	final, err := to.orch.Run(context.Background(), "Extract text from /tmp/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t, "mock generated response", final.Response)
	assert.Empty(t, final.Error)
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageExtract, state.StageRespond},
		testutil.StageNames(final))

	assert.Equal(t, 1, to.ocr.GetCallCount())
	assert.Equal(t, 0, to.retriever.GetCallCount())
	assert.Equal(t, 1, to.generator.GetCallCount())
}

func TestExtractionAndRetrievalPath(t *testing.T) {
	// Remote image plus a question: all four working stages, each once.
	to := createTestOrchestrator(t, nil)
	to.retriever.WithAnswer("It says hello.")

	final, err := to.orch.Run(context.Background(), "What does this say? https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageExtract, state.StageRetrieve, state.StageRespond},
		testutil.StageNames(final))

	assert.Equal(t, 1, to.ocr.GetCallCount())
	assert.Equal(t, 1, to.retriever.GetCallCount())
	assert.Equal(t, 1, to.generator.GetCallCount())

	require.NotNil(t, final.Retrieval)
	assert.Equal(t, "It says hello.", final.Retrieval.Answer)
}

func TestNoDocumentTerminatesAtRequestMoreInfo(t *testing.T) {
	// Extraction intent without a usable reference never touches the OCR
	// collaborator.
	to := createTestOrchestrator(t, nil)

	final, err := to.orch.Run(context.Background(), "Please OCR my document")
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Contains(t, final.Response, "file path")
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageRequestMoreInfo},
		testutil.StageNames(final))

	assert.Equal(t, 0, to.ocr.GetCallCount())
	assert.Equal(t, 0, to.generator.GetCallCount())
	assert.Equal(t, 0, to.retriever.GetCallCount())
}

func TestPlainTextPath(t *testing.T) {
	to := createTestOrchestrator(t, nil)

	final, err := to.orch.Run(context.Background(), "Tell me a joke")
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageRespond},
		testutil.StageNames(final))
	assert.Equal(t, 0, to.ocr.GetCallCount())
}

func TestFailingOCRRoutesToError(t *testing.T) {
	// A failing OCR call produces exactly one failed extract entry, and the
	// downstream collaborators are never invoked.
	to := createTestOrchestrator(t, nil)
	to.ocr.WithError(errors.New("connection refused"))

	final, err := to.orch.Run(context.Background(), "Extract text from /tmp/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "ocr collaborator failed")
	assert.Contains(t, final.Response, "Could not reach the service")
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageExtract, state.StageError},
		testutil.StageNames(final))

	extractEntries := 0
	for _, inv := range final.StageLog {
		if inv.StageName == state.StageExtract {
			extractEntries++
			assert.False(t, inv.Succeeded)
		}
	}
	assert.Equal(t, 1, extractEntries)

	assert.Equal(t, 1, to.ocr.GetCallCount())
	assert.Equal(t, 0, to.retriever.GetCallCount())
	assert.Equal(t, 0, to.generator.GetCallCount())

	require.NoError(t, testutil.AssertStatusErrorCoupling(final))
}

func TestFailingRetrievalKeepsExtraction(t *testing.T) {
	to := createTestOrchestrator(t, nil)
	to.retriever.WithError(errors.New("status 429"))

	final, err := to.orch.Run(context.Background(), "What does this say? https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "retrieval collaborator failed")
	require.NotNil(t, final.Extraction)
	assert.True(t, final.Extraction.Succeeded)
	assert.Nil(t, final.Retrieval)
	assert.Equal(t, 0, to.generator.GetCallCount())
}

func TestFailingGenerationRoutesToError(t *testing.T) {
	to := createTestOrchestrator(t, nil)
	to.generator.WithError(errors.New("status 500"))

	final, err := to.orch.Run(context.Background(), "Tell me a joke")
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Response, "internal error")
	assert.Equal(t,
		[]state.StageName{state.StageIntake, state.StageRespond, state.StageError},
		testutil.StageNames(final))
}

// =============================================================================
// SINGLE-TRAVERSAL AND BOUND TESTS
// =============================================================================

func TestNoNonTerminalStageRunsTwice(t *testing.T) {
	to := createTestOrchestrator(t, nil)

	final, err := to.orch.Run(context.Background(), "What does this say? https://example.com/a.png")
	require.NoError(t, err)

	seen := make(map[state.StageName]int)
	for _, name := range testutil.StageNames(final) {
		seen[name]++
	}
	for name, count := range seen {
		if !name.IsTerminal() {
			assert.Equal(t, 1, count, "stage %s", name)
		}
	}
}

func TestTraversalBound(t *testing.T) {
	// A bound of one stage invocation cannot reach a terminal stage; the run
	// fails through the error stage instead of looping.
	cfg := config.DefaultConfig()
	cfg.MaxTraversals = 1
	to := createTestOrchestrator(t, cfg)

	final, err := to.orch.Run(context.Background(), "Extract text from /tmp/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "invariant violated (traversal_bound)")
	assert.True(t, to.logger.HasLog("error", "invariant_violation"))
	require.NoError(t, testutil.AssertStatusErrorCoupling(final))
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestCancellationBeforeFirstStage(t *testing.T) {
	to := createTestOrchestrator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := to.orch.Run(ctx, "Extract text from /tmp/doc.pdf")
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "request cancelled")
	assert.Equal(t, 0, to.ocr.GetCallCount())
	assert.Empty(t, final.StageLog)
}

func TestCancellationDuringStageDiscardsResult(t *testing.T) {
	// Cancellation lands while extract is in flight. The stage finishes, but
	// its result is discarded: the final state carries only the stages that
	// completed before the cancelled one.
	to := createTestOrchestrator(t, nil)
	to.ocr.WithDelay(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	final, err := to.orch.Run(ctx, "Extract text from /tmp/doc.pdf")
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, state.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "request cancelled")
	assert.Nil(t, final.Extraction)
	assert.Equal(t, []state.StageName{state.StageIntake}, testutil.StageNames(final))
	assert.True(t, to.logger.HasLog("warn", "request_cancelled"))

	// Retrieval and generation were never reached.
	assert.Equal(t, 0, to.retriever.GetCallCount())
	assert.Equal(t, 0, to.generator.GetCallCount())
}

// =============================================================================
// RESULT PROJECTION TESTS
// =============================================================================

func TestResultOf(t *testing.T) {
	to := createTestOrchestrator(t, nil)

	final, err := to.orch.Run(context.Background(), "Tell me a joke")
	require.NoError(t, err)

	result := runtime.ResultOf(final)
	assert.Equal(t, final.Response, result.Response)
	assert.Equal(t, final.Status, result.Status)
	assert.Equal(t, final.Error, result.Error)
	assert.Len(t, result.StageLog, len(final.StageLog))
}

func TestCompletedRunLogsSummary(t *testing.T) {
	to := createTestOrchestrator(t, nil)

	_, err := to.orch.Run(context.Background(), "Tell me a joke")
	require.NoError(t, err)

	assert.True(t, to.logger.HasLog("info", "request_started"))
	assert.True(t, to.logger.HasLog("info", "request_completed"))
}
