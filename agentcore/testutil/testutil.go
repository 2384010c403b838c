// Package testutil provides shared test utilities and mocks.
//
// All mocks in this package are designed for testing the pipeline and the
// orchestrator in isolation without external services.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/stages"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

// =============================================================================
// MOCK OCR CLIENT
// =============================================================================

// MockOCRClient implements stages.OCRClient for testing.
type MockOCRClient struct {
	// Result is returned on success. Nil uses a default single-page result.
	Result *state.ExtractionResult

	// Error causes Extract to return this error.
	Error error

	// Delay simulates OCR latency.
	Delay time.Duration

	// CallCount tracks the number of Extract calls.
	CallCount int

	// Calls records the references passed for assertion.
	Calls []state.DocumentReference

	mu sync.Mutex
}

// NewMockOCRClient creates a MockOCRClient with sensible defaults.
func NewMockOCRClient() *MockOCRClient {
	return &MockOCRClient{}
}

// Extract implements stages.OCRClient.
func (m *MockOCRClient) Extract(ctx context.Context, ref *state.DocumentReference) (*state.ExtractionResult, error) {
	m.mu.Lock()
	m.CallCount++
	if ref != nil {
		m.Calls = append(m.Calls, *ref)
	}
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.Error != nil {
		return nil, m.Error
	}

	if m.Result != nil {
		result := *m.Result
		return &result, nil
	}

	return &state.ExtractionResult{
		RawText:    "mock extracted text",
		Markdown:   "# mock extracted text",
		DocumentID: "doc_mock",
		Pages:      1,
	}, nil
}

// WithResult configures the extraction result.
func (m *MockOCRClient) WithResult(result *state.ExtractionResult) *MockOCRClient {
	m.Result = result
	return m
}

// WithError configures the mock to return an error.
func (m *MockOCRClient) WithError(err error) *MockOCRClient {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockOCRClient) WithDelay(d time.Duration) *MockOCRClient {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockOCRClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// =============================================================================
// MOCK GENERATOR
// =============================================================================

// MockGenerator implements stages.Generator for testing.
type MockGenerator struct {
	// Response is returned on success.
	Response string

	// Error causes Generate to return this error.
	Error error

	// Delay simulates generation latency.
	Delay time.Duration

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []GenerateCall

	mu sync.Mutex
}

// GenerateCall records a single generation call for assertion.
type GenerateCall struct {
	SystemPrompt string
	Messages     []stages.Message
}

// NewMockGenerator creates a MockGenerator with a default response.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Response: "mock generated response"}
}

// Generate implements stages.Generator.
func (m *MockGenerator) Generate(ctx context.Context, systemPrompt string, messages []stages.Message) (string, error) {
	m.mu.Lock()
	m.CallCount++
	recorded := make([]stages.Message, len(messages))
	copy(recorded, messages)
	m.Calls = append(m.Calls, GenerateCall{SystemPrompt: systemPrompt, Messages: recorded})
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	return m.Response, nil
}

// WithResponse configures the generated text.
func (m *MockGenerator) WithResponse(text string) *MockGenerator {
	m.Response = text
	return m
}

// WithError configures the mock to return an error.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockGenerator) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// =============================================================================
// MOCK RETRIEVER
// =============================================================================

// MockRetriever implements stages.Retriever for testing.
type MockRetriever struct {
	// AnswerText is returned on success.
	AnswerText string

	// Error causes Answer to return this error.
	Error error

	// Delay simulates retrieval latency.
	Delay time.Duration

	// CallCount tracks the number of Answer calls.
	CallCount int

	// Calls records the questions asked for assertion.
	Calls []string

	mu sync.Mutex
}

// NewMockRetriever creates a MockRetriever with a default answer.
func NewMockRetriever() *MockRetriever {
	return &MockRetriever{AnswerText: "mock retrieved answer"}
}

// Answer implements stages.Retriever.
func (m *MockRetriever) Answer(ctx context.Context, source *state.DocumentReference, question string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, question)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	return m.AnswerText, nil
}

// WithAnswer configures the retrieved answer.
func (m *MockRetriever) WithAnswer(answer string) *MockRetriever {
	m.AnswerText = answer
	return m
}

// WithError configures the mock to return an error.
func (m *MockRetriever) WithError(err error) *MockRetriever {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockRetriever) WithDelay(d time.Duration) *MockRetriever {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockRetriever) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements stages.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) stages.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.Logs {
		if log.Level == level && log.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// ASSERTION HELPERS
// =============================================================================

// AssertStatusErrorCoupling checks the status/error invariant on a state.
func AssertStatusErrorCoupling(s *state.State) error {
	failed := s.Status == state.StatusFailed
	hasError := s.Error != ""
	if failed != hasError {
		return fmt.Errorf("status=%s but error=%q violates the coupling invariant", s.Status, s.Error)
	}
	return nil
}

// StageNames projects the audit trail onto its stage names.
func StageNames(s *state.State) []state.StageName {
	names := make([]state.StageName, 0, len(s.StageLog))
	for _, inv := range s.StageLog {
		names = append(names, inv.StageName)
	}
	return names
}
