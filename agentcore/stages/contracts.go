// Package stages provides the pipeline stage functions and the collaborator
// contracts they call through.
package stages

import (
	"context"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

// Message is one turn of a chat conversation sent to the generation
// collaborator.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// OCRClient is the interface for the OCR collaborator.
//
// Extract must reject references exceeding the configured size ceiling with
// an error wrapping faults.ErrDocumentTooLarge.
type OCRClient interface {
	Extract(ctx context.Context, ref *state.DocumentReference) (*state.ExtractionResult, error)
}

// Generator is the interface for the chat generation collaborator.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// Retriever is the interface for the retrieval collaborator.
type Retriever interface {
	Answer(ctx context.Context, source *state.DocumentReference, question string) (string, error)
}

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}
