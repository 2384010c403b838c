// Package anthropic provides the chat generation collaborator client backed
// by the Anthropic messages HTTP API. The same client also serves the
// retrieval contract by synthesizing a single focused answer per question.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/observability"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/stages"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-sonnet-latest"
	defaultMaxTokens = 1024

	apiVersion = "2023-06-01"
)

// retrievalPrompt is the fixed instruction used when serving the retrieval
// contract.
const retrievalPrompt = "You answer questions about a single document. " +
	"Answer from the document's content only; if the document does not " +
	"contain the answer, say so briefly."

// Options configures the chat client.
type Options struct {
	APIKey    string
	BaseURL   string // Defaults to the public API endpoint
	Model     string
	MaxTokens int

	HTTPClient *http.Client
}

// Client calls the messages API.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// NewClient creates a chat client. The API key is required.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Client{
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		http:      opts.HTTPClient,
	}, nil
}

// =============================================================================
// Wire Types
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// =============================================================================
// Collaborator Contracts
// =============================================================================

// Generate implements stages.Generator.
func (c *Client) Generate(ctx context.Context, systemPrompt string, messages []stages.Message) (string, error) {
	startTime := time.Now()
	text, err := c.call(ctx, systemPrompt, messages)
	durationMS := int(time.Since(startTime).Milliseconds())

	if err != nil {
		observability.RecordCollaboratorCall("generation", "error", durationMS)
		return "", err
	}
	observability.RecordCollaboratorCall("generation", "success", durationMS)
	return text, nil
}

// Answer implements stages.Retriever with a single synthesized answer.
// No ranked matches are produced.
func (c *Client) Answer(ctx context.Context, source *state.DocumentReference, question string) (string, error) {
	content := question
	if source.Valid() {
		content = fmt.Sprintf("Document: %s\n\nQuestion: %s", source.Source(), question)
	}

	startTime := time.Now()
	text, err := c.call(ctx, retrievalPrompt, []stages.Message{{Role: "user", Content: content}})
	durationMS := int(time.Since(startTime).Milliseconds())

	if err != nil {
		observability.RecordCollaboratorCall("retrieval", "error", durationMS)
		return "", err
	}
	observability.RecordCollaboratorCall("retrieval", "success", durationMS)
	return text, nil
}

func (c *Client) call(ctx context.Context, systemPrompt string, messages []stages.Message) (string, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  wire,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: connection failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: response contained no text")
	}
	return sb.String(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
