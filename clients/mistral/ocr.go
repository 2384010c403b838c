// Package mistral provides the OCR collaborator client backed by the
// Mistral OCR HTTP API.
package mistral

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/faults"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/observability"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

const (
	defaultBaseURL = "https://api.mistral.ai"
	defaultModel   = "mistral-ocr-latest"

	defaultMaxDocumentBytes = 50 * 1024 * 1024
)

// mimeByExtension maps upload extensions to their data URI mime type.
var mimeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Options configures the OCR client.
type Options struct {
	APIKey  string
	BaseURL string // Defaults to the public API endpoint
	Model   string // Defaults to mistral-ocr-latest

	// MaxDocumentBytes is the size ceiling for local uploads.
	// Zero uses the 50 MB default.
	MaxDocumentBytes int64

	// CacheTTL keeps extraction results per reference; zero disables caching.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

// Client calls the Mistral OCR API and caches results per reference.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	maxBytes int64
	http     *http.Client
	cache    *gocache.Cache
}

// NewClient creates an OCR client. The API key is required.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("mistral: API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	var cache *gocache.Cache
	if opts.CacheTTL > 0 {
		cache = gocache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}

	return &Client{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		model:    opts.Model,
		maxBytes: opts.MaxDocumentBytes,
		http:     opts.HTTPClient,
		cache:    cache,
	}, nil
}

// =============================================================================
// Wire Types
// =============================================================================

type documentPayload struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrRequest struct {
	Model              string          `json:"model"`
	Document           documentPayload `json:"document"`
	IncludeImageBase64 bool            `json:"include_image_base64"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
	Images   []struct {
		ID string `json:"id"`
	} `json:"images"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

// =============================================================================
// Extraction
// =============================================================================

// Extract runs OCR over the referenced document.
//
// Local files are read, size-checked against the ceiling and uploaded as a
// base64 data URI; remote URLs are passed through. Results are cached per
// reference so re-extracting the same document is served locally.
func (c *Client) Extract(ctx context.Context, ref *state.DocumentReference) (*state.ExtractionResult, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("mistral: empty document reference")
	}

	if c.cache != nil {
		if cached, found := c.cache.Get(ref.Source()); found {
			observability.RecordOCRCacheEvent("hit")
			result := *cached.(*state.ExtractionResult)
			return &result, nil
		}
		observability.RecordOCRCacheEvent("miss")
	}

	doc, err := c.buildPayload(ref)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := c.call(ctx, doc)
	durationMS := int(time.Since(startTime).Milliseconds())

	if err != nil {
		observability.RecordCollaboratorCall("ocr", "error", durationMS)
		return nil, err
	}
	observability.RecordCollaboratorCall("ocr", "success", durationMS)

	result := buildResult(resp)

	if c.cache != nil {
		cached := *result
		c.cache.SetDefault(ref.Source(), &cached)
	}

	return result, nil
}

// buildPayload chooses the upload variant: local files become data URIs,
// remote URLs pass through. PDFs and text go as document_url, images as
// image_url.
func (c *Client) buildPayload(ref *state.DocumentReference) (documentPayload, error) {
	var locator string

	if ref.LocalPath != "" {
		info, err := os.Stat(ref.LocalPath)
		if err != nil {
			return documentPayload{}, fmt.Errorf("mistral: stat document: %w", err)
		}
		if info.Size() > c.maxBytes {
			return documentPayload{}, fmt.Errorf("%w: %s is %d bytes, ceiling is %d",
				faults.ErrDocumentTooLarge, ref.LocalPath, info.Size(), c.maxBytes)
		}

		data, err := os.ReadFile(ref.LocalPath)
		if err != nil {
			return documentPayload{}, fmt.Errorf("mistral: read document: %w", err)
		}

		ext := strings.ToLower(filepath.Ext(ref.LocalPath))
		mime, ok := mimeByExtension[ext]
		if !ok {
			mime = "application/octet-stream"
		}
		locator = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	} else {
		locator = ref.RemoteURL
	}

	if ref.Kind == state.KindImage {
		return documentPayload{Type: "image_url", ImageURL: locator}, nil
	}
	return documentPayload{Type: "document_url", DocumentURL: locator}, nil
}

func (c *Client) call(ctx context.Context, doc documentPayload) (*ocrResponse, error) {
	body, err := json.Marshal(ocrRequest{
		Model:              c.model,
		Document:           doc,
		IncludeImageBase64: false,
	})
	if err != nil {
		return nil, fmt.Errorf("mistral: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mistral: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral: connection failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("mistral: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mistral: status %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("mistral: decode response: %w", err)
	}
	return &parsed, nil
}

// buildResult flattens the per-page markdown into one extraction result.
func buildResult(resp *ocrResponse) *state.ExtractionResult {
	pages := make([]string, 0, len(resp.Pages))
	hasImages := false
	for _, page := range resp.Pages {
		pages = append(pages, page.Markdown)
		if len(page.Images) > 0 {
			hasImages = true
		}
	}
	joined := strings.Join(pages, "\n\n")

	return &state.ExtractionResult{
		RawText:    joined,
		Markdown:   joined,
		DocumentID: "doc_" + uuid.New().String()[:16],
		Pages:      len(resp.Pages),
		HasImages:  hasImages,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
