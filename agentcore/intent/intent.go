// Package intent holds the fixed keyword and extension heuristics that turn
// raw request text into a Query and an optional DocumentReference.
//
// Everything here is pure and table-driven so the heuristics can be swapped
// for a model-based classifier without touching the router or the stages.
package intent

import (
	"strings"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

// =============================================================================
// Fixed Tables
// =============================================================================

var extractionKeywords = []string{"ocr", "scan", "extract", "read"}

var retrievalKeywords = []string{"search", "find", "similar", "related", "question"}

// kindByExtension classifies a matched token by file extension.
var kindByExtension = map[string]state.DocumentKind{
	".pdf":  state.KindPDF,
	".jpg":  state.KindImage,
	".jpeg": state.KindImage,
	".png":  state.KindImage,
	".gif":  state.KindImage,
	".bmp":  state.KindImage,
	".tif":  state.KindImage,
	".tiff": state.KindImage,
	".txt":  state.KindText,
	".md":   state.KindText,
	".rtf":  state.KindText,
	".csv":  state.KindText,
	".html": state.KindText,
	".xml":  state.KindText,
	".json": state.KindText,
}

// documentExtensions are the extensions that make a bare token (no path
// separator) count as a document reference.
var documentExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff",
}

// Tokens often arrive with trailing sentence punctuation attached.
const trailingPunctuation = ".,;:)?!'\""

// =============================================================================
// Parsing
// =============================================================================

// Parse derives the query intent and document reference from raw input text.
//
// Tokenize on whitespace; the first token starting with http:// or https://
// is a remote reference; otherwise the first token containing a path
// separator or ending in a known document extension is a local reference.
// The matched token is stripped from the text to form the query.
//
// Parse never fails: absence of a document reference is a valid outcome.
func Parse(text string) (state.Query, *state.DocumentReference) {
	tokens := strings.Fields(text)

	ref, matched := findDocumentReference(tokens)
	queryText := stripToken(tokens, matched)

	q := state.Query{
		Text:            queryText,
		NeedsExtraction: needsExtraction(queryText, ref),
		NeedsRetrieval:  needsRetrieval(queryText),
	}
	return q, ref
}

// findDocumentReference returns the parsed reference and the original token
// it was built from, or (nil, "") when no token qualifies.
func findDocumentReference(tokens []string) (*state.DocumentReference, string) {
	for _, token := range tokens {
		if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
			trimmed := strings.TrimRight(token, trailingPunctuation)
			return &state.DocumentReference{
				RemoteURL: trimmed,
				Kind:      classifyKind(trimmed),
			}, token
		}
	}

	for _, token := range tokens {
		trimmed := strings.TrimRight(token, trailingPunctuation)
		if trimmed == "" {
			continue
		}
		if strings.ContainsAny(trimmed, `/\`) || hasDocumentExtension(trimmed) {
			return &state.DocumentReference{
				LocalPath: trimmed,
				Kind:      classifyKind(trimmed),
			}, token
		}
	}

	return nil, ""
}

// stripToken removes the matched token and rejoins the rest with single spaces.
func stripToken(tokens []string, matched string) string {
	if matched == "" {
		return strings.Join(tokens, " ")
	}
	rest := make([]string, 0, len(tokens))
	stripped := false
	for _, token := range tokens {
		if !stripped && token == matched {
			stripped = true
			continue
		}
		rest = append(rest, token)
	}
	return strings.Join(rest, " ")
}

func classifyKind(token string) state.DocumentKind {
	lower := strings.ToLower(token)
	for ext, kind := range kindByExtension {
		if strings.HasSuffix(lower, ext) {
			return kind
		}
	}
	return state.KindUnknown
}

func hasDocumentExtension(token string) bool {
	lower := strings.ToLower(token)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func needsExtraction(queryText string, ref *state.DocumentReference) bool {
	if ref != nil {
		return true
	}
	lower := strings.ToLower(queryText)
	for _, kw := range extractionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func needsRetrieval(queryText string) bool {
	lower := strings.ToLower(queryText)
	if strings.Contains(lower, "?") {
		return true
	}
	for _, kw := range retrievalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
