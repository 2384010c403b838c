package state

import (
	"time"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/typeutil"
)

// =============================================================================
// Serialization
// =============================================================================

// ToStateDict converts the state to a plain map for inspection and replay.
func (s *State) ToStateDict() map[string]any {
	dict := map[string]any{
		"request_id":    s.RequestID,
		"input_text":    s.InputText,
		"received_at":   s.ReceivedAt.Format(time.RFC3339),
		"current_stage": string(s.CurrentStage),
		"status":        string(s.Status),
		"error":         s.Error,
		"response":      s.Response,
		"trace":         copyStringSlice(s.Trace),
	}

	if s.Query != nil {
		dict["query"] = map[string]any{
			"text":             s.Query.Text,
			"needs_extraction": s.Query.NeedsExtraction,
			"needs_retrieval":  s.Query.NeedsRetrieval,
		}
	}
	if s.DocumentRef != nil {
		dict["document_ref"] = map[string]any{
			"local_path": s.DocumentRef.LocalPath,
			"remote_url": s.DocumentRef.RemoteURL,
			"kind":       string(s.DocumentRef.Kind),
		}
	}
	if s.Extraction != nil {
		dict["extraction"] = map[string]any{
			"raw_text":    s.Extraction.RawText,
			"markdown":    s.Extraction.Markdown,
			"document_id": s.Extraction.DocumentID,
			"succeeded":   s.Extraction.Succeeded,
			"pages":       s.Extraction.Pages,
			"has_images":  s.Extraction.HasImages,
		}
	}
	if s.Retrieval != nil {
		matches := make([]any, 0, len(s.Retrieval.Matches))
		for _, m := range s.Retrieval.Matches {
			matches = append(matches, map[string]any{
				"content":         m.Content,
				"relevance_score": m.RelevanceScore,
			})
		}
		dict["retrieval"] = map[string]any{
			"query":   s.Retrieval.Query,
			"answer":  s.Retrieval.Answer,
			"matches": matches,
		}
	}

	log := make([]any, 0, len(s.StageLog))
	for _, inv := range s.StageLog {
		entry := map[string]any{
			"stage_name":     string(inv.StageName),
			"input_summary":  inv.InputSummary,
			"output_summary": inv.OutputSummary,
			"succeeded":      inv.Succeeded,
			"error":          inv.Error,
			"started_at":     inv.StartedAt.Format(time.RFC3339),
			"duration_ms":    inv.DurationMS,
		}
		if inv.CompletedAt != nil {
			entry["completed_at"] = inv.CompletedAt.Format(time.RFC3339)
		}
		log = append(log, entry)
	}
	dict["stage_log"] = log

	return dict
}

// FromStateDict rebuilds a State from a state dict.
// Unknown keys are ignored; missing keys keep zero values.
func FromStateDict(dict map[string]any) *State {
	s := &State{
		RequestID:    typeutil.SafeStringDefault(dict["request_id"], ""),
		InputText:    typeutil.SafeStringDefault(dict["input_text"], ""),
		Error:        typeutil.SafeStringDefault(dict["error"], ""),
		Response:     typeutil.SafeStringDefault(dict["response"], ""),
		CurrentStage: StageNameFromString(typeutil.SafeStringDefault(dict["current_stage"], "")),
		Status:       StatusFromString(typeutil.SafeStringDefault(dict["status"], "")),
		StageLog:     []StageInvocation{},
		Trace:        []string{},
	}

	if v, ok := typeutil.SafeString(dict["received_at"]); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			s.ReceivedAt = t
		}
	}
	if trace, ok := typeutil.SafeStringSlice(dict["trace"]); ok {
		s.Trace = trace
	}

	if q, ok := typeutil.SafeMapStringAny(dict["query"]); ok {
		s.Query = &Query{
			Text:            typeutil.SafeStringDefault(q["text"], ""),
			NeedsExtraction: typeutil.SafeBoolDefault(q["needs_extraction"], false),
			NeedsRetrieval:  typeutil.SafeBoolDefault(q["needs_retrieval"], false),
		}
	}
	if ref, ok := typeutil.SafeMapStringAny(dict["document_ref"]); ok {
		s.DocumentRef = &DocumentReference{
			LocalPath: typeutil.SafeStringDefault(ref["local_path"], ""),
			RemoteURL: typeutil.SafeStringDefault(ref["remote_url"], ""),
			Kind:      DocumentKindFromString(typeutil.SafeStringDefault(ref["kind"], "")),
		}
	}
	if ext, ok := typeutil.SafeMapStringAny(dict["extraction"]); ok {
		s.Extraction = &ExtractionResult{
			RawText:    typeutil.SafeStringDefault(ext["raw_text"], ""),
			Markdown:   typeutil.SafeStringDefault(ext["markdown"], ""),
			DocumentID: typeutil.SafeStringDefault(ext["document_id"], ""),
			Succeeded:  typeutil.SafeBoolDefault(ext["succeeded"], false),
			Pages:      typeutil.SafeIntDefault(ext["pages"], 0),
			HasImages:  typeutil.SafeBoolDefault(ext["has_images"], false),
		}
	}
	if ret, ok := typeutil.SafeMapStringAny(dict["retrieval"]); ok {
		result := &RetrievalResult{
			Query:  typeutil.SafeStringDefault(ret["query"], ""),
			Answer: typeutil.SafeStringDefault(ret["answer"], ""),
		}
		if raw, ok := ret["matches"].([]any); ok {
			for _, item := range raw {
				if m, ok := typeutil.SafeMapStringAny(item); ok {
					score, _ := typeutil.SafeFloat64(m["relevance_score"])
					result.Matches = append(result.Matches, RetrievalMatch{
						Content:        typeutil.SafeStringDefault(m["content"], ""),
						RelevanceScore: score,
					})
				}
			}
		}
		s.Retrieval = result
	}

	if raw, ok := dict["stage_log"].([]any); ok {
		for _, item := range raw {
			entry, ok := typeutil.SafeMapStringAny(item)
			if !ok {
				continue
			}
			inv := StageInvocation{
				StageName:     StageNameFromString(typeutil.SafeStringDefault(entry["stage_name"], "")),
				InputSummary:  typeutil.SafeStringDefault(entry["input_summary"], ""),
				OutputSummary: typeutil.SafeStringDefault(entry["output_summary"], ""),
				Succeeded:     typeutil.SafeBoolDefault(entry["succeeded"], false),
				Error:         typeutil.SafeStringDefault(entry["error"], ""),
				DurationMS:    typeutil.SafeIntDefault(entry["duration_ms"], 0),
			}
			if v, ok := typeutil.SafeString(entry["started_at"]); ok {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					inv.StartedAt = t
				}
			}
			if v, ok := typeutil.SafeString(entry["completed_at"]); ok {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					inv.CompletedAt = &t
				}
			}
			s.StageLog = append(s.StageLog, inv)
		}
	}

	return s
}
