// Package router selects the next pipeline stage from the current state.
package router

import (
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

// Decide returns the next stage for the given state.
//
// Pure and total: no side effects, and every reachable state maps to a stage.
// Rules are evaluated in order; the first match wins. The ordering is a
// correctness-critical tie-break, not an optimization.
func Decide(s *state.State) state.StageName {
	// 1. A failed run always goes to the error stage.
	if s.Status == state.StatusFailed {
		return state.StageError
	}

	// 2. Missing query means intake never ran: an invariant violation.
	if s.Query == nil {
		return state.StageError
	}

	// 3/4. Extraction requested: run it if a usable reference exists,
	// otherwise ask the user for one.
	if s.Query.NeedsExtraction && s.Extraction == nil {
		if s.DocumentRef.Valid() {
			return state.StageExtract
		}
		return state.StageRequestMoreInfo
	}

	// 5. Successful extraction plus a retrieval intent runs retrieval once.
	if s.Extraction != nil && s.Extraction.Succeeded {
		if s.Query.NeedsRetrieval && s.Retrieval == nil {
			return state.StageRetrieve
		}
		// 6. Extraction done, nothing else pending.
		return state.StageRespond
	}

	// 7. Default: generate a reply from whatever is known.
	return state.StageRespond
}
