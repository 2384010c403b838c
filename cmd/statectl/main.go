// Package main provides the statectl CLI for inspecting request states.
//
// This CLI reads a JSON state dict from stdin, performs an operation, and
// writes the result to stdout. Useful for replaying intermediate states
// captured from a run without any network access.
//
// Usage:
//
//	# Create a fresh state from raw input text
//	echo '{"input_text": "Extract text from /tmp/doc.pdf"}' | statectl create
//
//	# Show the router's decision for a state
//	cat state.json | statectl route
//
//	# Validate a state dict against the pipeline invariants
//	cat state.json | statectl validate
//
//	# Project a state onto the caller-facing result surface
//	cat state.json | statectl result
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/intent"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/router"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/runtime"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
)

const (
	cmdCreate   = "create"
	cmdIntake   = "intake"
	cmdRoute    = "route"
	cmdValidate = "validate"
	cmdResult   = "result"
	cmdVersion  = "version"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case cmdVersion:
		writeJSON(map[string]string{"version": version})
	case cmdCreate:
		handleCreate()
	case cmdIntake:
		handleIntake()
	case cmdRoute:
		handleRoute()
	case cmdValidate:
		handleValidate()
	case cmdResult:
		handleResult()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: statectl <command>

Commands:
  create    Create a fresh state from {"input_text": "..."}
  intake    Run the intent heuristics over {"input_text": "..."}
  route     Show the router's decision for a state dict
  validate  Check a state dict against the pipeline invariants
  result    Project a state dict onto the caller-facing result
  version   Print version information

Input/Output:
  All commands read JSON from stdin and write JSON to stdout.
  Errors are written to stderr.`)
}

// handleCreate builds a fresh idle state from raw input text.
func handleCreate() {
	dict := readStateDict()

	inputText, _ := dict["input_text"].(string)
	s := state.New(inputText)
	writeJSON(s.ToStateDict())
}

// handleIntake shows what the intent heuristics derive from the input,
// without running the pipeline.
func handleIntake() {
	dict := readStateDict()

	inputText, _ := dict["input_text"].(string)
	q, ref := intent.Parse(inputText)

	result := map[string]any{
		"query": map[string]any{
			"text":             q.Text,
			"needs_extraction": q.NeedsExtraction,
			"needs_retrieval":  q.NeedsRetrieval,
		},
	}
	if ref != nil {
		result["document_ref"] = map[string]any{
			"local_path": ref.LocalPath,
			"remote_url": ref.RemoteURL,
			"kind":       string(ref.Kind),
		}
	}
	writeJSON(result)
}

// handleRoute prints the stage the router would pick next.
func handleRoute() {
	dict := readStateDict()
	s := state.FromStateDict(dict)

	next := router.Decide(s)
	writeJSON(map[string]any{
		"request_id": s.RequestID,
		"next_stage": string(next),
		"terminal":   next.IsTerminal(),
	})
}

// handleValidate checks the state dict against the pipeline invariants.
func handleValidate() {
	dict := readStateDict()
	s := state.FromStateDict(dict)

	errors := []string{}
	if violated := s.CheckInvariants(); violated != "" {
		errors = append(errors, violated)
	}

	writeJSON(map[string]any{
		"valid":      len(errors) == 0,
		"errors":     errors,
		"request_id": s.RequestID,
	})
}

// handleResult projects the state onto the caller-facing surface.
func handleResult() {
	dict := readStateDict()
	s := state.FromStateDict(dict)
	writeJSON(runtime.ResultOf(s))
}

func readStateDict() map[string]any {
	reader := bufio.NewReader(os.Stdin)
	input, err := io.ReadAll(reader)
	if err != nil {
		writeError("read_error", err.Error())
		os.Exit(1)
	}

	var dict map[string]any
	if err := json.Unmarshal(input, &dict); err != nil {
		writeError("parse_error", fmt.Sprintf("Invalid JSON: %s", err.Error()))
		os.Exit(1)
	}
	return dict
}

func writeJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %s\n", err.Error())
		os.Exit(1)
	}
}

func writeError(code, message string) {
	writeJSON(map[string]any{
		"error":   true,
		"code":    code,
		"message": message,
	})
}
