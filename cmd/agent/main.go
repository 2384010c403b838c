// OCR Agent
//
// Runs a single request through the stage pipeline against the real
// collaborators and prints the final state as JSON.
//
// Usage:
//
//	go run ./cmd/agent "Extract text from /tmp/doc.pdf"
//	echo "What does this say? https://example.com/a.png" | go run ./cmd/agent
//	go run ./cmd/agent -config config.yaml -log-file agent.log "..."
//
// Environment (loaded from .env when present):
//
//	MISTRAL_API_KEY    OCR collaborator key (required)
//	ANTHROPIC_API_KEY  Generation/retrieval collaborator key (required)
//	OTLP_ENDPOINT      Optional trace collector endpoint
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/config"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/observability"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/runtime"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/stages"
	"github.com/ciakdewitt/mistral-ocr-agent/agentcore/state"
	"github.com/ciakdewitt/mistral-ocr-agent/clients/anthropic"
	"github.com/ciakdewitt/mistral-ocr-agent/clients/mistral"
	"github.com/ciakdewitt/mistral-ocr-agent/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	envFile := flag.String("env-file", ".env", "path to env file")
	logFile := flag.String("log-file", "", "path to rotated JSON log file (empty: console only)")
	prod := flag.Bool("prod", false, "JSON console output")
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load(*envFile)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	config.Set(cfg)

	logger := logging.New(*logFile, cfg.LogLevel, *prod)
	defer logger.Sync()

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := observability.InitTracer("mistral-ocr-agent", endpoint)
		if err != nil {
			logger.Warn("tracing_init_failed", "error", err.Error())
		} else {
			defer shutdown(context.Background())
		}
	}

	inputText, err := readInput(flag.Args())
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	orch, err := buildOrchestrator(logger, cfg)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	// Ctrl+C cancels between stages; an in-flight call finishes first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	final, runErr := orch.Run(ctx, inputText)
	if runErr != nil {
		logger.Warn("run_aborted", "error", runErr.Error())
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(runtime.ResultOf(final)); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	if final.Status == state.StatusFailed {
		os.Exit(1)
	}
}

func buildOrchestrator(logger *logging.ZapLogger, cfg *config.Config) (*runtime.Orchestrator, error) {
	ocr, err := mistral.NewClient(mistral.Options{
		APIKey:           os.Getenv("MISTRAL_API_KEY"),
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		CacheTTL:         cfg.OCRCacheTTL(),
	})
	if err != nil {
		return nil, err
	}

	chat, err := anthropic.NewClient(anthropic.Options{
		APIKey: os.Getenv("ANTHROPIC_API_KEY"),
	})
	if err != nil {
		return nil, err
	}

	var (
		generator stages.Generator = chat
		retriever stages.Retriever = chat
	)

	pipeline, err := stages.NewPipeline(ocr, generator, retriever, logger, cfg)
	if err != nil {
		return nil, err
	}
	return runtime.NewOrchestrator(pipeline, logger, cfg)
}

// readInput takes the request from argv, or stdin when no args were given.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty request: pass text as arguments or on stdin")
	}
	return text, nil
}
