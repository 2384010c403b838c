// Package config provides orchestration configuration - NO infrastructure URLs.
//
// This module contains ONLY configuration relevant to the stage pipeline:
//   - Traversal bound
//   - Per-collaborator timeouts
//   - Context truncation and document size limits
//
// Infrastructure configuration (API endpoints, keys, log paths) is parsed
// from the environment by the entry points and passed to the collaborator
// clients directly.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the orchestration configuration.
//
// It is backend-agnostic: the same values apply regardless of which OCR or
// generation provider is wired in.
type Config struct {
	// Loop Control
	MaxTraversals int `json:"max_traversals" yaml:"max_traversals"` // Stage invocations before the run is declared stuck

	// Timeouts (seconds)
	OCRTimeoutSec        int `json:"ocr_timeout" yaml:"ocr_timeout"`
	GenerationTimeoutSec int `json:"generation_timeout" yaml:"generation_timeout"`
	RetrievalTimeoutSec  int `json:"retrieval_timeout" yaml:"retrieval_timeout"`

	// Limits
	ContextTruncateLimit int   `json:"context_truncate_limit" yaml:"context_truncate_limit"` // Chars of extracted text passed to generation
	MaxDocumentBytes     int64 `json:"max_document_bytes" yaml:"max_document_bytes"`         // OCR size ceiling

	// OCR result cache
	OCRCacheTTLSec int `json:"ocr_cache_ttl" yaml:"ocr_cache_ttl"` // 0 disables caching

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxTraversals:        8,
		OCRTimeoutSec:        120,
		GenerationTimeoutSec: 120,
		RetrievalTimeoutSec:  60,
		ContextTruncateLimit: 500,
		MaxDocumentBytes:     50 * 1024 * 1024,
		OCRCacheTTLSec:       900,
		LogLevel:             "INFO",
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.MaxTraversals <= 0 {
		return fmt.Errorf("max_traversals must be positive, got %d", c.MaxTraversals)
	}
	if c.OCRTimeoutSec <= 0 || c.GenerationTimeoutSec <= 0 || c.RetrievalTimeoutSec <= 0 {
		return fmt.Errorf("collaborator timeouts must be positive")
	}
	if c.ContextTruncateLimit <= 0 {
		return fmt.Errorf("context_truncate_limit must be positive, got %d", c.ContextTruncateLimit)
	}
	if c.MaxDocumentBytes <= 0 {
		return fmt.Errorf("max_document_bytes must be positive, got %d", c.MaxDocumentBytes)
	}
	if c.OCRCacheTTLSec < 0 {
		return fmt.Errorf("ocr_cache_ttl must not be negative, got %d", c.OCRCacheTTLSec)
	}
	return nil
}

// OCRTimeout returns the OCR call timeout as a duration.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSec) * time.Second
}

// GenerationTimeout returns the generation call timeout as a duration.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

// RetrievalTimeout returns the retrieval call timeout as a duration.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutSec) * time.Second
}

// OCRCacheTTL returns the OCR cache TTL as a duration.
func (c *Config) OCRCacheTTL() time.Duration {
	return time.Duration(c.OCRCacheTTLSec) * time.Second
}

// FromMap creates a Config from a map. Unknown keys are ignored.
// Numeric values may arrive as int or float64 depending on the decoder.
func FromMap(m map[string]any) *Config {
	c := DefaultConfig()

	if v, ok := intValue(m["max_traversals"]); ok {
		c.MaxTraversals = v
	}
	if v, ok := intValue(m["ocr_timeout"]); ok {
		c.OCRTimeoutSec = v
	}
	if v, ok := intValue(m["generation_timeout"]); ok {
		c.GenerationTimeoutSec = v
	}
	if v, ok := intValue(m["retrieval_timeout"]); ok {
		c.RetrievalTimeoutSec = v
	}
	if v, ok := intValue(m["context_truncate_limit"]); ok {
		c.ContextTruncateLimit = v
	}
	if v, ok := intValue(m["max_document_bytes"]); ok {
		c.MaxDocumentBytes = int64(v)
	}
	if v, ok := intValue(m["ocr_cache_ttl"]); ok {
		c.OCRCacheTTLSec = v
	}
	if v, ok := m["log_level"].(string); ok {
		c.LogLevel = v
	}

	return c
}

// ToMap converts the config to a map.
func (c *Config) ToMap() map[string]any {
	return map[string]any{
		"max_traversals":         c.MaxTraversals,
		"ocr_timeout":            c.OCRTimeoutSec,
		"generation_timeout":     c.GenerationTimeoutSec,
		"retrieval_timeout":      c.RetrievalTimeoutSec,
		"context_truncate_limit": c.ContextTruncateLimit,
		"max_document_bytes":     c.MaxDocumentBytes,
		"ocr_cache_ttl":          c.OCRCacheTTLSec,
		"log_level":              c.LogLevel,
	}
}

// LoadFile reads a YAML config file, applying defaults for missing keys.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// =============================================================================
// GLOBAL CONFIG (set by the entry point during bootstrap)
// =============================================================================

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Get returns the injected config, or defaults when none was set.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}
	return globalConfig
}

// Set installs the global configuration instance.
func Set(c *Config) {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = c
}

// Reset clears the global config (useful for testing).
// After reset, Get returns defaults.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = nil
}
