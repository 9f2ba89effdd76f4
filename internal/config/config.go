// Package config loads pipeline configuration from the environment with
// an optional YAML file for the store layout. Every tuning knob is an
// environment variable with a stated default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	// StoreRoot is the base directory of the staged object store.
	StoreRoot string `yaml:"store_root"`

	// TablePath is the sqlite database holding jobs, UBI assignments,
	// errors, router log, review drafts and config entries.
	TablePath string `yaml:"table_path"`

	// ListenAddr is the review API listen address.
	ListenAddr string `yaml:"listen_addr"`

	// NATSURL, when set, mirrors pipeline events to NATS.
	NATSURL string `yaml:"nats_url"`

	// Gemini model for extraction and the separate matcher model.
	Model        string `yaml:"model"`
	MatcherModel string `yaml:"matcher_model"`

	// Entrata endpoint and credentials.
	EntrataURL      string `yaml:"entrata_url"`
	EntrataUsername string `yaml:"entrata_username"`
	EntrataPassword string `yaml:"entrata_password"`

	// Routing thresholds (strict > comparisons).
	MaxPagesStandard  int
	MaxSizeMBStandard int

	// Chunked parsing.
	PagesPerChunk       int
	ChunkStaggerSeconds float64

	// Retry budget shared by parser and chunk processor.
	MaxAttempts               int
	BaseBackoffSeconds        float64
	MaxDroppedRowsBeforeRetry int

	// LLMTimeout bounds each generateContent call.
	LLMTimeout time.Duration
}

// Defaults mirror the production lambda environment.
const (
	DefaultMaxPagesStandard          = 10
	DefaultMaxSizeMBStandard         = 10
	DefaultPagesPerChunk             = 2
	DefaultMaxAttempts               = 10
	DefaultBaseBackoffSeconds        = 2
	DefaultChunkStaggerSeconds       = 1.5
	DefaultMaxDroppedRowsBeforeRetry = 5
	DefaultLLMTimeout                = 120 * time.Second
	DefaultModel                     = "gemini-2.0-flash"
)

// Load resolves configuration: YAML file (if present) for layout, then
// environment overrides for every knob.
func Load(path string) (*Config, error) {
	cfg := &Config{
		StoreRoot:    "./billstore",
		TablePath:    "./billflow.db",
		ListenAddr:   ":8080",
		Model:        DefaultModel,
		MatcherModel: DefaultModel,

		MaxPagesStandard:          DefaultMaxPagesStandard,
		MaxSizeMBStandard:         DefaultMaxSizeMBStandard,
		PagesPerChunk:             DefaultPagesPerChunk,
		ChunkStaggerSeconds:       DefaultChunkStaggerSeconds,
		MaxAttempts:               DefaultMaxAttempts,
		BaseBackoffSeconds:        DefaultBaseBackoffSeconds,
		MaxDroppedRowsBeforeRetry: DefaultMaxDroppedRowsBeforeRetry,
		LLMTimeout:                DefaultLLMTimeout,
	}

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString(&cfg.StoreRoot, "STORE_ROOT")
	envString(&cfg.TablePath, "TABLE_PATH")
	envString(&cfg.ListenAddr, "LISTEN_ADDR")
	envString(&cfg.NATSURL, "NATS_URL")
	envString(&cfg.Model, "GEMINI_MODEL")
	envString(&cfg.MatcherModel, "MATCHER_MODEL")
	envString(&cfg.EntrataURL, "ENTRATA_URL")
	envString(&cfg.EntrataUsername, "ENTRATA_USERNAME")
	envString(&cfg.EntrataPassword, "ENTRATA_PASSWORD")

	envInt(&cfg.MaxPagesStandard, "MAX_PAGES_STANDARD")
	envInt(&cfg.MaxSizeMBStandard, "MAX_SIZE_MB_STANDARD")
	envInt(&cfg.PagesPerChunk, "PAGES_PER_CHUNK")
	envInt(&cfg.MaxAttempts, "MAX_ATTEMPTS")
	envInt(&cfg.MaxDroppedRowsBeforeRetry, "MAX_DROPPED_ROWS_BEFORE_RETRY")
	envFloat(&cfg.BaseBackoffSeconds, "BASE_BACKOFF_SECONDS")
	envFloat(&cfg.ChunkStaggerSeconds, "CHUNK_STAGGER_SECONDS")

	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			cfg.LLMTimeout = time.Duration(secs * float64(time.Second))
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.StoreRoot == "" {
		return fmt.Errorf("store_root must not be empty")
	}
	if c.PagesPerChunk < 1 {
		return fmt.Errorf("PAGES_PER_CHUNK must be >= 1, got %d", c.PagesPerChunk)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.MaxPagesStandard < 1 || c.MaxSizeMBStandard < 1 {
		return fmt.Errorf("routing thresholds must be >= 1")
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
