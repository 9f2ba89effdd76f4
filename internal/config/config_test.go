package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPagesStandard != DefaultMaxPagesStandard ||
		cfg.PagesPerChunk != DefaultPagesPerChunk ||
		cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Model != DefaultModel || cfg.MatcherModel != DefaultModel {
		t.Errorf("models = %q / %q", cfg.Model, cfg.MatcherModel)
	}
	if cfg.LLMTimeout != DefaultLLMTimeout {
		t.Errorf("timeout = %v", cfg.LLMTimeout)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billflow.yaml")
	if err := os.WriteFile(path, []byte("store_root: /var/bills\nlisten_addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("PAGES_PER_CHUNK", "4")
	t.Setenv("LLM_TIMEOUT_SECONDS", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreRoot != "/var/bills" {
		t.Errorf("store root = %q", cfg.StoreRoot)
	}
	// environment wins over the file
	if cfg.ListenAddr != ":7000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.PagesPerChunk != 4 || cfg.LLMTimeout != 30*time.Second {
		t.Errorf("overrides = %d / %v", cfg.PagesPerChunk, cfg.LLMTimeout)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreRoot != "./billstore" {
		t.Errorf("store root = %q", cfg.StoreRoot)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("store_root: [unterminated"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store root", func(c *Config) { c.StoreRoot = "" }},
		{"zero pages per chunk", func(c *Config) { c.PagesPerChunk = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero page threshold", func(c *Config) { c.MaxPagesStandard = 0 }},
	}
	for _, c := range cases {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		c.mutate(cfg)
		if cfg.Validate() == nil {
			t.Errorf("%s accepted", c.name)
		}
	}
}

func TestEnvIgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv("PAGES_PER_CHUNK", "lots")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PagesPerChunk != DefaultPagesPerChunk {
		t.Errorf("pages per chunk = %d", cfg.PagesPerChunk)
	}
}
