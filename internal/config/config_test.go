package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8480" {
		t.Errorf("Listen=%q", cfg.Listen)
	}
	if cfg.Reduce.ChunkSize != 8192 || cfg.Reduce.Slots != 5 {
		t.Errorf("Reduce=%+v", cfg.Reduce)
	}
	if cfg.Fetch.FlushEvery != 20 || cfg.Fetch.RecordDelay != 100*time.Millisecond {
		t.Errorf("Fetch=%+v", cfg.Fetch)
	}
	if cfg.LLM.FilterModel == "" || cfg.LLM.ConvergeModel == "" {
		t.Errorf("LLM=%+v", cfg.LLM)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
listen: "0.0.0.0:9000"
reduce:
  chunk_size: 4096
  target_tokens: 2000
blob:
  root: /tmp/voicepack-test
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen=%q", cfg.Listen)
	}
	if cfg.Reduce.ChunkSize != 4096 || cfg.Reduce.TargetTokens != 2000 {
		t.Errorf("Reduce=%+v", cfg.Reduce)
	}
	// Untouched keys keep their defaults.
	if cfg.Reduce.Slots != 5 {
		t.Errorf("Slots=%d", cfg.Reduce.Slots)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("VOICEPACK_LISTEN", "127.0.0.1:7777")
	t.Setenv("VOICEPACK_LLM_FILTER_MODEL", "gpt-4o")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7777" {
		t.Errorf("Listen=%q", cfg.Listen)
	}
	if cfg.LLM.FilterModel != "gpt-4o" {
		t.Errorf("FilterModel=%q", cfg.LLM.FilterModel)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reduce.TargetTokens != 4000 {
		t.Errorf("TargetTokens=%d", cfg.Reduce.TargetTokens)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"empty listen", func(c *Config) { c.Listen = "" }, true},
		{"zero chunk size", func(c *Config) { c.Reduce.ChunkSize = 0 }, true},
		{"overlap >= chunk size", func(c *Config) { c.Reduce.Overlap = c.Reduce.ChunkSize }, true},
		{"zero target", func(c *Config) { c.Reduce.TargetTokens = 0 }, true},
		{"zero page size", func(c *Config) { c.Fetch.PageSize = 0 }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate()=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
