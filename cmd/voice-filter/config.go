package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	InPath  string
	OutPath string
	Model   string
	APIKey  string

	ChunkSize int
	Overlap   int
	MaxTokens int

	Slots   int
	Stagger time.Duration

	RetryAttempts int
	RetryBase     time.Duration
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk-size must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return errors.New("overlap must be in [0, chunk-size)")
	}
	if c.MaxTokens < 0 {
		return errors.New("max-tokens must be >= 0")
	}
	if c.Slots <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("retry-attempts must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutPath:       "filtered_voice.txt",
		Model:         "gpt-4o-mini",
		ChunkSize:     8192,
		Overlap:       100,
		MaxTokens:     8192,
		Slots:         5,
		Stagger:       100 * time.Millisecond,
		RetryAttempts: 5,
		RetryBase:     5 * time.Second,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the fetched corpus file")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the first-stage filtered corpus")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Chunk size in tokens")
	fs.IntVar(&cfg.Overlap, "overlap", cfg.Overlap, "Token overlap for the fallback window splitter")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Max output tokens per chunk request")
	fs.IntVar(&cfg.Slots, "concurrency", cfg.Slots, "Max concurrent completion calls")
	fs.DurationVar(&cfg.Stagger, "stagger", cfg.Stagger, "Pause between chunk submissions")
	fs.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "Max completion attempts per chunk")
	fs.DurationVar(&cfg.RetryBase, "retry-base", cfg.RetryBase, "Base backoff between attempts")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InPath != "" {
		cfg.InPath = filepath.Clean(cfg.InPath)
	}
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
