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

	TargetTokens   int
	ContextCeiling int
	BatchRecords   int
	FloorTokens    int

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
	if c.TargetTokens <= 0 {
		return errors.New("target-tokens must be > 0")
	}
	if c.ContextCeiling <= c.TargetTokens {
		return errors.New("context-ceiling must exceed target-tokens")
	}
	if c.BatchRecords <= 0 {
		return errors.New("batch-records must be > 0")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("retry-attempts must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutPath:        "voice_sample.txt",
		Model:          "gpt-4o",
		TargetTokens:   4000,
		ContextCeiling: 128000,
		BatchRecords:   50,
		FloorTokens:    500,
		RetryAttempts:  5,
		RetryBase:      5 * time.Second,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the first-stage filtered corpus")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the converged voice sample")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.IntVar(&cfg.TargetTokens, "target-tokens", cfg.TargetTokens, "Hard token ceiling on the output")
	fs.IntVar(&cfg.ContextCeiling, "context-ceiling", cfg.ContextCeiling, "Model context window in tokens")
	fs.IntVar(&cfg.BatchRecords, "batch-records", cfg.BatchRecords, "Records per sequential batch when input exceeds the context window")
	fs.IntVar(&cfg.FloorTokens, "floor-tokens", cfg.FloorTokens, "Minimum per-batch sub-target")
	fs.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "Max completion attempts per call")
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
