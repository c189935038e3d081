// voice-converge drives a first-stage filtered corpus down to a hard token
// ceiling and writes the bounded voice sample.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/llm"
	"github.com/mailsense/voicepack/internal/reduce"
	"github.com/mailsense/voicepack/internal/token"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	text, err := os.ReadFile(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("read -in: %w", err).Error())
		os.Exit(2)
	}

	codec, err := token.ForModel(cfg.Model)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	policy := llm.RetryPolicy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBase}
	converger := reduce.NewConverger(llm.NewOpenAIClient(apiKey), codec, policy, log)

	sample, err := converger.Converge(ctx, string(text), cfg.TargetTokens, reduce.ConvergeOptions{
		Model:          cfg.Model,
		ContextCeiling: cfg.ContextCeiling,
		BatchRecords:   cfg.BatchRecords,
		FloorTokens:    cfg.FloorTokens,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := os.WriteFile(cfg.OutPath, []byte(sample), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("write -out: %w", err).Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "input_tokens=%d output_tokens=%d out=%s\n",
		codec.Count(string(text)), codec.Count(sample), cfg.OutPath)
}
