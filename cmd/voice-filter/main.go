// voice-filter runs the first-stage pass over a fetched corpus file: chunk by
// record boundaries, filter each chunk through the completion service in
// parallel, and append the results to an output file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/chunker"
	"github.com/mailsense/voicepack/internal/corpus"
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

	records := corpus.SplitRecords(string(text))
	var chunks []string
	if len(records) > 0 {
		chunks = chunker.Pack(records, codec, cfg.ChunkSize)
	} else {
		chunks = chunker.SplitTokens(string(text), codec, cfg.ChunkSize, cfg.Overlap)
	}
	if len(chunks) == 0 {
		fmt.Fprintln(os.Stderr, "input is empty")
		os.Exit(2)
	}

	out, err := os.OpenFile(cfg.OutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("open -out: %w", err).Error())
		os.Exit(2)
	}
	defer out.Close()

	policy := llm.RetryPolicy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBase}
	reducer := reduce.NewReducer(llm.NewOpenAIClient(apiKey), codec, policy, log)

	sink := &fileSink{f: out}
	total, err := reducer.Reduce(ctx, chunks, sink, reduce.Options{
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxTokens,
		Slots:           cfg.Slots,
		Stagger:         cfg.Stagger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "records=%d chunks=%d output_tokens=%d out=%s\n",
		len(records), len(chunks), total, cfg.OutPath)
}

type fileSink struct {
	mu sync.Mutex
	f  *os.File
}

func (s *fileSink) Append(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.f.WriteString(text)
	return err
}
