// Package reduce drives the two filtering passes over the corpus: a parallel
// per-chunk first stage and a sequential token-budget-convergent second stage.
package reduce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/llm"
	"github.com/mailsense/voicepack/internal/token"
)

// FailureMarker is written in place of a chunk whose completion calls
// exhausted all retry attempts. Chunk numbers are 1-based.
func FailureMarker(chunkNum int) string {
	return fmt.Sprintf("[Processing failed for chunk %d]", chunkNum)
}

// Sink receives reduced segments as they complete. The reducer serializes
// calls; implementations need no locking of their own.
type Sink interface {
	Append(ctx context.Context, text string) error
}

type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Append(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Options configures the parallel first-stage pass.
type Options struct {
	Model           string
	MaxOutputTokens int

	// Slots bounds concurrent in-flight completion calls (default 5).
	Slots int

	// Stagger is the pause between task submissions, smearing the initial
	// burst against the remote service (default 100ms).
	Stagger time.Duration
}

func (o *Options) applyDefaults() {
	if o.Slots <= 0 {
		o.Slots = 5
	}
	if o.Stagger == 0 {
		o.Stagger = 100 * time.Millisecond
	}
}

// Reducer fans chunks out to the completion service.
type Reducer struct {
	completer llm.Completer
	codec     token.Codec
	policy    llm.RetryPolicy
	log       zerolog.Logger

	sleep func(context.Context, time.Duration) error
}

func NewReducer(completer llm.Completer, codec token.Codec, policy llm.RetryPolicy, log zerolog.Logger) *Reducer {
	return &Reducer{
		completer: completer,
		codec:     codec,
		policy:    policy,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Reduce submits one filtering task per chunk and appends each result (or a
// failure marker) to sink in completion order, separated by blank lines.
// Chunk failures degrade the output instead of aborting it; the returned
// count is the token total of the successful segments only.
func (r *Reducer) Reduce(ctx context.Context, chunks []string, sink Sink, opts Options) (int, error) {
	opts.applyDefaults()
	if len(chunks) == 0 {
		return 0, nil
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		totalTokens int
		appendErr   error
	)
	sem := make(chan struct{}, opts.Slots)

	appendSegment := func(text string, tokens int) {
		mu.Lock()
		defer mu.Unlock()
		if appendErr != nil {
			return
		}
		if err := sink.Append(ctx, text+"\n\n"); err != nil {
			appendErr = err
			return
		}
		totalTokens += tokens
	}

	for i, chunk := range chunks {
		if i > 0 {
			if err := r.sleep(ctx, opts.Stagger); err != nil {
				break
			}
		}

		wg.Add(1)
		go func(num int, chunk string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, err := r.filterChunk(ctx, chunk, opts)
			if err != nil {
				r.log.Warn().Int("chunk", num).Err(err).Msg("chunk failed after retries")
				appendSegment(FailureMarker(num), 0)
				return
			}
			appendSegment(out, r.codec.Count(out))
		}(i+1, chunk)
	}
	wg.Wait()

	if appendErr != nil {
		return totalTokens, fmt.Errorf("append reduced segment: %w", appendErr)
	}
	if err := ctx.Err(); err != nil {
		return totalTokens, err
	}
	r.log.Info().Int("chunks", len(chunks)).Int("output_tokens", totalTokens).
		Msg("first-stage reduction complete")
	return totalTokens, nil
}

// filterChunk runs one chunk through the structured filter call and decodes
// the response. Malformed or truncated model JSON is retried against the same
// attempt cap as service failures; a response that decodes but does not fit
// the schema fails the chunk immediately.
func (r *Reducer) filterChunk(ctx context.Context, chunk string, opts Options) (string, error) {
	req := llm.Request{
		Model:       opts.Model,
		System:      filterSystem,
		Prompt:      filterPrompt(chunk),
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: 0,
		SchemaName:  filterSchemaName,
		Schema:      filterSchema,
	}

	attempts := r.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := llm.CompleteWithRetry(ctx, r.completer, req, r.policy)
		if err != nil {
			return "", err
		}

		var fr filterResponse
		derr := llm.DecodeModelJSON(out, &fr)
		if derr == nil {
			return fr.Content, nil
		}
		if !llm.IsMalformedOutputError(derr) {
			return "", fmt.Errorf("decode filter response: %w", derr)
		}
		lastErr = derr
	}
	return "", fmt.Errorf("filter response still malformed after %d attempts: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
