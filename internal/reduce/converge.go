package reduce

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/chunker"
	"github.com/mailsense/voicepack/internal/corpus"
	"github.com/mailsense/voicepack/internal/llm"
	"github.com/mailsense/voicepack/internal/token"
)

// ConvergeOptions configures the second-stage pass.
type ConvergeOptions struct {
	Model string

	// ContextCeiling is the model's context window in tokens (default
	// 128000). PromptOverhead and SafetyMargin are subtracted from it to
	// get the largest input a single call can carry.
	ContextCeiling int
	PromptOverhead int
	SafetyMargin   int

	// BatchRecords is the record count per sequential batch (default 50).
	BatchRecords int

	// FloorTokens is the minimum per-batch sub-target (default 500), so
	// heavily partitioned inputs still produce usable batch output.
	FloorTokens int
}

func (o *ConvergeOptions) applyDefaults() {
	if o.ContextCeiling <= 0 {
		o.ContextCeiling = 128000
	}
	if o.PromptOverhead <= 0 {
		o.PromptOverhead = 1000
	}
	if o.SafetyMargin <= 0 {
		o.SafetyMargin = 2000
	}
	if o.BatchRecords <= 0 {
		o.BatchRecords = 50
	}
	if o.FloorTokens <= 0 {
		o.FloorTokens = 500
	}
}

func (o ConvergeOptions) availableTokens() int {
	return o.ContextCeiling - o.PromptOverhead - o.SafetyMargin
}

// Converger drives the first-stage output down to a hard token ceiling.
// Unlike the first stage it runs sequentially, so the running total is
// observable after every batch and convergence is monotonic.
type Converger struct {
	completer llm.Completer
	codec     token.Codec
	policy    llm.RetryPolicy
	log       zerolog.Logger
}

func NewConverger(completer llm.Completer, codec token.Codec, policy llm.RetryPolicy, log zerolog.Logger) *Converger {
	return &Converger{completer: completer, codec: codec, policy: policy, log: log}
}

// Converge returns text reduced to at most targetTokens. Input already under
// the target is returned unchanged. Every path out of this function honors
// the ceiling; when selection cannot get there, the tail is truncated and the
// truncation is logged.
func (c *Converger) Converge(ctx context.Context, text string, targetTokens int, opts ConvergeOptions) (string, error) {
	opts.applyDefaults()

	if c.codec.Count(text) <= targetTokens {
		return text, nil
	}

	available := opts.availableTokens()
	if c.codec.Count(text) <= available {
		out := c.selectUnder(ctx, text, targetTokens, opts)
		return c.capped(out, targetTokens, "single-pass output over target"), nil
	}

	// Too big for one call: partition into record batches and reduce them
	// sequentially against proportional sub-targets.
	records := corpus.SplitRecords(text)
	var batches []string
	if len(records) > 0 {
		batches = batchRecords(records, opts.BatchRecords)
	} else {
		batches = chunker.SplitTokens(text, c.codec, available, 0)
	}

	subTarget := targetTokens / len(batches)
	if subTarget < opts.FloorTokens {
		subTarget = opts.FloorTokens
	}

	var parts []string
	runningTotal := 0
	for i, batch := range batches {
		if runningTotal >= targetTokens {
			c.log.Info().Int("processed_batches", i).Int("remaining_batches", len(batches)-i).
				Msg("target reached, remaining batches dropped")
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if c.codec.Count(batch) > available {
			c.log.Warn().Int("batch", i).Msg("batch exceeds context window, truncating input")
			batch = token.Truncate(c.codec, batch, available)
		}
		out := c.selectUnder(ctx, batch, subTarget, opts)
		parts = append(parts, out)
		runningTotal += c.codec.Count(out)
	}

	combined := strings.Join(parts, "\n\n")
	if c.codec.Count(combined) <= targetTokens {
		return combined, nil
	}

	if c.codec.Count(combined) <= available {
		combined = c.selectUnder(ctx, combined, targetTokens, opts)
	}
	return c.capped(combined, targetTokens, "combined batches over target"), nil
}

// selectUnder runs one selection call. A completion failure degrades to
// truncated input rather than failing the stage.
func (c *Converger) selectUnder(ctx context.Context, text string, targetTokens int, opts ConvergeOptions) string {
	out, err := llm.CompleteWithRetry(ctx, c.completer, llm.Request{
		Model:       opts.Model,
		System:      selectSystem,
		Prompt:      selectPrompt(text, targetTokens),
		MaxTokens:   targetTokens,
		Temperature: 0,
	}, c.policy)
	if err != nil {
		c.log.Warn().Err(err).Msg("selection call failed, falling back to truncation")
		return token.Truncate(c.codec, text, targetTokens)
	}
	return out
}

func (c *Converger) capped(text string, targetTokens int, reason string) string {
	if c.codec.Count(text) <= targetTokens {
		return text
	}
	c.log.Warn().Int("target_tokens", targetTokens).Str("reason", reason).
		Msg("hard-truncating to token ceiling")
	return token.Truncate(c.codec, text, targetTokens)
}

func batchRecords(records []string, perBatch int) []string {
	var batches []string
	for i := 0; i < len(records); i += perBatch {
		end := i + perBatch
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, strings.Join(records[i:end], "\n\n"))
	}
	return batches
}
