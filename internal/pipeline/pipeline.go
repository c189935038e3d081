// Package pipeline wires the full analyze-voice flow for one user: stored
// corpus → chunks → parallel first-stage filter → budget-convergent second
// stage → final voice sample blob.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/blob"
	"github.com/mailsense/voicepack/internal/chunker"
	"github.com/mailsense/voicepack/internal/corpus"
	"github.com/mailsense/voicepack/internal/fetch"
	"github.com/mailsense/voicepack/internal/reduce"
	"github.com/mailsense/voicepack/internal/token"
)

// Blob file names under the user's key, downstream of fetch.CorpusFile.
const (
	FilteredFile = "filtered_voice.txt"
	SampleFile   = "voice_sample.txt"
)

// ErrNoCorpus means the user has no fetched corpus to analyze.
var ErrNoCorpus = errors.New("pipeline: no corpus for user")

// Options sizes one analyze-voice run.
type Options struct {
	ChunkSize int // tokens per chunk (default 8192)
	Overlap   int // fallback window overlap (default 100)

	// TargetTokens is the hard ceiling on the final sample (default 4000).
	TargetTokens int

	Reduce   reduce.Options
	Converge reduce.ConvergeOptions
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 8192
	}
	if o.Overlap <= 0 {
		o.Overlap = 100
	}
	if o.TargetTokens <= 0 {
		o.TargetTokens = 4000
	}
}

// Result is the token accounting for one run.
type Result struct {
	Records          int `json:"records"`
	Chunks           int `json:"chunks"`
	CorpusTokens     int `json:"corpus_tokens"`
	FirstStageTokens int `json:"first_stage_tokens"`
	FinalTokens      int `json:"final_tokens"`
}

type Pipeline struct {
	blobs     blob.Store
	reducer   *reduce.Reducer
	converger *reduce.Converger
	codec     token.Codec
	log       zerolog.Logger
}

func New(blobs blob.Store, reducer *reduce.Reducer, converger *reduce.Converger, codec token.Codec, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		blobs:     blobs,
		reducer:   reducer,
		converger: converger,
		codec:     codec,
		log:       log,
	}
}

// AnalyzeVoice runs both reduction stages over the user's stored corpus and
// writes the bounded voice sample. The first-stage blob is truncated before
// the run so reruns never accumulate stale segments.
func (p *Pipeline) AnalyzeVoice(ctx context.Context, userKey string, opts Options) (Result, error) {
	opts.applyDefaults()

	text, err := p.blobs.Read(ctx, userKey, fetch.CorpusFile)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Result{}, ErrNoCorpus
		}
		return Result{}, fmt.Errorf("read corpus: %w", err)
	}

	records := corpus.SplitRecords(text)
	var chunks []string
	if len(records) > 0 {
		chunks = chunker.Pack(records, p.codec, opts.ChunkSize)
	} else {
		chunks = chunker.SplitTokens(text, p.codec, opts.ChunkSize, opts.Overlap)
	}
	res := Result{
		Records:      len(records),
		Chunks:       len(chunks),
		CorpusTokens: p.codec.Count(text),
	}
	p.log.Info().Str("user", userKey).Int("records", res.Records).
		Int("chunks", res.Chunks).Int("corpus_tokens", res.CorpusTokens).
		Msg("analyze-voice starting")

	if err := p.blobs.Write(ctx, userKey, FilteredFile, ""); err != nil {
		return res, fmt.Errorf("init first-stage output: %w", err)
	}
	sink := reduce.SinkFunc(func(ctx context.Context, segment string) error {
		return p.blobs.Append(ctx, userKey, FilteredFile, segment)
	})
	res.FirstStageTokens, err = p.reducer.Reduce(ctx, chunks, sink, opts.Reduce)
	if err != nil {
		return res, fmt.Errorf("first-stage reduce: %w", err)
	}

	filtered, err := p.blobs.Read(ctx, userKey, FilteredFile)
	if err != nil {
		return res, fmt.Errorf("read first-stage output: %w", err)
	}
	sample, err := p.converger.Converge(ctx, filtered, opts.TargetTokens, opts.Converge)
	if err != nil {
		return res, fmt.Errorf("converge: %w", err)
	}
	if err := p.blobs.Write(ctx, userKey, SampleFile, sample); err != nil {
		return res, fmt.Errorf("write voice sample: %w", err)
	}

	res.FinalTokens = p.codec.Count(sample)
	p.log.Info().Str("user", userKey).Int("first_stage_tokens", res.FirstStageTokens).
		Int("final_tokens", res.FinalTokens).Msg("analyze-voice complete")
	return res, nil
}
