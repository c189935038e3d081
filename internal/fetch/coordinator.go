// Package fetch runs the resumable record-ingestion loop: paginate the
// record source, extract authored content per record, and append serialized
// records to the user's corpus blob with crash-bounded progress tracking.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/blob"
	"github.com/mailsense/voicepack/internal/corpus"
	"github.com/mailsense/voicepack/internal/extract"
	"github.com/mailsense/voicepack/internal/jobs"
	"github.com/mailsense/voicepack/internal/source"
)

// Blob file names under the user's key.
const (
	CorpusFile   = "sent_records.txt"
	ProgressFile = "fetch_progress.txt"
	SummaryFile  = "fetch_summary.json"
)

// Options controls one fetch run.
type Options struct {
	// Query is the source filter descriptor (e.g. "in:sent after:2014/01/01").
	Query string

	// Limit caps the number of records fetched; 0 means no cap.
	Limit int

	// PageSize caps ids requested per page (default 100). Never exceeds
	// the remaining limit.
	PageSize int

	// FlushEvery bounds how many records accumulate before the corpus and
	// progress blobs are flushed together (default 20). A crash loses at
	// most one unflushed batch of work, never written data.
	FlushEvery int

	// RecordDelay is a fixed pause between per-record detail fetches, a
	// rate-control knob against the source. Zero disables it.
	RecordDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 20
	}
}

// Summary is the statistics document written when a job finishes.
type Summary struct {
	TotalFetched int       `json:"total_fetched"`
	Appended     int       `json:"appended"`
	Skipped      int       `json:"skipped"`
	Errors       int       `json:"errors"`
	LimitReached bool      `json:"limit_reached"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Coordinator drives fetch jobs. All collaborators are injected.
type Coordinator struct {
	src   source.Source
	blobs blob.Store
	jobs  *jobs.Store
	log   zerolog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

func NewCoordinator(src source.Source, blobs blob.Store, jobStore *jobs.Store, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		src:   src,
		blobs: blobs,
		jobs:  jobStore,
		log:   log,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// recordOutcome is the explicit per-record result: exactly one of record,
// skip, or err is meaningful. Skipped records are still marked processed;
// errored records are not, so a later run retries them.
type recordOutcome struct {
	record corpus.Record
	skip   string
	err    error
}

// Run executes the job to a terminal state. Only source-exhaustion-class
// failures fail the job; per-record failures are logged and skipped. The job
// is not retried here; resubmission is the caller's responsibility.
func (c *Coordinator) Run(ctx context.Context, job jobs.Job, opts Options) (jobs.Job, error) {
	opts.applyDefaults()

	job.Status = jobs.StatusInProgress
	job, err := c.jobs.Update(ctx, job)
	if err != nil {
		return job, err
	}

	processed, err := c.loadProcessedIDs(ctx, job.UserKey)
	if err != nil {
		return c.fail(ctx, job, fmt.Errorf("load progress: %w", err))
	}
	c.log.Info().Str("job_id", job.ID).Str("user", job.UserKey).
		Int("already_processed", len(processed)).Msg("fetch job starting")

	var (
		batchEntries []string
		batchIDs     []string
		sum          Summary
		pageToken    string
	)

	flush := func() error {
		if len(batchIDs) == 0 {
			return nil
		}
		if err := c.flushBatch(ctx, job.UserKey, batchEntries, batchIDs); err != nil {
			return err
		}
		batchEntries = batchEntries[:0]
		batchIDs = batchIDs[:0]
		return nil
	}

	for {
		// Cancellation unit: stop submitting new pages. In-flight work
		// inside a page runs to completion.
		select {
		case <-ctx.Done():
			return c.fail(ctx, job, ctx.Err())
		default:
		}

		pageSize := opts.PageSize
		if opts.Limit > 0 {
			remaining := opts.Limit - sum.TotalFetched
			if remaining <= 0 {
				sum.LimitReached = true
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := c.src.ListIDs(ctx, opts.Query, pageToken, pageSize)
		if err != nil {
			return c.fail(ctx, job, fmt.Errorf("list records: %w", err))
		}
		if len(page.IDs) == 0 {
			break
		}

		for _, id := range page.IDs {
			if processed.Has(id) {
				continue
			}

			out := c.processRecord(ctx, id)
			switch {
			case out.err != nil:
				sum.Errors++
				c.log.Warn().Str("job_id", job.ID).Str("record_id", id).
					Err(out.err).Msg("record failed, skipping")
			case out.skip != "":
				sum.TotalFetched++
				sum.Skipped++
				batchIDs = append(batchIDs, id)
				processed.Add(id)
			default:
				sum.TotalFetched++
				sum.Appended++
				batchEntries = append(batchEntries, corpus.Serialize(out.record))
				batchIDs = append(batchIDs, id)
				processed.Add(id)
			}

			if len(batchIDs) >= opts.FlushEvery {
				if err := flush(); err != nil {
					return c.fail(ctx, job, fmt.Errorf("flush batch: %w", err))
				}
			}

			if opts.RecordDelay > 0 {
				if err := c.sleep(ctx, opts.RecordDelay); err != nil {
					return c.fail(ctx, job, err)
				}
			}

			if opts.Limit > 0 && sum.TotalFetched >= opts.Limit {
				sum.LimitReached = true
				break
			}
		}

		// End of page: flush what remains and checkpoint status.
		if err := flush(); err != nil {
			return c.fail(ctx, job, fmt.Errorf("flush batch: %w", err))
		}
		job.Progress = jobs.Progress{
			TotalFetched: sum.TotalFetched,
			Processed:    sum.Appended,
			LimitReached: sum.LimitReached,
		}
		if job, err = c.jobs.Update(ctx, job); err != nil {
			return job, err
		}
		c.log.Info().Str("job_id", job.ID).Int("total_fetched", sum.TotalFetched).
			Int("appended", sum.Appended).Msg("page complete")

		if sum.LimitReached || page.NextToken == "" {
			break
		}
		pageToken = page.NextToken
	}

	sum.CompletedAt = c.now().UTC()
	if err := c.writeSummary(ctx, job.UserKey, sum); err != nil {
		return c.fail(ctx, job, fmt.Errorf("write summary: %w", err))
	}

	job.Status = jobs.StatusCompleted
	job.Progress = jobs.Progress{
		TotalFetched: sum.TotalFetched,
		Processed:    sum.Appended,
		LimitReached: sum.LimitReached,
	}
	if job, err = c.jobs.Update(ctx, job); err != nil {
		return job, err
	}
	c.log.Info().Str("job_id", job.ID).Int("appended", sum.Appended).
		Int("skipped", sum.Skipped).Int("errors", sum.Errors).Msg("fetch job completed")
	return job, nil
}

// processRecord fetches one record's detail and extracts its authored
// content. Records that decode but carry no authored text are skipped so the
// corpus holds only voice-bearing entries.
func (c *Coordinator) processRecord(ctx context.Context, id string) recordOutcome {
	detail, err := c.src.Get(ctx, id)
	if err != nil {
		return recordOutcome{err: fmt.Errorf("get record: %w", err)}
	}

	body := source.Body(detail)
	authored := extract.AuthoredContent(body)
	rec := corpus.Record{
		ID:              id,
		Timestamp:       detail.Header("Date", "Unknown"),
		Recipient:       detail.Header("To", "Unknown"),
		Subject:         detail.Header("Subject", "No Subject"),
		RawBody:         body,
		AuthoredContent: authored,
	}

	if strings.TrimSpace(authored) == "" {
		return recordOutcome{skip: "empty_content"}
	}
	return recordOutcome{record: rec}
}

// flushBatch appends the serialized records and their ids together, in that
// order. An id reaches the progress document only after its record is in the
// corpus; a crash between the two appends re-fetches at most one batch of
// records already written, which the consumer tolerates.
func (c *Coordinator) flushBatch(ctx context.Context, userKey string, entries, ids []string) error {
	if len(entries) > 0 {
		if err := c.blobs.Append(ctx, userKey, CorpusFile, strings.Join(entries, "")); err != nil {
			return err
		}
	}
	return c.blobs.Append(ctx, userKey, ProgressFile, corpus.FormatIDs(ids))
}

func (c *Coordinator) loadProcessedIDs(ctx context.Context, userKey string) (corpus.IDSet, error) {
	doc, err := c.blobs.Read(ctx, userKey, ProgressFile)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return make(corpus.IDSet), nil
		}
		return nil, err
	}
	return corpus.ParseIDSet(doc), nil
}

func (c *Coordinator) writeSummary(ctx context.Context, userKey string, sum Summary) error {
	b, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return c.blobs.Write(ctx, userKey, SummaryFile, string(b))
}

func (c *Coordinator) fail(ctx context.Context, job jobs.Job, cause error) (jobs.Job, error) {
	job.Status = jobs.StatusFailed
	job.Error = cause.Error()
	if updated, err := c.jobs.Update(ctx, job); err == nil {
		job = updated
	} else {
		c.log.Error().Str("job_id", job.ID).Err(err).Msg("could not persist failed status")
	}
	return job, cause
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
