// Package jobs persists fetch-job status documents so polling clients can
// recover job state across process restarts. The store is injected wherever
// jobs are run; there is no global job registry.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailsense/voicepack/internal/blob"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress mirrors the coordinator's per-page accounting.
type Progress struct {
	TotalFetched int  `json:"total_fetched"`
	Processed    int  `json:"processed"`
	LimitReached bool `json:"limit_reached"`
}

// Job is the status document for one fetch job.
type Job struct {
	ID          string    `json:"job_id"`
	UserKey     string    `json:"user_key"`
	Status      Status    `json:"status"`
	Progress    Progress  `json:"progress"`
	StartTime   time.Time `json:"start_time"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

var ErrNotFound = errors.New("jobs: not found")

// jobsUserKey is the blob-store user directory holding job documents, so
// jobs are addressable by id alone.
const jobsUserKey = "_jobs"

// Store keeps job documents in the blob store with an in-memory cache.
// Status reads served from the cache may be briefly stale; that is accepted
// for polling.
type Store struct {
	blobs blob.Store
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]Job
}

func NewStore(blobs blob.Store) *Store {
	return &Store{
		blobs: blobs,
		now:   time.Now,
		cache: make(map[string]Job),
	}
}

// Create registers a new pending job for userKey and persists it.
func (s *Store) Create(ctx context.Context, userKey string) (Job, error) {
	now := s.now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		UserKey:     userKey,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	if err := s.persist(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Update persists the job document and refreshes LastUpdated.
func (s *Store) Update(ctx context.Context, job Job) (Job, error) {
	job.LastUpdated = s.now().UTC()
	if err := s.persist(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Get returns the job by id, from cache when possible.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	s.mu.RLock()
	job, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return job, nil
	}

	doc, err := s.blobs.Read(ctx, jobsUserKey, id+".json")
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return Job{}, fmt.Errorf("jobs: unmarshal %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = job
	s.mu.Unlock()
	return job, nil
}

func (s *Store) persist(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal %s: %w", job.ID, err)
	}
	if err := s.blobs.Write(ctx, jobsUserKey, job.ID+".json", string(b)); err != nil {
		return fmt.Errorf("jobs: persist %s: %w", job.ID, err)
	}
	s.mu.Lock()
	s.cache[job.ID] = job
	s.mu.Unlock()
	return nil
}
