// Package server exposes the pipeline over HTTP: asynchronous fetch jobs
// with polling, and a synchronous analyze-voice run.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/fetch"
	"github.com/mailsense/voicepack/internal/jobs"
	"github.com/mailsense/voicepack/internal/pipeline"
)

// Server holds the HTTP surface and its collaborators.
type Server struct {
	coordinator *fetch.Coordinator
	pipeline    *pipeline.Pipeline
	jobs        *jobs.Store
	log         zerolog.Logger

	fetchOpts    fetch.Options
	pipelineOpts pipeline.Options

	// background is the context fetch jobs run under; it outlives the
	// request that started them and is cancelled only by Drain, so an
	// interrupted job still reaches a persisted terminal status.
	background context.Context
	cancel     context.CancelFunc
	fetchWG    sync.WaitGroup
}

func New(coordinator *fetch.Coordinator, pl *pipeline.Pipeline, jobStore *jobs.Store, log zerolog.Logger, fetchOpts fetch.Options, pipelineOpts pipeline.Options) *Server {
	background, cancel := context.WithCancel(context.Background())
	return &Server{
		coordinator:  coordinator,
		pipeline:     pl,
		jobs:         jobStore,
		log:          log,
		fetchOpts:    fetchOpts,
		pipelineOpts: pipelineOpts,
		background:   background,
		cancel:       cancel,
	}
}

// Drain cancels in-flight fetch jobs and waits until each has persisted a
// terminal status, or until ctx expires. Call after the HTTP listener has
// stopped accepting requests.
func (s *Server) Drain(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.fetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Router builds the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/fetch-history", s.handleFetchHistory).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleJobStatus).Methods(http.MethodGet)
	api.HandleFunc("/analyze-voice", s.handleAnalyzeVoice).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Use(s.logMiddleware)
	return r
}

type fetchHistoryRequest struct {
	UserKey string `json:"user_key"`
	Limit   int    `json:"limit,omitempty"`
	Query   string `json:"query,omitempty"`
}

type analyzeVoiceRequest struct {
	UserKey      string `json:"user_key"`
	TargetTokens int    `json:"target_tokens,omitempty"`
}

// handleFetchHistory starts one job per request and returns its id
// immediately; clients observe progress by polling the job document. A
// request never attaches to an existing job, so polling stays idempotent.
func (s *Server) handleFetchHistory(w http.ResponseWriter, r *http.Request) {
	var req fetchHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserKey == "" {
		sendError(w, http.StatusBadRequest, "user_key is required")
		return
	}

	job, err := s.jobs.Create(r.Context(), req.UserKey)
	if err != nil {
		s.log.Error().Err(err).Msg("create job")
		sendError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	opts := s.fetchOpts
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Query != "" {
		opts.Query = req.Query
	}
	s.fetchWG.Add(1)
	go func() {
		defer s.fetchWG.Done()
		if _, err := s.coordinator.Run(s.background, job, opts); err != nil {
			s.log.Warn().Str("job_id", job.ID).Err(err).Msg("fetch job failed")
		}
	}()

	sendJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "fetch started",
		"job_id":  job.ID,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			sendError(w, http.StatusNotFound, "unknown job id")
			return
		}
		s.log.Error().Str("job_id", id).Err(err).Msg("load job")
		sendError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     job,
	})
}

func (s *Server) handleAnalyzeVoice(w http.ResponseWriter, r *http.Request) {
	var req analyzeVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserKey == "" {
		sendError(w, http.StatusBadRequest, "user_key is required")
		return
	}

	opts := s.pipelineOpts
	if req.TargetTokens > 0 {
		opts.TargetTokens = req.TargetTokens
	}
	res, err := s.pipeline.AnalyzeVoice(r.Context(), req.UserKey, opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoCorpus) {
			sendError(w, http.StatusNotFound, "no fetched corpus for user; run fetch-history first")
			return
		}
		s.log.Error().Str("user", req.UserKey).Err(err).Msg("analyze voice")
		sendError(w, http.StatusInternalServerError, "voice analysis failed")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "voice sample ready",
		"result":  res,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request")
	})
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, map[string]any{
		"success": false,
		"message": msg,
	})
}
