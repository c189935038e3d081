// voicepackd is the long-running daemon: it exposes the fetch-history and
// analyze-voice HTTP API backed by a filesystem blob store and an OpenAI
// completion client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mailsense/voicepack/internal/blob"
	"github.com/mailsense/voicepack/internal/config"
	"github.com/mailsense/voicepack/internal/fetch"
	"github.com/mailsense/voicepack/internal/jobs"
	"github.com/mailsense/voicepack/internal/llm"
	"github.com/mailsense/voicepack/internal/pipeline"
	"github.com/mailsense/voicepack/internal/reduce"
	"github.com/mailsense/voicepack/internal/server"
	"github.com/mailsense/voicepack/internal/source"
	"github.com/mailsense/voicepack/internal/token"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "voicepackd",
		Short:         "Sent-mail voice extraction daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	root.AddCommand(newServeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var (
		listen    string
		sourceDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if sourceDir == "" {
				return errors.New("missing --source-dir")
			}
			return runServe(cmd.Context(), cfg, sourceDir)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "directory of RFC 5322 message files to serve records from")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, sourceDir string) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return errors.New("missing llm.api_key (or OPENAI_API_KEY)")
	}

	src, err := source.NewDirSource(sourceDir)
	if err != nil {
		return err
	}
	blobs, err := blob.NewFSStore(cfg.Blob.Root, cfg.Blob.Namespace)
	if err != nil {
		return err
	}
	jobStore := jobs.NewStore(blobs)

	codec, err := token.ForModel(cfg.LLM.FilterModel)
	if err != nil {
		return err
	}

	completer := llm.NewOpenAIClient(apiKey)
	policy := llm.RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second}

	coordinator := fetch.NewCoordinator(src, blobs, jobStore, log)
	reducer := reduce.NewReducer(completer, codec, policy, log)
	converger := reduce.NewConverger(completer, codec, policy, log)
	pl := pipeline.New(blobs, reducer, converger, codec, log)

	fetchOpts := fetch.Options{
		Query:       cfg.Fetch.Query,
		Limit:       cfg.Fetch.Limit,
		PageSize:    cfg.Fetch.PageSize,
		FlushEvery:  cfg.Fetch.FlushEvery,
		RecordDelay: cfg.Fetch.RecordDelay,
	}
	pipelineOpts := pipeline.Options{
		ChunkSize:    cfg.Reduce.ChunkSize,
		Overlap:      cfg.Reduce.Overlap,
		TargetTokens: cfg.Reduce.TargetTokens,
		Reduce: reduce.Options{
			Model:           cfg.LLM.FilterModel,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
			Slots:           cfg.Reduce.Slots,
			Stagger:         cfg.Reduce.Stagger,
		},
		Converge: reduce.ConvergeOptions{
			Model:          cfg.LLM.ConvergeModel,
			ContextCeiling: cfg.Reduce.ContextCeiling,
			BatchRecords:   cfg.Reduce.BatchRecords,
		},
	}

	srv := server.New(coordinator, pl, jobStore, log, fetchOpts, pipelineOpts)
	httpSrv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("source_dir", sourceDir).Msg("server starting")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Interrupted fetch jobs must land in a terminal status before exit, or
	// polling clients would see in_progress forever after a restart.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDrain()
	if err := srv.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("fetch jobs did not drain before exit")
	}
	return nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
	}

	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.NewConsoleWriter())
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
