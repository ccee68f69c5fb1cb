// File: cmd/app/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"paper-review-batch/internal/config"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/repository"
	agentAdapters "paper-review-batch/internal/infra/adapters/agent"
	pg "paper-review-batch/internal/infra/db/postgres"
	"paper-review-batch/internal/infra/logging"
	"paper-review-batch/internal/infra/metrics"
	"paper-review-batch/internal/infra/notify"
	red "paper-review-batch/internal/infra/redis"
	"paper-review-batch/internal/infra/sink"
	"paper-review-batch/internal/infra/web"
	"paper-review-batch/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	papersDir := flag.String("papers-dir", ".", "directory containing paper JSON files")
	pattern := flag.String("pattern", "*.json", "glob pattern for paper files")
	outputDir := flag.String("output-dir", "", "override review.output_dir")
	concurrency := flag.Int("concurrency", 0, "override review.concurrency")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if *outputDir != "" {
		cfg.Review.OutputDir = *outputDir
	}
	if *concurrency > 0 {
		cfg.Review.Concurrency = *concurrency
	}

	logger := logging.New(cfg.Log, *devMode)
	metrics.MustRegister()

	// ---- Signal handling ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Warn().Str("signal", s.String()).Msg("shutdown requested")
		cancel()
	}()

	// ---- Agent adapter ----
	api, err := agentAdapters.NewOpenHandsAdapter(
		cfg.Agent.BaseURL, cfg.Agent.APIKey, cfg.Agent.Agent, cfg.Agent.Model,
		cfg.Agent.MaxIterations, cfg.Agent.CallTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("agent adapter")
		return 1
	}
	limited := agentAdapters.NewLimitedAgent(api, cfg.Agent.ConcurrentLimit)

	if err := limited.Health(ctx); err != nil {
		logger.Error().Err(err).Str("base_url", cfg.Agent.BaseURL).Msg("agent API health check failed")
		return 1
	}
	logger.Info().Str("base_url", cfg.Agent.BaseURL).Msg("agent API healthy")

	// ---- Checkpoints (optional) ----
	var checkpoints repository.CheckpointRepository
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error().Err(err).Msg("redis")
			return 1
		}
		defer redisClient.Close()
		checkpoints = red.NewCheckpointRepo(redisClient, cfg.Redis.TTL)
		logger.Info().Msg("session checkpoints enabled")
	}

	// ---- Sinks ----
	fsSink, err := sink.NewFilesystemSink(cfg.Review.OutputDir, logger)
	if err != nil {
		logger.Error().Err(err).Msg("output dir")
		return 1
	}
	sinks := []repository.ReportSink{fsSink}
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error().Err(err).Msg("postgres")
			return 1
		}
		defer pool.Close()
		sinks = append(sinks, pg.NewReportRepo(pool))
		logger.Info().Msg("postgres sink enabled")
	}

	// ---- Use cases ----
	prompts := usecase.NewPromptBuilder(cfg.Review.PromptTokenBudget)
	policy := usecase.SessionPolicy{
		PollInterval:   cfg.Agent.PollInterval,
		CallRetryLimit: cfg.Agent.CallRetryLimit,
		BackoffBase:    cfg.Agent.BackoffBase,
		BackoffMax:     cfg.Agent.BackoffMax,
	}
	sessions := usecase.NewSessionManager(limited, prompts, checkpoints, policy, logger)
	batch := usecase.NewBatchRunner(sessions, sinks, logger)

	// ---- Status server (optional) ----
	if cfg.Status.Port > 0 {
		statusSrv := web.NewServer(batch, cfg.Status.AuthToken, logger)
		go func() {
			if err := statusSrv.Start(cfg.Status.Port); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("status server")
			}
		}()
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shCancel()
			_ = statusSrv.Shutdown(shCtx)
		}()
	}

	// ---- Load jobs ----
	jobs, err := loadJobs(*papersDir, *pattern, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("load papers")
		return 1
	}
	if len(jobs) == 0 {
		logger.Error().Str("dir", *papersDir).Str("pattern", *pattern).Msg("no paper files found")
		return 1
	}
	logger.Info().Int("jobs", len(jobs)).Int("concurrency", cfg.Review.Concurrency).Msg("starting batch")

	// ---- Run ----
	start := time.Now()
	outcomes := batch.RunBatch(ctx, jobs, cfg.Review.Concurrency)
	summary := usecase.Summarize(outcomes)
	elapsed := time.Since(start).Round(time.Second)

	if err := fsSink.WriteBatchArtifacts(outcomes, summary); err != nil {
		logger.Error().Err(err).Msg("write batch artifacts")
	}

	// ---- Notify (optional) ----
	if cfg.Notify.TelegramToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.ChatID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier")
		} else if err := notifier.NotifyBatchDone(summary, elapsed.String()); err != nil {
			logger.Error().Err(err).Msg("notify")
		}
	}

	failed := summary.Total - summary.Count(model.StatusSuccess)
	logger.Info().
		Int("total", summary.Total).
		Int("success", summary.Count(model.StatusSuccess)).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("batch finished")
	if failed > 0 {
		return 1
	}
	return 0
}

// loadJobs reads every paper file matching pattern under dir and builds one
// review job per paper, in lexical filename order.
func loadJobs(dir, pattern string, cfg *config.Config) ([]*model.ReviewJob, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	jobs := make([]*model.ReviewJob, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var paper map[string]any
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		job := model.NewReviewJob(paper)
		job.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		job.MaxCriticalItems = cfg.Review.MaxCriticalItems
		job.Timeout = cfg.Agent.SessionTimeout
		if cfg.Agent.MaxRetries > 0 {
			job.MaxRetries = cfg.Agent.MaxRetries
		}
		job.Normalize()
		jobs = append(jobs, job)
	}
	return jobs, nil
}
