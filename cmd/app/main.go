package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackathon-ai-jury/internal/analysis"
	"hackathon-ai-jury/internal/config"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/adapter"
	aiadapter "hackathon-ai-jury/internal/infra/adapters/ai"
	"hackathon-ai-jury/internal/infra/adapters/github"
	"hackathon-ai-jury/internal/infra/adapters/telegram"
	"hackathon-ai-jury/internal/infra/db/postgres"
	"hackathon-ai-jury/internal/infra/hub"
	"hackathon-ai-jury/internal/infra/logging"
	"hackathon-ai-jury/internal/infra/metrics"
	"hackathon-ai-jury/internal/infra/reclaimer"
	red "hackathon-ai-jury/internal/infra/redis"
	"hackathon-ai-jury/internal/infra/web"
	"hackathon-ai-jury/internal/infra/worker"
	"hackathon-ai-jury/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dev := flag.Bool("dev", false, "development mode (console logs, noop fallbacks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, *dev)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Storage ----
	pgPool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	txm := postgres.NewTxManager(pgPool)
	jobRepo := postgres.NewAnalysisJobRepo(pgPool, txm)
	sessionRepo := postgres.NewEliminationRepo(pgPool)

	redisCli, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer redisCli.Close()
	locker := red.NewLocker(redisCli)
	statusCache := red.NewJobStatusCache(redisCli, cfg.Redis.StatusTTL)

	// ---- Progress hub ----
	h := hub.New(cfg.Jury.HubReplay, cfg.Jury.HubGracePeriod, logger)
	defer h.Close()

	// ---- AI + repo adapters ----
	var ai adapter.AIServiceAdapter
	switch {
	case cfg.AI.OpenAIKey != "":
		ai, err = aiadapter.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("init openai adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("using OpenAI adapter")
	case cfg.AI.GeminiKey != "":
		ai, err = aiadapter.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("init gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("using Gemini adapter")
	case cfg.Runtime.Dev:
		ai = aiadapter.NewNoopAIAdapter()
		logger.Warn().Msg("no AI key configured, using noop adapter")
	default:
		logger.Fatal().Msg("no AI provider configured (set ai.openai_key or ai.gemini_key)")
	}
	ai = aiadapter.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	fetcher := github.NewClient(cfg.GitHub.APIBase, cfg.GitHub.Token)
	registry := analysis.NewRegistry(fetcher, ai, cfg.AI.DefaultModel)

	var notifier adapter.Notifier
	if cfg.Telegram.Token != "" {
		notifier, err = telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("init telegram notifier")
		}
	} else {
		notifier = telegram.NewNoopNotifier(logger)
	}

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.PoolSize, logger)
	pool.Start(ctx)
	defer pool.Stop()

	processor := worker.NewAnalysisProcessor(
		jobRepo, registry, h, notifier,
		cfg.Worker.PollInterval, cfg.Worker.MaxAttempts, cfg.Worker.RetryBackoff,
		logger,
	)
	go processor.Start(ctx, pool)

	timeouts := make(map[model.JobType]time.Duration, len(cfg.Reclaimer.Timeouts))
	for k, v := range cfg.Reclaimer.Timeouts {
		timeouts[model.JobType(k)] = v
	}
	rec, err := reclaimer.New(jobRepo, h, timeouts, cfg.Reclaimer.SweepInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init reclaimer")
	}
	rec.Start(ctx)
	defer rec.Stop()

	// ---- Use cases ----
	analysisUC := usecase.NewAnalysisUseCase(jobRepo, locker, statusCache, h, rec, logger)
	juryUC, err := usecase.NewEliminationUseCase(
		ctx, sessionRepo, registry, h, notifier,
		cfg.Jury.StageLabels, cfg.Jury.ScoreThresholds,
		cfg.Worker.MaxAttempts, cfg.Worker.RetryBackoff,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("init elimination use case")
	}

	// ---- Ops HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, 30*time.Minute)
	server := web.NewServer(analysisUC, juryUC, auth, cfg.Admin.Port, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops server stopped")
		}
	}()

	logger.Info().Str("version", version).Str("commit", commit).Msg("ai-jury started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown")
	}
	cancel()
}
