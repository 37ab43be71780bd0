package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"callwave/internal/assembly"
	"callwave/internal/campaigns"
	"callwave/internal/classify"
	"callwave/internal/config"
	"callwave/internal/contacts"
	"callwave/internal/dispatch"
	"callwave/internal/interactions"
	"callwave/internal/queue"
	"callwave/internal/scenario"
	"callwave/internal/telephony"
	"callwave/internal/transcribe"
	"callwave/pkg/logger"
	"callwave/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const slotKey = "callwave:active_calls"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	scenarios, err := scenario.Load(cfg.Audio.ScenarioDir)
	if err != nil {
		log.Error("scenario load failed", "err", err)
		os.Exit(1)
	}
	log.Info("scenarios loaded", "names", scenarios.Names())

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	driver, err := telephony.NewARIDriver(telephony.Options{
		URL:          cfg.ARI.URL,
		Username:     cfg.ARI.Username,
		Password:     cfg.ARI.Password,
		AppName:      cfg.ARI.AppName,
		Endpoint:     cfg.ARI.Endpoint,
		RecordingDir: cfg.Audio.RecordingDir,
	}, log)
	if err != nil {
		log.Error("ari init failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close()

	if err := driver.HealthCheck(rootCtx); err != nil {
		log.Error("ari health check failed", "err", err)
		os.Exit(1)
	}

	transcriber := transcribe.NewHTTPTranscriber(cfg.Speech.TranscriberURL, cfg.Speech.Language, cfg.Speech.RequestTimeout)
	classifier := &classify.Fallback{Chain: []classify.Classifier{
		classify.NewOllamaClassifier(cfg.Speech.ClassifierURL, cfg.Speech.ClassifierModel, cfg.Speech.RequestTimeout),
		classify.NewKeywordClassifier(),
	}}

	artifacts := assembly.NewPipeline(
		assembly.NewAssembler(cfg.Audio.ArtifactDir, cfg.Audio.PromptDir, log),
		assembly.NewTranscriptWriter(cfg.Audio.ArtifactDir),
		log,
	)

	d := dispatch.New(dispatch.Options{
		MaxConcurrentCalls: cfg.Dispatch.MaxConcurrentCalls,
		LaunchSpacing:      cfg.Dispatch.LaunchSpacing,
		PollInterval:       cfg.Dispatch.PollInterval,
		StuckCallTimeout:   cfg.Dispatch.StuckCallTimeout,
	}, dispatch.Deps{
		Queue:        queue.NewPGStore(db),
		Campaigns:    campaigns.NewPGStore(db),
		Contacts:     contacts.NewPGStore(db),
		Scenarios:    scenarios,
		Driver:       driver,
		Transcriber:  transcriber,
		Classifier:   classifier,
		Interactions: interactions.NewPGStore(db),
		Slots: dispatch.NewRedisSlots(rdb, slotKey, cfg.Dispatch.MaxConcurrentCalls,
			2*cfg.Dispatch.StuckCallTimeout),
		Artifacts: artifacts,
		Log:       log,
	})

	err = d.Run(rootCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatcher failed", "err", err)
		os.Exit(1)
	}

	log.Info("orchestrator stopped")
}
