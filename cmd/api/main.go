package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callwave/internal/audit"
	"callwave/internal/auth"
	"callwave/internal/campaigns"
	"callwave/internal/config"
	"callwave/internal/contacts"
	"callwave/internal/httpapi"
	"callwave/internal/interactions"
	"callwave/internal/queue"
	"callwave/internal/reporting"
	"callwave/internal/scenario"
	"callwave/pkg/logger"
	"callwave/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	scenarios, err := scenario.Load(cfg.Audio.ScenarioDir)
	if err != nil {
		log.Error("scenario load failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	campaignStore := campaigns.NewPGStore(db)
	queueStore := queue.NewPGStore(db)

	httpapi.Register(r, httpapi.Handlers{
		Auth:         authManager,
		Campaigns:    campaigns.NewService(campaignStore),
		Queue:        queueStore,
		Contacts:     contacts.NewPGStore(db),
		Interactions: interactions.NewPGStore(db),
		Scenarios:    scenarios,
		Reports:      reporting.NewService(campaignStore, queueStore),
		Audit:        audit.NewService(audit.NewPGRepo(db)),
		MaxAttempts:  3,
	}, auth.RequireToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
