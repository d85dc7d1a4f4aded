package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payprompt/payprompt-backend/internal/api"
	"github.com/payprompt/payprompt-backend/internal/auth"
	"github.com/payprompt/payprompt-backend/internal/config"
	"github.com/payprompt/payprompt-backend/internal/db"
	"github.com/payprompt/payprompt-backend/internal/logger"
	"github.com/payprompt/payprompt-backend/internal/metrics"
	"github.com/payprompt/payprompt-backend/internal/notify"
	"github.com/payprompt/payprompt-backend/internal/repository/postgres"
	"github.com/payprompt/payprompt-backend/internal/scheduler"
	"github.com/payprompt/payprompt-backend/internal/services"
	"github.com/payprompt/payprompt-backend/internal/worker"
)

// global db connection pool
var dbPool *pgxpool.Pool

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	dbPool, err = db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, dbPool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	repos := postgres.NewRepositories(dbPool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	gw := notify.NewClient(cfg)
	sched := scheduler.New(repos.Transactions, repos.Settings, gw, wp, cfg.ApprovalSMS)
	defer sched.Stop()

	tm := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, 15*time.Minute, 24*time.Hour)
	txnSvc := services.NewTransactionService(
		repos.Transactions,
		repos.Settings,
		repos.AuditLogs,
		gw,
		sched,
		cfg,
	)

	metrics.Init()
	r := api.NewRouter(cfg, txnSvc, repos.Settings, tm)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
