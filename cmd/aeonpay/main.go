package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pipphxntom/AeonPay/internal/api"
	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/config"
	"github.com/pipphxntom/AeonPay/internal/database"
	"github.com/pipphxntom/AeonPay/internal/idempotency"
	"github.com/pipphxntom/AeonPay/internal/seed"
	"github.com/pipphxntom/AeonPay/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	log.Info("starting aeonpay service", "environment", cfg.App.Environment)

	// Initialize database connection
	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connection", "error", err)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if cfg.App.SeedDemo {
		if err := seed.Run(ctx, db.Postgres, log); err != nil {
			log.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	// Wire the engines
	dir := service.NewDirectory(db.Postgres)
	ledger := service.NewLedger(db.Postgres)
	plans := service.NewPlans(db.Postgres)
	vouchers := service.NewVouchers(db.Postgres, dir)
	mandates := service.NewMandates(db.Postgres, dir, service.NewProbabilisticOutcome(cfg.App.MandateSuccessRate))
	payments := service.NewPayments(db.Postgres, dir, ledger, cfg.App.GuardrailThreshold)

	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	idem := idempotency.NewStore(db.Postgres)

	srv := api.NewServer(cfg, log, db, plans, vouchers, mandates, payments, ledger, authSvc, idem)

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(srv.Handler(), &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		log.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.App.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
