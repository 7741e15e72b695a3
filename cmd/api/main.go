package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/hospital-voice-booking/cmd/mainconfig"
	"github.com/wolfman30/hospital-voice-booking/internal/api/router"
	"github.com/wolfman30/hospital-voice-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hospital-voice-booking/internal/http/middleware"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting hospital-voice-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"booking_window_days", cfg.BookingWindowDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, cleanup, err := mainconfig.ConnectClients(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	metricsHandler, bookingMetrics := setupMetrics()
	services, err := bootstrap.BuildServices(ctx, cfg, clients, bookingMetrics, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("failed to close services", "error", err)
		}
	}()
	startSweepers(ctx, services.Sessions, logger)

	limiter := httpmiddleware.NewRateLimiter(20, 40)
	go limiter.RunEvictor(ctx, 5*time.Minute)

	r := router.New(&router.Config{
		Logger:         logger,
		Voice:          handlers.NewVoiceHandler(handlers.VoiceHandlerConfig{Engine: services.Engine, Logger: logger.Component("voice")}),
		MetricsHandler: metricsHandler,
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers booking metrics on a private registry and returns
// the handler that exposes it.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// startSweepers expires idle in-memory call sessions. Redis and DynamoDB
// expire sessions on their own.
func startSweepers(ctx context.Context, sessions dialogue.SessionStore, logger *logging.Logger) {
	mem, ok := sessions.(*dialogue.MemoryStore)
	if !ok {
		return
	}
	logger.Info("in-memory session sweeper started")
	go mem.RunSweeper(ctx, time.Minute)
}
