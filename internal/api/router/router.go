package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/hospital-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hospital-voice-booking/internal/http/middleware"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Voice          *handlers.VoiceHandler
	MetricsHandler http.Handler
	// RateLimiter guards the webhook routes when set.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Voice.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.RateLimiter != nil {
			hooks.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		hooks.Post("/voice/turn", cfg.Voice.HandleTurn)
		hooks.Route("/twilio", func(tw chi.Router) {
			tw.Post("/voice", cfg.Voice.HandleTwilioVoice)
			tw.Post("/status", cfg.Voice.HandleTwilioStatus)
		})
	})

	return r
}
