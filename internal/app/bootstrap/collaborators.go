package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/events"
	"github.com/wolfman30/hospital-voice-booking/internal/notify"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/internal/qa"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// BuildAnswerer wires the QA collaborator, optionally summarised by Gemini.
// It returns nil when QA_BASE_URL is unset; callers then hear a canned
// apology for questions.
func BuildAnswerer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (dialogue.Answerer, func() error) {
	noop := func() error { return nil }
	if cfg == nil || strings.TrimSpace(cfg.QABaseURL) == "" {
		return nil, noop
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := qa.NewClient(qa.Config{BaseURL: cfg.QABaseURL, APIKey: cfg.QAAPIKey, Timeout: cfg.QATimeout})
	if err != nil {
		logger.Warn("qa client disabled", "error", err)
		return nil, noop
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return qa.NewService(client, nil, logger), noop
	}
	summarizer, err := qa.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Warn("answer summaries disabled", "error", err)
		return qa.NewService(client, nil, logger), noop
	}
	logger.Info("answer summaries enabled", "model", cfg.GeminiModelID)
	return qa.NewService(client, summarizer, logger), summarizer.Close
}

// BuildConfirmer returns the SMS confirmation sender. Missing Twilio
// credentials leave confirmations logged but unsent.
func BuildConfirmer(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) dialogue.Confirmer {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
		logger.Warn("twilio not configured; confirmation sms disabled")
		return nil
	}
	sms := notify.NewTwilioSMS(notify.TwilioConfig{
		AccountSID:  cfg.TwilioAccountSID,
		AuthToken:   cfg.TwilioAuthToken,
		From:        cfg.TwilioFromNumber,
		CountryCode: cfg.SMSCountryCode,
	}, logger)
	return notify.NewService(sms, m, logger)
}

// BuildEventPublisher returns the SQS booking-event publisher, or nil when no
// queue is configured.
func BuildEventPublisher(cfg *appconfig.Config, client *sqs.Client) events.Publisher {
	if cfg == nil || strings.TrimSpace(cfg.BookingEventsQueueURL) == "" || client == nil {
		return nil
	}
	return events.NewSQSPublisher(client, cfg.BookingEventsQueueURL)
}
