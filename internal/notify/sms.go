package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

var twilioSMSTracer = otel.Tracer("hospital.internal.notify.twilio_sms")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds Twilio REST credentials and sender details.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// CountryCode is prefixed to bare national numbers, e.g. "+91".
	CountryCode string
	// BaseURL overrides the Twilio API host, mostly for tests.
	BaseURL     string
	MaxAttempts int
	Timeout     time.Duration
}

// TwilioSMS posts SMS messages through Twilio's REST API.
type TwilioSMS struct {
	cfg        TwilioConfig
	httpClient *http.Client
	logger     *logging.Logger
	sleep      func(time.Duration)
}

var _ Notifier = (*TwilioSMS)(nil)

// NewTwilioSMS builds a sender with sane defaults.
func NewTwilioSMS(cfg TwilioConfig, logger *logging.Logger) *TwilioSMS {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TwilioSMS{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Notify sends one SMS, retrying transient failures.
func (s *TwilioSMS) Notify(ctx context.Context, contact, message string) error {
	if s.cfg.AccountSID == "" || s.cfg.AuthToken == "" {
		return errors.New("notify: twilio credentials missing")
	}
	if s.cfg.From == "" {
		return errors.New("notify: from number required")
	}
	to := s.e164(contact)
	if to == "" {
		return errors.New("notify: recipient required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("notify: message required")
	}

	ctx, span := twilioSMSTracer.Start(ctx, "notify.twilio.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("hospital.sms.to", maskNumber(to)))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", s.cfg.From)
	payload.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, s.cfg.AccountSID)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(body, &parsed)
				s.logger.Info("sms sent", "to", maskNumber(to), "sid", parsed.SID, "attempt", attempt)
				return nil
			}
			lastErr = fmt.Errorf("notify: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			// 4xx other than rate limiting will not succeed on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < s.cfg.MaxAttempts {
			s.sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	span.RecordError(lastErr)
	return lastErr
}

// e164 prefixes the country code to a bare national number.
func (s *TwilioSMS) e164(contact string) string {
	digits := strings.TrimSpace(contact)
	if digits == "" || strings.HasPrefix(digits, "+") {
		return digits
	}
	code := s.cfg.CountryCode
	if code == "" {
		code = "+91"
	}
	if !strings.HasPrefix(code, "+") {
		code = "+" + code
	}
	return code + digits
}

func maskNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
