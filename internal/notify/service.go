// Package notify sends booking confirmations to callers.
package notify

import (
	"context"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// Notifier delivers a text message to a caller's contact number.
type Notifier interface {
	Notify(ctx context.Context, contact, message string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// Service formats confirmations and sends them best-effort. Delivery
// failures are logged and counted, never returned.
type Service struct {
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewService creates a notification service. A nil notifier disables sending.
func NewService(n Notifier, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if n == nil {
		n = Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{notifier: n, metrics: m, logger: logger}
}

// BookingConfirmed sends the confirmation for a new booking.
func (s *Service) BookingConfirmed(ctx context.Context, b booking.Booking) {
	s.send(ctx, b, BookingConfirmation(b), "confirmation")
}

// Rescheduled sends the confirmation for a moved booking.
func (s *Service) Rescheduled(ctx context.Context, b booking.Booking) {
	s.send(ctx, b, RescheduleConfirmation(b), "reschedule")
}

func (s *Service) send(ctx context.Context, b booking.Booking, body, kind string) {
	if s == nil {
		return
	}
	if err := s.notifier.Notify(ctx, b.CustomerContact, body); err != nil {
		s.metrics.ObserveCollaboratorFailure("sms")
		s.logger.Error("notify: sms failed", "booking_id", b.ID, "message", kind, "error", err)
		return
	}
	s.logger.Debug("notify: sms delivered", "booking_id", b.ID, "message", kind)
}
