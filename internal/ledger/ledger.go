package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hospital-voice-booking/internal/audit"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/events"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

var ledgerTracer = otel.Tracer("hospital.internal.ledger")

// Ledger commits and moves bookings. The audit mirror and event publisher are
// written after the store and never undo a store change.
type Ledger struct {
	store     Store
	audit     audit.Log
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Ledger)

func WithAudit(log audit.Log) Option {
	return func(l *Ledger) {
		if log != nil {
			l.audit = log
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) {
		if p != nil {
			l.publisher = p
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(store Store, opts ...Option) *Ledger {
	if store == nil {
		panic("ledger: store required")
	}
	l := &Ledger{
		store:     store,
		audit:     audit.Nop{},
		publisher: events.NopPublisher{},
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CommitRequest describes a slot to reserve.
type CommitRequest struct {
	Kind            booking.Kind
	Category        string
	Subject         string
	Date            string
	Interval        string
	CustomerName    string
	CustomerContact string
	HomeService     *bool
}

// Commit reserves the slot. Exactly one of any set of concurrent commits for
// the same slot succeeds; the others get a conflict error.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (*booking.Booking, error) {
	b := booking.Booking{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		Category:        req.Category,
		Subject:         req.Subject,
		Date:            req.Date,
		Interval:        req.Interval,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		HomeService:     req.HomeService,
		CreatedAt:       l.now().UTC(),
	}
	b.Normalize()
	if err := b.Validate(); err != nil {
		l.metrics.ObserveCommit(string(req.Kind), outcomeOf(err))
		return nil, err
	}

	ctx, span := ledgerTracer.Start(ctx, "ledger.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.kind", string(b.Kind)),
		attribute.String("booking.subject", b.Subject),
		attribute.String("booking.date", b.Date),
		attribute.String("booking.interval", b.Interval),
	)

	if err := l.store.Insert(ctx, b); err != nil {
		span.RecordError(err)
		l.metrics.ObserveCommit(string(b.Kind), outcomeOf(err))
		if booking.IsLedgerDown(err) {
			l.logger.Error("ledger commit failed", "subject", b.Subject, "date", b.Date, "error", err)
		}
		return nil, err
	}
	l.metrics.ObserveCommit(string(b.Kind), "committed")
	l.logger.Info("booking committed",
		"booking_id", b.ID,
		"kind", b.Kind,
		"subject", b.Subject,
		"date", b.Date,
		"interval", b.Interval,
	)

	l.mirror(ctx, audit.Booked(b, l.now()))
	l.publish(ctx, events.NewBookingEvent(events.TypeBookingCommitted, b, nil))
	return &b, nil
}

// RescheduleRequest moves the contact's latest booking to a new slot of the
// same subject.
type RescheduleRequest struct {
	Kind    booking.Kind
	Contact string
	// ExpectedID, when set, must match the booking found for Contact.
	ExpectedID string
	Date       string
	Interval   string
}

// Reschedule moves a booking. Stores implementing Mover do it in one
// transaction. Other stores commit the new slot first and free the old one
// afterwards; if freeing fails both slots stay held, which is logged,
// counted and published as booking.reschedule_incomplete.
func (l *Ledger) Reschedule(ctx context.Context, req RescheduleRequest) (*booking.Booking, error) {
	ctx, span := ledgerTracer.Start(ctx, "ledger.reschedule")
	defer span.End()

	old, err := l.store.LatestByContact(ctx, req.Kind, req.Contact)
	if err != nil {
		l.metrics.ObserveReschedule(outcomeOf(err))
		return nil, err
	}
	if old == nil || (req.ExpectedID != "" && old.ID != req.ExpectedID) {
		l.metrics.ObserveReschedule("not_found")
		return nil, booking.NotFoundError("no booking found for this number")
	}

	next := *old
	next.ID = uuid.NewString()
	next.Date = req.Date
	next.Interval = req.Interval
	next.CreatedAt = l.now().UTC()
	next.Normalize()
	if err := next.Validate(); err != nil {
		l.metrics.ObserveReschedule(outcomeOf(err))
		return nil, err
	}
	if next.Key() == old.Key() {
		l.metrics.ObserveReschedule("invalid")
		return nil, booking.InputError("new slot is the same as the current booking")
	}
	span.SetAttributes(
		attribute.String("booking.subject", next.Subject),
		attribute.String("booking.from", old.Date+" "+old.Interval),
		attribute.String("booking.to", next.Date+" "+next.Interval),
	)

	taken, err := l.store.Exists(ctx, next.Key())
	if err != nil {
		l.metrics.ObserveReschedule(outcomeOf(err))
		return nil, err
	}
	if taken {
		l.metrics.ObserveReschedule("conflict")
		return nil, booking.ConflictError("the requested slot is already booked")
	}

	if mover, ok := l.store.(Mover); ok {
		if err := mover.Move(ctx, old.ID, next); err != nil {
			span.RecordError(err)
			l.metrics.ObserveReschedule(outcomeOf(err))
			return nil, err
		}
		l.finishReschedule(ctx, *old, next, true)
		return &next, nil
	}

	if err := l.store.Insert(ctx, next); err != nil {
		span.RecordError(err)
		l.metrics.ObserveReschedule(outcomeOf(err))
		return nil, err
	}
	if err := l.store.Delete(ctx, old.ID); err != nil {
		span.RecordError(err)
		l.metrics.ObserveRescheduleGap()
		l.logger.Error("reschedule left previous slot held",
			"old_booking_id", old.ID,
			"new_booking_id", next.ID,
			"error", err,
		)
		evt := events.NewBookingEvent(events.TypeBookingRescheduleIncomplete, next, old)
		evt.Detail = err.Error()
		l.publish(ctx, evt)
		l.finishReschedule(ctx, *old, next, false)
		return &next, nil
	}
	l.finishReschedule(ctx, *old, next, true)
	return &next, nil
}

func (l *Ledger) finishReschedule(ctx context.Context, old, next booking.Booking, released bool) {
	outcome := "moved"
	if !released {
		outcome = "gap"
	}
	l.metrics.ObserveReschedule(outcome)
	l.logger.Info("booking rescheduled",
		"old_booking_id", old.ID,
		"new_booking_id", next.ID,
		"subject", next.Subject,
		"date", next.Date,
		"interval", next.Interval,
		"outcome", outcome,
	)
	now := l.now()
	l.mirror(ctx, audit.Booked(next, now))
	if released {
		l.mirror(ctx, audit.Released(old, now))
	}
	l.publish(ctx, events.NewBookingEvent(events.TypeBookingRescheduled, next, &old))
}

// FindLatestByContact returns nil, nil when the contact has no booking.
func (l *Ledger) FindLatestByContact(ctx context.Context, kind booking.Kind, contact string) (*booking.Booking, error) {
	return l.store.LatestByContact(ctx, kind, contact)
}

// IsBooked is the authoritative freshness check.
func (l *Ledger) IsBooked(ctx context.Context, key booking.Key) (bool, error) {
	return l.store.Exists(ctx, key)
}

// BookedOn lists the ledger's bookings for a date.
func (l *Ledger) BookedOn(ctx context.Context, date string) ([]booking.Booking, error) {
	return l.store.BookedOn(ctx, date)
}

// BookedBetween lists the ledger's bookings for an inclusive date range.
func (l *Ledger) BookedBetween(ctx context.Context, from, to string) ([]booking.Booking, error) {
	return l.store.BookedBetween(ctx, from, to)
}

func (l *Ledger) mirror(ctx context.Context, entry audit.Entry) {
	if err := l.audit.Append(ctx, entry); err != nil {
		l.metrics.ObserveAuditFailure()
		l.logger.Warn("audit append failed", "booking_id", entry.ID, "action", entry.Action, "error", err)
	}
}

func (l *Ledger) publish(ctx context.Context, evt events.BookingEventV1) {
	if err := l.publisher.Publish(ctx, evt); err != nil {
		l.metrics.ObserveCollaboratorFailure("events")
		l.logger.Warn("booking event publish failed", "type", evt.Type, "booking_id", evt.Booking.ID, "error", err)
	}
}

func outcomeOf(err error) string {
	switch booking.CodeOf(err) {
	case booking.CodeConflict:
		return "conflict"
	case booking.CodeInput:
		return "invalid"
	case booking.CodeNotFound:
		return "not_found"
	case booking.CodeLedgerUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
