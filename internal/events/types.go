package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// Type names a booking lifecycle event.
type Type string

const (
	TypeBookingCommitted            Type = "booking.committed"
	TypeBookingRescheduled          Type = "booking.rescheduled"
	TypeBookingRescheduleIncomplete Type = "booking.reschedule_incomplete"
)

// BookingEventV1 is the payload published for every ledger change.
type BookingEventV1 struct {
	EventID    string           `json:"event_id"`
	Type       Type             `json:"type"`
	Booking    booking.Booking  `json:"booking"`
	Previous   *booking.Booking `json:"previous,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewBookingEvent stamps an id and time on a new event.
func NewBookingEvent(t Type, b booking.Booking, previous *booking.Booking) BookingEventV1 {
	return BookingEventV1{
		EventID:    uuid.NewString(),
		Type:       t,
		Booking:    b,
		Previous:   previous,
		OccurredAt: time.Now().UTC(),
	}
}
