// Package ledger is the authoritative record of bookings. Conflict detection
// happens only here, through an atomic insert-if-absent on the slot key.
package ledger

import (
	"context"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// Store persists bookings. Insert must be atomic: of any number of
// concurrent inserts for one key, exactly one succeeds and the rest return a
// conflict error.
type Store interface {
	Insert(ctx context.Context, b booking.Booking) error
	Exists(ctx context.Context, key booking.Key) (bool, error)
	BookedOn(ctx context.Context, date string) ([]booking.Booking, error)
	// BookedBetween lists bookings with from <= date <= to (YYYY-MM-DD).
	BookedBetween(ctx context.Context, from, to string) ([]booking.Booking, error)
	// LatestByContact returns nil, nil when the contact has no booking.
	LatestByContact(ctx context.Context, kind booking.Kind, contact string) (*booking.Booking, error)
	Delete(ctx context.Context, id string) error
}

// Mover is implemented by stores that can swap a booking for a new one in a
// single transaction.
type Mover interface {
	Move(ctx context.Context, oldID string, next booking.Booking) error
}
