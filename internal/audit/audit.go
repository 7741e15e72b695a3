// Package audit keeps a best-effort, append-only mirror of ledger activity.
// It is never consulted for conflict detection.
package audit

import (
	"context"
	"time"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// Action records what happened to a slot.
type Action string

const (
	ActionBooked   Action = "booked"
	ActionReleased Action = "released"
)

// Entry is one JSONL line. Lines written before actions existed decode with
// an empty Action and are treated as bookings.
type Entry struct {
	Action Action `json:"action,omitempty"`
	booking.Booking
	RecordedAt time.Time `json:"recorded_at"`
}

// Log appends entries and reads them back per booking date or for an
// inclusive range of dates.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	Entries(ctx context.Context, date string) ([]Entry, error)
	EntriesBetween(ctx context.Context, from, to string) ([]Entry, error)
}

// Booked builds a booked entry for b.
func Booked(b booking.Booking, at time.Time) Entry {
	return Entry{Action: ActionBooked, Booking: b, RecordedAt: at.UTC()}
}

// Released builds a released entry for b.
func Released(b booking.Booking, at time.Time) Entry {
	return Entry{Action: ActionReleased, Booking: b, RecordedAt: at.UTC()}
}

// Fold replays entries in order and returns the bookings still held.
func Fold(entries []Entry) []booking.Booking {
	held := make(map[booking.Key]booking.Booking)
	var order []booking.Key
	for _, e := range entries {
		key := e.Key()
		switch e.Action {
		case ActionReleased:
			delete(held, key)
		default:
			if _, ok := held[key]; !ok {
				order = append(order, key)
			}
			held[key] = e.Booking
		}
	}
	out := make([]booking.Booking, 0, len(held))
	for _, key := range order {
		if b, ok := held[key]; ok {
			out = append(out, b)
			delete(held, key)
		}
	}
	return out
}

// Nop discards writes and reads nothing.
type Nop struct{}

func (Nop) Append(context.Context, Entry) error { return nil }

func (Nop) Entries(context.Context, string) ([]Entry, error) { return nil, nil }

func (Nop) EntriesBetween(context.Context, string, string) ([]Entry, error) { return nil, nil }

func onDate(date string) func(string) bool {
	return func(d string) bool { return d == date }
}

func between(from, to string) func(string) bool {
	return func(d string) bool { return d >= from && d <= to }
}
