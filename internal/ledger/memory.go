package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	bySlot map[booking.Key]booking.Booking
	byID   map[string]booking.Key
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Mover = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySlot: make(map[booking.Key]booking.Booking),
		byID:   make(map[string]booking.Key),
	}
}

func (s *MemoryStore) Insert(_ context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(b)
}

func (s *MemoryStore) insertLocked(b booking.Booking) error {
	key := b.Key()
	if _, taken := s.bySlot[key]; taken {
		return booking.ConflictError(fmt.Sprintf("%s is already booked on %s at %s", b.Subject, b.Date, b.Interval))
	}
	s.bySlot[key] = b
	s.byID[b.ID] = key
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key booking.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bySlot[key]
	return ok, nil
}

func (s *MemoryStore) BookedOn(ctx context.Context, date string) ([]booking.Booking, error) {
	return s.BookedBetween(ctx, date, date)
}

func (s *MemoryStore) BookedBetween(_ context.Context, from, to string) ([]booking.Booking, error) {
	s.mu.Lock()
	var out []booking.Booking
	for key, b := range s.bySlot {
		if key.Date >= from && key.Date <= to {
			out = append(out, b)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Interval != out[j].Interval {
			return out[i].Interval < out[j].Interval
		}
		return out[i].Subject < out[j].Subject
	})
	return out, nil
}

func (s *MemoryStore) LatestByContact(_ context.Context, kind booking.Kind, contact string) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *booking.Booking
	for _, b := range s.bySlot {
		if b.Kind != kind || b.CustomerContact != contact {
			continue
		}
		if latest == nil || b.Date > latest.Date || (b.Date == latest.Date && b.Interval > latest.Interval) {
			cp := b
			latest = &cp
		}
	}
	return latest, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *MemoryStore) deleteLocked(id string) error {
	key, ok := s.byID[id]
	if !ok {
		return booking.NotFoundError("booking " + id + " not found")
	}
	delete(s.byID, id)
	delete(s.bySlot, key)
	return nil
}

// Move swaps oldID for next under one lock.
func (s *MemoryStore) Move(_ context.Context, oldID string, next booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[oldID]; !ok {
		return booking.NotFoundError("booking " + oldID + " not found")
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	return s.deleteLocked(oldID)
}
