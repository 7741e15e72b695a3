package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-voice-booking/internal/audit"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/events"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (r *recordingAudit) Append(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) Entries(context.Context, string) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...), nil
}

func (r *recordingAudit) EntriesBetween(ctx context.Context, _, _ string) ([]audit.Entry, error) {
	return r.Entries(ctx, "")
}

// storeOnly hides Move so the non-transactional reschedule path runs.
type storeOnly struct {
	Store
	deleteErr error
}

func (s storeOnly) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, id)
}

func commitReq(interval string) CommitRequest {
	return CommitRequest{
		Kind:            booking.KindDoctor,
		Category:        "Cardiology",
		Subject:         "Dr. Mehta",
		Date:            "2025-07-22",
		Interval:        interval,
		CustomerName:    "Asha",
		CustomerContact: "9876543210",
	}
}

func TestCommitConcurrentSingleWinner(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Commit(ctx, commitReq("10:00-10:30"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case booking.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
}

func TestCommitMirrorsAndPublishes(t *testing.T) {
	rec := &recordingAudit{}
	pub := &events.MemoryPublisher{}
	reg := prometheus.NewRegistry()
	fixed := time.Date(2025, 7, 20, 9, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore(),
		WithAudit(rec),
		WithPublisher(pub),
		WithMetrics(metrics.NewBookingMetrics(reg)),
		WithClock(func() time.Time { return fixed }),
	)

	b, err := l.Commit(context.Background(), commitReq("10:00-10:30"))
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, fixed, b.CreatedAt)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionBooked, rec.entries[0].Action)
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, events.TypeBookingCommitted, pub.Events()[0].Type)

	booked, err := l.IsBooked(context.Background(), b.Key())
	require.NoError(t, err)
	assert.True(t, booked)
}

func TestCommitSurvivesAuditFailure(t *testing.T) {
	rec := &recordingAudit{err: errors.New("disk full")}
	l := New(NewMemoryStore(), WithAudit(rec))

	b, err := l.Commit(context.Background(), commitReq("10:00-10:30"))
	require.NoError(t, err)
	booked, err := l.IsBooked(context.Background(), b.Key())
	require.NoError(t, err)
	assert.True(t, booked)
}

func TestCommitRejectsIncompleteRequest(t *testing.T) {
	l := New(NewMemoryStore())
	req := commitReq("10:00-10:30")
	req.CustomerContact = ""
	_, err := l.Commit(context.Background(), req)
	assert.True(t, booking.IsInput(err))
}

func TestRescheduleWithMoverFreesOldSlot(t *testing.T) {
	ctx := context.Background()
	rec := &recordingAudit{}
	pub := &events.MemoryPublisher{}
	l := New(NewMemoryStore(), WithAudit(rec), WithPublisher(pub))

	old, err := l.Commit(ctx, commitReq("10:00-10:30"))
	require.NoError(t, err)

	next, err := l.Reschedule(ctx, RescheduleRequest{
		Kind:       booking.KindDoctor,
		Contact:    "9876543210",
		ExpectedID: old.ID,
		Date:       "2025-07-23",
		Interval:   "11:00-11:30",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Mehta", next.Subject)
	assert.NotEqual(t, old.ID, next.ID)

	oldHeld, _ := l.IsBooked(ctx, old.Key())
	newHeld, _ := l.IsBooked(ctx, next.Key())
	assert.False(t, oldHeld)
	assert.True(t, newHeld)

	latest, err := l.FindLatestByContact(ctx, booking.KindDoctor, "9876543210")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, next.ID, latest.ID)

	actions := []audit.Action{}
	for _, e := range rec.entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionBooked, audit.ActionBooked, audit.ActionReleased}, actions)
	evts := pub.Events()
	require.Len(t, evts, 2)
	assert.Equal(t, events.TypeBookingRescheduled, evts[1].Type)
	require.NotNil(t, evts[1].Previous)
	assert.Equal(t, old.ID, evts[1].Previous.ID)
}

func TestRescheduleWithoutMoverCommitsThenFrees(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	l := New(storeOnly{Store: mem})

	old, err := l.Commit(ctx, commitReq("10:00-10:30"))
	require.NoError(t, err)
	next, err := l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "9876543210", Date: "2025-07-22", Interval: "12:00-12:30"})
	require.NoError(t, err)

	all, err := mem.BookedOn(ctx, "2025-07-22")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, next.ID, all[0].ID)
	assert.NotEqual(t, old.ID, all[0].ID)
}

func TestRescheduleGapIsSurfaced(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	pub := &events.MemoryPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	l := New(storeOnly{Store: mem, deleteErr: booking.LedgerUnavailable("delete booking", errors.New("timeout"))},
		WithPublisher(pub), WithMetrics(m))

	_, err := l.Commit(ctx, commitReq("10:00-10:30"))
	require.NoError(t, err)
	next, err := l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "9876543210", Date: "2025-07-22", Interval: "12:00-12:30"})
	require.NoError(t, err)
	require.NotNil(t, next)

	all, _ := mem.BookedOn(ctx, "2025-07-22")
	assert.Len(t, all, 2, "both slots stay held when freeing fails")

	var types []events.Type
	for _, e := range pub.Events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TypeBookingRescheduleIncomplete)

	families, err := reg.Gather()
	require.NoError(t, err)
	var gap float64
	for _, f := range families {
		if f.GetName() == "hospital_ledger_reschedule_gap_total" {
			gap = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), gap)
}

func TestRescheduleConflictAndNotFound(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())

	_, err := l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "0000000000", Date: "2025-07-22", Interval: "10:00-10:30"})
	assert.True(t, booking.IsNotFound(err))

	_, err = l.Commit(ctx, commitReq("10:00-10:30"))
	require.NoError(t, err)
	other := commitReq("10:30-11:00")
	other.CustomerContact = "9999999999"
	_, err = l.Commit(ctx, other)
	require.NoError(t, err)

	_, err = l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "9876543210", Date: "2025-07-22", Interval: "10:30-11:00"})
	assert.True(t, booking.IsConflict(err))

	_, err = l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "9876543210", Date: "2025-07-22", Interval: "10:00-10:30"})
	assert.True(t, booking.IsInput(err))

	_, err = l.Reschedule(ctx, RescheduleRequest{Kind: booking.KindDoctor, Contact: "9876543210", ExpectedID: "stale", Date: "2025-07-23", Interval: "10:00-10:30"})
	assert.True(t, booking.IsNotFound(err))
}

func TestFindLatestByContactNone(t *testing.T) {
	l := New(NewMemoryStore())
	b, err := l.FindLatestByContact(context.Background(), booking.KindLab, "9876543210")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMemoryBookedBetweenIsInclusive(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	for _, b := range []booking.Booking{
		sampleBooking("b1", "10:00-10:30"),
		func() booking.Booking { b := sampleBooking("b2", "10:00-10:30"); b.Date = "2025-07-24"; return b }(),
		func() booking.Booking { b := sampleBooking("b3", "11:00-11:30"); b.Date = "2025-07-25"; return b }(),
	} {
		require.NoError(t, mem.Insert(ctx, b))
	}

	got, err := New(mem).BookedBetween(ctx, "2025-07-22", "2025-07-24")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-07-22", got[0].Date)
	assert.Equal(t, "2025-07-24", got[1].Date)
}
