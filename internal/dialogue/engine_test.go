package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-voice-booking/internal/availability"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/directory"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
)

const testRoster = `
doctors:
  - doctor_name: Dr. Mehta
    doctor_department: Cardiology
    doctor_available_time: "10 to 13"
  - doctor_name: Dr. Iyer
    doctor_department: Orthopedics
    doctor_available_time: "10:00 to 16:00"
    lunch_break: "13:00-14:00"
  - doctor_name: Dr. Rao
    doctor_department: Orthopedics
    doctor_available_time: "11 to 3"
lab_tests:
  - name: Complete Blood Count
    timings: "7:00 AM to 9:00 AM"
    home_sample_collection: true
  - name: Lipid Profile
    timings: "8:00 AM to 10:00 AM"
`

// Sunday 20 July 2025, so the booking window ends 19 September 2025.
var fixedNow = time.Date(2025, 7, 20, 8, 0, 0, 0, time.UTC)

type stubAnswerer struct {
	answer string
	err    error
}

func (s stubAnswerer) Answer(context.Context, string, string) (string, error) {
	return s.answer, s.err
}

type recordingConfirmer struct {
	mu          sync.Mutex
	booked      []booking.Booking
	rescheduled []booking.Booking
}

func (r *recordingConfirmer) BookingConfirmed(_ context.Context, b booking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booked = append(r.booked, b)
}

func (r *recordingConfirmer) Rescheduled(_ context.Context, b booking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rescheduled = append(r.rescheduled, b)
}

type harness struct {
	t        *testing.T
	engine   *Engine
	sessions *MemoryStore
	ledger   *ledger.Ledger
	confirm  *recordingConfirmer
	callID   string
}

func newHarness(t *testing.T, store ledger.Store, opts ...Option) *harness {
	t.Helper()
	if store == nil {
		store = ledger.NewMemoryStore()
	}
	dir, err := directory.Parse([]byte(testRoster))
	require.NoError(t, err)
	l := ledger.New(store, ledger.WithClock(func() time.Time { return fixedNow }))
	slots := availability.New(dir, l, availability.WithClock(func() time.Time { return fixedNow }))
	sessions := NewMemoryStore()
	sessions.now = func() time.Time { return fixedNow }
	confirm := &recordingConfirmer{}

	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithConfirmer(confirm),
		WithAnswerer(stubAnswerer{answer: "Visiting hours are 4 PM to 7 PM."}),
	}
	e := New(sessions, slots, l, append(base, opts...)...)
	return &harness{t: t, engine: e, sessions: sessions, ledger: l, confirm: confirm, callID: "CA-test"}
}

func (h *harness) say(text string) Prompt {
	h.t.Helper()
	p, err := h.engine.Turn(context.Background(), Input{CallID: h.callID, Text: text})
	require.NoError(h.t, err)
	return p
}

func (h *harness) press(digits string) Prompt {
	h.t.Helper()
	p, err := h.engine.Turn(context.Background(), Input{CallID: h.callID, Digits: digits})
	require.NoError(h.t, err)
	return p
}

func (h *harness) session() *Session {
	h.t.Helper()
	s, err := h.sessions.Get(context.Background(), h.callID)
	require.NoError(h.t, err)
	require.NotNil(h.t, s)
	return s
}

// seed stores a session directly so a test can start mid-conversation.
func (h *harness) seed(s Session) {
	h.t.Helper()
	s.CallID = h.callID
	require.NoError(h.t, h.sessions.Put(context.Background(), &s, time.Hour))
}

func (h *harness) commit(kind booking.Kind, category, subject, date, interval, contact string) *booking.Booking {
	h.t.Helper()
	b, err := h.ledger.Commit(context.Background(), ledger.CommitRequest{
		Kind: kind, Category: category, Subject: subject, Date: date, Interval: interval,
		CustomerName: "Earlier Caller", CustomerContact: contact,
	})
	require.NoError(h.t, err)
	return b
}

func TestGreetingOnFirstTurn(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("")
	assert.Equal(t, promptGreeting, p.Say)
	assert.Equal(t, StateStart, p.State)
	assert.Equal(t, ExpectSpeech, p.Expect)
	assert.False(t, p.Hangup)
}

func TestTurnRequiresCallID(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Turn(context.Background(), Input{Text: "hello"})
	assert.True(t, booking.IsInput(err))
}

func TestDoctorBookingEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.say("")

	p := h.say("I want to book an appointment")
	require.Equal(t, StateAwaitDepartment, p.State)
	assert.Contains(t, p.Say, "Cardiology and Orthopedics")

	p = h.say("cardiology")
	require.Equal(t, StateAwaitDate, p.State)

	p = h.say("22 July 2025")
	require.Equal(t, StateAwaitTime, p.State)

	p = h.say("10 am")
	require.Equal(t, StateAwaitDateTimeConfirm, p.State)
	assert.Contains(t, p.Say, "22 July 2025 at 10:00 AM")

	p = h.say("yes")
	require.Equal(t, StateAwaitBookingConfirm, p.State)
	assert.Contains(t, p.Say, "Dr. Mehta is available in Cardiology")

	p = h.say("yes please")
	require.Equal(t, StateAwaitName, p.State)

	p = h.say("my name is Asha")
	require.Equal(t, StateAwaitMobile, p.State)
	assert.Equal(t, ExpectDigits, p.Expect)
	assert.Equal(t, 10, p.NumDigits)

	p = h.press("9876543210")
	require.Equal(t, StateAwaitFinalConfirm, p.State)
	assert.Contains(t, p.Say, "Your name is Asha")

	p = h.say("yes")
	require.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, "Your slot has been booked with Dr. Mehta in Cardiology on 22 July 2025 at 10:00 AM")
	assert.Contains(t, p.Say, promptMenu)

	held, err := h.ledger.IsBooked(context.Background(), booking.Key{
		Kind: booking.KindDoctor, Subject: "Dr. Mehta", Date: "2025-07-22", Interval: "10:00-10:30",
	})
	require.NoError(t, err)
	assert.True(t, held)
	require.Len(t, h.confirm.booked, 1)
	assert.Equal(t, "9876543210", h.confirm.booked[0].CustomerContact)
	assert.NotEmpty(t, h.session().LastBookingID)

	p = h.say("no thanks")
	assert.Equal(t, StateAbandoned, p.State)
	assert.True(t, p.Hangup)
}

func TestDateOutsideWindowIsReprompted(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitDate, Flow: FlowDoctor, Department: "Cardiology", LastPrompt: "date?"})

	// 2025-07-20 + 62 days.
	p := h.say("20-09-2025")
	assert.Equal(t, StateAwaitDate, p.State)
	assert.Contains(t, p.Say, "up to 61 days ahead")
	assert.Equal(t, 1, h.session().Retries)

	p = h.say("19-09-2025")
	assert.Equal(t, StateAwaitTime, p.State)
	assert.Equal(t, 0, h.session().Retries)
	assert.Equal(t, "2025-09-19", h.session().Date)
}

func TestPastDateCountsAsFailedAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitDate, Flow: FlowDoctor, Department: "Cardiology", LastPrompt: "date?"})

	h.say("19 July 2025")
	p := h.say("the day before yesterday maybe")
	assert.Equal(t, StateAbandoned, p.State)
	assert.True(t, p.Hangup)
	assert.Equal(t, promptNoInput, p.Say)
}

func TestSilenceAbandonsAfterRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.say("")

	p := h.say("")
	assert.Equal(t, "Are you still there? How can I help you?", p.Say)
	assert.Equal(t, StateStart, p.State)

	p = h.say("")
	assert.Equal(t, StateAbandoned, p.State)
	assert.True(t, p.Hangup)

	p = h.say("hello?")
	assert.True(t, p.Hangup, "terminal sessions only say goodbye")
}

func TestFastPathSkipsQuestions(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("book a cardiology appointment on 22 July 2025 at 11 am")
	require.Equal(t, StateAwaitBookingConfirm, p.State)
	s := h.session()
	assert.Equal(t, "Cardiology", s.Department)
	assert.Equal(t, "Dr. Mehta", s.Doctor)
	assert.Equal(t, "2025-07-22", s.Date)
	assert.Equal(t, "11:00-11:30", s.Interval)
}

func TestSeveralDoctorsFreeAsksForChoice(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("book orthopedics on 22 July 2025 at 11 am")
	require.Equal(t, StateAwaitDoctorChoice, p.State)
	assert.Contains(t, p.Say, "Dr. Iyer and Dr. Rao")

	p = h.say("Rao please")
	require.Equal(t, StateAwaitBookingConfirm, p.State)
	assert.Equal(t, "Dr. Rao", h.session().Doctor)

	p = h.say("no")
	assert.Equal(t, StateAwaitDoctorChoice, p.State)
}

func TestAllDoctorsBookedSuggestsNext(t *testing.T) {
	h := newHarness(t, nil)
	h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-07-22", "10:00-10:30", "9000000000")
	h.seed(Session{State: StateAwaitDateTimeConfirm, Flow: FlowDoctor, Department: "Cardiology",
		Date: "2025-07-22", Interval: "10:00-10:30"})

	p := h.say("yes")
	require.Equal(t, StateAwaitBookingConfirm, p.State)
	assert.Contains(t, p.Say, "already booked for all doctors")
	assert.Contains(t, p.Say, "10:30 AM with Dr. Mehta")
	assert.Equal(t, "10:30-11:00", h.session().Interval)
}

func TestSlotLostAtCommitOffersNearest(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitFinalConfirm, Flow: FlowDoctor, Department: "Cardiology", Doctor: "Dr. Mehta",
		Date: "2025-07-22", Interval: "10:00-10:30", Name: "Asha", Mobile: "9876543210"})
	h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-07-22", "10:00-10:30", "9000000000")

	p := h.say("yes")
	require.Equal(t, StateAwaitBookingConfirm, p.State)
	assert.Contains(t, p.Say, "just booked by someone else")
	assert.Contains(t, p.Say, "10:30 AM")

	p = h.say("yes")
	require.Equal(t, StateAwaitFinalConfirm, p.State, "name and mobile are kept")

	p = h.say("yes")
	require.Equal(t, StatePostBookingMenu, p.State)
	latest, err := h.ledger.FindLatestByContact(context.Background(), booking.KindDoctor, "9876543210")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "10:30-11:00", latest.Interval)
}

func TestSlotLostAtCommitWithWindowFullReturnsToMenu(t *testing.T) {
	h := newHarness(t, nil)
	// 19 September is the last day of the window and 12:30 is Dr. Mehta's last slot.
	h.seed(Session{State: StateAwaitFinalConfirm, Flow: FlowDoctor, Department: "Cardiology", Doctor: "Dr. Mehta",
		Date: "2025-09-19", Interval: "12:30-13:00", Name: "Asha", Mobile: "9876543210"})
	h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-09-19", "12:30-13:00", "9000000000")

	p := h.say("yes")
	require.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, "just booked by someone else")
	assert.Contains(t, p.Say, "no other open slots for Cardiology")
	assert.NotContains(t, p.Say, "another date")
	assert.False(t, p.Hangup)

	s := h.session()
	assert.Empty(t, s.Interval)
	assert.Empty(t, s.Doctor)
	assert.Equal(t, "9876543210", s.Mobile, "contact details stay for the next booking")
}

func TestSlotLostAtCommitWithWindowFullMenuDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostBookingMenu = false
	h := newHarness(t, nil, WithConfig(cfg))
	h.seed(Session{State: StateAwaitFinalConfirm, Flow: FlowDoctor, Department: "Cardiology", Doctor: "Dr. Mehta",
		Date: "2025-09-19", Interval: "12:30-13:00", Name: "Asha", Mobile: "9876543210"})
	h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-09-19", "12:30-13:00", "9000000000")

	p := h.say("yes")
	assert.Equal(t, StateStart, p.State)
	assert.Contains(t, p.Say, "no other open slots")
}

func TestLowConfidenceDepartmentIsConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitDepartment, Flow: FlowDoctor, LastPrompt: "dept?"})

	p := h.say("cardio")
	require.Equal(t, StateAwaitDepartmentConfirm, p.State)
	assert.Contains(t, p.Say, "Did you mean Cardiology?")

	p = h.say("yes")
	assert.Equal(t, StateAwaitDate, p.State)
	assert.Equal(t, "Cardiology", h.session().Department)
}

func TestUnknownDepartmentRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitDepartment, Flow: FlowDoctor, LastPrompt: "dept?"})

	p := h.say("zzzz qqqq")
	assert.Equal(t, StateAwaitDepartment, p.State)
	assert.Contains(t, p.Say, "didn't recognize that department")
}

func TestTimeOffGridListsValidTimes(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitTime, Flow: FlowDoctor, Department: "Cardiology", Date: "2025-07-22", LastPrompt: "time?"})

	p := h.say("4:15 pm")
	assert.Equal(t, StateAwaitTime, p.State)
	assert.Contains(t, p.Say, "10:00 AM, 10:30 AM")

	p = h.say("12:30")
	assert.Equal(t, StateAwaitDateTimeConfirm, p.State)
	assert.Equal(t, "12:30-13:00", h.session().Interval)
}

func TestLabBookingWithHomeCollection(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("I need a blood test")
	require.Equal(t, StateAwaitLabTest, p.State)
	assert.Contains(t, p.Say, "Complete Blood Count and Lipid Profile")

	p = h.say("complete blood count")
	require.Equal(t, StateAwaitDate, p.State)

	p = h.say("22-07-2025")
	require.Equal(t, StateAwaitTime, p.State)
	assert.Contains(t, p.Say, "7:00 AM")

	// A bare 7 reads as 7 PM first, which the lab grid does not have.
	p = h.say("7")
	require.Equal(t, StateAwaitDateTimeConfirm, p.State)
	assert.Equal(t, "07:00-07:30", h.session().Interval)

	p = h.say("yes")
	require.Equal(t, StateAwaitHomeCollection, p.State)
	assert.Contains(t, p.Say, "home lab test")

	p = h.say("yes")
	require.Equal(t, StateAwaitName, p.State)
	h.say("Ravi")
	p = h.press("9123456780")
	require.Equal(t, StateAwaitFinalConfirm, p.State)
	assert.Contains(t, p.Say, "with home sample collection")

	p = h.say("yes")
	require.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, "Complete Blood Count has been booked")

	b, err := h.ledger.FindLatestByContact(context.Background(), booking.KindLab, "9123456780")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NotNil(t, b.HomeService)
	assert.True(t, *b.HomeService)
}

func TestLabWithoutHomeCollectionDeclined(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitDateTimeConfirm, Flow: FlowLab, LabTest: "Lipid Profile",
		Date: "2025-07-22", Interval: "08:00-08:30"})

	p := h.say("yes")
	require.Equal(t, StateAwaitHomeCollection, p.State)
	assert.Contains(t, p.Say, "not available for Lipid Profile")

	p = h.say("no")
	assert.Equal(t, StatePostBookingMenu, p.State)
	assert.Empty(t, h.session().LabTest)
}

func TestMobileMustBeTenDigits(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StateAwaitMobile, Flow: FlowDoctor, Name: "Asha", LastPrompt: promptMobile})

	p := h.press("12345")
	assert.Equal(t, StateAwaitMobile, p.State)
	assert.Equal(t, promptBadMobile, p.Say)
	assert.Equal(t, ExpectDigits, p.Expect)
}

func TestRescheduleMovesBooking(t *testing.T) {
	h := newHarness(t, nil)
	old := h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-07-22", "10:00-10:30", "9876543210")

	p := h.say("I want to reschedule my appointment")
	require.Equal(t, StateAwaitRescheduleMobile, p.State)
	assert.Equal(t, ExpectDigits, p.Expect)

	p = h.press("9876543210")
	require.Equal(t, StateAwaitRescheduleDate, p.State)
	assert.Contains(t, p.Say, "Found your appointment with Dr. Mehta in Cardiology on 22 July 2025 at 10:00 AM")

	p = h.say("23 July")
	require.Equal(t, StateAwaitRescheduleTime, p.State)

	p = h.say("11 am")
	require.Equal(t, StateAwaitRescheduleConfirm, p.State)
	assert.Contains(t, p.Say, "to 23 July 2025 at 11:00 AM")

	p = h.say("yes")
	require.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, "rescheduled to 23 July 2025 at 11:00 AM")

	oldHeld, err := h.ledger.IsBooked(context.Background(), old.Key())
	require.NoError(t, err)
	assert.False(t, oldHeld)
	require.Len(t, h.confirm.rescheduled, 1)
	assert.Equal(t, "2025-07-23", h.confirm.rescheduled[0].Date)
}

func TestRescheduleOfferedNextSlotForSameDoctor(t *testing.T) {
	h := newHarness(t, nil)
	h.commit(booking.KindDoctor, "Cardiology", "Dr. Mehta", "2025-07-22", "10:00-10:30", "9876543210")
	h.say("reschedule please")
	h.press("9876543210")
	h.say("22 July 2025")

	p := h.say("10 am")
	require.Equal(t, StateAwaitRescheduleConfirm, p.State)
	assert.Contains(t, p.Say, "next available slot for Dr. Mehta is on 22 July 2025 at 10:30 AM")
}

func TestRescheduleUnknownNumber(t *testing.T) {
	h := newHarness(t, nil)
	h.say("reschedule my lab test")
	require.Equal(t, FlowRescheduleLab, h.session().Flow)

	p := h.press("9000000001")
	assert.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, promptRescheduleNotFound)
}

func TestQuestionsAreAnswered(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("what are the visiting hours")
	assert.Equal(t, StateStart, p.State)
	assert.Equal(t, "Visiting hours are 4 PM to 7 PM. How else can I help you?", p.Say)
}

func TestQuestionMentioningTheLabIsAnswered(t *testing.T) {
	h := newHarness(t, nil)
	p := h.say("is the lab open on Sunday")
	assert.Equal(t, StateStart, p.State)
	assert.Contains(t, p.Say, "Visiting hours")

	h.say("I want to book a blood test")
	assert.Equal(t, FlowLab, h.session().Flow)
}

func TestQuestionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil, WithAnswerer(stubAnswerer{err: errors.New("qa down")}))
	p := h.say("where is the pharmacy")
	assert.Equal(t, StateStart, p.State)
	assert.False(t, p.Hangup)
	assert.Contains(t, p.Say, promptQAFailed)
}

func TestMenuAskQuestion(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(Session{State: StatePostBookingMenu, LastPrompt: promptMenu})
	p := h.say("ask a question")
	assert.Equal(t, StatePostBookingMenu, p.State)
	assert.Equal(t, promptAskNow, p.Say)

	p = h.say("is parking available near the hospital entrance")
	assert.Equal(t, StatePostBookingMenu, p.State)
	assert.Contains(t, p.Say, "Visiting hours")
}

func TestMenuDisabledHangsUpAfterBooking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostBookingMenu = false
	h := newHarness(t, nil, WithConfig(cfg))
	h.seed(Session{State: StateAwaitFinalConfirm, Flow: FlowDoctor, Department: "Cardiology", Doctor: "Dr. Mehta",
		Date: "2025-07-22", Interval: "11:00-11:30", Name: "Asha", Mobile: "9876543210"})

	p := h.say("yes")
	assert.Equal(t, StateCommitted, p.State)
	assert.True(t, p.Hangup)
	assert.Contains(t, p.Say, promptGoodbye)
}

// downStore fails every ledger read and write.
type downStore struct{ *ledger.MemoryStore }

func (downStore) Exists(context.Context, booking.Key) (bool, error) {
	return false, booking.LedgerUnavailable("check slot", errors.New("connection refused"))
}

func (downStore) Insert(context.Context, booking.Booking) error {
	return booking.LedgerUnavailable("insert booking", errors.New("connection refused"))
}

func TestLedgerDownEndsCallWithApology(t *testing.T) {
	h := newHarness(t, downStore{ledger.NewMemoryStore()})
	h.seed(Session{State: StateAwaitFinalConfirm, Flow: FlowDoctor, Department: "Cardiology", Doctor: "Dr. Mehta",
		Date: "2025-07-22", Interval: "10:00-10:30", Name: "Asha", Mobile: "9876543210"})

	p := h.say("yes")
	assert.Equal(t, StateError, p.State)
	assert.True(t, p.Hangup)
	assert.Equal(t, promptLedgerDown, p.Say)
	assert.Empty(t, h.confirm.booked)
}

type brokenSessions struct{}

func (brokenSessions) Get(context.Context, string) (*Session, error) {
	return nil, errors.New("redis: connection refused")
}
func (brokenSessions) Put(context.Context, *Session, time.Duration) error { return nil }
func (brokenSessions) Delete(context.Context, string) error               { return nil }

func TestSessionStoreFailureHangsUp(t *testing.T) {
	dir, err := directory.Parse([]byte(testRoster))
	require.NoError(t, err)
	l := ledger.New(ledger.NewMemoryStore())
	e := New(brokenSessions{}, availability.New(dir, l), l)

	p, err := e.Turn(context.Background(), Input{CallID: "CA1", Text: "hello"})
	require.NoError(t, err)
	assert.True(t, p.Hangup)
	assert.Equal(t, StateError, p.State)
}

func TestEndDeletesSession(t *testing.T) {
	h := newHarness(t, nil)
	h.say("")
	require.NoError(t, h.engine.End(context.Background(), h.callID))
	s, err := h.sessions.Get(context.Background(), h.callID)
	require.NoError(t, err)
	assert.Nil(t, s)
}
