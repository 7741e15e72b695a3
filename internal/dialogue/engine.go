package dialogue

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/hospital-voice-booking/internal/availability"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/fuzzy"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// Availability is the slot view the engine books against.
type Availability interface {
	ListAvailable(ctx context.Context, kind booking.Kind, category, date string) ([]availability.Slot, error)
	SuggestNearest(ctx context.Context, kind booking.Kind, category, date string, at slotgrid.Clock, subject string) (*availability.Slot, error)
	IsBooked(ctx context.Context, kind booking.Kind, subject, date, interval string) (bool, error)
	GridTimes(kind booking.Kind, category string) ([]slotgrid.Interval, error)
	Categories(kind booking.Kind) []string
	HomeCollection(test string) bool
}

// Ledger commits and moves bookings.
type Ledger interface {
	Commit(ctx context.Context, req ledger.CommitRequest) (*booking.Booking, error)
	Reschedule(ctx context.Context, req ledger.RescheduleRequest) (*booking.Booking, error)
	FindLatestByContact(ctx context.Context, kind booking.Kind, contact string) (*booking.Booking, error)
}

// Answerer answers free-form questions.
type Answerer interface {
	Answer(ctx context.Context, question, sessionID string) (string, error)
}

// Confirmer tells the caller about a finished booking out of band.
type Confirmer interface {
	BookingConfirmed(ctx context.Context, b booking.Booking)
	Rescheduled(ctx context.Context, b booking.Booking)
}

type nopConfirmer struct{}

func (nopConfirmer) BookingConfirmed(context.Context, booking.Booking) {}
func (nopConfirmer) Rescheduled(context.Context, booking.Booking)      {}

// Expect tells the transport what kind of input to gather next.
type Expect string

const (
	ExpectSpeech Expect = "speech"
	ExpectDigits Expect = "dtmf"
	ExpectNone   Expect = "none"
)

// Prompt is what the caller hears after a turn.
type Prompt struct {
	Say            string `json:"say"`
	Expect         Expect `json:"expect"`
	NumDigits      int    `json:"num_digits,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// Reprompt is spoken by the transport when the caller stays silent.
	Reprompt string `json:"reprompt,omitempty"`
	Hangup   bool   `json:"hangup"`
	State    State  `json:"state"`
}

// Input is one caller turn. Text is the speech transcript, Digits the keypad
// entry.
type Input struct {
	CallID string `json:"call_id"`
	Text   string `json:"text,omitempty"`
	Digits string `json:"digits,omitempty"`
	From   string `json:"from,omitempty"`
}

// Config tunes the conversation.
type Config struct {
	WindowDays      int
	MaxRetries      int
	PostBookingMenu bool
	SessionTTL      time.Duration
	HourPolicy      slotgrid.HourPolicy
}

// DefaultConfig books up to 61 days ahead and abandons on the second failed
// attempt.
func DefaultConfig() Config {
	return Config{
		WindowDays:      61,
		MaxRetries:      2,
		PostBookingMenu: true,
		SessionTTL:      30 * time.Minute,
		HourPolicy:      slotgrid.DefaultHourPolicy,
	}
}

// Engine advances call sessions one turn at a time. It keeps no per-call
// state of its own; everything lives in the SessionStore.
type Engine struct {
	sessions SessionStore
	slots    Availability
	ledger   Ledger
	matcher  fuzzy.Resolver
	qa       Answerer
	notify   Confirmer
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		def := DefaultConfig()
		if cfg.WindowDays <= 0 {
			cfg.WindowDays = def.WindowDays
		}
		if cfg.MaxRetries <= 0 {
			cfg.MaxRetries = def.MaxRetries
		}
		if cfg.SessionTTL <= 0 {
			cfg.SessionTTL = def.SessionTTL
		}
		if cfg.HourPolicy.PMCutoff <= 0 {
			cfg.HourPolicy = def.HourPolicy
		}
		e.cfg = cfg
	}
}

func WithMatcher(r fuzzy.Resolver) Option {
	return func(e *Engine) { e.matcher = r }
}

func WithAnswerer(a Answerer) Option {
	return func(e *Engine) { e.qa = a }
}

func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) {
		if c != nil {
			e.notify = c
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine. sessions, slots and ledger are required.
func New(sessions SessionStore, slots Availability, l Ledger, opts ...Option) *Engine {
	if sessions == nil || slots == nil || l == nil {
		panic("dialogue: session store, availability and ledger required")
	}
	e := &Engine{
		sessions: sessions,
		slots:    slots,
		ledger:   l,
		matcher:  fuzzy.NewResolver(0, 0),
		notify:   nopConfirmer{},
		cfg:      DefaultConfig(),
		loc:      time.UTC,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Turn loads the call's session, applies the caller's input and returns the
// next prompt. A call without a session is greeted. Only a missing call id is
// an error; collaborator failures become spoken apologies.
func (e *Engine) Turn(ctx context.Context, in Input) (Prompt, error) {
	callID := strings.TrimSpace(in.CallID)
	if callID == "" {
		return Prompt{}, booking.InputError("call_id is required")
	}
	started := e.now()

	sess, err := e.sessions.Get(ctx, callID)
	if err != nil {
		e.metrics.ObserveCollaboratorFailure("sessions")
		e.logger.Error("session load failed", "call_id", callID, "error", err)
		return e.hangupPrompt(StateError, promptLedgerDown), nil
	}

	var p Prompt
	if sess == nil {
		sess = &Session{CallID: callID, From: in.From, State: StateStart, CreatedAt: started.UTC()}
		if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.Digits) == "" {
			p = e.moveTo(sess, StateStart, "How can I help you?")
			p.Say = promptGreeting
		} else {
			sess.LastPrompt = "How can I help you?"
			p = e.step(ctx, sess, in)
		}
	} else {
		p = e.step(ctx, sess, in)
	}

	sess.UpdatedAt = e.now().UTC()
	if err := e.sessions.Put(ctx, sess, e.cfg.SessionTTL); err != nil {
		e.metrics.ObserveCollaboratorFailure("sessions")
		e.logger.Error("session save failed", "call_id", callID, "state", sess.State, "error", err)
	}
	p.State = sess.State
	e.metrics.ObserveTurn(string(sess.State), e.now().Sub(started).Seconds())
	return p, nil
}

// End drops the session of a finished call.
func (e *Engine) End(ctx context.Context, callID string) error {
	if err := e.sessions.Delete(ctx, callID); err != nil {
		e.logger.Warn("session delete failed", "call_id", callID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) step(ctx context.Context, s *Session, in Input) Prompt {
	if s.State.Terminal() {
		return e.hangupPrompt(s.State, promptGoodbye)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && strings.TrimSpace(in.Digits) == "" {
		return e.retry(s, "Are you still there? "+s.LastPrompt)
	}
	if !expectsDigits(s.State) && s.State != StateAwaitName && isGoodbye(text) {
		return e.abandon(s, promptGoodbye)
	}

	switch s.State {
	case StateStart:
		return e.onStart(ctx, s, text)
	case StatePostBookingMenu:
		return e.onMenu(ctx, s, text)
	case StateAwaitDepartment:
		return e.onDepartment(s, text)
	case StateAwaitDepartmentConfirm:
		return e.onDepartmentConfirm(s, text)
	case StateAwaitLabTest:
		return e.onLabTest(s, text)
	case StateAwaitLabTestConfirm:
		return e.onLabTestConfirm(s, text)
	case StateAwaitDate:
		return e.onDate(s, text)
	case StateAwaitTime:
		return e.onTime(s, text)
	case StateAwaitDateTimeConfirm:
		return e.onDateTimeConfirm(ctx, s, text)
	case StateAwaitDoctorChoice:
		return e.onDoctorChoice(s, text)
	case StateAwaitBookingConfirm:
		return e.onBookingConfirm(s, text)
	case StateAwaitHomeCollection:
		return e.onHomeCollection(s, text)
	case StateAwaitName:
		return e.onName(s, text)
	case StateAwaitMobile:
		return e.onMobile(s, in)
	case StateAwaitFinalConfirm:
		return e.onFinalConfirm(ctx, s, text)
	case StateAwaitRescheduleMobile:
		return e.onRescheduleMobile(ctx, s, in)
	case StateAwaitRescheduleDate:
		return e.onRescheduleDate(s, text)
	case StateAwaitRescheduleTime:
		return e.onRescheduleTime(ctx, s, text)
	case StateAwaitRescheduleConfirm:
		return e.onRescheduleConfirm(ctx, s, text)
	default:
		e.logger.Error("session in unknown state", "call_id", s.CallID, "state", s.State)
		return e.fail(s, promptLedgerDown)
	}
}

func expectsDigits(s State) bool {
	return s == StateAwaitMobile || s == StateAwaitRescheduleMobile
}

// moveTo enters next and asks question. Entering a different state resets the
// retry counter.
func (e *Engine) moveTo(s *Session, next State, question string) Prompt {
	if next != s.State {
		s.Retries = 0
	}
	s.State = next
	s.LastPrompt = question
	return e.promptFor(s, question)
}

// retry re-asks in the same state and abandons the call once MaxRetries
// failed attempts have been made.
func (e *Engine) retry(s *Session, say string) Prompt {
	s.Retries++
	if s.Retries >= e.cfg.MaxRetries {
		e.logger.Info("abandoning call after failed attempts", "call_id", s.CallID, "state", s.State, "attempts", s.Retries)
		return e.abandon(s, promptNoInput)
	}
	return e.promptFor(s, say)
}

func (e *Engine) abandon(s *Session, say string) Prompt {
	s.State = StateAbandoned
	s.LastPrompt = ""
	return e.hangupPrompt(StateAbandoned, say)
}

func (e *Engine) fail(s *Session, say string) Prompt {
	s.State = StateError
	s.LastPrompt = ""
	return e.hangupPrompt(StateError, say)
}

// ledgerDown ends the call when the booking cannot be recorded.
func (e *Engine) ledgerDown(s *Session, err error) Prompt {
	e.metrics.ObserveCollaboratorFailure("ledger")
	e.logger.Error("booking aborted, ledger unavailable", "call_id", s.CallID, "state", s.State, "error", err)
	return e.fail(s, promptLedgerDown)
}

func (e *Engine) promptFor(s *Session, say string) Prompt {
	if s.State.Terminal() {
		return e.hangupPrompt(s.State, say)
	}
	p := Prompt{Say: say, Expect: ExpectSpeech, TimeoutSeconds: 5, Reprompt: promptStillThere, State: s.State}
	if expectsDigits(s.State) {
		p.Expect = ExpectDigits
		p.NumDigits = 10
		p.TimeoutSeconds = 15
		p.Reprompt = s.LastPrompt
	}
	return p
}

func (e *Engine) hangupPrompt(state State, say string) Prompt {
	return Prompt{Say: say, Expect: ExpectNone, Hangup: true, State: state}
}

// backToMenu returns to the post-booking menu, or to the opening question when
// the menu is disabled.
func (e *Engine) backToMenu(s *Session, lead string) Prompt {
	s.resetBooking()
	if e.cfg.PostBookingMenu {
		return e.moveTo(s, StatePostBookingMenu, joinSay(lead, promptMenu))
	}
	return e.moveTo(s, StateStart, joinSay(lead, "How else can I help you?"))
}

// finish records a completed booking and either offers the menu or says
// goodbye.
func (e *Engine) finish(s *Session, say string) Prompt {
	s.State = StateCommitted
	if e.cfg.PostBookingMenu {
		return e.backToMenu(s, say)
	}
	s.resetBooking()
	return e.moveTo(s, StateCommitted, joinSay(say, promptGoodbye))
}

func (e *Engine) today() time.Time {
	now := e.now().In(e.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
}

// inWindow reports whether date lies in [today, today+WindowDays].
func (e *Engine) inWindow(date time.Time) bool {
	today := e.today()
	return !date.Before(today) && !date.After(today.AddDate(0, 0, e.cfg.WindowDays))
}

// mentions finds a catalog entry inside an utterance with high confidence.
func (e *Engine) mentions(text string, catalog []string) (string, bool) {
	m, ok := e.matcher.Extract(text, catalog)
	if !ok || m.Band != fuzzy.Accept {
		return "", false
	}
	return m.Value, true
}

func joinSay(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
