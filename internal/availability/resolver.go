// Package availability derives open slots from the roster and the two booking
// stores.
package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/hospital-voice-booking/internal/audit"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/directory"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// Slot is one open interval for one subject.
type Slot struct {
	Kind     booking.Kind
	Category string
	Subject  string
	Date     string
	Interval slotgrid.Interval
}

// Key returns the ledger key the slot would occupy.
func (s Slot) Key() booking.Key {
	return booking.Key{Kind: s.Kind, Subject: s.Subject, Date: s.Date, Interval: s.Interval.String()}
}

// LedgerReader is the authoritative side of the booked set.
type LedgerReader interface {
	BookedBetween(ctx context.Context, from, to string) ([]booking.Booking, error)
	IsBooked(ctx context.Context, key booking.Key) (bool, error)
}

// AuditReader is the best-effort side of the booked set.
type AuditReader interface {
	EntriesBetween(ctx context.Context, from, to string) ([]audit.Entry, error)
}

// Resolver answers availability questions. It holds no mutable state.
type Resolver struct {
	dir        *directory.Directory
	ledger     LedgerReader
	audit      AuditReader
	policy     slotgrid.HourPolicy
	width      time.Duration
	windowDays int
	loc        *time.Location
	now        func() time.Time
	logger     *logging.Logger
	metrics    *metrics.BookingMetrics
}

type Option func(*Resolver)

func WithAudit(r AuditReader) Option {
	return func(res *Resolver) {
		if r != nil {
			res.audit = r
		}
	}
}

func WithHourPolicy(p slotgrid.HourPolicy) Option {
	return func(res *Resolver) {
		if p.PMCutoff > 0 {
			res.policy = p
		}
	}
}

func WithSlotWidth(width time.Duration) Option {
	return func(res *Resolver) {
		if width > 0 {
			res.width = width
		}
	}
}

// WithWindowDays sets how many days past today SuggestNearest may look.
func WithWindowDays(days int) Option {
	return func(res *Resolver) {
		if days > 0 {
			res.windowDays = days
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(res *Resolver) {
		if loc != nil {
			res.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(res *Resolver) {
		if now != nil {
			res.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(res *Resolver) {
		if logger != nil {
			res.logger = logger
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(res *Resolver) { res.metrics = m }
}

// New builds a Resolver over the roster and ledger.
func New(dir *directory.Directory, ledger LedgerReader, opts ...Option) *Resolver {
	if dir == nil || ledger == nil {
		panic("availability: directory and ledger required")
	}
	r := &Resolver{
		dir:        dir,
		ledger:     ledger,
		audit:      audit.Nop{},
		policy:     slotgrid.DefaultHourPolicy,
		width:      30 * time.Minute,
		windowDays: 61,
		loc:        time.UTC,
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type subjectGrid struct {
	category string
	subject  string
	grid     []slotgrid.Interval
}

// grids returns the subjects of a category with their slot grids. Subjects
// with malformed hours are logged and left out.
func (r *Resolver) grids(kind booking.Kind, category string) ([]subjectGrid, error) {
	switch kind {
	case booking.KindDoctor:
		dept, ok := r.dir.Department(category)
		if !ok {
			return nil, booking.NotFoundError(fmt.Sprintf("no department named %q", category))
		}
		var out []subjectGrid
		for _, doc := range r.dir.DoctorsIn(dept) {
			work, err := slotgrid.ParseWindow(doc.AvailableTime, r.policy)
			if err != nil {
				r.logger.Warn("skipping doctor with unreadable hours", "doctor", doc.Name, "hours", doc.AvailableTime, "error", err)
				continue
			}
			brk, err := slotgrid.ParseBreak(doc.LunchBreak, r.policy)
			if err != nil {
				r.logger.Warn("skipping doctor with unreadable break", "doctor", doc.Name, "break", doc.LunchBreak, "error", err)
				continue
			}
			out = append(out, subjectGrid{category: dept, subject: doc.Name, grid: slotgrid.Generate(work, brk, r.width)})
		}
		return out, nil
	case booking.KindLab:
		test, ok := r.dir.LabTest(category)
		if !ok {
			return nil, booking.NotFoundError(fmt.Sprintf("no lab test named %q", category))
		}
		work, err := slotgrid.ParseWindow(test.Timings, r.policy)
		if err != nil {
			r.logger.Warn("skipping lab test with unreadable timings", "test", test.Name, "timings", test.Timings, "error", err)
			return nil, nil
		}
		return []subjectGrid{{category: test.Name, subject: test.Name, grid: slotgrid.Generate(work, nil, r.width)}}, nil
	default:
		return nil, booking.InputError(fmt.Sprintf("unknown booking kind %q", kind))
	}
}

// booked unions the audit mirror with the ledger for dates from..to, one
// range read on each side. Read failures on either side leave that side out.
func (r *Resolver) booked(ctx context.Context, from, to string) map[booking.Key]struct{} {
	set := make(map[booking.Key]struct{})
	entries, err := r.audit.EntriesBetween(ctx, from, to)
	if err != nil {
		r.logger.Warn("audit read failed, ignoring mirror", "from", from, "to", to, "error", err)
	}
	for _, b := range audit.Fold(entries) {
		b.Normalize()
		set[b.Key()] = struct{}{}
	}
	held, err := r.ledger.BookedBetween(ctx, from, to)
	if err != nil {
		r.metrics.ObserveCollaboratorFailure("ledger")
		r.logger.Error("ledger read failed, listing without it", "from", from, "to", to, "error", err)
	}
	for _, b := range held {
		set[b.Key()] = struct{}{}
	}
	return set
}

// open lists the grid intervals on date not in taken, ordered by start time
// and subject.
func open(grids []subjectGrid, kind booking.Kind, date, subject string, taken map[booking.Key]struct{}) []Slot {
	var out []Slot
	for _, g := range grids {
		if subject != "" && !strings.EqualFold(g.subject, subject) {
			continue
		}
		for _, iv := range g.grid {
			s := Slot{Kind: kind, Category: g.category, Subject: g.subject, Date: date, Interval: iv}
			if _, ok := taken[s.Key()]; ok {
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Interval.Start != out[j].Interval.Start {
			return out[i].Interval.Start < out[j].Interval.Start
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

// ListAvailable returns the open slots of a category on date, ordered by start
// time and subject. For lab bookings the category is the test name.
func (r *Resolver) ListAvailable(ctx context.Context, kind booking.Kind, category, date string) ([]Slot, error) {
	if _, err := time.Parse(booking.DateLayout, date); err != nil {
		return nil, booking.InputError(fmt.Sprintf("date %q must be YYYY-MM-DD", date))
	}
	grids, err := r.grids(kind, category)
	if err != nil {
		return nil, err
	}
	return open(grids, kind, date, "", r.booked(ctx, date, date)), nil
}

// SuggestNearest returns the open slot on date starting soonest after at, or
// the earliest open slot on a later date inside the booking window. A
// non-empty subject limits the search to that provider. It returns nil when
// nothing is open. The booked set for the whole search is read once.
func (r *Resolver) SuggestNearest(ctx context.Context, kind booking.Kind, category, date string, at slotgrid.Clock, subject string) (*Slot, error) {
	day, err := time.ParseInLocation(booking.DateLayout, date, r.loc)
	if err != nil {
		return nil, booking.InputError(fmt.Sprintf("date %q must be YYYY-MM-DD", date))
	}
	grids, err := r.grids(kind, category)
	if err != nil {
		return nil, err
	}
	last := r.today().AddDate(0, 0, r.windowDays)
	to := date
	if last.After(day) {
		to = last.Format(booking.DateLayout)
	}
	taken := r.booked(ctx, date, to)

	for _, s := range open(grids, kind, date, subject, taken) {
		if s.Interval.Start > at {
			found := s
			return &found, nil
		}
	}
	for d := day.AddDate(0, 0, 1); !d.After(last); d = d.AddDate(0, 0, 1) {
		if slots := open(grids, kind, d.Format(booking.DateLayout), subject, taken); len(slots) > 0 {
			found := slots[0]
			return &found, nil
		}
	}
	return nil, nil
}

// IsBooked checks the ledger only. A read failure is returned as
// LedgerUnavailable.
func (r *Resolver) IsBooked(ctx context.Context, kind booking.Kind, subject, date, interval string) (bool, error) {
	ok, err := r.ledger.IsBooked(ctx, booking.Key{Kind: kind, Subject: subject, Date: date, Interval: interval})
	if err != nil {
		if booking.IsLedgerDown(err) {
			return false, err
		}
		return false, booking.LedgerUnavailable("check slot", err)
	}
	return ok, nil
}

// GridTimes is the union of grid intervals across the category's subjects,
// regardless of bookings.
func (r *Resolver) GridTimes(kind booking.Kind, category string) ([]slotgrid.Interval, error) {
	grids, err := r.grids(kind, category)
	if err != nil {
		return nil, err
	}
	seen := make(map[slotgrid.Interval]struct{})
	var out []slotgrid.Interval
	for _, g := range grids {
		for _, iv := range g.grid {
			if _, ok := seen[iv]; ok {
				continue
			}
			seen[iv] = struct{}{}
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// Categories lists departments or lab test names.
func (r *Resolver) Categories(kind booking.Kind) []string {
	if kind == booking.KindLab {
		return r.dir.LabTestNames()
	}
	return r.dir.Departments()
}

// Subjects lists the bookable subjects of a category.
func (r *Resolver) Subjects(kind booking.Kind, category string) []string {
	if kind == booking.KindLab {
		if test, ok := r.dir.LabTest(category); ok {
			return []string{test.Name}
		}
		return nil
	}
	var names []string
	for _, doc := range r.dir.DoctorsIn(category) {
		names = append(names, doc.Name)
	}
	return names
}

// HomeCollection reports whether a lab test offers home sample collection.
func (r *Resolver) HomeCollection(test string) bool {
	lt, ok := r.dir.LabTest(test)
	return ok && lt.HomeSampleCollection
}

// DepartmentOf returns the department of a doctor.
func (r *Resolver) DepartmentOf(doctor string) (string, bool) {
	doc, ok := r.dir.Doctor(doctor)
	if !ok {
		return "", false
	}
	return doc.Department, true
}

// Today is the current date in the hospital timezone.
func (r *Resolver) Today() time.Time { return r.today() }

func (r *Resolver) today() time.Time {
	now := r.now().In(r.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
}
