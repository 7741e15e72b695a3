package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/hospital-voice-booking/internal/availability"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/fuzzy"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
)

// startDoctor begins a doctor booking. When the utterance already names a
// department, a date and a grid time the intermediate questions are skipped.
func (e *Engine) startDoctor(ctx context.Context, s *Session, text string) Prompt {
	s.resetBooking()
	s.Flow = FlowDoctor
	depts := e.slots.Categories(booking.KindDoctor)

	dept, ok := e.mentions(text, depts)
	if !ok {
		return e.moveTo(s, StateAwaitDepartment, departmentPrompt(depts))
	}
	s.Department = dept

	date, rest, ok := parseDate(text, e.today())
	if !ok {
		return e.moveTo(s, StateAwaitDate, datePrompt(s))
	}
	if !e.inWindow(date) {
		return e.moveTo(s, StateAwaitDate, windowPrompt(e.cfg.WindowDays))
	}
	s.Date = date.Format(booking.DateLayout)

	clocks := parseTime(rest, e.cfg.HourPolicy)
	if len(clocks) == 0 {
		return e.moveTo(s, StateAwaitTime, e.timeQuestion(s))
	}
	iv, grid, ok := e.gridSlot(s, clocks)
	if !ok {
		return e.moveTo(s, StateAwaitTime, timeRetryPrompt(grid))
	}
	s.Interval = iv.String()
	return e.offerDoctors(ctx, s)
}

func (e *Engine) startLab(s *Session, text string) Prompt {
	s.resetBooking()
	s.Flow = FlowLab
	tests := e.slots.Categories(booking.KindLab)
	if len(tests) == 0 {
		return e.backToMenu(s, "Sorry, no lab tests are available for booking right now.")
	}
	if test, ok := e.mentions(text, tests); ok {
		s.LabTest = test
		return e.moveTo(s, StateAwaitDate, datePrompt(s))
	}
	return e.moveTo(s, StateAwaitLabTest, labTestPrompt(tests))
}

// pick resolves a spoken choice against a catalog. A Confirm-band match is
// parked in Pending and read back.
func (e *Engine) pick(s *Session, text string, catalog []string, confirmState State, miss string) (string, Prompt, bool) {
	m, ok := e.matcher.Extract(text, catalog)
	if !ok {
		return "", e.retry(s, miss), false
	}
	if m.Band == fuzzy.Confirm {
		s.Pending = m.Value
		return "", e.moveTo(s, confirmState, didYouMean(m.Value)), false
	}
	return m.Value, Prompt{}, true
}

func (e *Engine) onDepartment(s *Session, text string) Prompt {
	depts := e.slots.Categories(booking.KindDoctor)
	dept, p, ok := e.pick(s, text, depts, StateAwaitDepartmentConfirm,
		"Sorry, I didn't recognize that department. "+departmentPrompt(depts))
	if !ok {
		return p
	}
	s.Department = dept
	return e.moveTo(s, StateAwaitDate, datePrompt(s))
}

func (e *Engine) onDepartmentConfirm(s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	pending := s.Pending
	s.Pending = ""
	if !yes {
		return e.moveTo(s, StateAwaitDepartment, "Okay, please say the department again. "+departmentPrompt(e.slots.Categories(booking.KindDoctor)))
	}
	s.Department = pending
	return e.moveTo(s, StateAwaitDate, datePrompt(s))
}

func (e *Engine) onLabTest(s *Session, text string) Prompt {
	tests := e.slots.Categories(booking.KindLab)
	test, p, ok := e.pick(s, text, tests, StateAwaitLabTestConfirm,
		"Sorry, I didn't recognize that test. "+labTestPrompt(tests))
	if !ok {
		return p
	}
	s.LabTest = test
	return e.moveTo(s, StateAwaitDate, datePrompt(s))
}

func (e *Engine) onLabTestConfirm(s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	pending := s.Pending
	s.Pending = ""
	if !yes {
		return e.moveTo(s, StateAwaitLabTest, "Okay, please say the test name again. "+labTestPrompt(e.slots.Categories(booking.KindLab)))
	}
	s.LabTest = pending
	return e.moveTo(s, StateAwaitDate, datePrompt(s))
}

func (e *Engine) onDate(s *Session, text string) Prompt {
	date, _, ok := parseDate(text, e.today())
	if !ok {
		return e.retry(s, dateRetryPrompt())
	}
	if !e.inWindow(date) {
		return e.retry(s, windowPrompt(e.cfg.WindowDays))
	}
	s.Date = date.Format(booking.DateLayout)
	return e.moveTo(s, StateAwaitTime, e.timeQuestion(s))
}

func (e *Engine) timeQuestion(s *Session) string {
	if s.Flow != FlowLab {
		return timePrompt(s)
	}
	grid, err := e.slots.GridTimes(booking.KindLab, s.LabTest)
	if err != nil || len(grid) == 0 {
		return timePrompt(s)
	}
	return fmt.Sprintf("At what time on %s? Available times are %s.", spokenDate(s.Date), spokenTimes(grid))
}

// gridSlot finds the grid interval starting at one of the candidate clocks.
func (e *Engine) gridSlot(s *Session, clocks []slotgrid.Clock) (slotgrid.Interval, []slotgrid.Interval, bool) {
	grid, err := e.slots.GridTimes(s.Flow.Kind(), s.category())
	if err != nil {
		e.logger.Warn("grid lookup failed", "call_id", s.CallID, "category", s.category(), "error", err)
		return slotgrid.Interval{}, nil, false
	}
	for _, c := range clocks {
		for _, iv := range grid {
			if iv.Start == c {
				return iv, grid, true
			}
		}
	}
	return slotgrid.Interval{}, grid, false
}

func (e *Engine) onTime(s *Session, text string) Prompt {
	clocks := parseTime(text, e.cfg.HourPolicy)
	if len(clocks) == 0 {
		return e.retry(s, "Sorry, I didn't understand the time. "+s.LastPrompt)
	}
	iv, grid, ok := e.gridSlot(s, clocks)
	if !ok {
		return e.retry(s, timeRetryPrompt(grid))
	}
	s.Interval = iv.String()
	return e.moveTo(s, StateAwaitDateTimeConfirm, dateTimeConfirmPrompt(s))
}

func (e *Engine) onDateTimeConfirm(ctx context.Context, s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	if !yes {
		s.Interval = ""
		return e.moveTo(s, StateAwaitTime, anotherTimePrompt(s))
	}
	if s.Flow == FlowLab {
		return e.offerLab(ctx, s)
	}
	return e.offerDoctors(ctx, s)
}

func freeAt(slots []availability.Slot, interval string) []string {
	var out []string
	for _, sl := range slots {
		if sl.Interval.String() == interval {
			out = append(out, sl.Subject)
		}
	}
	return out
}

// offerDoctors offers the doctors free at the chosen interval, or the nearest
// alternative when none is.
func (e *Engine) offerDoctors(ctx context.Context, s *Session) Prompt {
	slots, err := e.slots.ListAvailable(ctx, booking.KindDoctor, s.Department, s.Date)
	if err != nil {
		e.logger.Error("listing slots failed", "call_id", s.CallID, "department", s.Department, "error", err)
		return e.fail(s, promptLedgerDown)
	}
	free := freeAt(slots, s.Interval)
	switch len(free) {
	case 0:
		return e.suggest(ctx, s, "Sorry, that slot is already booked for all doctors.")
	case 1:
		s.Doctor = free[0]
		s.Candidates = nil
		return e.moveTo(s, StateAwaitBookingConfirm, slotOfferPrompt(s))
	default:
		s.Candidates = free
		return e.moveTo(s, StateAwaitDoctorChoice, doctorChoicePrompt(s))
	}
}

func (e *Engine) offerLab(ctx context.Context, s *Session) Prompt {
	slots, err := e.slots.ListAvailable(ctx, booking.KindLab, s.LabTest, s.Date)
	if err != nil {
		e.logger.Error("listing slots failed", "call_id", s.CallID, "lab_test", s.LabTest, "error", err)
		return e.fail(s, promptLedgerDown)
	}
	if len(freeAt(slots, s.Interval)) == 0 {
		return e.suggest(ctx, s, "Sorry, that slot is already booked.")
	}
	return e.moveTo(s, StateAwaitHomeCollection, homeCollectionPrompt(s, e.slots.HomeCollection(s.LabTest)))
}

// suggest offers the nearest open slot at or after the current one. With
// nothing open in the window the caller is asked for another date.
func (e *Engine) suggest(ctx context.Context, s *Session, lead string) Prompt {
	return e.offerNearest(ctx, s, lead, func() Prompt {
		say := joinSay(lead, noSlotsPrompt(s))
		s.Interval = ""
		s.Doctor = ""
		return e.moveTo(s, StateAwaitDate, say)
	})
}

// rebook offers the nearest open slot after the chosen one was lost at
// commit. The search already covered the rest of the window, so with nothing
// open the caller goes back to the menu.
func (e *Engine) rebook(ctx context.Context, s *Session, lead string) Prompt {
	return e.offerNearest(ctx, s, lead, func() Prompt {
		return e.backToMenu(s, joinSay(lead, windowFullPrompt(s)))
	})
}

func (e *Engine) offerNearest(ctx context.Context, s *Session, lead string, none func() Prompt) Prompt {
	iv, err := slotgrid.ParseInterval(s.Interval)
	if err != nil {
		return e.moveTo(s, StateAwaitTime, anotherTimePrompt(s))
	}
	subject := ""
	if s.Flow == FlowLab {
		subject = s.LabTest
	}
	sug, err := e.slots.SuggestNearest(ctx, s.Flow.Kind(), s.category(), s.Date, iv.Start-1, subject)
	if err != nil {
		e.logger.Error("suggesting slot failed", "call_id", s.CallID, "category", s.category(), "error", err)
		return e.fail(s, promptLedgerDown)
	}
	if sug == nil {
		return none()
	}
	if s.Flow != FlowLab {
		s.Doctor = sug.Subject
	}
	s.Date = sug.Date
	s.Interval = sug.Interval.String()
	s.Candidates = nil
	return e.moveTo(s, StateAwaitBookingConfirm, suggestionPrompt(s, lead))
}

// onDoctorChoice matches the caller's pick against the candidate names with
// the honorific removed, since callers usually say only the surname.
func (e *Engine) onDoctorChoice(s *Session, text string) Prompt {
	bare := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		bare[i] = stripTitle(c)
	}
	m, ok := e.matcher.Extract(stripTitle(text), bare)
	if !ok {
		return e.retry(s, "Sorry, I didn't catch the doctor's name. "+doctorChoicePrompt(s))
	}
	for i, b := range bare {
		if b == m.Value {
			s.Doctor = s.Candidates[i]
			break
		}
	}
	return e.moveTo(s, StateAwaitBookingConfirm, slotOfferPrompt(s))
}

func stripTitle(name string) string {
	kept := make([]string, 0, 3)
	for _, w := range words(name) {
		if w != "dr" && w != "doctor" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func (e *Engine) onBookingConfirm(s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	if !yes {
		if len(s.Candidates) > 1 {
			s.Doctor = ""
			return e.moveTo(s, StateAwaitDoctorChoice, doctorChoicePrompt(s))
		}
		s.Interval = ""
		if s.Flow != FlowLab {
			s.Doctor = ""
		}
		return e.moveTo(s, StateAwaitTime, anotherTimePrompt(s))
	}
	if s.Flow == FlowLab && s.HomeCollection == nil {
		return e.moveTo(s, StateAwaitHomeCollection, homeCollectionPrompt(s, e.slots.HomeCollection(s.LabTest)))
	}
	return e.askDetails(s, "")
}

// askDetails collects name and mobile, or goes straight to the read-back when
// both are already known from an earlier booking in this call.
func (e *Engine) askDetails(s *Session, lead string) Prompt {
	if s.Name != "" && s.Mobile != "" {
		return e.moveTo(s, StateAwaitFinalConfirm, joinSay(lead, finalConfirmPrompt(s)))
	}
	return e.moveTo(s, StateAwaitName, joinSay(lead, promptName))
}

func (e *Engine) onHomeCollection(s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	if e.slots.HomeCollection(s.LabTest) {
		s.HomeCollection = booking.BoolPtr(yes)
		if yes {
			return e.askDetails(s, "Okay, we will arrange for a home lab test.")
		}
		return e.askDetails(s, "Okay, we will book your test at the hospital.")
	}
	if !yes {
		return e.backToMenu(s, "Okay, no problem.")
	}
	s.HomeCollection = booking.BoolPtr(false)
	return e.askDetails(s, "")
}

func (e *Engine) onName(s *Session, text string) Prompt {
	name := cleanName(text)
	if name == "" {
		return e.retry(s, promptNameRetry)
	}
	s.Name = name
	return e.moveTo(s, StateAwaitMobile, promptMobile)
}

func mobileFrom(in Input) string {
	if d := digitsOf(in.Digits); d != "" {
		return d
	}
	return digitsOf(in.Text)
}

func (e *Engine) onMobile(s *Session, in Input) Prompt {
	digits := mobileFrom(in)
	if len(digits) != 10 {
		return e.retry(s, promptBadMobile)
	}
	s.Mobile = digits
	return e.moveTo(s, StateAwaitFinalConfirm, finalConfirmPrompt(s))
}

func (e *Engine) onFinalConfirm(ctx context.Context, s *Session, text string) Prompt {
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	if !yes {
		s.Name = ""
		s.Mobile = ""
		return e.moveTo(s, StateAwaitName, "Okay, let's correct the details. "+promptName)
	}
	return e.commit(ctx, s)
}

// commit re-checks the slot against the ledger, then reserves it. A slot lost
// to another caller leads to the nearest alternative, or to the menu when
// nothing in the window is open.
func (e *Engine) commit(ctx context.Context, s *Session) Prompt {
	kind := s.Flow.Kind()
	taken, err := e.slots.IsBooked(ctx, kind, s.subject(), s.Date, s.Interval)
	if err != nil {
		return e.ledgerDown(s, err)
	}
	const lost = "Sorry, that slot was just booked by someone else."
	if taken {
		return e.rebook(ctx, s, lost)
	}

	req := ledger.CommitRequest{
		Kind:            kind,
		Category:        s.category(),
		Subject:         s.subject(),
		Date:            s.Date,
		Interval:        s.Interval,
		CustomerName:    s.Name,
		CustomerContact: s.Mobile,
	}
	if kind == booking.KindLab {
		req.HomeService = s.HomeCollection
	}
	b, err := e.ledger.Commit(ctx, req)
	switch {
	case booking.IsConflict(err):
		return e.rebook(ctx, s, lost)
	case booking.IsInput(err):
		e.logger.Warn("booking rejected", "call_id", s.CallID, "error", err)
		s.Name = ""
		s.Mobile = ""
		return e.moveTo(s, StateAwaitName, "Sorry, some of the booking details were missing. "+promptName)
	case err != nil:
		return e.ledgerDown(s, err)
	}

	s.LastBookingID = b.ID
	e.notify.BookingConfirmed(ctx, *b)
	e.logger.Info("call booked slot", "call_id", s.CallID, "booking_id", b.ID, "kind", b.Kind, "subject", b.Subject)
	return e.finish(s, bookedPrompt(s))
}

func sameSubject(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
