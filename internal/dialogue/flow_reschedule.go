package dialogue

import (
	"context"
	"fmt"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
)

func (e *Engine) startReschedule(s *Session, text string) Prompt {
	s.resetBooking()
	s.Flow = FlowRescheduleDoctor
	if wantsLab(text) {
		s.Flow = FlowRescheduleLab
	}
	return e.moveTo(s, StateAwaitRescheduleMobile, promptRescheduleMobile)
}

func (e *Engine) onRescheduleMobile(ctx context.Context, s *Session, in Input) Prompt {
	digits := mobileFrom(in)
	if len(digits) != 10 {
		return e.retry(s, promptBadMobile)
	}
	kind := s.Flow.Kind()
	b, err := e.ledger.FindLatestByContact(ctx, kind, digits)
	if err != nil {
		e.metrics.ObserveCollaboratorFailure("ledger")
		e.logger.Error("booking lookup failed", "call_id", s.CallID, "error", err)
		return e.backToMenu(s, promptLookupFailed)
	}
	if b == nil {
		return e.backToMenu(s, promptRescheduleNotFound)
	}
	s.Mobile = digits
	s.Reschedule = &RescheduleDraft{
		BookingID:   b.ID,
		Category:    b.Category,
		Subject:     b.Subject,
		Contact:     digits,
		Name:        b.CustomerName,
		OldDate:     b.Date,
		OldInterval: b.Interval,
	}
	return e.moveTo(s, StateAwaitRescheduleDate, rescheduleFoundPrompt(s.Reschedule, kind == booking.KindLab))
}

func (e *Engine) onRescheduleDate(s *Session, text string) Prompt {
	if s.Reschedule == nil {
		return e.backToMenu(s, promptRescheduleNotFound)
	}
	date, _, ok := parseDate(text, e.today())
	if !ok {
		return e.retry(s, dateRetryPrompt())
	}
	if !e.inWindow(date) {
		return e.retry(s, windowPrompt(e.cfg.WindowDays))
	}
	s.Reschedule.NewDate = date.Format(booking.DateLayout)
	return e.moveTo(s, StateAwaitRescheduleTime, rescheduleTimePrompt(s.Reschedule))
}

// onRescheduleTime accepts the requested time when the booked subject is free
// then, otherwise offers the subject's next open slot.
func (e *Engine) onRescheduleTime(ctx context.Context, s *Session, text string) Prompt {
	d := s.Reschedule
	if d == nil {
		return e.backToMenu(s, promptRescheduleNotFound)
	}
	clocks := parseTime(text, e.cfg.HourPolicy)
	if len(clocks) == 0 {
		return e.retry(s, "Sorry, I didn't understand the time. "+s.LastPrompt)
	}
	kind := s.Flow.Kind()
	slots, err := e.slots.ListAvailable(ctx, kind, d.Category, d.NewDate)
	if err != nil {
		e.logger.Error("listing slots failed", "call_id", s.CallID, "category", d.Category, "error", err)
		return e.fail(s, promptLedgerDown)
	}
	for _, c := range clocks {
		for _, sl := range slots {
			if sameSubject(sl.Subject, d.Subject) && sl.Interval.Start == c {
				d.NewInterval = sl.Interval.String()
				return e.moveTo(s, StateAwaitRescheduleConfirm, rescheduleConfirmPrompt(d))
			}
		}
	}

	sug, err := e.slots.SuggestNearest(ctx, kind, d.Category, d.NewDate, clocks[0], d.Subject)
	if err != nil {
		e.logger.Error("suggesting slot failed", "call_id", s.CallID, "category", d.Category, "error", err)
		return e.fail(s, promptLedgerDown)
	}
	if sug == nil {
		d.NewDate = ""
		return e.moveTo(s, StateAwaitRescheduleDate,
			fmt.Sprintf("Sorry, %s has no open slots after that time. Please say another date.", d.Subject))
	}
	d.NewDate = sug.Date
	d.NewInterval = sug.Interval.String()
	return e.moveTo(s, StateAwaitRescheduleConfirm, rescheduleSuggestionPrompt(d))
}

func (e *Engine) onRescheduleConfirm(ctx context.Context, s *Session, text string) Prompt {
	d := s.Reschedule
	if d == nil {
		return e.backToMenu(s, promptRescheduleNotFound)
	}
	yes, ok := parseYesNo(text)
	if !ok {
		return e.retry(s, "Sorry, I didn't understand. "+s.LastPrompt)
	}
	if !yes {
		d.NewInterval = ""
		return e.moveTo(s, StateAwaitRescheduleTime, rescheduleTimePrompt(d))
	}

	b, err := e.ledger.Reschedule(ctx, ledger.RescheduleRequest{
		Kind:       s.Flow.Kind(),
		Contact:    d.Contact,
		ExpectedID: d.BookingID,
		Date:       d.NewDate,
		Interval:   d.NewInterval,
	})
	switch {
	case booking.IsConflict(err):
		d.NewInterval = ""
		return e.moveTo(s, StateAwaitRescheduleTime, "Sorry, that slot was just booked by someone else. "+rescheduleTimePrompt(d))
	case booking.IsNotFound(err):
		return e.backToMenu(s, "Sorry, I could not find your appointment anymore.")
	case booking.IsInput(err):
		d.NewInterval = ""
		return e.moveTo(s, StateAwaitRescheduleTime, "That is already your current slot. Please say a different time.")
	case err != nil:
		return e.ledgerDown(s, err)
	}

	s.LastBookingID = b.ID
	e.notify.Rescheduled(ctx, *b)
	e.logger.Info("call rescheduled booking", "call_id", s.CallID, "old_booking_id", d.BookingID, "booking_id", b.ID)
	return e.finish(s, rescheduledPrompt(d))
}
