package dialogue

import (
	"context"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// onStart routes the opening utterance. Reschedule wins over lab, lab over
// doctor booking; anything else is treated as a question.
func (e *Engine) onStart(ctx context.Context, s *Session, text string) Prompt {
	if p, ok := e.route(ctx, s, text); ok {
		return p
	}
	return e.answer(ctx, s, text)
}

func (e *Engine) onMenu(ctx context.Context, s *Session, text string) Prompt {
	if p, ok := e.route(ctx, s, text); ok {
		return p
	}
	short := len(words(text)) <= 5
	switch {
	case short && wantsQuestion(text):
		return e.moveTo(s, StatePostBookingMenu, promptAskNow)
	case short && menuDone(text):
		return e.abandon(s, promptGoodbye)
	}
	return e.answer(ctx, s, text)
}

func (e *Engine) route(ctx context.Context, s *Session, text string) (Prompt, bool) {
	if wantsReschedule(text) {
		return e.startReschedule(s, text), true
	}
	if wantsLab(text) {
		return e.startLab(s, text), true
	}
	if _, ok := e.mentions(text, e.slots.Categories(booking.KindLab)); ok {
		return e.startLab(s, text), true
	}
	if wantsBooking(text) {
		return e.startDoctor(ctx, s, text), true
	}
	if _, ok := e.mentions(text, e.slots.Categories(booking.KindDoctor)); ok {
		return e.startDoctor(ctx, s, text), true
	}
	return Prompt{}, false
}

// answer forwards a question to the QA service and stays in the current
// state. QA failures are apologised for, never fatal.
func (e *Engine) answer(ctx context.Context, s *Session, question string) Prompt {
	follow := "How else can I help you?"
	if s.State == StatePostBookingMenu {
		follow = promptMenu
	}
	lead := promptQAFailed
	if e.qa != nil {
		ans, err := e.qa.Answer(ctx, question, s.CallID)
		if err != nil {
			e.metrics.ObserveCollaboratorFailure("qa")
			e.logger.Warn("question not answered", "call_id", s.CallID, "error", err)
		} else {
			lead = ans
		}
	}
	p := e.moveTo(s, s.State, follow)
	p.Say = joinSay(lead, follow)
	return p
}
