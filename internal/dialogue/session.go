// Package dialogue runs the per-call booking conversation as an explicit
// state machine over a stored session record.
package dialogue

import (
	"context"
	"time"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// Flow names the booking journey a session is in.
type Flow string

const (
	FlowDoctor           Flow = "doctor"
	FlowLab              Flow = "lab"
	FlowRescheduleDoctor Flow = "reschedule_doctor"
	FlowRescheduleLab    Flow = "reschedule_lab"
)

// Kind maps the flow onto the ledger's booking kind.
func (f Flow) Kind() booking.Kind {
	if f == FlowLab || f == FlowRescheduleLab {
		return booking.KindLab
	}
	return booking.KindDoctor
}

// State is one step of the conversation.
type State string

const (
	StateStart                  State = "start"
	StateAwaitDepartment        State = "await_department"
	StateAwaitDepartmentConfirm State = "await_department_confirm"
	StateAwaitLabTest           State = "await_lab_test"
	StateAwaitLabTestConfirm    State = "await_lab_test_confirm"
	StateAwaitDate              State = "await_date"
	StateAwaitTime              State = "await_time"
	StateAwaitDateTimeConfirm   State = "await_datetime_confirm"
	StateAwaitDoctorChoice      State = "await_doctor_choice"
	StateAwaitBookingConfirm    State = "await_booking_confirm"
	StateAwaitHomeCollection    State = "await_home_collection"
	StateAwaitName              State = "await_name"
	StateAwaitMobile            State = "await_mobile"
	StateAwaitFinalConfirm      State = "await_final_confirm"
	StateCommitted              State = "committed"
	StatePostBookingMenu        State = "post_booking_menu"

	StateAwaitRescheduleMobile  State = "await_reschedule_mobile"
	StateAwaitRescheduleDate    State = "await_reschedule_date"
	StateAwaitRescheduleTime    State = "await_reschedule_time"
	StateAwaitRescheduleConfirm State = "await_reschedule_confirm"

	StateAbandoned State = "abandoned"
	StateError     State = "error"
)

// Terminal reports whether the call is over in this state.
func (s State) Terminal() bool {
	return s == StateAbandoned || s == StateError || s == StateCommitted
}

// RescheduleDraft carries the booking being moved and the requested slot.
type RescheduleDraft struct {
	BookingID   string `json:"booking_id"`
	Category    string `json:"category"`
	Subject     string `json:"subject"`
	Contact     string `json:"contact"`
	Name        string `json:"name"`
	OldDate     string `json:"old_date"`
	OldInterval string `json:"old_interval"`
	NewDate     string `json:"new_date,omitempty"`
	NewInterval string `json:"new_interval,omitempty"`
}

// Session is everything the engine remembers between turns of one call.
type Session struct {
	CallID string `json:"call_id"`
	From   string `json:"from,omitempty"`
	Flow   Flow   `json:"flow,omitempty"`
	State  State  `json:"state"`

	Department     string `json:"department,omitempty"`
	Doctor         string `json:"doctor,omitempty"`
	LabTest        string `json:"lab_test,omitempty"`
	Date           string `json:"date,omitempty"`
	Interval       string `json:"interval,omitempty"`
	Name           string `json:"name,omitempty"`
	Mobile         string `json:"mobile,omitempty"`
	HomeCollection *bool  `json:"home_collection,omitempty"`

	// Pending holds a low-confidence match read back for confirmation.
	Pending string `json:"pending,omitempty"`
	// Candidates are the doctors free at the chosen time when there are several.
	Candidates []string          `json:"candidates,omitempty"`
	Reschedule *RescheduleDraft `json:"reschedule,omitempty"`

	// LastPrompt is the question the caller is answering, repeated on retries.
	LastPrompt string `json:"last_prompt,omitempty"`
	// Retries counts failed attempts in the current state.
	Retries       int    `json:"retries"`
	LastBookingID string `json:"last_booking_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// category is the department for doctor flows and the test for lab flows.
func (s *Session) category() string {
	if s.Flow.Kind() == booking.KindLab {
		return s.LabTest
	}
	return s.Department
}

func (s *Session) subject() string {
	if s.Flow.Kind() == booking.KindLab {
		return s.LabTest
	}
	return s.Doctor
}

// resetBooking clears the fields of a finished or abandoned booking attempt.
// Name and mobile are kept so a second booking in the same call can reuse them.
// clone copies s including the pointer and slice fields, so a stored session
// shares nothing with the caller's copy.
func (s *Session) clone() *Session {
	c := *s
	if s.HomeCollection != nil {
		v := *s.HomeCollection
		c.HomeCollection = &v
	}
	if s.Reschedule != nil {
		r := *s.Reschedule
		c.Reschedule = &r
	}
	if s.Candidates != nil {
		c.Candidates = append([]string(nil), s.Candidates...)
	}
	return &c
}

func (s *Session) resetBooking() {
	s.Flow = ""
	s.Department = ""
	s.Doctor = ""
	s.LabTest = ""
	s.Date = ""
	s.Interval = ""
	s.HomeCollection = nil
	s.Pending = ""
	s.Candidates = nil
	s.Reschedule = nil
}

// SessionStore persists sessions between turns. Get returns nil, nil for an
// unknown or expired call.
type SessionStore interface {
	Get(ctx context.Context, callID string) (*Session, error)
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, callID string) error
}
