// Package booking holds the shared booking record and the error taxonomy used
// by the ledger, availability resolver and dialogue engine.
package booking

import (
	"strings"
	"time"
)

// Kind distinguishes doctor appointments from lab test bookings.
type Kind string

const (
	KindDoctor Kind = "doctor"
	KindLab    Kind = "lab"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindDoctor || k == KindLab
}

// DateLayout is the wire format for booking dates.
const DateLayout = "2006-01-02"

// Booking is a committed reservation of one interval for one subject.
type Booking struct {
	ID string `json:"id"`
	// Kind is doctor or lab.
	Kind Kind `json:"kind"`
	// Category is the department for doctors and the test name for labs.
	Category string `json:"category"`
	// Subject is the doctor name or lab test name that owns the slot.
	Subject         string    `json:"subject"`
	Date            string    `json:"date"`
	Interval        string    `json:"time_interval"`
	CustomerName    string    `json:"customer_name"`
	CustomerContact string    `json:"customer_contact"`
	HomeService     *bool     `json:"home_service,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key is the uniqueness tuple of a booking.
type Key struct {
	Kind     Kind
	Subject  string
	Date     string
	Interval string
}

// Key returns the uniqueness tuple for b.
func (b Booking) Key() Key {
	return Key{Kind: b.Kind, Subject: b.Subject, Date: b.Date, Interval: b.Interval}
}

// Normalize trims the free-text fields.
func (b *Booking) Normalize() {
	b.Category = strings.TrimSpace(b.Category)
	b.Subject = strings.TrimSpace(b.Subject)
	b.Date = strings.TrimSpace(b.Date)
	b.Interval = strings.TrimSpace(b.Interval)
	b.CustomerName = strings.TrimSpace(b.CustomerName)
	b.CustomerContact = strings.TrimSpace(b.CustomerContact)
}

// Validate checks that every field required for a commit is present.
func (b Booking) Validate() error {
	var missing []string
	if !b.Kind.Valid() {
		missing = append(missing, "kind")
	}
	if b.Subject == "" {
		missing = append(missing, "subject")
	}
	if b.Interval == "" {
		missing = append(missing, "time_interval")
	}
	if b.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if b.CustomerContact == "" {
		missing = append(missing, "customer_contact")
	}
	if len(missing) > 0 {
		return InputError("missing fields: " + strings.Join(missing, ", "))
	}
	if _, err := time.Parse(DateLayout, b.Date); err != nil {
		return InputError("date must be YYYY-MM-DD")
	}
	return nil
}

// BoolPtr is a small helper for the optional HomeService flag.
func BoolPtr(v bool) *bool {
	return &v
}
