package notify

import (
	"fmt"
	"strings"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

// BookingConfirmation is the SMS sent after a commit.
func BookingConfirmation(b booking.Booking) string {
	if b.Kind == booking.KindLab {
		return LabConfirmation(b)
	}
	return strings.Join([]string{
		"Your appointment is confirmed!",
		"Doctor: " + b.Subject,
		"Department: " + b.Category,
		"Date: " + b.Date,
		"Time: " + b.Interval,
		"Name: " + b.CustomerName,
		"Mobile: " + b.CustomerContact,
	}, "\n")
}

// LabConfirmation is the SMS sent after a lab test commit.
func LabConfirmation(b booking.Booking) string {
	home := "No"
	if b.HomeService != nil && *b.HomeService {
		home = "Yes"
	}
	return strings.Join([]string{
		"Your lab test booking is confirmed!",
		"Test: " + b.Subject,
		"Date: " + b.Date,
		"Time: " + b.Interval,
		"Name: " + b.CustomerName,
		"Mobile: " + b.CustomerContact,
		"Home Lab Test: " + home,
	}, "\n")
}

// RescheduleConfirmation is the SMS sent after a booking moves.
func RescheduleConfirmation(b booking.Booking) string {
	if b.Kind == booking.KindLab {
		return strings.Join([]string{
			"Your lab test booking has been rescheduled!",
			"Test: " + b.Subject,
			"Date: " + b.Date,
			"Time: " + b.Interval,
			"Name: " + b.CustomerName,
			"Mobile: " + b.CustomerContact,
		}, "\n")
	}
	return fmt.Sprintf("Your appointment has been rescheduled!\nDoctor: %s\nDepartment: %s\nDate: %s\nTime: %s\nName: %s\nMobile: %s",
		b.Subject, b.Category, b.Date, b.Interval, b.CustomerName, b.CustomerContact)
}
