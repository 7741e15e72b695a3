package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
)

const (
	promptGreeting   = "Hello, I am Arya an AI Voice Assistant! Welcome to Shalby Hospital. How can I help you today?"
	promptStillThere = "Are you still there? How can I help you?"
	promptNoInput    = "We didn't receive any input. Please call back later. Goodbye!"
	promptGoodbye    = "Thank you for calling. Have a great day! Goodbye!"
	promptQAFailed   = "Sorry, I'm having trouble accessing the information right now."
	promptAskNow     = "Please ask your question now."
	promptName       = "Can you please share your good name for the booking?"
	promptNameRetry  = "Sorry, I didn't catch your name. Can you please say your name again?"
	promptMobile     = "Thank you. Now, please enter your 10 digit mobile number using the keypad."
	promptBadMobile  = "That was not a valid mobile number. Please enter your 10 digit mobile number using the keypad."
	promptYesNo      = "Please say yes or no."
	promptLedgerDown = "Sorry, we are unable to complete your booking right now. Please try again later. Goodbye!"
	promptMenu       = "Do you have any more questions to ask, or would you like to book another appointment or lab test? You can say 'book appointment', 'book lab test', 'ask a question', or 'no'."

	promptRescheduleMobile   = "To reschedule your appointment, please enter your 10 digit mobile number using the keypad."
	promptRescheduleNotFound = "Sorry, no appointment was found for this mobile number."
	promptLookupFailed       = "Sorry, I couldn't look up your booking right now."
)

// spokenDate renders a YYYY-MM-DD date the way the prompts read it out.
func spokenDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("2 January 2006")
}

// spokenInterval renders "10:00-10:30" as "10:00 AM".
func spokenInterval(raw string) string {
	iv, err := slotgrid.ParseInterval(raw)
	if err != nil {
		return raw
	}
	return iv.Start.Spoken()
}

// spokenList joins items as "a, b and c".
func spokenList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func spokenTimes(grid []slotgrid.Interval) string {
	times := make([]string, 0, len(grid))
	for _, iv := range grid {
		times = append(times, iv.Start.Spoken())
	}
	return spokenList(times)
}

func departmentPrompt(departments []string) string {
	return fmt.Sprintf("Which department do you want to book an appointment in? Available departments are: %s.", spokenList(departments))
}

func labTestPrompt(tests []string) string {
	return fmt.Sprintf("We have the following lab tests available: %s. Which one would you like to book?", spokenList(tests))
}

func didYouMean(value string) string {
	return fmt.Sprintf("Did you mean %s? %s", value, promptYesNo)
}

func datePrompt(s *Session) string {
	if s.Flow == FlowLab {
		return fmt.Sprintf("For which date do you want the %s? Please say the date in the format 22 July 2025 or 22-07-2025.", s.LabTest)
	}
	return fmt.Sprintf("For which date do you want the appointment in %s? Please say the date in the format 22 July 2025 or 22-07-2025.", s.Department)
}

func dateRetryPrompt() string {
	return "Sorry, I didn't understand the date. Please say the date in the format 22 July 2025 or 22-07-2025."
}

func windowPrompt(days int) string {
	return fmt.Sprintf("Sorry, you can only book appointments from today up to %d days ahead. Please say a valid date.", days)
}

func timePrompt(s *Session) string {
	return fmt.Sprintf("At what time on %s? You can say 3pm, 14:00, or 2:30 p.m.", spokenDate(s.Date))
}

func timeRetryPrompt(grid []slotgrid.Interval) string {
	if len(grid) == 0 {
		return "Sorry, I didn't understand the time. You can say 3pm, 14:00, or 2:30 p.m."
	}
	return fmt.Sprintf("Sorry, that time is not available. Available times are %s. Please say a valid time.", spokenTimes(grid))
}

func dateTimeConfirmPrompt(s *Session) string {
	if s.Flow == FlowLab {
		return fmt.Sprintf("You want to book the %s on %s at %s. Is this correct? %s",
			s.LabTest, spokenDate(s.Date), spokenInterval(s.Interval), promptYesNo)
	}
	return fmt.Sprintf("You want to book an appointment in %s on %s at %s. Is this correct? %s",
		s.Department, spokenDate(s.Date), spokenInterval(s.Interval), promptYesNo)
}

func anotherTimePrompt(s *Session) string {
	if s.Flow == FlowLab {
		return fmt.Sprintf("Okay, let's try another time. Please say the time you want for your %s on %s.", s.LabTest, spokenDate(s.Date))
	}
	return fmt.Sprintf("Okay, let's try another time. Please say the time you want for your appointment in %s on %s.", s.Department, spokenDate(s.Date))
}

func slotOfferPrompt(s *Session) string {
	return fmt.Sprintf("%s is available in %s on %s at %s. Would you like to book with %s? %s",
		s.Doctor, s.Department, spokenDate(s.Date), spokenInterval(s.Interval), s.Doctor, promptYesNo)
}

func doctorChoicePrompt(s *Session) string {
	return fmt.Sprintf("The following doctors are available in %s on %s at %s: %s. Which doctor would you like to book with?",
		s.Department, spokenDate(s.Date), spokenInterval(s.Interval), spokenList(s.Candidates))
}

func suggestionPrompt(s *Session, lead string) string {
	if s.Flow == FlowLab {
		return fmt.Sprintf("%s The next available slot for %s is on %s at %s. Would you like to book this slot? %s",
			lead, s.LabTest, spokenDate(s.Date), spokenInterval(s.Interval), promptYesNo)
	}
	return fmt.Sprintf("%s The next available slot is on %s at %s with %s. Would you like to book this slot? %s",
		lead, spokenDate(s.Date), spokenInterval(s.Interval), s.Doctor, promptYesNo)
}

func noSlotsPrompt(s *Session) string {
	return fmt.Sprintf("Sorry, there are no open slots for %s on or after %s. Please say another date.", s.category(), spokenDate(s.Date))
}

func windowFullPrompt(s *Session) string {
	return fmt.Sprintf("Sorry, there are no other open slots for %s within our booking window.", s.category())
}

func homeCollectionPrompt(s *Session, eligible bool) string {
	if eligible {
		return "Do you want to book a home lab test? " + promptYesNo
	}
	return fmt.Sprintf("Sorry, home lab test is not available for %s. You can do this test at our hospital. Do you want to proceed with hospital lab test? %s",
		s.LabTest, promptYesNo)
}

func finalConfirmPrompt(s *Session) string {
	if s.Flow == FlowLab {
		where := "at the hospital"
		if s.HomeCollection != nil && *s.HomeCollection {
			where = "with home sample collection"
		}
		return fmt.Sprintf("You are booking a %s on %s at %s %s. Your name is %s and your mobile number is %s. Is this correct? %s",
			s.LabTest, spokenDate(s.Date), spokenInterval(s.Interval), where, s.Name, spokenDigits(s.Mobile), promptYesNo)
	}
	return fmt.Sprintf("You are booking an appointment with %s in %s on %s at %s. Your name is %s and your mobile number is %s. Is this correct? %s",
		s.Doctor, s.Department, spokenDate(s.Date), spokenInterval(s.Interval), s.Name, spokenDigits(s.Mobile), promptYesNo)
}

func bookedPrompt(s *Session) string {
	if s.Flow == FlowLab {
		return fmt.Sprintf("Your %s has been booked on %s at %s. Thank you!", s.LabTest, spokenDate(s.Date), spokenInterval(s.Interval))
	}
	return fmt.Sprintf("Your slot has been booked with %s in %s on %s at %s. Thank you!",
		s.Doctor, s.Department, spokenDate(s.Date), spokenInterval(s.Interval))
}

func rescheduleFoundPrompt(d *RescheduleDraft, lab bool) string {
	if lab {
		return fmt.Sprintf("Found your %s booking on %s at %s. What new date would you like to reschedule to?",
			d.Subject, spokenDate(d.OldDate), spokenInterval(d.OldInterval))
	}
	return fmt.Sprintf("Found your appointment with %s in %s on %s at %s. What new date would you like to reschedule to?",
		d.Subject, d.Category, spokenDate(d.OldDate), spokenInterval(d.OldInterval))
}

func rescheduleTimePrompt(d *RescheduleDraft) string {
	return fmt.Sprintf("At what time on %s? You can say 3pm, 14:00, or 2:30 p.m.", spokenDate(d.NewDate))
}

func rescheduleConfirmPrompt(d *RescheduleDraft) string {
	return fmt.Sprintf("You want to reschedule your appointment with %s in %s to %s at %s. Is this correct? %s",
		d.Subject, d.Category, spokenDate(d.NewDate), spokenInterval(d.NewInterval), promptYesNo)
}

func rescheduleSuggestionPrompt(d *RescheduleDraft) string {
	return fmt.Sprintf("Sorry, that slot is not available. The next available slot for %s is on %s at %s. Would you like to reschedule to this time? %s",
		d.Subject, spokenDate(d.NewDate), spokenInterval(d.NewInterval), promptYesNo)
}

func rescheduledPrompt(d *RescheduleDraft) string {
	return fmt.Sprintf("Your appointment has been rescheduled to %s at %s. Thank you!", spokenDate(d.NewDate), spokenInterval(d.NewInterval))
}

// spokenDigits spaces digits so text-to-speech reads them one by one.
func spokenDigits(digits string) string {
	return strings.Join(strings.Split(digits, ""), " ")
}
