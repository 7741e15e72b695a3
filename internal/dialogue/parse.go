package dialogue

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
)

// words lowercases text and splits it on anything that is not a letter,
// digit or apostrophe.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func hasWord(text string, vocab ...string) bool {
	for _, w := range words(text) {
		for _, v := range vocab {
			if w == v {
				return true
			}
		}
	}
	return false
}

// hasPhrase matches multi-word phrases on word boundaries.
func hasPhrase(text string, phrases ...string) bool {
	padded := " " + strings.Join(words(text), " ") + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

var (
	yesWords = []string{"yes", "yeah", "yup", "yep", "correct", "right", "ya", "sure", "ok", "okay"}
	noWords  = []string{"no", "nope", "nah", "not", "incorrect", "wrong"}
)

// parseYesNo reads a confirmation answer. ok is false when the text is
// neither or both.
func parseYesNo(text string) (yes bool, ok bool) {
	y := hasWord(text, yesWords...) || hasPhrase(text, "go ahead", "that's right", "please do")
	n := hasWord(text, noWords...)
	if y == n {
		return false, false
	}
	return y, true
}

func isGoodbye(text string) bool {
	return hasWord(text, "bye", "goodbye") ||
		hasPhrase(text, "that's all", "that is all", "hang up", "end the call", "end call")
}

// menuDone recognises "nothing more" answers to the post-booking menu.
func menuDone(text string) bool {
	return isGoodbye(text) ||
		hasWord(text, "no", "none", "nothing", "exit", "quit", "thanks") ||
		hasPhrase(text, "thank you", "no thanks")
}

var labPhrases = []string{"lab test", "lab tests", "blood test", "health checkup", "health check up", "scan", "package"}

func wantsLab(text string) bool {
	return hasPhrase(text, labPhrases...)
}

func wantsReschedule(text string) bool {
	return hasWord(text, "reschedule", "rescheduling", "postpone", "prepone") ||
		hasPhrase(text, "change my appointment", "move my appointment", "change my booking")
}

func wantsBooking(text string) bool {
	return hasWord(text, "book", "booking", "appointment", "appointments", "another", "consultation")
}

func wantsQuestion(text string) bool {
	return hasWord(text, "question", "ask", "info", "information", "query")
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

const monthAlt = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})\b`)
	dayMonthPattern    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?(?:\s+of)?\s+(` + monthAlt + `)\b,?(?:\s+(\d{4}))?`)
	monthDayPattern    = regexp.MustCompile(`\b(` + monthAlt + `)\s+(\d{1,2})(?:st|nd|rd|th)?\b,?(?:\s+(\d{4}))?`)
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate reads a calendar date out of an utterance relative to today.
// Explicit numeric and month-name forms are tried first (day before month for
// numeric dates), then relative phrases such as "tomorrow" or "next monday".
// rest is the utterance with an explicit date removed.
func parseDate(text string, today time.Time) (date time.Time, rest string, ok bool) {
	lower := strings.ToLower(text)
	loc := today.Location()

	if m := isoDatePattern.FindStringSubmatchIndex(lower); m != nil {
		y, mo, d := atoi(lower[m[2]:m[3]]), atoi(lower[m[4]:m[5]]), atoi(lower[m[6]:m[7]])
		if t, valid := makeDate(y, time.Month(mo), d, loc); valid {
			return t, cut(lower, m[0], m[1]), true
		}
	}
	if m := numericDatePattern.FindStringSubmatchIndex(lower); m != nil {
		d, mo, y := atoi(lower[m[2]:m[3]]), atoi(lower[m[4]:m[5]]), atoi(lower[m[6]:m[7]])
		if y < 100 {
			y += 2000
		}
		if t, valid := makeDate(y, time.Month(mo), d, loc); valid {
			return t, cut(lower, m[0], m[1]), true
		}
	}
	if m := dayMonthPattern.FindStringSubmatchIndex(lower); m != nil {
		d, mo := atoi(lower[m[2]:m[3]]), months[lower[m[4]:m[5]]]
		if t, valid := withYear(d, mo, lower, m[6], m[7], today); valid {
			return t, cut(lower, m[0], m[1]), true
		}
	}
	if m := monthDayPattern.FindStringSubmatchIndex(lower); m != nil {
		mo, d := months[lower[m[2]:m[3]]], atoi(lower[m[4]:m[5]])
		if t, valid := withYear(d, mo, lower, m[6], m[7], today); valid {
			return t, cut(lower, m[0], m[1]), true
		}
	}

	r, err := dateParser.Parse(lower, today)
	if err != nil || r == nil {
		return time.Time{}, lower, false
	}
	t := r.Time.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	// A bare time of day resolves to today; only count it when today was said.
	if day.Equal(today) && !hasWord(lower, "today", "tonight") {
		return time.Time{}, lower, false
	}
	// The relative match may have consumed a spoken time, so rest keeps it.
	return day, lower, true
}

// withYear uses the spoken year when present, otherwise the next occurrence of
// the day on or after today.
func withYear(day int, month time.Month, s string, from, to int, today time.Time) (time.Time, bool) {
	if from >= 0 {
		return makeDate(atoi(s[from:to]), month, day, today.Location())
	}
	t, ok := makeDate(today.Year(), month, day, today.Location())
	if ok && t.Before(today) {
		t, ok = makeDate(today.Year()+1, month, day, today.Location())
	}
	return t, ok
}

func makeDate(y int, m time.Month, d int, loc *time.Location) (time.Time, bool) {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	// time.Date normalises 31 June to 1 July; reject that.
	if t.Day() != d || t.Month() != m {
		return time.Time{}, false
	}
	return t, true
}

func cut(s string, from, to int) string {
	return strings.TrimSpace(s[:from] + " " + s[to:])
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var (
	clockWithMinutes = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*(a\.?\s?m\.?|p\.?\s?m\.?)?`)
	hourWithMeridiem = regexp.MustCompile(`\b(\d{1,2})\s*(a\.?\s?m\.?|p\.?\s?m\.?)`)
	hourAfterAt      = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	bareHour         = regexp.MustCompile(`^\s*(\d{1,2})(?:\s*o'?\s?clock)?\s*$`)
)

// parseTime reads a time of day. It returns candidate clocks in order of
// preference: a bare hour yields the policy reading first and the literal
// hour second, so "7" can still match a 7 AM lab slot.
func parseTime(text string, policy slotgrid.HourPolicy) []slotgrid.Clock {
	lower := strings.ToLower(strings.TrimSpace(text))
	if hasWord(lower, "noon") {
		return []slotgrid.Clock{slotgrid.NewClock(12, 0)}
	}
	if m := clockWithMinutes.FindStringSubmatch(lower); m != nil {
		h, minute := atoi(m[1]), atoi(m[2])
		if minute > 59 {
			return nil
		}
		return clockCandidates(h, minute, m[3], policy)
	}
	if m := hourWithMeridiem.FindStringSubmatch(lower); m != nil {
		return clockCandidates(atoi(m[1]), 0, m[2], policy)
	}
	if m := hourAfterAt.FindStringSubmatch(lower); m != nil {
		return clockCandidates(atoi(m[1]), 0, "", policy)
	}
	if m := bareHour.FindStringSubmatch(lower); m != nil {
		return clockCandidates(atoi(m[1]), 0, "", policy)
	}
	return nil
}

func clockCandidates(h, minute int, meridiem string, policy slotgrid.HourPolicy) []slotgrid.Clock {
	if h > 23 {
		return nil
	}
	switch {
	case strings.HasPrefix(meridiem, "p"):
		if h > 12 {
			return nil
		}
		if h < 12 {
			h += 12
		}
		return []slotgrid.Clock{slotgrid.NewClock(h, minute)}
	case strings.HasPrefix(meridiem, "a"):
		if h > 12 {
			return nil
		}
		if h == 12 {
			h = 0
		}
		return []slotgrid.Clock{slotgrid.NewClock(h, minute)}
	}
	resolved := policy.Hour(h)
	if resolved == h {
		return []slotgrid.Clock{slotgrid.NewClock(h, minute)}
	}
	return []slotgrid.Clock{slotgrid.NewClock(resolved, minute), slotgrid.NewClock(h, minute)}
}

// digitsOf keeps only the digits of keypad or spoken input.
func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var namePrefixes = []string{"my name is", "my name's", "name is", "this is", "i am", "i'm", "it is", "it's"}

// cleanName strips lead-in phrases and punctuation from a spoken name.
func cleanName(text string) string {
	name := strings.TrimSpace(text)
	lower := strings.ToLower(name)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p+" ") {
			name = strings.TrimSpace(name[len(p):])
			break
		}
	}
	return strings.TrimFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
