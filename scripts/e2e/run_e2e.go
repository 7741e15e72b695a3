// Package main drives scripted phone calls against a running API through the
// JSON turn endpoint and checks where each call ends up.
//
// Scenarios:
//   - greeting: an empty first turn is greeted
//   - goodbye: the caller hangs up politely
//   - silence: two silent turns abandon the call
//   - doctor-booking: a one-sentence doctor booking through to commit
//   - question: a free-form question is answered without leaving the menu
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go              # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go silence      # runs one
//
// doctor-booking needs a department and date the roster can serve; override
// them with E2E_DEPARTMENT and E2E_DATE (for example "22 July 2025").
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

const turnPath = "/webhooks/voice/turn"

var (
	apiBase    string
	department string
	date       string
	client     = &http.Client{Timeout: 20 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
	callID string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type turnRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text,omitempty"`
	Digits string `json:"digits,omitempty"`
	From   string `json:"from,omitempty"`
}

type prompt struct {
	Say    string `json:"say"`
	Expect string `json:"expect"`
	Hangup bool   `json:"hangup"`
	State  string `json:"state"`
}

// say sends one caller turn and returns the system's reply.
func (t *T) say(text, digits string) (prompt, bool) {
	body, _ := json.Marshal(turnRequest{CallID: t.callID, Text: text, Digits: digits, From: "+919800000000"})
	resp, err := client.Post(apiBase+turnPath, "application/json", bytes.NewReader(body))
	if err != nil {
		t.fatalf("turn %q: %v", text, err)
		return prompt{}, false
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.fatalf("turn %q returned %d: %s", text, resp.StatusCode, raw)
		return prompt{}, false
	}
	var p prompt
	if err := json.Unmarshal(raw, &p); err != nil {
		t.fatalf("decode reply: %v", err)
		return prompt{}, false
	}
	fmt.Printf("    caller: %-40q system[%s]: %s\n", text+digits, p.State, truncate(p.Say, 90))
	return p, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func scenarioGreeting(t *T) {
	p, ok := t.say("", "")
	if !ok {
		return
	}
	t.check("greeting is spoken", strings.Contains(strings.ToLower(p.Say), "welcome"))
	t.check("call stays open", !p.Hangup && p.Expect == "speech")
}

func scenarioGoodbye(t *T) {
	if _, ok := t.say("", ""); !ok {
		return
	}
	p, ok := t.say("no thanks, goodbye", "")
	if !ok {
		return
	}
	t.check("call hangs up", p.Hangup)
	t.check("state is abandoned", p.State == "abandoned")
}

func scenarioSilence(t *T) {
	if _, ok := t.say("", ""); !ok {
		return
	}
	p, ok := t.say("", "")
	if !ok {
		return
	}
	t.check("first silence reprompts", !p.Hangup)
	p, ok = t.say("", "")
	if !ok {
		return
	}
	t.check("second silence hangs up", p.Hangup && p.State == "abandoned")
}

func scenarioDoctorBooking(t *T) {
	if _, ok := t.say("", ""); !ok {
		return
	}
	p, ok := t.say(fmt.Sprintf("book %s on %s at 10 am", department, date), "")
	if !ok {
		return
	}
	t.check("a doctor is proposed", strings.Contains(p.Say, "Dr."))

	// Confirm prompts until the system asks for a name.
	for i := 0; i < 3 && p.State != "await_name"; i++ {
		if p, ok = t.say("yes", ""); !ok {
			return
		}
	}
	t.check("name is requested", p.State == "await_name")
	if p, ok = t.say("Asha Verma", ""); !ok {
		return
	}
	t.check("mobile is requested as digits", p.Expect == "dtmf")

	mobile := fmt.Sprintf("98%08d", rand.Intn(100000000))
	if p, ok = t.say("", mobile); !ok {
		return
	}
	t.check("read-back includes the name", strings.Contains(p.Say, "Asha Verma"))
	if p, ok = t.say("yes", ""); !ok {
		return
	}
	t.check("booking is committed", p.State == "post_booking_menu" || p.State == "committed")
}

func scenarioQuestion(t *T) {
	if _, ok := t.say("", ""); !ok {
		return
	}
	p, ok := t.say("what are the visiting hours", "")
	if !ok {
		return
	}
	t.check("question gets an answer", p.Say != "")
	t.check("call stays open", !p.Hangup)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	department = os.Getenv("E2E_DEPARTMENT")
	if department == "" {
		department = "cardiology"
	}
	date = os.Getenv("E2E_DATE")
	if date == "" {
		date = time.Now().AddDate(0, 0, 2).Format("2 January 2006")
	}

	all := []scenario{
		{"greeting", scenarioGreeting},
		{"goodbye", scenarioGoodbye},
		{"silence", scenarioSilence},
		{"doctor-booking", scenarioDoctorBooking},
		{"question", scenarioQuestion},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	var passed, failed int
	ran := 0
	for _, s := range all {
		if filter != "" && s.Name != filter {
			continue
		}
		ran++
		t := &T{name: s.Name, callID: fmt.Sprintf("e2e-%s-%d", s.Name, time.Now().UnixNano())}
		fmt.Printf("=== %s (%s)\n", s.Name, t.callID)
		s.Fn(t)
		passed += t.passed
		failed += t.failed
	}
	if ran == 0 {
		fmt.Printf("unknown scenario %q\n", filter)
		os.Exit(2)
	}

	fmt.Printf("\n%d checks passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
