package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-voice-booking/internal/availability"
	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/directory"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

type stubEngine struct {
	prompt  dialogue.Prompt
	err     error
	endErr  error
	inputs  []dialogue.Input
	endedID []string
}

func (s *stubEngine) Turn(_ context.Context, in dialogue.Input) (dialogue.Prompt, error) {
	s.inputs = append(s.inputs, in)
	return s.prompt, s.err
}

func (s *stubEngine) End(_ context.Context, callID string) error {
	s.endedID = append(s.endedID, callID)
	return s.endErr
}

func newVoiceHandler(engine turnEngine) *VoiceHandler {
	return NewVoiceHandler(VoiceHandlerConfig{Engine: engine, Logger: logging.Default()})
}

func postForm(t *testing.T, h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandleTurnReturnsPrompt(t *testing.T) {
	engine := &stubEngine{prompt: dialogue.Prompt{Say: "Which department?", Expect: dialogue.ExpectSpeech, State: dialogue.StateAwaitDepartment}}
	h := newVoiceHandler(engine)

	body, _ := json.Marshal(dialogue.Input{CallID: "CA1", Text: "book an appointment", From: "+919876543210"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.HandleTurn(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got dialogue.Prompt
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "Which department?", got.Say)
	assert.Equal(t, dialogue.StateAwaitDepartment, got.State)
	require.Len(t, engine.inputs, 1)
	assert.Equal(t, "book an appointment", engine.inputs[0].Text)
}

func TestHandleTurnRejectsBadInput(t *testing.T) {
	h := newVoiceHandler(&stubEngine{err: booking.InputError("call_id is required")})

	rr := httptest.NewRecorder()
	h.HandleTurn(rr, httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleTurn(rr, httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(`{"text":"hi"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleTurnApologisesOnEngineError(t *testing.T) {
	h := newVoiceHandler(&stubEngine{err: errors.New("boom")})

	rr := httptest.NewRecorder()
	h.HandleTurn(rr, httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(`{"call_id":"CA1"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	var got dialogue.Prompt
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.True(t, got.Hangup)
	assert.Equal(t, fallbackApology, got.Say)
}

func TestTwilioVoiceGathersSpeech(t *testing.T) {
	engine := &stubEngine{prompt: dialogue.Prompt{
		Say: "Which department?", Expect: dialogue.ExpectSpeech, TimeoutSeconds: 5, Reprompt: "Are you still there?",
	}}
	h := newVoiceHandler(engine)

	rr := postForm(t, h.HandleTwilioVoice, "/webhooks/twilio/voice", url.Values{
		"CallSid":      {"CA42"},
		"SpeechResult": {"cardiology"},
		"From":         {"+919876543210"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/xml", rr.Header().Get("Content-Type"))
	out := rr.Body.String()
	assert.Contains(t, out, `<Gather input="speech" action="/webhooks/twilio/voice" method="POST" timeout="5" speechTimeout="auto" language="en-IN" actionOnEmptyResult="true">`)
	assert.Contains(t, out, `<Say language="en-IN">Which department?</Say></Gather>`)
	assert.Contains(t, out, `<Say language="en-IN">Are you still there?</Say><Hangup></Hangup></Response>`)

	require.Len(t, engine.inputs, 1)
	assert.Equal(t, dialogue.Input{CallID: "CA42", Text: "cardiology", From: "+919876543210"}, engine.inputs[0])
}

func TestTwilioVoiceGathersDigits(t *testing.T) {
	engine := &stubEngine{prompt: dialogue.Prompt{
		Say: "Please enter your mobile number.", Expect: dialogue.ExpectDigits, NumDigits: 10, TimeoutSeconds: 15,
	}}
	h := newVoiceHandler(engine)

	rr := postForm(t, h.HandleTwilioVoice, "/webhooks/twilio/voice", url.Values{"CallSid": {"CA42"}, "Digits": {"98765"}})

	out := rr.Body.String()
	assert.Contains(t, out, `<Gather input="dtmf" action="/webhooks/twilio/voice" method="POST" timeout="15" numDigits="10" finishOnKey="#" actionOnEmptyResult="true">`)
	assert.Equal(t, "98765", engine.inputs[0].Digits)
}

func TestTwilioVoiceHangsUp(t *testing.T) {
	h := newVoiceHandler(&stubEngine{prompt: dialogue.Prompt{Say: "Goodbye.", Expect: dialogue.ExpectNone, Hangup: true}})

	rr := postForm(t, h.HandleTwilioVoice, "/webhooks/twilio/voice", url.Values{"CallSid": {"CA42"}})

	out := rr.Body.String()
	assert.Contains(t, out, `<Response><Say language="en-IN">Goodbye.</Say><Hangup></Hangup></Response>`)
	assert.NotContains(t, out, "Gather")
}

func TestTwilioVoiceEscapesSpeech(t *testing.T) {
	h := newVoiceHandler(&stubEngine{prompt: dialogue.Prompt{Say: "Tests & scans <today>", Expect: dialogue.ExpectNone, Hangup: true}})

	rr := postForm(t, h.HandleTwilioVoice, "/webhooks/twilio/voice", url.Values{"CallSid": {"CA42"}})
	assert.Contains(t, rr.Body.String(), "Tests &amp; scans &lt;today&gt;")
}

func TestTwilioStatusEndsTerminalCalls(t *testing.T) {
	engine := &stubEngine{}
	h := newVoiceHandler(engine)

	rr := postForm(t, h.HandleTwilioStatus, "/webhooks/twilio/status", url.Values{"CallSid": {"CA42"}, "CallStatus": {"in-progress"}})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, engine.endedID)

	rr = postForm(t, h.HandleTwilioStatus, "/webhooks/twilio/status", url.Values{"CallSid": {"CA42"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"CA42"}, engine.endedID)

	engine.endErr = errors.New("redis down")
	rr = postForm(t, h.HandleTwilioStatus, "/webhooks/twilio/status", url.Values{"CallSid": {"CA43"}, "CallStatus": {"no-answer"}})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = postForm(t, h.HandleTwilioStatus, "/webhooks/twilio/status", url.Values{"CallStatus": {"completed"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNewVoiceHandlerPanicsWithoutEngine(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil engine")
		}
	}()
	NewVoiceHandler(VoiceHandlerConfig{})
}

const handlerRoster = `
doctors:
  - doctor_name: Dr. Mehta
    doctor_department: Cardiology
    doctor_available_time: "10 to 13"
`

// A whole call through the Twilio webhook against the real engine.
func TestTwilioVoiceDrivesBooking(t *testing.T) {
	now := time.Date(2025, 7, 20, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir, err := directory.Parse([]byte(handlerRoster))
	require.NoError(t, err)
	l := ledger.New(ledger.NewMemoryStore(), ledger.WithClock(clock))
	slots := availability.New(dir, l, availability.WithClock(clock))
	engine := dialogue.New(dialogue.NewMemoryStore(), slots, l, dialogue.WithClock(clock))
	h := newVoiceHandler(engine)

	turn := func(form url.Values) string {
		form.Set("CallSid", "CA-e2e")
		return postForm(t, h.HandleTwilioVoice, "/webhooks/twilio/voice", form).Body.String()
	}

	assert.Contains(t, turn(url.Values{}), "Gather")
	assert.Contains(t, turn(url.Values{"SpeechResult": {"book cardiology on 22 July 2025 at 10 am"}}), "Dr. Mehta")
	turn(url.Values{"SpeechResult": {"yes"}})
	turn(url.Values{"SpeechResult": {"Asha Verma"}})
	assert.Contains(t, turn(url.Values{"Digits": {"9876543210"}}), "Asha Verma")
	turn(url.Values{"SpeechResult": {"yes"}})

	booked, err := l.IsBooked(context.Background(), booking.Key{
		Kind: booking.KindDoctor, Subject: "Dr. Mehta", Date: "2025-07-22", Interval: "10:00-10:30",
	})
	require.NoError(t, err)
	assert.True(t, booked)

	rr := postForm(t, h.HandleTwilioStatus, "/webhooks/twilio/status", url.Values{"CallSid": {"CA-e2e"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
