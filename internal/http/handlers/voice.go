package handlers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

const fallbackApology = "I'm sorry, I'm having a bit of trouble. Please call again later."

// turnEngine is the slice of the dialogue engine the webhooks drive.
type turnEngine interface {
	Turn(ctx context.Context, in dialogue.Input) (dialogue.Prompt, error)
	End(ctx context.Context, callID string) error
}

// VoiceHandler adapts telephony webhooks to dialogue turns. Every request is
// one caller turn answered synchronously.
type VoiceHandler struct {
	engine   turnEngine
	logger   *logging.Logger
	language string
	voice    string
}

// VoiceHandlerConfig configures the VoiceHandler.
type VoiceHandlerConfig struct {
	Engine turnEngine
	Logger *logging.Logger
	// Language is the Twilio speech recognition language, en-IN by default.
	Language string
	// Voice is the Twilio <Say> voice; empty uses the account default.
	Voice string
}

// NewVoiceHandler creates a new VoiceHandler.
func NewVoiceHandler(cfg VoiceHandlerConfig) *VoiceHandler {
	if cfg.Engine == nil {
		panic("handlers: voice engine is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en-IN"
	}
	return &VoiceHandler{
		engine:   cfg.Engine,
		logger:   cfg.Logger,
		language: cfg.Language,
		voice:    cfg.Voice,
	}
}

// HandleTurn is the HTTP handler for POST /webhooks/voice/turn. It takes a
// JSON dialogue.Input and answers with the next dialogue.Prompt.
func (h *VoiceHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice: failed to read body", "error", err)
		writeJSONError(w, "bad request", http.StatusBadRequest)
		return
	}
	var in dialogue.Input
	if err := json.Unmarshal(body, &in); err != nil {
		h.logger.Warn("voice: failed to parse turn", "error", err)
		writeJSONError(w, "bad request", http.StatusBadRequest)
		return
	}

	prompt, err := h.engine.Turn(r.Context(), in)
	if err != nil {
		if booking.IsInput(err) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("voice: turn failed", "call_id", in.CallID, "error", err)
		prompt = dialogue.Prompt{Say: fallbackApology, Expect: dialogue.ExpectNone, Hangup: true, State: dialogue.StateError}
	}
	writeJSON(w, http.StatusOK, prompt)
}

// HandleTwilioVoice is the HTTP handler for POST /webhooks/twilio/voice. Twilio
// posts the call form on answer and after every <Gather>; the reply is TwiML.
func (h *VoiceHandler) HandleTwilioVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("voice: failed to parse twilio form", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	in := dialogue.Input{
		CallID: r.PostForm.Get("CallSid"),
		Text:   r.PostForm.Get("SpeechResult"),
		Digits: r.PostForm.Get("Digits"),
		From:   r.PostForm.Get("From"),
	}
	h.logger.Debug("voice: twilio turn",
		"call_id", in.CallID,
		"has_speech", in.Text != "",
		"has_digits", in.Digits != "",
	)

	prompt, err := h.engine.Turn(r.Context(), in)
	if err != nil {
		h.logger.Error("voice: twilio turn failed", "call_id", in.CallID, "error", err)
		prompt = dialogue.Prompt{Say: fallbackApology, Hangup: true}
	}
	h.writeTwiML(w, h.twiml(prompt, r.URL.Path))
}

// terminalCallStatuses are the Twilio CallStatus values after which the call
// is gone.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// HandleTwilioStatus is the HTTP handler for POST /webhooks/twilio/status.
// A terminal CallStatus drops the call's session.
func (h *VoiceHandler) HandleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	callID := strings.TrimSpace(r.PostForm.Get("CallSid"))
	status := strings.ToLower(strings.TrimSpace(r.PostForm.Get("CallStatus")))
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	if terminalCallStatuses[status] {
		if err := h.engine.End(r.Context(), callID); err != nil {
			h.logger.Warn("voice: failed to end session", "call_id", callID, "status", status, "error", err)
		} else {
			h.logger.Info("voice: call ended", "call_id", callID, "status", status)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck reports liveness.
func (h *VoiceHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type twimlResponse struct {
	XMLName xml.Name    `xml:"Response"`
	Verbs   []twimlVerb `xml:",any"`
}

// twimlVerb renders as whichever element XMLName names.
type twimlVerb struct {
	XMLName xml.Name

	Input               string      `xml:"input,attr,omitempty"`
	Action              string      `xml:"action,attr,omitempty"`
	Method              string      `xml:"method,attr,omitempty"`
	Timeout             string      `xml:"timeout,attr,omitempty"`
	NumDigits           string      `xml:"numDigits,attr,omitempty"`
	FinishOnKey         string      `xml:"finishOnKey,attr,omitempty"`
	SpeechTimeout       string      `xml:"speechTimeout,attr,omitempty"`
	Language            string      `xml:"language,attr,omitempty"`
	ActionOnEmptyResult string      `xml:"actionOnEmptyResult,attr,omitempty"`
	Voice               string      `xml:"voice,attr,omitempty"`
	Text                string      `xml:",chardata"`
	Nested              []twimlVerb `xml:",any"`
}

func (h *VoiceHandler) say(text string) twimlVerb {
	return twimlVerb{XMLName: xml.Name{Local: "Say"}, Voice: h.voice, Language: h.language, Text: text}
}

// twiml turns a prompt into Twilio verbs. A Gather posts back to action even
// on silence so the engine counts the empty turn; the trailing Say and Hangup
// only run if Twilio cannot reach us.
func (h *VoiceHandler) twiml(p dialogue.Prompt, action string) twimlResponse {
	var resp twimlResponse
	if p.Hangup || p.Expect == dialogue.ExpectNone {
		if p.Say != "" {
			resp.Verbs = append(resp.Verbs, h.say(p.Say))
		}
		resp.Verbs = append(resp.Verbs, twimlVerb{XMLName: xml.Name{Local: "Hangup"}})
		return resp
	}

	gather := twimlVerb{
		XMLName:             xml.Name{Local: "Gather"},
		Action:              action,
		Method:              http.MethodPost,
		ActionOnEmptyResult: "true",
		Nested:              []twimlVerb{h.say(p.Say)},
	}
	if p.TimeoutSeconds > 0 {
		gather.Timeout = strconv.Itoa(p.TimeoutSeconds)
	}
	if p.Expect == dialogue.ExpectDigits {
		gather.Input = "dtmf"
		gather.FinishOnKey = "#"
		if p.NumDigits > 0 {
			gather.NumDigits = strconv.Itoa(p.NumDigits)
		}
	} else {
		gather.Input = "speech"
		gather.SpeechTimeout = "auto"
		gather.Language = h.language
	}
	resp.Verbs = append(resp.Verbs, gather)

	fallback := p.Reprompt
	if fallback == "" {
		fallback = "We did not receive any input. Goodbye."
	}
	resp.Verbs = append(resp.Verbs, h.say(fallback), twimlVerb{XMLName: xml.Name{Local: "Hangup"}})
	return resp
}

func (h *VoiceHandler) writeTwiML(w http.ResponseWriter, resp twimlResponse) {
	out, err := xml.Marshal(resp)
	if err != nil {
		h.logger.Error("voice: failed to render twiml", "error", err)
		out = []byte(`<Response><Hangup/></Response>`)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
