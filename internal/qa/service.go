package qa

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// UnhelpfulAnswer replaces answers that say the documents had nothing.
const UnhelpfulAnswer = "Sorry, I am unable to help with that as an AI voice agent. Can you please ask another question?"

var notFoundMarkers = []string{
	"document does not contain information",
	"cannot fulfill this request",
	"no information",
}

// Asker is the raw QA service call.
type Asker interface {
	Ask(ctx context.Context, question, sessionID string) (string, error)
}

// Summarizer shortens an answer for speech.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Service answers caller questions. A nil Service always reports the
// collaborator as unavailable.
type Service struct {
	asker      Asker
	summarizer Summarizer
	logger     *logging.Logger
}

// NewService wires the QA client with an optional summarizer.
func NewService(asker Asker, summarizer Summarizer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{asker: asker, summarizer: summarizer, logger: logger}
}

// Answer asks the question and returns text ready to speak. Any failure is a
// CollaboratorUnavailable error.
func (s *Service) Answer(ctx context.Context, question, sessionID string) (string, error) {
	if s == nil || s.asker == nil {
		return "", booking.CollaboratorUnavailable("qa", errors.New("qa service not configured"))
	}
	answer, err := s.asker.Ask(ctx, question, sessionID)
	if err != nil {
		s.logger.Warn("qa request failed", "session_id", sessionID, "error", err)
		return "", booking.CollaboratorUnavailable("qa", err)
	}
	if answer == "" {
		return "", booking.CollaboratorUnavailable("qa", errors.New("empty answer"))
	}
	if isUnhelpful(answer) {
		return UnhelpfulAnswer, nil
	}
	if s.summarizer == nil {
		return answer, nil
	}
	summary, err := s.summarizer.Summarize(ctx, answer)
	if err != nil {
		s.logger.Warn("answer summary failed", "session_id", sessionID, "error", err)
		return "", booking.CollaboratorUnavailable("summarizer", err)
	}
	return summary, nil
}

func isUnhelpful(answer string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
