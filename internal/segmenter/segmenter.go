// Package segmenter accumulates streamed LLM tokens into speakable
// segments for the TTS stage.
package segmenter

import "strings"

// DefaultCharBudget is the buffer length at which a segment is emitted even
// absent sentence-ending punctuation.
const DefaultCharBudget = 250

const boundaryChars = ".!?…\n"

// Segmenter turns a token stream into a sequence of non-empty, trimmed
// segments. It is pure and holds no I/O; the only policy knob is CharBudget.
type Segmenter struct {
	CharBudget int
	buf        strings.Builder
}

// New creates a Segmenter with the given char budget (DefaultCharBudget if <= 0).
func New(charBudget int) *Segmenter {
	if charBudget <= 0 {
		charBudget = DefaultCharBudget
	}
	return &Segmenter{CharBudget: charBudget}
}

// Push appends a token to the buffer. If the buffer now reaches CharBudget
// or contains a sentence-ending boundary character, the whole trimmed
// buffer is returned as a segment and the buffer is cleared. Otherwise it
// returns "", false.
func (s *Segmenter) Push(token string) (segment string, ready bool) {
	s.buf.WriteString(token)
	buffered := s.buf.String()
	if len(buffered) < s.CharBudget && !strings.ContainsAny(buffered, boundaryChars) {
		return "", false
	}
	s.buf.Reset()
	trimmed := strings.TrimSpace(buffered)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// Flush returns any remaining buffered text as a final segment, clearing
// the buffer. Call once at the end of the token stream.
func (s *Segmenter) Flush() (segment string, ready bool) {
	buffered := s.buf.String()
	s.buf.Reset()
	trimmed := strings.TrimSpace(buffered)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
