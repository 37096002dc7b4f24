package llmclient

import (
	"bufio"
	"context"
	"io"
)

// lineHandler consumes one line of an SSE/NDJSON stream and reports the
// token it yielded (if any) and whether the stream has reached its
// logical end (a [DONE]/message_stop sentinel, not just EOF).
type lineHandler func(line string) (token string, done bool)

// TokenStream is a lazy, finite, single-shot, cancellable sequence of text
// tokens (SPEC_FULL.md §4.2). Call Next repeatedly until ok is false, then
// Close. Cancelling the context passed to the backend's Open call aborts
// the underlying HTTP read promptly.
type TokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	handle  lineHandler
	cancel  context.CancelFunc
	done    bool
}

func newTokenStream(body io.ReadCloser, handle lineHandler, cancel context.CancelFunc) *TokenStream {
	return &TokenStream{
		body:    body,
		scanner: bufio.NewScanner(body),
		handle:  handle,
		cancel:  cancel,
	}
}

// Next advances the stream. ok is false once the stream has ended (either
// the sentinel was observed or the transport hit EOF); err is non-nil only
// on a genuine transport failure.
func (s *TokenStream) Next() (token string, ok bool, err error) {
	if s.done {
		return "", false, nil
	}
	for s.scanner.Scan() {
		tok, streamDone := s.handle(s.scanner.Text())
		if streamDone {
			s.done = true
			return "", false, nil
		}
		if tok != "" {
			return tok, true, nil
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// Close releases the underlying HTTP connection and cancels the request
// context. Safe to call multiple times and safe to call after the stream
// has been fully drained.
func (s *TokenStream) Close() error {
	s.done = true
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}
