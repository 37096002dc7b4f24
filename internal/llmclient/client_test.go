package llmclient

import (
	"context"
	"io"
	"testing"
)

type fakeBackend struct {
	opened chan struct{}
}

func (f *fakeBackend) Open(ctx context.Context, systemPrompt string, history []Message, userText string) (*TokenStream, error) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pw.Close()
	}()
	if f.opened != nil {
		close(f.opened)
	}
	return newTokenStream(pr, func(line string) (string, bool) { return line, false }, func() {}), nil
}

func TestClientStreamReplyRoutesToEngine(t *testing.T) {
	fb := &fakeBackend{}
	c := NewClient(map[string]Backend{"primary": fb}, "primary", "primary", "system prompt")

	stream, err := c.StreamReply(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("StreamReply failed: %v", err)
	}
	defer stream.Close()
	if stream == nil {
		t.Fatal("expected non-nil stream")
	}
}

func TestClientFallsBackToDefaultEngine(t *testing.T) {
	fb := &fakeBackend{}
	c := NewClient(map[string]Backend{"default": fb}, "unregistered", "default", "system")

	stream, err := c.StreamReply(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("expected fallback routing to succeed, got: %v", err)
	}
	stream.Close()
}

func TestClientUnknownEngineNoFallbackErrors(t *testing.T) {
	c := NewClient(map[string]Backend{}, "missing", "also-missing", "system")
	_, err := c.StreamReply(context.Background(), "hello", nil)
	if err == nil {
		t.Fatal("expected error when no backend is registered")
	}
}

func TestClientCancelIsSafeWithNoStream(t *testing.T) {
	c := NewClient(map[string]Backend{}, "missing", "missing", "system")
	c.Cancel() // must not panic
}
