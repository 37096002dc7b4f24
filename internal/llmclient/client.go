package llmclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/engine"
)

// Client streams one reply at a time from a provider backend, selected by
// engine name via an engine.Router. StreamReply does not cancel a stream
// that is still open: Cancel only reaches the most recently opened one, so
// callers keep at most one stream in flight (the session orchestrator does
// this by serializing turns).
type Client struct {
	router       *engine.Router[Backend]
	engineName   string
	systemPrompt string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewClient builds a Client that dispatches to the named engine, falling
// back to fallbackEngine when engineName is unregistered.
func NewClient(backends map[string]Backend, engineName, fallbackEngine, systemPrompt string) *Client {
	return &Client{
		router:       engine.NewRouter(backends, fallbackEngine),
		engineName:   engineName,
		systemPrompt: systemPrompt,
	}
}

// StreamReply opens a new token stream for userText given the prior history.
// The returned stream's lifetime is bound to a context derived from ctx;
// call Cancel to abort it before it finishes draining.
func (c *Client) StreamReply(ctx context.Context, userText string, history []Message) (*TokenStream, error) {
	backend, err := c.router.Route(c.engineName)
	if err != nil {
		return nil, fmt.Errorf("llmclient: %w", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	stream, err := backend.Open(turnCtx, c.systemPrompt, history, userText)
	if err != nil {
		cancel()
		return nil, err
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	return stream, nil
}

// Cancel aborts the in-flight stream, if any. Safe to call when no stream
// is open. The stored cancel func is invoked outside the lock so a
// concurrent StreamReply is never blocked by it.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
