package asrclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newFakeASRServer runs a minimal echo-style ASR upstream: it reads the
// start message, then for every binary PCM frame it receives it replies
// with a final transcript so tests can assert on the round trip.
func newFakeASRServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage {
				var m map[string]any
				_ = json.Unmarshal(data, &m)
				if m["type"] == "eos" {
					return
				}
				continue
			}
			_ = conn.WriteJSON(map[string]any{"type": "final", "text": "hello there"})
		}
	})
	return httptest.NewServer(mux)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestStartSendPCMReceivesFinal(t *testing.T) {
	ts := newFakeASRServer(t)
	defer ts.Close()

	c := New(DefaultConfig(wsURL(ts)))

	var mu sync.Mutex
	var gotFinal string
	finalCh := make(chan struct{})

	err := c.Start(context.Background(), func(text string) {
		mu.Lock()
		gotFinal = text
		mu.Unlock()
		close(finalCh)
	}, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	if err := c.SendPCM(context.Background(), []byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("SendPCM failed: %v", err)
	}

	select {
	case <-finalCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for final callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotFinal != "hello there" {
		t.Errorf("unexpected final text: %q", gotFinal)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	ts := newFakeASRServer(t)
	defer ts.Close()

	c := New(DefaultConfig(wsURL(ts)))
	if err := c.Start(context.Background(), func(string) {}, nil); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background(), func(string) {}, nil); err != nil {
		t.Fatalf("second Start should be a no-op, got error: %v", err)
	}
	if c.State() != Running {
		t.Errorf("expected state Running after idempotent Start, got %v", c.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ts := newFakeASRServer(t)
	defer ts.Close()

	c := New(DefaultConfig(wsURL(ts)))
	if err := c.Start(context.Background(), func(string) {}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.Stop()
	c.Stop() // must not panic or block

	if c.State() != Stopped {
		t.Errorf("expected state Stopped, got %v", c.State())
	}
}

func TestRestartAfterStop(t *testing.T) {
	ts := newFakeASRServer(t)
	defer ts.Close()

	c := New(DefaultConfig(wsURL(ts)))
	if err := c.Start(context.Background(), func(string) {}, nil); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	c.Stop()

	if err := c.Start(context.Background(), func(string) {}, nil); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
	defer c.Stop()
	if c.State() != Running {
		t.Errorf("expected Running after restart, got %v", c.State())
	}
}

func TestConnectErrorOnBadURL(t *testing.T) {
	c := New(DefaultConfig("ws://127.0.0.1:1/does-not-exist"))
	err := c.Start(context.Background(), func(string) {}, nil)
	if err == nil {
		t.Fatal("expected a connect error for an unreachable URL")
	}
	if c.State() != Stopped {
		t.Errorf("expected Stopped after failed connect, got %v", c.State())
	}
}
