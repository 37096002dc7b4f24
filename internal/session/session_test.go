package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/asrclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/history"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/llmclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ttsclient"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newFakeASRServer replies to each PCM frame it receives with the next
// scripted final transcript from finals, if one is queued, until eos.
func newFakeASRServer(t *testing.T, finals chan string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
			select {
			case text := <-finals:
				_ = conn.WriteJSON(map[string]any{"type": "final", "text": text})
			default:
			}
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newFakeLLMServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, word := range strings.Fields(reply) {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", word+" ")
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

// newSlowFakeLLMServer streams one word at a time with a delay between
// them, giving a barge-in test room to interrupt mid-stream.
func newSlowFakeLLMServer(t *testing.T, reply string, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, word := range strings.Fields(reply) {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", word+" ")
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newFakeTTSServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := make([]byte, 44)
		copy(header[0:4], "RIFF")
		wav := append(header, []byte{1, 2, 3, 4}...)
		line, _ := json.Marshal(map[string]any{
			"result": map[string]any{"audioContent": base64.StdEncoding.EncodeToString(wav)},
		})
		fmt.Fprintf(w, "%s\n", line)
	}))
}

func newTestSession(t *testing.T, finals chan string, llmReply string) (*Session, func()) {
	t.Helper()
	asrSrv := newFakeASRServer(t, finals)
	llmSrv := newFakeLLMServer(t, llmReply)
	ttsSrv := newFakeTTSServer(t)

	asr := asrclient.New(asrclient.DefaultConfig(wsURL(asrSrv)))
	llm := llmclient.NewClient(
		map[string]llmclient.Backend{"openai": llmclient.NewOpenAIBackend(llmclient.DefaultConfig("key", llmSrv.URL, "model"))},
		"openai", "openai", "system prompt",
	)
	tts := ttsclient.New(ttsclient.DefaultConfig("creds", ttsSrv.URL))

	sess := New("test-session", asr, llm, tts, nil, history.DefaultMaxMessages)
	cleanup := func() {
		asrSrv.Close()
		llmSrv.Close()
		ttsSrv.Close()
	}
	return sess, cleanup
}

func TestSessionFullTurnEmitsEventsAndCommitsHistory(t *testing.T) {
	finals := make(chan string, 1)
	sess, cleanup := newTestSession(t, finals, "hello there.")
	defer cleanup()

	var mu sync.Mutex
	var gotASRFinal string
	var gotTokens []string
	turnDone := make(chan struct{})

	err := sess.Start(context.Background(), Callbacks{
		OnASRFinal: func(text string) {
			mu.Lock()
			gotASRFinal = text
			mu.Unlock()
		},
		OnToken: func(tok string) {
			mu.Lock()
			gotTokens = append(gotTokens, tok)
			mu.Unlock()
		},
		OnTurnDone: func() {
			close(turnDone)
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Close()

	finals <- "what time is it"
	if err := sess.FeedPCM(context.Background(), []byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("FeedPCM failed: %v", err)
	}

	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for turn completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotASRFinal != "what time is it" {
		t.Errorf("unexpected asr final: %q", gotASRFinal)
	}
	if len(gotTokens) == 0 {
		t.Error("expected at least one token callback")
	}
	if sess.history.Len() != 2 {
		t.Errorf("expected history to contain one committed turn (2 messages), got %d", sess.history.Len())
	}
}

func TestSessionBargeInCancelsPriorTurnAndOnlyCommitsTheSecond(t *testing.T) {
	finals := make(chan string, 2)
	asrSrv := newFakeASRServer(t, finals)
	defer asrSrv.Close()
	llmSrv := newSlowFakeLLMServer(t, "this is a slow first reply that takes a while", 40*time.Millisecond)
	defer llmSrv.Close()
	ttsSrv := newFakeTTSServer(t)
	defer ttsSrv.Close()

	asr := asrclient.New(asrclient.DefaultConfig(wsURL(asrSrv)))
	llm := llmclient.NewClient(
		map[string]llmclient.Backend{"openai": llmclient.NewOpenAIBackend(llmclient.DefaultConfig("key", llmSrv.URL, "model"))},
		"openai", "openai", "system prompt",
	)
	tts := ttsclient.New(ttsclient.DefaultConfig("creds", ttsSrv.URL))
	sess := New("barge-in-session", asr, llm, tts, nil, history.DefaultMaxMessages)

	var mu sync.Mutex
	var asrFinals []string
	turnDoneCount := 0
	turnDone := make(chan struct{}, 2)

	err := sess.Start(context.Background(), Callbacks{
		OnASRFinal: func(text string) {
			mu.Lock()
			asrFinals = append(asrFinals, text)
			mu.Unlock()
		},
		OnTurnDone: func() {
			mu.Lock()
			turnDoneCount++
			mu.Unlock()
			turnDone <- struct{}{}
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Close()

	finals <- "first utterance"
	if err := sess.FeedPCM(context.Background(), []byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("FeedPCM failed: %v", err)
	}

	// Give the first turn a moment to start streaming, then barge in.
	time.Sleep(80 * time.Millisecond)
	finals <- "second utterance"
	if err := sess.FeedPCM(context.Background(), []byte{4, 5, 6, 7}); err != nil {
		t.Fatalf("FeedPCM failed: %v", err)
	}

	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the surviving turn to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(asrFinals) != 2 {
		t.Fatalf("expected both asr_final events to fire, got %v", asrFinals)
	}
	if turnDoneCount != 1 {
		t.Errorf("expected exactly one completed (uninterrupted) turn, got %d", turnDoneCount)
	}
	msgs := sess.history.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("expected only the second turn in history (2 messages), got %d", len(msgs))
	}
	if msgs[0].Content != "second utterance" {
		t.Errorf("expected committed user message %q, got %q", "second utterance", msgs[0].Content)
	}
}
