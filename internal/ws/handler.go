// Package ws implements the client-facing websocket protocol described in
// SPEC_FULL.md §6: one JSON/binary duplex connection per voice session,
// driving an internal/session.Session.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/asrclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/llmclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/session"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/trace"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ttsclient"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connState tracks where a single connection is in the start/ready/stop
// lifecycle described in SPEC_FULL.md §6.
type connState int

const (
	stateConnected connState = iota
	stateReady
	stateClosed
)

// AsrClientFactory builds a fresh, unshared ASR client for one session.
type AsrClientFactory func() *asrclient.Client

// LlmClientFactory builds a fresh, unshared LLM client for one session.
type LlmClientFactory func() *llmclient.Client

// HandlerConfig holds the shared/factory dependencies for all sessions.
// ASR and LLM clients are per-session (not shareable); the TTS client's
// pooled transport is shared across sessions.
type HandlerConfig struct {
	NewASRClient AsrClientFactory
	NewLLMClient LlmClientFactory
	TTSClient    *ttsclient.Client
	TraceStore   *trace.Store

	// HistoryMaxMessages bounds each session's retained conversation
	// history (SPEC_FULL.md §6 HISTORY_MAX_MESSAGES); <= 0 falls back to
	// history.DefaultMaxMessages.
	HistoryMaxMessages int
}

// Handler upgrades connections and runs the voice-agent protocol.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a websocket handler bound to cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	h.runConnection(conn)
}

type clientMsg struct {
	Type string `json:"type"`
}

func (h *Handler) runConnection(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := uuid.NewString()
	send := newEventSender(conn)
	send(statusEvent("connected"))

	var mu sync.Mutex
	state := stateConnected
	var sess *session.Session
	var tracer *trace.Tracer

	closeSession := func() {
		mu.Lock()
		s := sess
		state = stateClosed
		mu.Unlock()
		if s != nil {
			s.Close()
		}
		if tracer != nil {
			tracer.Close()
			if h.cfg.TraceStore != nil {
				_ = h.cfg.TraceStore.EndSession(sessionID)
			}
		}
	}
	defer closeSession()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msgType == websocket.TextMessage {
			var m clientMsg
			if json.Unmarshal(data, &m) != nil {
				slog.Warn("ws protocol error: malformed text frame", "session_id", sessionID)
				continue
			}

			switch m.Type {
			case "start":
				mu.Lock()
				alreadyStarted := state != stateConnected
				mu.Unlock()
				if alreadyStarted {
					send(statusEvent("error: start received on an already started session"))
					slog.Warn("ws protocol error: duplicate start", "session_id", sessionID)
					return
				}

				send(statusEvent("initializing"))
				newSess, newTracer, err := h.initSession(ctx, sessionID, send)
				if err != nil {
					send(statusEvent(fmt.Sprintf("error: %v", err)))
					slog.Error("session init failed", "session_id", sessionID, "error", err)
					return
				}
				mu.Lock()
				sess = newSess
				tracer = newTracer
				state = stateReady
				mu.Unlock()
				send(statusEvent("ready"))

			case "stop":
				mu.Lock()
				s := sess
				mu.Unlock()
				if s != nil {
					s.Stop()
				}
				send(doneEvent())
				return

			default:
				slog.Warn("ws protocol error: unrecognized text frame type", "session_id", sessionID, "type", m.Type)
			}
			continue
		}

		if msgType != websocket.BinaryMessage {
			continue
		}
		mu.Lock()
		s := sess
		ready := state == stateReady
		mu.Unlock()
		if !ready || s == nil {
			continue
		}
		if err := s.FeedPCM(ctx, data); err != nil {
			slog.Warn("ws feed pcm failed", "session_id", sessionID, "error", err)
		}
	}
}

func (h *Handler) initSession(ctx context.Context, sessionID string, send eventSender) (*session.Session, *trace.Tracer, error) {
	asrClient := h.cfg.NewASRClient()
	llmClient := h.cfg.NewLLMClient()

	var tracer *trace.Tracer
	if h.cfg.TraceStore != nil {
		if err := h.cfg.TraceStore.CreateSession(sessionID, ""); err != nil {
			slog.Warn("trace session create failed", "session_id", sessionID, "error", err)
		} else {
			tracer = trace.NewTracer(h.cfg.TraceStore, sessionID)
		}
	}

	sess := session.New(sessionID, asrClient, llmClient, h.cfg.TTSClient, tracer, h.cfg.HistoryMaxMessages)

	err := sess.Start(ctx, session.Callbacks{
		OnASRFinal: func(text string) { send(asrFinalEvent(text)) },
		OnToken:    func(tok string) { send(llmTokenEvent(tok)) },
		OnAudioStart: func() { send(audioStartEvent()) },
		OnAudioChunk: func(pcm []byte) { send(audioChunkEvent(pcm)) },
		OnSegmentDone: func() { send(segmentDoneEvent()) },
		OnTurnDone:    func() { send(turnDoneEvent()) },
	})
	if err != nil {
		if tracer != nil {
			tracer.Close()
		}
		return nil, nil, err
	}
	return sess, tracer, nil
}
