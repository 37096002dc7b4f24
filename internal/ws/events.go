package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// wireEvent is the single outbound JSON shape; Audio carries a raw binary
// frame instead when set, sent as its own websocket message.
type wireEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Audio   []byte `json:"-"`
}

func statusEvent(message string) wireEvent   { return wireEvent{Type: "status", Message: message} }
func asrFinalEvent(text string) wireEvent    { return wireEvent{Type: "asr_final", Text: text} }
func llmTokenEvent(text string) wireEvent    { return wireEvent{Type: "llm_token", Text: text} }
func audioStartEvent() wireEvent             { return wireEvent{Type: "audio_start"} }
func segmentDoneEvent() wireEvent            { return wireEvent{Type: "segment_done"} }
func turnDoneEvent() wireEvent               { return wireEvent{Type: "turn_done"} }
func doneEvent() wireEvent                   { return wireEvent{Type: "done"} }
func audioChunkEvent(pcm []byte) wireEvent   { return wireEvent{Audio: pcm} }

// eventSender serializes one event onto the connection. A single mutex
// guards the conn so JSON status/event frames and binary audio frames
// never interleave mid-write on one connection.
type eventSender func(ev wireEvent)

func newEventSender(conn *websocket.Conn) eventSender {
	var mu sync.Mutex
	return func(ev wireEvent) {
		mu.Lock()
		defer mu.Unlock()

		if ev.Audio != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, ev.Audio); err != nil {
				slog.Warn("ws write audio failed", "error", err)
			}
			return
		}

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Warn("ws write event failed", "error", err)
		}
	}
}
