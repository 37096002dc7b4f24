// Package asrclient implements a persistent full-duplex websocket client to
// an external speech-recognition service: binary PCM frames go out, JSON
// transcript events come back, bounded queues absorb backpressure, and
// shutdown follows a strict, deterministic sequence.
package asrclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/metrics"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/voiceerr"
)

var finalTypes = map[string]bool{
	"final":            true,
	"transcript_final": true,
	"eos":              true,
}

type sendFrame struct {
	data []byte
	eos  bool
}

// OnFinal is invoked once per final transcript, with a per-call timeout.
type OnFinal func(text string)

// OnPartial is invoked best-effort for non-final transcripts, if supplied.
type OnPartial func(text string)

// Client is a duplex ASR connection. One Client is owned by exactly one
// Session and must not be shared. It is safe to call Start/Stop more than
// once (idempotent); it is not safe to call its methods concurrently with
// themselves beyond that (mirrors a single cooperative owner).
type Client struct {
	cfg Config

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	stopped  bool
	started  chan struct{}
	cancel   context.CancelFunc
	onFinal  OnFinal
	onPartial OnPartial

	sendQ chan sendFrame
	finalQ chan string

	wg sync.WaitGroup
}

// New creates a Client for the given config, applying SPEC_FULL.md §4.1
// defaults for any zero-valued field.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		state:   Init,
		started: make(chan struct{}),
	}
}

// Start opens the connection, sends the start/VAD message, and launches the
// sender/receiver/final-dispatcher tasks. Idempotent: a second call while
// already running is a no-op.
func (c *Client) Start(ctx context.Context, onFinal OnFinal, onPartial OnPartial) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Running {
		c.mu.Unlock()
		return nil
	}
	c.stopped = false
	c.onFinal = onFinal
	c.onPartial = onPartial
	c.state = Connecting
	c.sendQ = make(chan sendFrame, c.cfg.SendQueueCapacity)
	c.finalQ = make(chan string, c.cfg.FinalQueueCapacity)
	c.started = make(chan struct{})
	c.mu.Unlock()

	var header http.Header
	if c.cfg.APIKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.cfg.APIKey}}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.OpenTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", voiceerr.ErrConnect, err)
	}

	startMsg := map[string]any{
		"type":              "start",
		"sample_rate":       c.cfg.SampleRate,
		"channels":          c.cfg.Channels,
		"single_utterance":  false,
		"vad":               c.cfg.VAD,
		"format":            "pcm_s16le",
	}
	if err := conn.WriteJSON(startMsg); err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		return fmt.Errorf("%w: send start message: %v", voiceerr.ErrConnect, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PingTimeout))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.state = Running
	started := c.started
	c.mu.Unlock()
	close(started)

	c.wg.Add(4)
	go c.senderLoop()
	go c.receiverLoop()
	go c.finalDispatchLoop()
	go c.pingerLoop(runCtx)

	slog.Info("asrclient started", "url", redactURL(c.cfg.URL))
	return nil
}

// SendPCM enqueues a PCM buffer once the connection is running. Blocks
// until started or ctx is done. If the outbound queue is full, the oldest
// pending frame is dropped to keep latency bounded.
func (c *Client) SendPCM(ctx context.Context, pcm []byte) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	select {
	case <-started:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	stopped := c.stopped
	sendQ := c.sendQ
	c.mu.Unlock()
	if stopped || sendQ == nil {
		return nil
	}

	enqueueDropOldest(sendQ, sendFrame{data: pcm}, "asr_send")
	return nil
}

// Stop begins the deterministic shutdown sequence (SPEC_FULL.md §4.1):
// refuse new sends, flush+eos, close the socket, enqueue the final-queue
// sentinel, wait up to 2 s in total for the sender, receiver,
// final-dispatcher and pinger goroutines, then reset state so Start can
// run again. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	sendQ := c.sendQ
	finalQ := c.finalQ
	conn := c.conn
	c.state = Stopping
	c.mu.Unlock()

	if sendQ != nil {
		enqueueDropOldest(sendQ, sendFrame{eos: true}, "asr_send")
	}
	if conn != nil {
		conn.Close()
	}
	if finalQ != nil {
		select {
		case finalQ <- "":
		default:
			select {
			case <-finalQ:
			default:
			}
			select {
			case finalQ <- "":
			default:
			}
		}
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	waitWithTimeout(&c.wg, 2*time.Second)

	c.mu.Lock()
	c.conn = nil
	c.cancel = nil
	c.onFinal = nil
	c.onPartial = nil
	c.state = Stopped
	c.started = make(chan struct{})
	c.mu.Unlock()

	slog.Info("asrclient stopped")
}

// Close is an alias of Stop.
func (c *Client) Close() { c.Stop() }

func (c *Client) senderLoop() {
	defer c.wg.Done()
	for {
		frame := <-c.sendQ
		if frame.eos {
			c.writeEOS()
			return
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.data); err != nil {
			slog.Warn("asrclient send error", "error", err)
			metrics.Errors.WithLabelValues("asr", "transport").Inc()
			c.writeEOS()
			return
		}
	}
}

func (c *Client) writeEOS() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"eos"}`))
}

func (c *Client) receiverLoop() {
	defer c.wg.Done()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("asrclient connection closed by server")
			} else {
				slog.Warn("asrclient recv error", "error", err)
				metrics.Errors.WithLabelValues("asr", "transport").Inc()
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		c.handleTextFrame(data)
	}
}

type wireMsg struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Final   *bool  `json:"final"`
	IsFinal *bool  `json:"is_final"`
}

func (c *Client) handleTextFrame(data []byte) {
	var wm wireMsg
	if err := json.Unmarshal(data, &wm); err != nil {
		metrics.Errors.WithLabelValues("asr", "protocol").Inc()
		return
	}
	text := strings.TrimSpace(wm.Text)
	isFinal := (wm.Final != nil && *wm.Final) || (wm.IsFinal != nil && *wm.IsFinal) || finalTypes[wm.Type]

	if isFinal && text != "" {
		c.mu.Lock()
		finalQ := c.finalQ
		c.mu.Unlock()
		if finalQ != nil {
			enqueueDropOldestString(finalQ, text, "asr_final")
		}
		return
	}
	if text != "" {
		c.mu.Lock()
		onPartial := c.onPartial
		cbTimeout := c.cfg.CallbackTimeout
		c.mu.Unlock()
		if onPartial != nil {
			go c.safeCallPartial(onPartial, text, cbTimeout)
		}
	}
}

func (c *Client) safeCallPartial(onPartial OnPartial, text string, cbTimeout time.Duration) {
	t := cbTimeout / 5
	if t > time.Second {
		t = time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		onPartial(text)
	}()
	select {
	case <-done:
	case <-time.After(t):
	}
}

func (c *Client) finalDispatchLoop() {
	defer c.wg.Done()
	for {
		text := <-c.finalQ
		if text == "" {
			return
		}
		c.mu.Lock()
		onFinal := c.onFinal
		cbTimeout := c.cfg.CallbackTimeout
		c.mu.Unlock()
		if onFinal == nil {
			continue
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			onFinal(text)
		}()
		select {
		case <-done:
		case <-time.After(cbTimeout):
			slog.Warn("asrclient on_final timed out", "timeout", cbTimeout)
			metrics.Errors.WithLabelValues("asr", "callback").Inc()
		}
	}
}

func (c *Client) pingerLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingTimeout)); err != nil {
				slog.Warn("asrclient ping failed", "error", err)
				return
			}
		}
	}
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func enqueueDropOldest(q chan sendFrame, item sendFrame, queueName string) {
	select {
	case q <- item:
		return
	default:
	}
	select {
	case <-q:
		metrics.QueueDrops.WithLabelValues(queueName).Inc()
	default:
	}
	select {
	case q <- item:
	default:
	}
}

func enqueueDropOldestString(q chan string, item string, queueName string) {
	select {
	case q <- item:
		return
	default:
	}
	select {
	case <-q:
		metrics.QueueDrops.WithLabelValues(queueName).Inc()
	default:
	}
	select {
	case q <- item:
	default:
	}
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func redactURL(url string) string {
	if idx := strings.Index(url, "?"); idx != -1 {
		return url[:idx] + "?…"
	}
	return url
}
