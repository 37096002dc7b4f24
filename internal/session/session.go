// Package session implements the per-connection ASR→LLM→TTS orchestrator:
// it serializes turns, enforces barge-in cancellation, segments LLM tokens
// for early TTS, and maintains rolling conversation history.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/asrclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/history"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/llmclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/metrics"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/segmenter"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/trace"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ttsclient"
)

// pcmQueueCapacity bounds the PCM pump queue between FeedPCM callers and the
// ASR client's own sender; it exists only to decouple the caller from a
// momentarily busy ASR client, not as a durable buffer.
const pcmQueueCapacity = 64

// segmentQueueCapacity bounds how many ready-to-speak segments the LLM
// producer can get ahead of the TTS consumer before it blocks.
const segmentQueueCapacity = 4

// turn tracks one in-flight reply generation so a later barge-in can cancel
// it and wait for it to actually unwind before proceeding.
type turn struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Session owns one ASR connection and one LLM client for the lifetime of a
// single client connection; it is not shared. The TTS client is shared
// across sessions (SPEC_FULL.md §4.3 Pooling) and is only referenced here.
type Session struct {
	id  string
	asr *asrclient.Client
	llm *llmclient.Client
	tts *ttsclient.Client

	history *history.History
	tracer  *trace.Tracer

	cb Callbacks

	mu      sync.Mutex
	current *turn
	pcmQ    chan []byte
	pumpDone chan struct{}
	closed  bool
}

// New creates a Session for one client connection. tracer may be nil.
// historyMaxMessages bounds retained conversation history (see
// SPEC_FULL.md §6 HISTORY_MAX_MESSAGES); <= 0 falls back to
// history.DefaultMaxMessages.
func New(id string, asr *asrclient.Client, llm *llmclient.Client, tts *ttsclient.Client, tracer *trace.Tracer, historyMaxMessages int) *Session {
	return &Session{
		id:      id,
		asr:     asr,
		llm:     llm,
		tts:     tts,
		history: history.New(historyMaxMessages),
		tracer:  tracer,
	}
}

// Start connects the ASR upstream and begins pumping fed PCM to it. cb's
// hooks drive the client-facing event stream (SPEC_FULL.md §6).
func (s *Session) Start(ctx context.Context, cb Callbacks) error {
	s.mu.Lock()
	s.cb = cb
	s.pcmQ = make(chan []byte, pcmQueueCapacity)
	s.pumpDone = make(chan struct{})
	s.closed = false
	pcmQ := s.pcmQ
	pumpDone := s.pumpDone
	s.mu.Unlock()

	if err := s.asr.Start(ctx, s.onASRFinal, nil); err != nil {
		return err
	}
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()

	go s.pumpPCM(pcmQ, pumpDone)
	return nil
}

// FeedPCM enqueues one PCM16LE buffer for delivery to the ASR upstream.
func (s *Session) FeedPCM(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	pcmQ := s.pcmQ
	closed := s.closed
	s.mu.Unlock()
	if closed || pcmQ == nil {
		return nil
	}
	select {
	case pcmQ <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) pumpPCM(pcmQ chan []byte, done chan struct{}) {
	defer close(done)
	for chunk := range pcmQ {
		if err := s.asr.SendPCM(context.Background(), chunk); err != nil {
			slog.Warn("session pcm pump: send failed", "session", s.id, "error", err)
		}
	}
}

// onASRFinal implements the barge-in invariant (SPEC_FULL.md §4.5): cancel
// and await any in-flight turn before announcing the transcript and
// spawning the next one.
func (s *Session) onASRFinal(text string) {
	s.mu.Lock()
	prior := s.current
	s.mu.Unlock()

	if prior != nil {
		select {
		case <-prior.done:
		default:
			slog.Info("session barge-in detected, interrupting agent", "session", s.id)
			prior.cancel()
			<-prior.done
		}
	}

	if s.cb.OnASRFinal != nil {
		s.cb.OnASRFinal(text)
	}

	hist := s.history.Snapshot()

	turnCtx, cancel := context.WithCancel(context.Background())
	t := &turn{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()

	go func() {
		defer close(t.done)
		s.generateAndStream(turnCtx, text, hist)
	}()
}

// generateAndStream runs the LLM→segmenter→TTS pipeline for one turn:
// tokens stream from the LLM, are cut into speakable segments, and each
// segment is synthesized and streamed out as soon as it is ready. History
// is only committed on uninterrupted completion.
func (s *Session) generateAndStream(ctx context.Context, userText string, hist []history.Message) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return
	}

	var runID string
	if s.tracer != nil {
		runID = s.tracer.StartRun()
	}
	turnStart := time.Now()

	llmHistory := make([]llmclient.Message, len(hist))
	for i, m := range hist {
		llmHistory[i] = llmclient.Message{Role: string(m.Role), Content: m.Content}
	}

	segQ := make(chan string, segmentQueueCapacity)
	var replyParts []string
	var firstTokenAt time.Time

	var g errgroup.Group

	g.Go(func() error {
		defer close(segQ)

		stream, err := s.llm.StreamReply(ctx, userText, llmHistory)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.Errors.WithLabelValues("llm", "stream").Inc()
			return err
		}
		defer stream.Close()

		seg := segmenter.New(segmenter.DefaultCharBudget)
		for {
			tok, ok, err := stream.Next()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				metrics.Errors.WithLabelValues("llm", "stream").Inc()
				return err
			}
			if !ok {
				break
			}
			if tok == "" {
				continue
			}
			replyParts = append(replyParts, tok)
			if s.cb.OnToken != nil {
				s.cb.OnToken(tok)
			}
			if firstTokenAt.IsZero() {
				firstTokenAt = time.Now()
				metrics.FirstTokenLatency.Observe(firstTokenAt.Sub(turnStart).Seconds())
			}
			if segment, ready := seg.Push(tok); ready {
				select {
				case segQ <- segment:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if segment, ready := seg.Flush(); ready {
			select {
			case segQ <- segment:
			case <-ctx.Done():
			}
		}
		return nil
	})

	g.Go(func() error {
		for segment := range segQ {
			s.speakSegment(ctx, runID, segment)
		}
		return nil
	})

	err := g.Wait()
	duration := time.Since(turnStart)

	if ctx.Err() != nil {
		slog.Info("session turn interrupted by barge-in", "session", s.id)
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		if s.tracer != nil {
			s.tracer.EndRun(runID, float64(duration.Milliseconds()), userText, "", "cancelled")
		}
		return
	}
	if err != nil {
		slog.Warn("session turn failed", "session", s.id, "error", err)
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		if s.tracer != nil {
			s.tracer.EndRun(runID, float64(duration.Milliseconds()), userText, "", "error")
		}
		return
	}

	replyText := strings.TrimSpace(strings.Join(replyParts, ""))
	if replyText != "" {
		s.history.AppendTurn(userText, replyText)
	}
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	if s.tracer != nil {
		s.tracer.EndRun(runID, float64(duration.Milliseconds()), userText, replyText, "ok")
	}
	if s.cb.OnTurnDone != nil {
		s.cb.OnTurnDone()
	}
}

// speakSegment synthesizes and streams one segment's audio. OnSegmentDone
// fires unconditionally on return — a segment that fails or yields no
// audio still completes the segment lifecycle for the client (SPEC_FULL.md
// §8 Scenario 4: a TTS failure does not abort the turn).
func (s *Session) speakSegment(ctx context.Context, runID, segment string) {
	defer func() {
		if s.cb.OnSegmentDone != nil {
			s.cb.OnSegmentDone()
		}
	}()

	start := time.Now()
	audioStream, err := s.tts.Synthesize(ctx, segment)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("session tts synthesize failed", "session", s.id, "error", err)
			metrics.Errors.WithLabelValues("tts", "stream").Inc()
		}
		return
	}
	if audioStream == nil {
		return
	}
	defer audioStream.Close()

	gotAudio := false
	var spanErr string
	for {
		pcm, ok, err := audioStream.Next()
		if err != nil {
			spanErr = err.Error()
			break
		}
		if !ok {
			break
		}
		if !gotAudio {
			gotAudio = true
			metrics.FirstAudioLatency.Observe(time.Since(start).Seconds())
			if s.cb.OnAudioStart != nil {
				s.cb.OnAudioStart()
			}
		}
		if s.cb.OnAudioChunk != nil {
			s.cb.OnAudioChunk(pcm)
		}
		metrics.AudioFramesOut.Inc()
	}

	metrics.StageDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())
	if s.tracer != nil && runID != "" {
		status := "ok"
		if spanErr != "" {
			status = "error"
		}
		s.tracer.RecordSpan(runID, "tts", start, float64(time.Since(start).Milliseconds()), segment, "", status, spanErr)
	}
}

// Stop drains the PCM pump and waits (without cancelling) for any in-flight
// turn to finish gracefully, bounded by a timeout. It does not close the
// ASR connection; call Close for full teardown.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pcmQ := s.pcmQ
	pumpDone := s.pumpDone
	cur := s.current
	s.mu.Unlock()

	if pcmQ != nil {
		close(pcmQ)
	}
	waitChanWithTimeout(pumpDone, 2*time.Second)
	if cur != nil {
		waitChanWithTimeout(cur.done, 5*time.Second)
	}
}

// Close stops the session and tears down its ASR connection. The shared
// TTS client is left open for other sessions.
func (s *Session) Close() {
	s.Stop()
	s.asr.Close()
	metrics.SessionsActive.Dec()
}

func waitChanWithTimeout(ch <-chan struct{}, timeout time.Duration) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}
