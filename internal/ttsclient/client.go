// Package ttsclient streams synthesized speech from an HTTP/2
// NDJSON-over-POST text-to-speech upstream. One Client's transport is
// shared across sessions (SPEC_FULL.md §4.3 Pooling); Synthesize is safe
// to call concurrently from multiple sessions.
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/httputil"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/metrics"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/voiceerr"
)

// Client synthesizes speech over a pooled HTTP/2 transport.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Client bound to cfg with a pooled HTTP/2 transport.
// ConnectTimeout bounds dialing; ReadTimeout bounds each whole request.
func New(cfg Config) *Client {
	client := httputil.NewPooledClient(cfg.PoolSize, cfg.ReadTimeout)
	if tr, ok := client.Transport.(*http.Transport); ok && cfg.ConnectTimeout > 0 {
		tr.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	}
	return &Client{cfg: cfg, client: client}
}

type synthesizeRequest struct {
	Text        string      `json:"text"`
	VoiceID     string      `json:"voiceId"`
	ModelID     string      `json:"modelId"`
	Temperature float64     `json:"temperature"`
	AudioConfig audioConfig `json:"audio_config"`
}

type audioConfig struct {
	AudioEncoding   string `json:"audio_encoding"`
	SampleRateHertz int    `json:"sample_rate_hertz"`
}

// Synthesize streams raw PCM16LE audio for text. An empty or whitespace-only
// text short-circuits to a nil stream with no request sent, matching the
// ground-truth behavior of skipping silent segments outright.
func (c *Client) Synthesize(ctx context.Context, text string) (*AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:        text,
		VoiceID:     c.cfg.VoiceID,
		ModelID:     c.cfg.ModelID,
		Temperature: 1.2,
		AudioConfig: audioConfig{AudioEncoding: "LINEAR16", SampleRateHertz: c.cfg.SampleRate},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/tts/v1/voice:stream", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("%w: %v", voiceerr.ErrConnect, err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		cancel()
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("%w: status %d: %s", voiceerr.ErrTransport, resp.StatusCode, errBody)
	}

	return newAudioStream(resp.Body, cancel), nil
}
