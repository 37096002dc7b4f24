package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/httputil"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/metrics"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/voiceerr"
)

// AnthropicBackend streams messages from the Anthropic /v1/messages API,
// whose SSE framing pairs an "event:" line with a following "data:" line
// rather than OpenAI's single-line "data:" framing.
type AnthropicBackend struct {
	cfg    Config
	client *http.Client
}

// NewAnthropicBackend creates a backend bound to cfg with a pooled HTTP/2 client.
func NewAnthropicBackend(cfg Config) *AnthropicBackend {
	return &AnthropicBackend{cfg: cfg, client: httputil.NewPooledClient(cfg.PoolSize, cfg.Timeout)}
}

func (b *AnthropicBackend) Open(ctx context.Context, systemPrompt string, history []Message, userText string) (*TokenStream, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	body, err := json.Marshal(map[string]any{
		"model":       b.cfg.Model,
		"system":      systemPrompt,
		"messages":    messages,
		"stream":      true,
		"temperature": b.cfg.Temperature,
		"top_p":       b.cfg.TopP,
		"max_tokens":  b.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic messages request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, b.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create anthropic messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.client.Do(req)
	if err != nil {
		cancel()
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("%w: %v", voiceerr.ErrConnect, err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		return nil, fmt.Errorf("%w: status %d: %s", voiceerr.ErrTransport, resp.StatusCode, errBody)
	}

	dec := &anthropicDecoder{}
	return newTokenStream(resp.Body, dec.handle, cancel), nil
}

// anthropicDecoder tracks the most recent "event:" line across calls, since
// Anthropic's SSE framing splits event type and payload across two lines.
type anthropicDecoder struct {
	eventType string
}

func (d *anthropicDecoder) handle(line string) (token string, done bool) {
	switch {
	case strings.HasPrefix(line, "event: "):
		d.eventType = strings.TrimPrefix(line, "event: ")
		return "", false
	case strings.HasPrefix(line, "data: "):
		data := strings.TrimPrefix(line, "data: ")
		if d.eventType == "message_stop" {
			return "", true
		}
		if d.eventType != "content_block_delta" {
			return "", false
		}
		var evt struct {
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if json.Unmarshal([]byte(data), &evt) != nil {
			return "", false
		}
		return evt.Delta.Text, false
	default:
		return "", false
	}
}
