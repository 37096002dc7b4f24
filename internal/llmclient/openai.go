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

// OpenAIBackend streams chat completions from an OpenAI-compatible
// /v1/chat/completions endpoint (OpenAI itself, or any compatible gateway).
type OpenAIBackend struct {
	cfg    Config
	client *http.Client
}

// NewOpenAIBackend creates a backend bound to cfg with a pooled HTTP/2 client.
func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	return &OpenAIBackend{cfg: cfg, client: httputil.NewPooledClient(cfg.PoolSize, cfg.Timeout)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (b *OpenAIBackend) Open(ctx context.Context, systemPrompt string, history []Message, userText string) (*TokenStream, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	body, err := json.Marshal(map[string]any{
		"model":             b.cfg.Model,
		"messages":          messages,
		"stream":            true,
		"temperature":       b.cfg.Temperature,
		"top_p":             b.cfg.TopP,
		"max_tokens":        b.cfg.MaxTokens,
		"presence_penalty":  0,
		"frequency_penalty": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat completions request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, b.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create chat completions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

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

	return newTokenStream(resp.Body, decodeOpenAILine, cancel), nil
}

func decodeOpenAILine(line string) (token string, done bool) {
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	data := strings.TrimPrefix(line, "data: ")
	if data == "[DONE]" {
		return "", true
	}
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if json.Unmarshal([]byte(data), &chunk) != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, false
}
