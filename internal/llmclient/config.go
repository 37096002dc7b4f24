package llmclient

import "time"

// Message is one chat history entry passed to a streaming backend.
type Message struct {
	Role    string
	Content string
}

// Config holds the fixed-per-instance generation parameters described in
// SPEC_FULL.md §4.2. Defaults mirror the ground-truth values: temperature
// 0.2, top_p 1.0, max_tokens 256.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float64
	TopP         float64
	MaxTokens    int
	PoolSize     int
	Timeout      time.Duration
}

// DefaultConfig returns a Config for the given backend connection details
// with SPEC_FULL.md's default generation parameters applied.
func DefaultConfig(apiKey, baseURL, model string) Config {
	return Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: 0.2,
		TopP:        1.0,
		MaxTokens:   256,
		PoolSize:    50,
		Timeout:     120 * time.Second,
	}
}
