package ttsclient

import "time"

// Config holds the fixed-per-connection synthesis parameters described in
// SPEC_FULL.md §4.3. The HTTP client built from this config is shared
// across sessions; the Config itself is not session-specific.
type Config struct {
	APIKey     string // Basic-auth token, base64-encoded, without the "Basic " prefix
	BaseURL    string
	ModelID    string
	VoiceID    string
	SampleRate int
	PoolSize   int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns a Config with the ground-truth synthesis defaults:
// model "inworld-tts-1", voice "Ashley", 48kHz, 20s connect / 120s read.
func DefaultConfig(apiKeyBasicB64, baseURL string) Config {
	return Config{
		APIKey:         apiKeyBasicB64,
		BaseURL:        baseURL,
		ModelID:        "inworld-tts-1",
		VoiceID:        "Ashley",
		SampleRate:     48000,
		PoolSize:       20,
		ConnectTimeout: 20 * time.Second,
		ReadTimeout:    120 * time.Second,
	}
}
