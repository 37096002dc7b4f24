package asrclient

import "time"

// Config holds the per-client ASR connection parameters described in
// SPEC_FULL.md §4.1.
type Config struct {
	// URL is the full websocket URL to dial, including any auth query
	// parameter the caller needs to attach.
	URL string

	// APIKey, if set, is sent as a bearer token in the dial handshake's
	// Authorization header.
	APIKey string

	SampleRate int
	Channels   int
	VAD        map[string]any

	SendQueueCapacity  int
	FinalQueueCapacity int

	PingInterval    time.Duration
	PingTimeout     time.Duration
	OpenTimeout     time.Duration
	CallbackTimeout time.Duration
}

// DefaultConfig returns a Config for url with every default from §4.1 and
// the original VAD parameters applied.
func DefaultConfig(url string) Config {
	return Config{
		URL:                url,
		SampleRate:         16000,
		Channels:           1,
		VAD:                DefaultVAD(),
		SendQueueCapacity:  256,
		FinalQueueCapacity: 64,
		PingInterval:       5 * time.Second,
		PingTimeout:        5 * time.Second,
		OpenTimeout:        30 * time.Second,
		CallbackTimeout:    5 * time.Second,
	}
}

// DefaultVAD returns the default voice-activity-detection parameters
// passed through verbatim to the ASR upstream's start message.
func DefaultVAD() map[string]any {
	return map[string]any{
		"threshold":       0.40,
		"min_silence_ms":  200,
		"speech_pad_ms":   240,
		"final_silence_s": 0.20,
		"start_trigger_ms": 24,
		"min_voiced_ms":   36,
		"min_chars":       1,
		"min_words":       1,
		"amp_extend":      1200,
		"force_decode_ms": 0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.URL)
	d.APIKey = c.APIKey
	if c.SampleRate > 0 {
		d.SampleRate = c.SampleRate
	}
	if c.Channels > 0 {
		d.Channels = c.Channels
	}
	if c.VAD != nil {
		d.VAD = c.VAD
	}
	if c.SendQueueCapacity > 0 {
		d.SendQueueCapacity = c.SendQueueCapacity
	}
	if c.FinalQueueCapacity > 0 {
		d.FinalQueueCapacity = c.FinalQueueCapacity
	}
	if c.PingInterval > 0 {
		d.PingInterval = c.PingInterval
	}
	if c.PingTimeout > 0 {
		d.PingTimeout = c.PingTimeout
	}
	if c.OpenTimeout > 0 {
		d.OpenTimeout = c.OpenTimeout
	}
	if c.CallbackTimeout > 0 {
		d.CallbackTimeout = c.CallbackTimeout
	}
	return d
}
