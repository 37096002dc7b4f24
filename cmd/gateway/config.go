package main

import (
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/env"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/prompts"
)

// gatewayConfig holds every environment-derived setting for the process,
// per SPEC_FULL.md §6's Configuration list.
type gatewayConfig struct {
	port string

	asrWSURL      string
	asrAPIKey     string
	asrSampleRate int
	asrChannels   int

	llmEngine           string
	llmOpenAIAPIKey     string
	llmOpenAIBaseURL    string
	llmOpenAIModel      string
	llmAnthropicAPIKey  string
	llmAnthropicBaseURL string
	llmAnthropicModel   string
	llmSystemPrompt     string
	llmMaxTokens        int

	ttsAPIKey     string
	ttsBaseURL    string
	ttsModelID    string
	ttsVoiceID    string
	ttsSampleRate int

	tracePostgresURL string

	historyMaxMessages int
}

func loadConfig() gatewayConfig {
	return gatewayConfig{
		port: env.Str("GATEWAY_PORT", "8000"),

		asrWSURL:      env.Str("ASR_WS_URL", ""),
		asrAPIKey:     env.Str("ASR_API_KEY", ""),
		asrSampleRate: env.Int("ASR_SAMPLE_RATE", 16000),
		asrChannels:   env.Int("ASR_CHANNELS", 1),

		llmEngine:           env.Str("LLM_ENGINE", "openai"),
		llmOpenAIAPIKey:     env.Str("LLM_OPENAI_API_KEY", ""),
		llmOpenAIBaseURL:    env.Str("LLM_OPENAI_BASE_URL", "https://api.openai.com"),
		llmOpenAIModel:      env.Str("LLM_OPENAI_MODEL", "gpt-4o-mini"),
		llmAnthropicAPIKey:  env.Str("LLM_ANTHROPIC_API_KEY", ""),
		llmAnthropicBaseURL: env.Str("LLM_ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		llmAnthropicModel:   env.Str("LLM_ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		llmSystemPrompt:     env.Str("LLM_SYSTEM_PROMPT", prompts.DefaultSystem),
		llmMaxTokens:        env.Int("LLM_MAX_TOKENS", 256),

		ttsAPIKey:     env.Str("TTS_API_KEY", ""),
		ttsBaseURL:    env.Str("TTS_BASE_URL", "https://api.inworld.ai"),
		ttsModelID:    env.Str("TTS_MODEL_ID", "inworld-tts-1"),
		ttsVoiceID:    env.Str("TTS_VOICE_ID", "Ashley"),
		ttsSampleRate: env.Int("TTS_SAMPLE_RATE", 48000),

		tracePostgresURL: env.Str("TRACE_POSTGRES_URL", ""),

		historyMaxMessages: env.Int("HISTORY_MAX_MESSAGES", 16),
	}
}
