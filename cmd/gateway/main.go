package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/asrclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/llmclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/prompts"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/trace"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ttsclient"
	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	var traceStore *trace.Store
	if cfg.tracePostgresURL != "" {
		var err error
		traceStore, err = trace.Open(cfg.tracePostgresURL)
		if err != nil {
			slog.Error("trace store open failed", "error", err)
		} else {
			slog.Info("tracing enabled")
		}
	}

	systemPrompt := prompts.ForSession(cfg.llmSystemPrompt)
	llmBackends := buildLLMBackends(cfg)
	ttsClient := ttsclient.New(ttsclient.Config{
		APIKey:         cfg.ttsAPIKey,
		BaseURL:        cfg.ttsBaseURL,
		ModelID:        cfg.ttsModelID,
		VoiceID:        cfg.ttsVoiceID,
		SampleRate:     cfg.ttsSampleRate,
		PoolSize:       50,
		ConnectTimeout: 20 * time.Second,
		ReadTimeout:    120 * time.Second,
	})

	handler := ws.NewHandler(ws.HandlerConfig{
		NewASRClient: func() *asrclient.Client {
			asrCfg := asrclient.DefaultConfig(cfg.asrWSURL)
			asrCfg.APIKey = cfg.asrAPIKey
			asrCfg.SampleRate = cfg.asrSampleRate
			asrCfg.Channels = cfg.asrChannels
			return asrclient.New(asrCfg)
		},
		NewLLMClient: func() *llmclient.Client {
			return llmclient.NewClient(llmBackends, cfg.llmEngine, cfg.llmEngine, systemPrompt)
		},
		TTSClient:          ttsClient,
		TraceStore:         traceStore,
		HistoryMaxMessages: cfg.historyMaxMessages,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv, traceStore)

	slog.Info("gateway starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func buildLLMBackends(cfg gatewayConfig) map[string]llmclient.Backend {
	backends := map[string]llmclient.Backend{}
	if cfg.llmOpenAIAPIKey != "" {
		c := llmclient.DefaultConfig(cfg.llmOpenAIAPIKey, cfg.llmOpenAIBaseURL, cfg.llmOpenAIModel)
		c.MaxTokens = cfg.llmMaxTokens
		backends["openai"] = llmclient.NewOpenAIBackend(c)
	}
	if cfg.llmAnthropicAPIKey != "" {
		c := llmclient.DefaultConfig(cfg.llmAnthropicAPIKey, cfg.llmAnthropicBaseURL, cfg.llmAnthropicModel)
		c.MaxTokens = cfg.llmMaxTokens
		backends["anthropic"] = llmclient.NewAnthropicBackend(c)
	}
	return backends
}

// awaitShutdown blocks until SIGINT/SIGTERM, then gracefully drains the
// HTTP server. Per-session ASR/LLM connections are torn down by their own
// sessions as client connections close.
func awaitShutdown(srv *http.Server, traceStore *trace.Store) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
	if traceStore != nil {
		traceStore.Close()
	}
}
