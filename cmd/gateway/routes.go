package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/voiceagent-core/gateway/internal/ws"
)

// registerRoutes wires the gateway's operational HTTP surface: the
// websocket endpoint plus health and metrics. Per-session ASR/LLM/TTS
// wiring lives inside handler, not here.
func registerRoutes(mux *http.ServeMux, handler *ws.Handler) {
	mux.Handle("/ws/agent", handler)
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
