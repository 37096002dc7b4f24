// Package httputil provides a tuned, pooled HTTP client shared by the
// outbound LLM and TTS clients.
package httputil

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client with connection pooling and a
// tuned transport that prefers HTTP/2 multiplexing over opening new
// connections per request.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
