// Package metrics defines the Prometheus series exported by the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_active",
		Help: "Currently active client sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_total",
		Help: "Total client sessions handled",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turns_total",
		Help: "Total turns by terminal status",
	}, []string{"status"}) // ok, error, cancelled

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"}) // only "tts" is observed; asr and llm durations are not recorded

	FirstTokenLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_first_token_latency_seconds",
		Help:    "Time from turn start to the first LLM token",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	FirstAudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_first_audio_latency_seconds",
		Help:    "Time from segment dispatch to the first audio frame",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_errors_total",
		Help: "Error counts by stage and error type",
	}, []string{"stage", "error_type"})

	QueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_drops_total",
		Help: "Frames dropped from a bounded queue under backpressure",
	}, []string{"queue"}) // asr_send, asr_final

	AudioFramesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_frames_out_total",
		Help: "Audio frames forwarded to clients",
	})
)
