package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds quiz engine instruments on a private registry. All methods
// are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	PromptFetches         *prometheus.CounterVec
	Attempts              *prometheus.CounterVec
	RecordingsStarted     prometheus.Counter
	RecordingFailures     *prometheus.CounterVec
	RecordingDuration     prometheus.Histogram
	TranscriptionDuration prometheus.Histogram
	SpectrumFramesDropped prometheus.Counter
	ArchiveFailures       prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PromptFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizmic_prompt_fetches_total",
			Help: "Prompt list fetches by result",
		}, []string{"result"}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizmic_attempts_total",
			Help: "Prompt attempts by outcome",
		}, []string{"outcome"}),
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizmic_recordings_started_total",
			Help: "Captures started",
		}),
		RecordingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizmic_recording_failures_total",
			Help: "Capture failures by error code",
		}, []string{"code"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quizmic_recording_duration_seconds",
			Help:    "Length of captured answers",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quizmic_transcription_duration_seconds",
			Help:    "Round trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SpectrumFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizmic_spectrum_frames_dropped_total",
			Help: "Spectrum frames replaced before the UI consumed them",
		}),
		ArchiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizmic_archive_failures_total",
			Help: "Recording archive uploads that failed",
		}),
	}
}

func (m *Metrics) PromptFetch(result string) {
	if m == nil {
		return
	}
	m.PromptFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

func (m *Metrics) RecordingFailed(code string) {
	if m == nil {
		return
	}
	m.RecordingFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordingFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(d.Seconds())
}

func (m *Metrics) TranscriptionFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) SpectrumFrameDropped() {
	if m == nil {
		return
	}
	m.SpectrumFramesDropped.Inc()
}

func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.ArchiveFailures.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on bind until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, bind string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics listener started", slog.String("addr", bind))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", slog.String("error", err.Error()))
		}
	}()
}
