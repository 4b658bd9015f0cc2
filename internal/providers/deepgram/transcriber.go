// Package deepgram transcribes recorded answers over Deepgram's streaming
// websocket API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"quizmic/internal/domain"
	"quizmic/internal/metrics"
)

var errMissingAPIKey = errors.New("deepgram API key is not configured")

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey          string
	APIBaseURL      string
	Model           string
	Language        string
	SmartFormat     bool
	ChunkSize       int
	FinalizeTimeout time.Duration
}

// Transcriber implements ports.Transcriber by streaming a finished artifact
// through a single listen session.
type Transcriber struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTranscriber(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 8192
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{cfg: cfg, metrics: m, logger: logger}
}

func (t *Transcriber) Transcribe(ctx context.Context, artifact *domain.AudioArtifact) (domain.TranscriptResult, error) {
	const op = "deepgram transcribe"
	if artifact == nil {
		return domain.TranscriptResult{}, &domain.UploadRejectedError{Message: "no recording to upload"}
	}
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return domain.TranscriptResult{}, &domain.TransportError{Op: op, Err: errMissingAPIKey}
	}
	data, err := artifact.Take()
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("%w: %w", domain.ErrUploadRejected, err)
	}
	if len(data) == 0 {
		return domain.TranscriptResult{}, &domain.UploadRejectedError{Message: "recording is empty"}
	}

	wsURL, err := buildListenURL(t.cfg)
	if err != nil {
		return domain.TranscriptResult{}, &domain.TransportError{Op: op, Err: err}
	}

	started := time.Now()
	defer func() { t.metrics.TranscriptionFinished(time.Since(started)) }()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := openListenStream(sessionCtx, wsURL, t.cfg.APIKey, data, t.cfg.ChunkSize)
	if err != nil {
		transportErr := &domain.TransportError{Op: op, URL: redactQuery(wsURL), Err: err}
		var refused *handshakeError
		if errors.As(err, &refused) {
			transportErr.StatusCode = refused.StatusCode
		}
		return domain.TranscriptResult{}, transportErr
	}

	aggregator := newTranscriptAggregator()
	collected := make(chan struct{})
	go collectSegments(stream, aggregator, collected)

	streamErr := awaitFinal(stream, t.cfg.FinalizeTimeout)
	<-collected

	logger := t.logger.With(
		slog.String("prompt_id", artifact.PromptID),
		slog.String("request_id", stream.RequestID()),
	)
	raw := aggregator.Raw()
	if raw == "" && streamErr != nil {
		return domain.TranscriptResult{}, &domain.TransportError{Op: op, URL: redactQuery(wsURL), Err: streamErr}
	}
	if streamErr != nil {
		logger.Warn("deepgram stream ended with error; using partial transcript", slog.String("error", streamErr.Error()))
	}
	logger.Debug("deepgram transcript received",
		slog.Int("bytes", len(data)),
		slog.Duration("audio", stream.AudioDuration()),
		slog.Int("chars", len(raw)))
	return domain.TranscriptResult{PromptID: artifact.PromptID, Text: raw}, nil
}

// buildListenURL targets the listen endpoint without an encoding: artifacts
// are always containers, which Deepgram detects itself.
func buildListenURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	query.Set("interim_results", "false")
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
