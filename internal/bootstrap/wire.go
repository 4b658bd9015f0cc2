package bootstrap

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"

	"github.com/joho/godotenv"

	"quizmic/internal/audio"
	"quizmic/internal/config"
	"quizmic/internal/metrics"
	"quizmic/internal/ports"
	"quizmic/internal/providers/deepgram"
	"quizmic/internal/providers/quizapi"
	"quizmic/internal/recording"
	"quizmic/internal/spectrum"
	"quizmic/internal/usecase"
)

// Services is the assembled runtime graph. Bins is the number of
// magnitudes carried by every spectrum frame.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Format     audio.Format
	Bins       int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Build wires all backend dependencies for the current runtime. ctx bounds
// background listeners such as the metrics endpoint.
func Build(ctx context.Context, eventSink ports.EventSink) (Services, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Services{}, err
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := NewLogger(cfg.Log, os.Stderr)
	m := metrics.New()
	if cfg.Metrics.Bind != "" {
		m.Serve(ctx, cfg.Metrics.Bind, logger)
	}

	capture, err := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	if err != nil {
		return Services{}, err
	}

	preference, err := audio.ParseFormat(cfg.Audio.CaptureFormat)
	if err != nil {
		return Services{}, err
	}
	format := audio.SelectFormat(runtime.GOOS, preference)
	encoder, err := audio.NewEncoder(format, cfg.Audio.RecorderCommand)
	if err != nil {
		return Services{}, err
	}

	sampler := spectrum.NewSampler(spectrum.Config{
		WindowSize:  cfg.Spectrum.WindowSize,
		Interval:    cfg.Spectrum.Interval,
		MinDecibels: -100,
		MaxDecibels: -30,
		Smoothing:   0.8,
	}, m.SpectrumFrameDropped)

	recorder := recording.NewManager(capture, encoder, sampler, eventSink, m, logger, recording.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		ChunkSize: cfg.Audio.ChunkSize,
	})

	api, err := quizapi.NewClient(quizapi.Config{
		BaseURL:      cfg.API.BaseURL,
		MediaBaseURL: cfg.API.MediaBaseURL,
		Timeout:      cfg.API.Timeout,
	}, m, logger)
	if err != nil {
		return Services{}, err
	}

	var transcriber ports.Transcriber = api
	if cfg.Transcriber.Provider == config.ProviderDeepgram {
		transcriber = deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Transcriber.Deepgram.APIKey,
			APIBaseURL:  cfg.Transcriber.Deepgram.APIBaseURL,
			Model:       cfg.Transcriber.Deepgram.Model,
			Language:    cfg.Transcriber.Deepgram.Language,
			SmartFormat: cfg.Transcriber.Deepgram.SmartFormat,
		}, m, logger)
	}

	controller := usecase.NewSessionController(
		api,
		recorder,
		transcriber,
		api,
		eventSink,
		m,
		logger,
		usecase.Config{UploadRecordings: cfg.API.UploadRecordings},
	)

	logger.Info("quiz engine ready",
		slog.String("api", cfg.API.BaseURL),
		slog.String("transcriber", cfg.Transcriber.Provider),
		slog.String("capture_format", string(format)),
		slog.Int("spectrum_bins", sampler.WindowSize()/2))

	return Services{
		Controller: controller,
		Config:     cfg,
		Format:     format,
		Bins:       sampler.WindowSize() / 2,
		Logger:     logger,
		Metrics:    m,
	}, nil
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
