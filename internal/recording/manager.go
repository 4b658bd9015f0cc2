package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"quizmic/internal/domain"
	"quizmic/internal/metrics"
	"quizmic/internal/ports"
	"quizmic/internal/spectrum"
)

// Config controls device capture.
type Config struct {
	Audio     ports.AudioConfig
	ChunkSize int
}

// Manager owns the capture device: Idle -> Capturing -> Stopped -> Idle.
// At most one capture is live at a time.
type Manager struct {
	capture ports.AudioCapture
	encoder ports.AudioEncoder
	sampler *spectrum.Sampler
	sink    ports.CaptureSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	current *activeCapture
}

type activeCapture struct {
	handle domain.RecordingHandle
	cancel context.CancelFunc
	audio  ports.AudioSession
	buffer *captureBuffer

	// stopping is set before the device is released by Stop or Abort.
	stopping atomic.Bool

	pumpDone chan struct{}
	pumpErr  error

	forwardDone chan struct{}
}

// NewManager builds a recording manager. sampler and sink may be nil, in
// which case no spectrum is produced and stream faults are only logged.
func NewManager(
	capture ports.AudioCapture,
	encoder ports.AudioEncoder,
	sampler *spectrum.Sampler,
	sink ports.CaptureSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		capture: capture,
		encoder: encoder,
		sampler: sampler,
		sink:    sink,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start acquires the device and begins capturing an answer for prompt.
func (m *Manager) Start(ctx context.Context, prompt domain.Prompt) (domain.RecordingHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return domain.RecordingHandle{}, fmt.Errorf("%w: capture already in progress", domain.ErrInvalidState)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	audioSession, err := m.capture.Start(captureCtx, m.cfg.Audio)
	if err != nil {
		cancel()
		err = classifyDeviceErr(err)
		m.metrics.RecordingFailed(string(domain.CodeFor(err)))
		m.logger.Warn("audio capture start failed",
			slog.String("prompt_id", prompt.ID),
			slog.String("error", err.Error()))
		return domain.RecordingHandle{}, err
	}

	active := &activeCapture{
		handle: domain.RecordingHandle{
			ID:        uuid.NewString(),
			PromptID:  prompt.ID,
			State:     domain.RecordingStateCapturing,
			StartedAt: m.now(),
			MimeType:  m.encoder.MimeType(),
		},
		cancel:   cancel,
		audio:    audioSession,
		buffer:   newCaptureBuffer(m.cfg.Audio.Channels),
		pumpDone: make(chan struct{}),
	}

	go func() {
		defer close(active.pumpDone)
		active.pumpErr = pumpAudio(active.audio, active.buffer, m.cfg.ChunkSize)
		// No more samples will arrive; the sampler stops on its next tick.
		active.buffer.Close()
		if !active.stopping.Load() {
			m.streamEnded(active)
		}
	}()

	if prompt.ShowSpectrum {
		m.attachSpectrum(active)
	}

	m.current = active
	m.metrics.RecordingStarted()
	m.logger.Info("audio capture started",
		slog.String("recording_id", active.handle.ID),
		slog.String("prompt_id", prompt.ID))
	return active.handle, nil
}

// Stop ends the capture, releases the device and returns the finalized
// artifact. The device is released even when finalizing fails.
func (m *Manager) Stop(ctx context.Context) (*domain.AudioArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.current
	if active == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrNoActiveRecording)
	}
	defer func() { m.current = nil }()

	active.handle.State = domain.RecordingStateStopped
	m.release(active)

	pcm := active.buffer.Bytes()
	if len(pcm) == 0 {
		err := fmt.Errorf("%w: no audio captured", domain.ErrDeviceUnavailable)
		if active.pumpErr != nil {
			err = active.pumpErr
		}
		m.metrics.RecordingFailed(string(domain.CodeFor(err)))
		return nil, err
	}
	if active.pumpErr != nil {
		m.logger.Warn("audio capture ended early; keeping partial recording",
			slog.String("recording_id", active.handle.ID),
			slog.String("error", active.pumpErr.Error()))
	}

	data, err := m.encoder.Encode(ctx, pcm, m.cfg.Audio.SampleRate, m.cfg.Audio.Channels)
	if err != nil {
		m.metrics.RecordingFailed(string(domain.ErrorCodeDevice))
		return nil, fmt.Errorf("%w: encode capture: %v", domain.ErrDeviceUnavailable, err)
	}

	frames := len(pcm) / (2 * m.cfg.Audio.Channels)
	artifact := domain.NewAudioArtifact(uuid.NewString(), active.handle.PromptID, m.encoder.MimeType(), m.encoder.Extension(), data)
	artifact.SampleRate = m.cfg.Audio.SampleRate
	artifact.Channels = m.cfg.Audio.Channels
	artifact.Duration = time.Duration(frames) * time.Second / time.Duration(m.cfg.Audio.SampleRate)

	m.metrics.RecordingFinished(artifact.Duration)
	m.logger.Info("audio capture finalized",
		slog.String("recording_id", active.handle.ID),
		slog.String("artifact_id", artifact.ID),
		slog.String("mime_type", artifact.MimeType),
		slog.Duration("duration", artifact.Duration),
		slog.Int("bytes", len(data)))
	return artifact, nil
}

// Abort discards the live capture without producing an artifact.
func (m *Manager) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.current
	if active == nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrNoActiveRecording)
	}
	m.current = nil
	m.release(active)
	m.logger.Info("audio capture discarded", slog.String("recording_id", active.handle.ID))
	return nil
}

// State reports the capture state.
func (m *Manager) State() domain.RecordingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.RecordingStateIdle
	}
	return m.current.handle.State
}

func (m *Manager) attachSpectrum(active *activeCapture) {
	if m.sampler == nil || m.sink == nil {
		return
	}
	frames, err := m.sampler.Attach(active.buffer)
	if err != nil {
		m.logger.Warn("spectrum sampler not attached", slog.String("error", err.Error()))
		return
	}
	active.forwardDone = make(chan struct{})
	go func() {
		defer close(active.forwardDone)
		for frame := range frames {
			m.sink.SpectrumFrame(frame)
		}
	}()
}

// streamEnded reports a device stream that finished while the capture was
// still live. Audio captured so far stays available to Stop.
func (m *Manager) streamEnded(active *activeCapture) {
	detail := "audio stream ended unexpectedly"
	if active.pumpErr != nil {
		detail = active.pumpErr.Error()
	}
	m.metrics.RecordingFailed(string(domain.ErrorCodeAudioStream))
	m.logger.Warn("audio stream ended before stop",
		slog.String("recording_id", active.handle.ID),
		slog.String("prompt_id", active.handle.PromptID),
		slog.String("detail", detail))
	if m.sink != nil {
		m.sink.SessionError(domain.ErrorCodeAudioStream, detail)
	}
}

// release stops the device and every goroutine tied to the capture.
func (m *Manager) release(active *activeCapture) {
	active.stopping.Store(true)
	if err := active.audio.Stop(); err != nil {
		m.logger.Warn("failed to stop audio capture cleanly",
			slog.String("recording_id", active.handle.ID),
			slog.String("error", err.Error()))
	}
	active.cancel()
	<-active.pumpDone

	if active.forwardDone != nil {
		m.sampler.Detach()
		<-active.forwardDone
	}
}

func classifyDeviceErr(err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
}
