package ports

import (
	"context"
	"errors"
	"io"

	"quizmic/internal/domain"
)

// ErrSourceClosed is returned by a SampleSource whose capture has ended.
var ErrSourceClosed = errors.New("sample source closed")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires the microphone and creates capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioEncoder turns raw PCM into a container payload.
type AudioEncoder interface {
	MimeType() string
	Extension() string
	Encode(ctx context.Context, pcm []byte, sampleRate int, channels int) ([]byte, error)
}

// SampleSource exposes the most recent mono samples of a live capture.
type SampleSource interface {
	// Latest fills dst with the newest samples, oldest first, zero-padding
	// the front when fewer are available. It returns ErrSourceClosed once
	// the capture has ended.
	Latest(dst []float64) error
}

// SpectrumSink consumes visualization frames.
type SpectrumSink interface {
	SpectrumFrame(frame domain.SpectrumFrame)
}

// CaptureSink receives live capture output: spectrum frames and faults of
// the device stream.
type CaptureSink interface {
	SpectrumSink
	SessionError(code domain.ErrorCode, detail string)
}

// PromptSource fetches the ordered prompt list.
type PromptSource interface {
	FetchPrompts(ctx context.Context) ([]domain.Prompt, error)
}

// Transcriber submits a finalized artifact for speech recognition.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact *domain.AudioArtifact) (domain.TranscriptResult, error)
}

// RecordingArchiver stores a participant's recording for later review.
type RecordingArchiver interface {
	Archive(ctx context.Context, participant domain.Participant, artifact *domain.AudioArtifact) error
}

// Recorder owns the capture device lifecycle.
type Recorder interface {
	Start(ctx context.Context, prompt domain.Prompt) (domain.RecordingHandle, error)
	Stop(ctx context.Context) (*domain.AudioArtifact, error)
	Abort() error
	State() domain.RecordingState
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	CaptureSink
	SessionChanged(snapshot domain.SessionSnapshot, reason domain.SessionReason)
	TranscriptReceived(promptID string, text string, matched bool)
}
