package domain

import (
	"sync"
	"time"
)

// SessionStatus models the quiz session lifecycle.
type SessionStatus string

const (
	SessionStatusNotStarted         SessionStatus = "not_started"
	SessionStatusLoading            SessionStatus = "loading"
	SessionStatusInProgress         SessionStatus = "in_progress"
	SessionStatusAwaitingTranscript SessionStatus = "awaiting_transcript"
	SessionStatusCompleted          SessionStatus = "completed"
	SessionStatusFailed             SessionStatus = "failed"
	SessionStatusNoPrompts          SessionStatus = "no_prompts"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusNoPrompts
}

// SessionReason provides a structured reason for state transitions.
type SessionReason string

const (
	SessionReasonLoading          SessionReason = "loading_prompts"
	SessionReasonPromptsLoaded    SessionReason = "prompts_loaded"
	SessionReasonNoPrompts        SessionReason = "no_prompts"
	SessionReasonLoadFailed       SessionReason = "load_failed"
	SessionReasonRecordingStarted SessionReason = "recording_started"
	SessionReasonRecordingAborted SessionReason = "recording_aborted"
	SessionReasonTranscribing     SessionReason = "transcribing"
	SessionReasonAnswerAccepted   SessionReason = "answer_accepted"
	SessionReasonAnswerRejected   SessionReason = "answer_rejected"
	SessionReasonSubmitFailed     SessionReason = "submit_failed"
	SessionReasonCompleted        SessionReason = "completed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup        ErrorCode = "startup"
	ErrorCodePermission     ErrorCode = "permission"
	ErrorCodeDevice         ErrorCode = "device"
	ErrorCodeAudioStream    ErrorCode = "audio_stream"
	ErrorCodeTransport      ErrorCode = "transport"
	ErrorCodeUploadRejected ErrorCode = "upload_rejected"
	ErrorCodeInvalidState   ErrorCode = "invalid_state"
	ErrorCodeArchive        ErrorCode = "archive"
	ErrorCodeParticipant    ErrorCode = "participant"
)

// Prompt is one quiz question. Immutable once fetched.
type Prompt struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Description    string   `json:"description"`
	MediaRefs      []string `json:"mediaRefs"`
	ExpectedAnswer string   `json:"expectedAnswer"`
	OrderNumber    int      `json:"orderNumber"`
	ShowSpectrum   bool     `json:"showSpectrum"`
}

// Participant identifies who is taking the quiz.
type Participant struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// SessionSnapshot is a read-only copy of the session for presentation layers.
type SessionSnapshot struct {
	ID           string        `json:"id"`
	Participant  Participant   `json:"participant"`
	Status       SessionStatus `json:"status"`
	CurrentIndex int           `json:"currentIndex"`
	Total        int           `json:"total"`
	Current      *Prompt       `json:"current,omitempty"`
	Recording    bool          `json:"recording"`
	Message      string        `json:"message,omitempty"`
}

// RecordingState models the capture handle lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateCapturing RecordingState = "capturing"
	RecordingStateStopped   RecordingState = "stopped"
)

// RecordingHandle describes one live capture attempt.
type RecordingHandle struct {
	ID        string         `json:"id"`
	PromptID  string         `json:"promptId"`
	State     RecordingState `json:"state"`
	StartedAt time.Time      `json:"startedAt"`
	MimeType  string         `json:"mimeType"`
}

// AudioArtifact is a finalized capture ready for upload.
// The payload can be taken exactly once.
type AudioArtifact struct {
	ID         string
	PromptID   string
	MimeType   string
	Extension  string
	SampleRate int
	Channels   int
	Duration   time.Duration

	mu       sync.Mutex
	data     []byte
	consumed bool
}

// NewAudioArtifact wraps an encoded capture payload.
func NewAudioArtifact(id, promptID, mimeType, extension string, data []byte) *AudioArtifact {
	return &AudioArtifact{
		ID:        id,
		PromptID:  promptID,
		MimeType:  mimeType,
		Extension: extension,
		data:      data,
	}
}

// Size returns the payload length, or zero once consumed.
func (a *AudioArtifact) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data)
}

// Peek returns the payload without consuming it. Used for archival uploads.
func (a *AudioArtifact) Peek() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consumed {
		return nil, ErrArtifactConsumed
	}
	return a.data, nil
}

// Take returns the payload and releases it.
func (a *AudioArtifact) Take() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consumed {
		return nil, ErrArtifactConsumed
	}
	data := a.data
	a.data = nil
	a.consumed = true
	return data, nil
}

// SpectrumFrame is one sample of frequency magnitudes, scaled to 0-255.
type SpectrumFrame struct {
	Bins []uint8   `json:"bins"`
	At   time.Time `json:"at"`
}

// TranscriptResult is the recognized text for one artifact.
type TranscriptResult struct {
	PromptID string `json:"promptId"`
	Text     string `json:"text"`
}

// AttemptOutcome is returned once a capture has been transcribed and validated.
type AttemptOutcome struct {
	PromptID     string        `json:"promptId"`
	Transcript   string        `json:"transcript"`
	Matched      bool          `json:"matched"`
	Status       SessionStatus `json:"status"`
	CurrentIndex int           `json:"currentIndex"`
}
