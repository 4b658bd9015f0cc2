package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrInvalidState      = errors.New("invalid state")
	ErrNoActiveRecording = errors.New("no active recording")
	ErrUploadRejected    = errors.New("upload rejected")
	ErrArtifactConsumed  = errors.New("audio artifact already consumed")
	ErrTransport         = errors.New("transport error")
)

// TransportError reports a failed network or decode step against a remote service.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Op
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// UploadRejectedError reports that the service refused an artifact as malformed.
type UploadRejectedError struct {
	StatusCode int
	Message    string
}

func (e *UploadRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upload rejected: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upload rejected: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *UploadRejectedError) Is(target error) bool { return target == ErrUploadRejected }

// AttemptError is a recoverable failure of one prompt attempt. Index is the
// prompt index the session remains at.
type AttemptError struct {
	Index int
	Code  ErrorCode
	Err   error
}

// NewAttemptError classifies err and pins it to the current prompt index.
func NewAttemptError(index int, err error) *AttemptError {
	return &AttemptError{Index: index, Code: CodeFor(err), Err: err}
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("prompt %d: %v", e.Index, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Message is the operator-facing instruction for recovering.
func (e *AttemptError) Message() string {
	return RecoveryMessage(e.Code)
}

// CodeFor maps an error onto the error taxonomy.
func CodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermission
	case errors.Is(err, ErrDeviceUnavailable):
		return ErrorCodeDevice
	case errors.Is(err, ErrUploadRejected), errors.Is(err, ErrArtifactConsumed):
		return ErrorCodeUploadRejected
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoActiveRecording):
		return ErrorCodeInvalidState
	default:
		return ErrorCodeTransport
	}
}

// RecoveryMessage returns an actionable message for a recoverable error code.
func RecoveryMessage(code ErrorCode) string {
	switch code {
	case ErrorCodePermission:
		return "Grant microphone permission and try again"
	case ErrorCodeDevice:
		return "Microphone unavailable; check the input device and try again"
	case ErrorCodeTransport:
		return "Could not reach the server; please record again"
	case ErrorCodeUploadRejected:
		return "The recording was rejected; please record again"
	case ErrorCodeInvalidState:
		return "Action not allowed right now"
	case ErrorCodeAudioStream:
		return "Audio capture was interrupted; please record again"
	case ErrorCodeArchive:
		return "Recording could not be archived"
	case ErrorCodeParticipant:
		return "Please enter your name and age"
	case ErrorCodeStartup:
		return "Startup failed"
	default:
		return "Unknown error"
	}
}
