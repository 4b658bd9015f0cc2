package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"quizmic/internal/bootstrap"
	"quizmic/internal/config"
	"quizmic/internal/domain"
	"quizmic/internal/usecase"
)

const (
	eventSession    = "quizmic:session"
	eventSpectrum   = "quizmic:spectrum"
	eventTranscript = "quizmic:transcript"
	eventError      = "quizmic:error"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	controller *usecase.SessionController
	cfg        config.Config
	format     string
	bins       int
	bootErr    error

	emit func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	services, err := bootstrap.Build(a.ctx, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.format = string(services.Format)
	a.bins = services.Bins
	a.controller = services.Controller
	a.SessionChanged(a.controller.Snapshot(), "")
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		_ = a.controller.AbortRecording()
	}
	if a.cancel != nil {
		a.cancel()
	}
}

// Begin registers the participant and loads the quiz.
func (a *App) Begin(name string, age int) (domain.SessionSnapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return a.controller.Begin(a.ctx, domain.Participant{Name: name, Age: age})
}

// StartRecording opens the microphone for the current prompt.
func (a *App) StartRecording() (domain.SessionSnapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionSnapshot{}, err
	}
	if _, err := a.controller.StartRecording(a.ctx); err != nil {
		return a.controller.Snapshot(), presentErr(err)
	}
	return a.controller.Snapshot(), nil
}

// StopRecording submits the answer and returns the attempt outcome.
func (a *App) StopRecording() (domain.AttemptOutcome, error) {
	if err := a.requireReady(); err != nil {
		return domain.AttemptOutcome{}, err
	}
	outcome, err := a.controller.StopAndSubmit(a.ctx)
	if err != nil {
		return domain.AttemptOutcome{}, presentErr(err)
	}
	return outcome, nil
}

// AbortRecording discards an in-progress recording.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.AbortRecording(); err != nil {
		if errors.Is(err, domain.ErrNoActiveRecording) {
			return nil
		}
		return err
	}
	return nil
}

// GetSession returns the current session snapshot.
func (a *App) GetSession() domain.SessionSnapshot {
	if a.controller == nil {
		snap := domain.SessionSnapshot{Status: domain.SessionStatusNotStarted}
		if a.bootErr != nil {
			snap.Status = domain.SessionStatusFailed
			snap.Message = a.bootErr.Error()
		}
		return snap
	}
	return a.controller.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"api":              a.cfg.API.BaseURL,
		"transcriber":      a.cfg.Transcriber.Provider,
		"captureFormat":    a.format,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"uploadRecordings": strconv.FormatBool(a.cfg.API.UploadRecordings),
		"spectrumBins":     strconv.Itoa(a.bins),
	}
	if a.cfg.Transcriber.Provider == config.ProviderDeepgram {
		info["model"] = a.cfg.Transcriber.Deepgram.Model
		info["language"] = a.cfg.Transcriber.Deepgram.Language
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// presentErr replaces recoverable attempt failures with their operator
// instruction; the detail was already emitted as an error event.
func presentErr(err error) error {
	var attemptErr *domain.AttemptError
	if errors.As(err, &attemptErr) {
		return errors.New(attemptErr.Message())
	}
	return err
}

// SessionChanged emits session lifecycle updates to the frontend.
func (a *App) SessionChanged(snapshot domain.SessionSnapshot, reason domain.SessionReason) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventSession, map[string]interface{}{
		"session": snapshot,
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// SpectrumFrame emits one visualization frame.
func (a *App) SpectrumFrame(frame domain.SpectrumFrame) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventSpectrum, map[string]interface{}{
		"bins": lo.Map(frame.Bins, func(b uint8, _ int) int { return int(b) }),
		"at":   frame.At.UnixMilli(),
	})
}

// TranscriptReceived emits the recognized answer and whether it matched.
func (a *App) TranscriptReceived(promptID string, text string, matched bool) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventTranscript, map[string]interface{}{
		"promptId": promptID,
		"text":     text,
		"matched":  matched,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionReason) string {
	switch reason {
	case domain.SessionReasonLoading:
		return "Loading questions..."
	case domain.SessionReasonPromptsLoaded:
		return "Questions loaded"
	case domain.SessionReasonNoPrompts:
		return "No questions available"
	case domain.SessionReasonLoadFailed:
		return "Could not load questions"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingAborted:
		return "Recording discarded"
	case domain.SessionReasonTranscribing:
		return "Recording stopped. Checking answer..."
	case domain.SessionReasonAnswerAccepted:
		return "Correct! Next question"
	case domain.SessionReasonAnswerRejected:
		return "Not quite; please try again"
	case domain.SessionReasonSubmitFailed:
		return "Answer could not be checked"
	case domain.SessionReasonCompleted:
		return "Quiz complete"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeArchive:
		return "Recording could not be archived"
	case domain.ErrorCodePermission, domain.ErrorCodeDevice, domain.ErrorCodeTransport,
		domain.ErrorCodeUploadRejected, domain.ErrorCodeAudioStream, domain.ErrorCodeParticipant:
		return domain.RecoveryMessage(code)
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
