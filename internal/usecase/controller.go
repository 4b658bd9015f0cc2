package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizmic/internal/domain"
	"quizmic/internal/metrics"
	"quizmic/internal/ports"
)

var (
	ErrInvalidParticipant = errors.New("participant name and age are required")
	ErrSessionBusy        = errors.New("previous attempt still in progress")
	ErrSessionFinished    = errors.New("session has no prompts left")
)

// Config controls quiz session behavior.
type Config struct {
	UploadRecordings bool
	ArchiveTimeout   time.Duration
}

// SessionController runs one participant through the prompt list:
// fetch, record, transcribe, validate, then retry or advance.
type SessionController struct {
	prompts     ports.PromptSource
	recorder    ports.Recorder
	transcriber ports.Transcriber
	archiver    ports.RecordingArchiver
	events      ports.EventSink
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cfg         Config

	mu      sync.Mutex
	session *quizSession
	busy    bool
}

// NewSessionController wires the controller. archiver and m may be nil.
func NewSessionController(
	prompts ports.PromptSource,
	recorder ports.Recorder,
	transcriber ports.Transcriber,
	archiver ports.RecordingArchiver,
	events ports.EventSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *SessionController {
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionController{
		prompts:     prompts,
		recorder:    recorder,
		transcriber: transcriber,
		archiver:    archiver,
		events:      events,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		session:     &quizSession{status: domain.SessionStatusNotStarted},
	}
}

// Begin registers the participant and loads the prompt list. It may be
// called once, or again after a failed load.
func (c *SessionController) Begin(ctx context.Context, participant domain.Participant) (domain.SessionSnapshot, error) {
	participant.Name = strings.TrimSpace(participant.Name)
	if participant.Name == "" || participant.Age <= 0 {
		c.events.SessionError(domain.ErrorCodeParticipant, domain.RecoveryMessage(domain.ErrorCodeParticipant))
		return c.Snapshot(), ErrInvalidParticipant
	}

	c.mu.Lock()
	status := c.session.status
	if c.busy || (status != domain.SessionStatusNotStarted && status != domain.SessionStatusFailed) {
		c.mu.Unlock()
		return c.Snapshot(), fmt.Errorf("%w: cannot begin from %s", domain.ErrInvalidState, status)
	}
	c.busy = true
	c.session = &quizSession{
		id:          uuid.NewString(),
		participant: participant,
		status:      domain.SessionStatusLoading,
	}
	loading := c.session.snapshot()
	c.mu.Unlock()
	c.events.SessionChanged(loading, domain.SessionReasonLoading)

	prompts, err := c.prompts.FetchPrompts(ctx)

	c.mu.Lock()
	c.busy = false
	reason := domain.SessionReasonPromptsLoaded
	switch {
	case err != nil:
		c.session.status = domain.SessionStatusFailed
		c.session.message = domain.RecoveryMessage(domain.ErrorCodeTransport)
		reason = domain.SessionReasonLoadFailed
	case len(prompts) == 0:
		c.session.status = domain.SessionStatusNoPrompts
		reason = domain.SessionReasonNoPrompts
	default:
		c.session.prompts = prompts
		c.session.status = domain.SessionStatusInProgress
	}
	snap := c.session.snapshot()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("prompt load failed",
			slog.String("session_id", snap.ID),
			slog.String("error", err.Error()))
		c.events.SessionError(domain.CodeFor(err), snap.Message)
	} else {
		c.logger.Info("session started",
			slog.String("session_id", snap.ID),
			slog.Int("prompts", snap.Total))
	}
	c.events.SessionChanged(snap, reason)
	return snap, err
}

// StartRecording opens the microphone for the current prompt.
func (c *SessionController) StartRecording(ctx context.Context) (domain.RecordingHandle, error) {
	c.mu.Lock()
	if err := c.guardIdleLocked(); err != nil {
		c.mu.Unlock()
		return domain.RecordingHandle{}, err
	}
	prompt, _ := c.session.currentPrompt()
	index := c.session.index
	c.busy = true
	c.mu.Unlock()

	handle, err := c.recorder.Start(ctx, prompt)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.session.message = domain.RecoveryMessage(domain.CodeFor(err))
		c.mu.Unlock()
		attemptErr := domain.NewAttemptError(index, err)
		c.events.SessionError(attemptErr.Code, attemptErr.Message())
		return domain.RecordingHandle{}, attemptErr
	}
	c.session.recording = true
	c.session.message = ""
	snap := c.session.snapshot()
	c.mu.Unlock()

	c.events.SessionChanged(snap, domain.SessionReasonRecordingStarted)
	return handle, nil
}

// StopAndSubmit ends the capture and runs the transcribe/validate cycle for
// the current prompt. Recoverable failures leave the session in progress at
// the same index and are returned as *domain.AttemptError.
func (c *SessionController) StopAndSubmit(ctx context.Context) (domain.AttemptOutcome, error) {
	c.mu.Lock()
	if c.session.status != domain.SessionStatusInProgress {
		status := c.session.status
		c.mu.Unlock()
		return domain.AttemptOutcome{}, fmt.Errorf("%w: cannot submit from %s", domain.ErrInvalidState, status)
	}
	if c.busy {
		c.mu.Unlock()
		return domain.AttemptOutcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidState, ErrSessionBusy)
	}
	if !c.session.recording {
		c.mu.Unlock()
		return domain.AttemptOutcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrNoActiveRecording)
	}
	prompt, _ := c.session.currentPrompt()
	index := c.session.index
	participant := c.session.participant
	c.busy = true
	c.mu.Unlock()

	artifact, err := c.recorder.Stop(ctx)
	if err != nil {
		c.mu.Lock()
		c.busy = false
		c.session.recording = false
		c.session.message = domain.RecoveryMessage(domain.CodeFor(err))
		snap := c.session.snapshot()
		c.mu.Unlock()
		return domain.AttemptOutcome{}, c.failAttempt(snap, index, err)
	}

	c.mu.Lock()
	c.session.recording = false
	c.session.status = domain.SessionStatusAwaitingTranscript
	c.session.message = ""
	snap := c.session.snapshot()
	c.mu.Unlock()
	c.events.SessionChanged(snap, domain.SessionReasonTranscribing)

	c.archive(ctx, participant, artifact)

	result, err := c.transcriber.Transcribe(ctx, artifact)
	if err != nil {
		c.mu.Lock()
		c.busy = false
		c.session.status = domain.SessionStatusInProgress
		c.session.message = domain.RecoveryMessage(domain.CodeFor(err))
		snap := c.session.snapshot()
		c.mu.Unlock()
		return domain.AttemptOutcome{}, c.failAttempt(snap, index, err)
	}

	matched := Validate(result.Text, prompt.ExpectedAnswer)
	c.events.TranscriptReceived(prompt.ID, result.Text, matched)
	c.logger.Info("answer checked",
		slog.String("prompt_id", prompt.ID),
		slog.Int("index", index),
		slog.Bool("matched", matched))

	c.mu.Lock()
	c.busy = false
	var reason domain.SessionReason
	if matched {
		reason, err = c.advanceLocked()
	} else {
		reason, err = c.retryLocked()
	}
	snap = c.session.snapshot()
	c.mu.Unlock()
	if err != nil {
		return domain.AttemptOutcome{}, err
	}

	outcome := "mismatched"
	if matched {
		outcome = "matched"
	}
	c.metrics.Attempt(outcome)
	c.events.SessionChanged(snap, reason)

	return domain.AttemptOutcome{
		PromptID:     prompt.ID,
		Transcript:   result.Text,
		Matched:      matched,
		Status:       snap.Status,
		CurrentIndex: snap.CurrentIndex,
	}, nil
}

// AbortRecording discards the live capture and stays on the current prompt.
func (c *SessionController) AbortRecording() error {
	c.mu.Lock()
	if c.busy || !c.session.recording {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrNoActiveRecording)
	}
	c.busy = true
	c.mu.Unlock()

	err := c.recorder.Abort()

	c.mu.Lock()
	c.busy = false
	c.session.recording = false
	snap := c.session.snapshot()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("recording abort reported an error", slog.String("error", err.Error()))
	}
	c.events.SessionChanged(snap, domain.SessionReasonRecordingAborted)
	return nil
}

// Advance moves past an accepted answer. Only valid while awaiting a transcript.
func (c *SessionController) Advance() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, ErrSessionBusy)
	}
	reason, err := c.advanceLocked()
	snap := c.session.snapshot()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.events.SessionChanged(snap, reason)
	return nil
}

// Retry returns to the current prompt for another attempt. Only valid while
// awaiting a transcript.
func (c *SessionController) Retry() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, ErrSessionBusy)
	}
	reason, err := c.retryLocked()
	snap := c.session.snapshot()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.events.SessionChanged(snap, reason)
	return nil
}

// Snapshot returns a copy of the session state.
func (c *SessionController) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

func (c *SessionController) guardIdleLocked() error {
	if c.session.status.Terminal() {
		return fmt.Errorf("%w: %w (%s)", domain.ErrInvalidState, ErrSessionFinished, c.session.status)
	}
	if c.session.status != domain.SessionStatusInProgress {
		return fmt.Errorf("%w: cannot record from %s", domain.ErrInvalidState, c.session.status)
	}
	if c.busy {
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, ErrSessionBusy)
	}
	if c.session.recording {
		return fmt.Errorf("%w: recording already in progress", domain.ErrInvalidState)
	}
	return nil
}

func (c *SessionController) advanceLocked() (domain.SessionReason, error) {
	if c.session.status != domain.SessionStatusAwaitingTranscript {
		return "", fmt.Errorf("%w: cannot advance from %s", domain.ErrInvalidState, c.session.status)
	}
	c.session.index++
	if c.session.index >= len(c.session.prompts) {
		c.session.index = len(c.session.prompts)
		c.session.status = domain.SessionStatusCompleted
		return domain.SessionReasonCompleted, nil
	}
	c.session.status = domain.SessionStatusInProgress
	return domain.SessionReasonAnswerAccepted, nil
}

func (c *SessionController) retryLocked() (domain.SessionReason, error) {
	if c.session.status != domain.SessionStatusAwaitingTranscript {
		return "", fmt.Errorf("%w: cannot retry from %s", domain.ErrInvalidState, c.session.status)
	}
	c.session.status = domain.SessionStatusInProgress
	c.session.message = "Answer not recognized; please record again"
	return domain.SessionReasonAnswerRejected, nil
}

func (c *SessionController) failAttempt(snap domain.SessionSnapshot, index int, err error) error {
	attemptErr := domain.NewAttemptError(index, err)
	c.metrics.Attempt("failed")
	c.logger.Warn("attempt failed",
		slog.String("session_id", snap.ID),
		slog.Int("index", index),
		slog.String("code", string(attemptErr.Code)),
		slog.String("error", err.Error()))
	c.events.SessionError(attemptErr.Code, attemptErr.Message())
	c.events.SessionChanged(snap, domain.SessionReasonSubmitFailed)
	return attemptErr
}

// archive uploads a copy of the recording. Failures are reported but never
// block the attempt.
func (c *SessionController) archive(ctx context.Context, participant domain.Participant, artifact *domain.AudioArtifact) {
	if c.archiver == nil || !c.cfg.UploadRecordings {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, c.cfg.ArchiveTimeout)
	defer cancel()

	if err := c.archiver.Archive(archiveCtx, participant, artifact); err != nil {
		c.metrics.ArchiveFailed()
		c.logger.Warn("recording archive failed",
			slog.String("prompt_id", artifact.PromptID),
			slog.String("error", err.Error()))
		c.events.SessionError(domain.ErrorCodeArchive, domain.RecoveryMessage(domain.ErrorCodeArchive))
	}
}
