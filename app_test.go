package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizmic/internal/config"
	"quizmic/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionReason]string{
		domain.SessionReasonLoading:          "Loading questions...",
		domain.SessionReasonPromptsLoaded:    "Questions loaded",
		domain.SessionReasonNoPrompts:        "No questions available",
		domain.SessionReasonLoadFailed:       "Could not load questions",
		domain.SessionReasonRecordingStarted: "Recording started",
		domain.SessionReasonRecordingAborted: "Recording discarded",
		domain.SessionReasonTranscribing:     "Recording stopped. Checking answer...",
		domain.SessionReasonAnswerAccepted:   "Correct! Next question",
		domain.SessionReasonAnswerRejected:   "Not quite; please try again",
		domain.SessionReasonSubmitFailed:     "Answer could not be checked",
		domain.SessionReasonCompleted:        "Quiz complete",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:        "Startup failed",
		domain.ErrorCodeArchive:        "Recording could not be archived",
		domain.ErrorCodePermission:     "Grant microphone permission and try again",
		domain.ErrorCodeTransport:      "Could not reach the server; please record again",
		domain.ErrorCodeUploadRejected: "The recording was rejected; please record again",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.Begin("Ada", 9); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from Begin, got %v", err)
	}
}

func TestGetSessionWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	if snap := app.GetSession(); snap.Status != domain.SessionStatusNotStarted {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	app.bootErr = errors.New("boot")
	snap := app.GetSession()
	if snap.Status != domain.SessionStatusFailed || snap.Message != "boot" {
		t.Fatalf("unexpected boot snapshot: %+v", snap)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestGetRuntimeInfoReportsSpectrumBins(t *testing.T) {
	t.Parallel()

	app := &App{cfg: config.Defaults(), format: "wav", bins: 1024}
	info := app.GetRuntimeInfo()
	if info["spectrumBins"] != "1024" || info["captureFormat"] != "wav" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if _, ok := info["model"]; ok {
		t.Fatalf("deepgram settings must only be reported for the deepgram provider: %v", info)
	}
}

func TestPresentErr(t *testing.T) {
	t.Parallel()

	err := presentErr(domain.NewAttemptError(2, fmt.Errorf("%w: exit 1", domain.ErrPermissionDenied)))
	if err.Error() != "Grant microphone permission and try again" {
		t.Fatalf("unexpected presented error %q", err.Error())
	}

	plain := errors.New("plain")
	if presentErr(plain) != plain {
		t.Fatalf("non-attempt errors should pass through")
	}
}

type emitted struct {
	name string
	data interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{name: name, data: data[0]})
}

func TestEventSinkEmitsWailsEvents(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	app := &App{emit: rec.emit}

	app.SessionError(domain.ErrorCodeTransport, "dropped")
	if len(rec.events) != 0 {
		t.Fatalf("events must not be emitted before startup")
	}

	app.ctx = context.Background()
	app.SessionChanged(domain.SessionSnapshot{Status: domain.SessionStatusInProgress, Total: 2}, domain.SessionReasonPromptsLoaded)
	app.SpectrumFrame(domain.SpectrumFrame{Bins: []uint8{0, 128, 255}, At: time.UnixMilli(42)})
	app.TranscriptReceived("q1", "hello", true)
	app.SessionError(domain.ErrorCodePermission, "exit status 1")

	if len(rec.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(rec.events))
	}
	names := []string{eventSession, eventSpectrum, eventTranscript, eventError}
	for i, name := range names {
		if rec.events[i].name != name {
			t.Fatalf("event %d: expected %s, got %s", i, name, rec.events[i].name)
		}
	}

	session := rec.events[0].data.(map[string]interface{})
	if session["reason"] != "prompts_loaded" || session["message"] != "Questions loaded" {
		t.Fatalf("unexpected session payload %v", session)
	}
	spectrum := rec.events[1].data.(map[string]interface{})
	bins := spectrum["bins"].([]int)
	if len(bins) != 3 || bins[2] != 255 || spectrum["at"] != int64(42) {
		t.Fatalf("unexpected spectrum payload %v", spectrum)
	}
	transcript := rec.events[2].data.(map[string]interface{})
	if transcript["matched"] != true || transcript["text"] != "hello" {
		t.Fatalf("unexpected transcript payload %v", transcript)
	}
	errPayload := rec.events[3].data.(map[string]string)
	if errPayload["message"] != "Grant microphone permission and try again" || errPayload["detail"] != "exit status 1" {
		t.Fatalf("unexpected error payload %v", errPayload)
	}
}
