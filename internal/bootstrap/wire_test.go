package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"quizmic/internal/audio"
	"quizmic/internal/config"
	"quizmic/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	t.Setenv("QUIZMIC_CONFIG_FILE", "")
	t.Setenv("QUIZMIC_TRANSCRIBER", "")
	t.Setenv("QUIZMIC_CAPTURE_FORMAT", "")
	t.Setenv("QUIZMIC_METRICS_BIND", "")
	t.Setenv("QUIZMIC_SPECTRUM_WINDOW", "")

	services, err := Build(context.Background(), noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Metrics == nil || services.Logger == nil {
		t.Fatalf("expected assembled services, got %+v", services)
	}
	if services.Bins != 1024 {
		t.Fatalf("expected 1024 spectrum bins for the default window, got %d", services.Bins)
	}
	if services.Format != audio.FormatWAV {
		t.Fatalf("expected default wav capture, got %s", services.Format)
	}
	if snap := services.Controller.Snapshot(); snap.Status != domain.SessionStatusNotStarted {
		t.Fatalf("unexpected initial status %s", snap.Status)
	}
}

func TestBuildWithDeepgramTranscriber(t *testing.T) {
	t.Setenv("QUIZMIC_CONFIG_FILE", "")
	t.Setenv("QUIZMIC_TRANSCRIBER", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(context.Background(), noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Config.Transcriber.Provider != config.ProviderDeepgram {
		t.Fatalf("unexpected provider %q", services.Config.Transcriber.Provider)
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("QUIZMIC_CONFIG_FILE", "")
	t.Setenv("QUIZMIC_TRANSCRIBER", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := Build(context.Background(), noopEventSink{}); err == nil {
		t.Fatalf("expected build error without a deepgram key")
	}
}

func TestBuildFailsOnBadRecorderCommand(t *testing.T) {
	t.Setenv("QUIZMIC_CONFIG_FILE", "")
	t.Setenv("QUIZMIC_TRANSCRIBER", "")
	t.Setenv("QUIZMIC_FFMPEG_COMMAND", `ffmpeg "unterminated`)

	if _, err := Build(context.Background(), noopEventSink{}); err == nil {
		t.Fatalf("expected build error for unparseable ffmpeg command")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "prompt_id", "q1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if record["msg"] != "shown" || record["prompt_id"] != "q1" {
		t.Fatalf("unexpected record %v", record)
	}

	buf.Reset()
	NewLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Fatalf("expected text debug output, got %q", buf.String())
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionChanged(_ domain.SessionSnapshot, _ domain.SessionReason) {}
func (noopEventSink) TranscriptReceived(_ string, _ string, _ bool)                   {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)                       {}
func (noopEventSink) SpectrumFrame(_ domain.SpectrumFrame)                            {}
