package recording

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quizmic/internal/domain"
	"quizmic/internal/ports"
	"quizmic/internal/spectrum"
)

func TestManagerStartStopProducesArtifact(t *testing.T) {
	t.Parallel()

	session := newFakeAudioSession([]byte{1, 0, 2, 0}, []byte{3, 0})
	capture := &fakeAudioCapture{sessions: []ports.AudioSession{session}}
	m := newTestManager(capture, &fakeEncoder{}, nil, nil)

	handle, err := m.Start(context.Background(), domain.Prompt{ID: "p1"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if handle.State != domain.RecordingStateCapturing || handle.PromptID != "p1" || handle.ID == "" {
		t.Fatalf("unexpected handle: %+v", handle)
	}
	if m.State() != domain.RecordingStateCapturing {
		t.Fatalf("expected capturing state")
	}

	artifact, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if artifact.PromptID != "p1" || artifact.MimeType != "audio/test" || artifact.Extension != "tst" {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	data, err := artifact.Take()
	if err != nil {
		t.Fatalf("take failed: %v", err)
	}
	if string(data) != "enc:\x01\x00\x02\x00\x03\x00" {
		t.Fatalf("unexpected payload: %q", data)
	}
	if artifact.Duration != 3*time.Second/16000 {
		t.Fatalf("unexpected duration: %s", artifact.Duration)
	}
	if m.State() != domain.RecordingStateIdle {
		t.Fatalf("expected idle after stop")
	}
	if session.stops() != 1 {
		t.Fatalf("expected device released once, got %d", session.stops())
	}
}

func TestManagerStartTwiceIsInvalidState(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{sessions: []ports.AudioSession{
		newFakeAudioSession([]byte{1, 0}),
		newFakeAudioSession([]byte{2, 0}),
	}}
	m := newTestManager(capture, &fakeEncoder{}, nil, nil)

	first, err := m.Start(context.Background(), domain.Prompt{ID: "p1"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if m.State() != domain.RecordingStateCapturing || capture.callCount() != 1 {
		t.Fatalf("second start must not change state or touch the device")
	}

	if _, err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	second, err := m.Start(context.Background(), domain.Prompt{ID: "p1"})
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new handle per capture")
	}
	_ = m.Abort()
}

func TestManagerStopWhileIdle(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeAudioCapture{}, &fakeEncoder{}, nil, nil)
	artifact, err := m.Stop(context.Background())
	if !errors.Is(err, domain.ErrInvalidState) || !errors.Is(err, domain.ErrNoActiveRecording) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected no artifact")
	}
	if err := m.Abort(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on abort, got %v", err)
	}
}

func TestManagerStartErrorsAreClassified(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"permission", domain.ErrPermissionDenied, domain.ErrPermissionDenied},
		{"device", domain.ErrDeviceUnavailable, domain.ErrDeviceUnavailable},
		{"other", errors.New("exec: ffmpeg not found"), domain.ErrDeviceUnavailable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newTestManager(&fakeAudioCapture{err: tc.err}, &fakeEncoder{}, nil, nil)
			handle, err := m.Start(context.Background(), domain.Prompt{ID: "p1"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if handle.ID != "" {
				t.Fatalf("expected no handle, got %+v", handle)
			}
			if m.State() != domain.RecordingStateIdle {
				t.Fatalf("expected idle state after failed start")
			}
		})
	}
}

func TestManagerEmptyCaptureReleasesDevice(t *testing.T) {
	t.Parallel()

	session := newFakeAudioSession()
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, &fakeEncoder{}, nil, nil)
	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Stop(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if session.stops() != 1 || m.State() != domain.RecordingStateIdle {
		t.Fatalf("device must be released and state reset")
	}
}

func TestManagerEncodeFailureReleasesDevice(t *testing.T) {
	t.Parallel()

	session := newFakeAudioSession([]byte{1, 0})
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, &fakeEncoder{err: errors.New("boom")}, nil, nil)
	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Stop(context.Background()); err == nil {
		t.Fatalf("expected encode error")
	}
	if session.stops() != 1 || m.State() != domain.RecordingStateIdle {
		t.Fatalf("device must be released and state reset")
	}
}

func TestManagerAttachesSpectrumWhileCapturing(t *testing.T) {
	t.Parallel()

	cfg := spectrum.DefaultConfig()
	cfg.WindowSize = 64
	cfg.Interval = time.Millisecond
	sampler := spectrum.NewSampler(cfg, nil)
	sink := &fakeCaptureSink{}

	session := newFakeAudioSession([]byte{0, 1, 0, 2, 0, 3, 0, 4})
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, &fakeEncoder{}, sampler, sink)

	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1", ShowSpectrum: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !sampler.Attached() {
		t.Fatalf("expected sampler attached while capturing")
	}
	waitFor(t, func() bool { return sink.count() > 0 })

	if _, err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sampler.Attached() {
		t.Fatalf("expected sampler detached after stop")
	}
	after := sink.count()
	time.Sleep(10 * time.Millisecond)
	if sink.count() != after {
		t.Fatalf("frames delivered after stop")
	}
	if bins := sink.last().Bins; len(bins) != 32 {
		t.Fatalf("expected 32 bins, got %d", len(bins))
	}
	if codes := sink.errorCodes(); len(codes) != 0 {
		t.Fatalf("a requested stop must not report a stream fault, got %v", codes)
	}
}

func TestManagerDeviceStreamEndStopsSpectrum(t *testing.T) {
	t.Parallel()

	cfg := spectrum.DefaultConfig()
	cfg.WindowSize = 64
	cfg.Interval = time.Millisecond
	sampler := spectrum.NewSampler(cfg, nil)
	sink := &fakeCaptureSink{}

	session := newFakeAudioSession([]byte{0, 1, 0, 2})
	session.endOfStream = true
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, &fakeEncoder{}, sampler, sink)

	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1", ShowSpectrum: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, func() bool { return !sampler.Attached() })
	if m.State() != domain.RecordingStateCapturing {
		t.Fatalf("handle must stay capturing until stopped, got %s", m.State())
	}
	waitFor(t, func() bool { return len(sink.errorCodes()) == 1 })
	if codes := sink.errorCodes(); codes[0] != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream fault, got %v", codes)
	}

	after := sink.count()
	time.Sleep(10 * time.Millisecond)
	if sink.count() != after {
		t.Fatalf("frames delivered after the device stream ended")
	}

	artifact, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	data, err := artifact.Take()
	if err != nil || string(data) != "enc:\x00\x01\x00\x02" {
		t.Fatalf("expected the audio captured before the stream ended, got %q %v", data, err)
	}
	if m.State() != domain.RecordingStateIdle || session.stops() != 1 {
		t.Fatalf("device must be released after stop")
	}
}

func TestManagerSkipsSpectrumWhenPromptHidesIt(t *testing.T) {
	t.Parallel()

	sampler := spectrum.NewSampler(spectrum.DefaultConfig(), nil)
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{newFakeAudioSession([]byte{1, 0})}}, &fakeEncoder{}, sampler, &fakeCaptureSink{})

	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if sampler.Attached() {
		t.Fatalf("sampler must not run for prompts without spectrum")
	}
	if err := m.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
}

func TestManagerAbortReleasesDevice(t *testing.T) {
	t.Parallel()

	cfg := spectrum.DefaultConfig()
	cfg.Interval = time.Millisecond
	sampler := spectrum.NewSampler(cfg, nil)
	session := newFakeAudioSession([]byte{1, 0})
	m := newTestManager(&fakeAudioCapture{sessions: []ports.AudioSession{session}}, &fakeEncoder{}, sampler, &fakeCaptureSink{})

	if _, err := m.Start(context.Background(), domain.Prompt{ID: "p1", ShowSpectrum: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := m.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if session.stops() != 1 || sampler.Attached() || m.State() != domain.RecordingStateIdle {
		t.Fatalf("abort must release device and sampler")
	}
}

func TestCaptureBufferLatest(t *testing.T) {
	t.Parallel()

	b := newCaptureBuffer(2)
	// Two stereo frames: (16384, 0) and (-32768, -32768).
	if _, err := b.Write([]byte{0x00, 0x40, 0x00, 0x00, 0x00, 0x80, 0x00, 0x80, 0x01}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	dst := make([]float64, 4)
	if err := b.Latest(dst); err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	want := []float64{0, 0, 0.25, -1}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v (%v)", i, dst[i], want[i], dst)
		}
	}
	if got := len(b.Bytes()); got != 8 {
		t.Fatalf("expected frame aligned bytes, got %d", got)
	}

	b.Close()
	if err := b.Latest(dst); !errors.Is(err, ports.ErrSourceClosed) {
		t.Fatalf("expected closed source, got %v", err)
	}
	if _, err := b.Write([]byte{1, 0}); !errors.Is(err, ports.ErrSourceClosed) {
		t.Fatalf("expected closed buffer on write, got %v", err)
	}
}

func TestPumpAudioReportsReadError(t *testing.T) {
	t.Parallel()

	err := pumpAudio(&errorReader{err: errors.New("read failed")}, newCaptureBuffer(1), 256)
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if err := pumpAudio(&errorReader{err: io.EOF}, newCaptureBuffer(1), 256); err != nil {
		t.Fatalf("expected clean EOF, got %v", err)
	}
}

func newTestManager(capture ports.AudioCapture, encoder ports.AudioEncoder, sampler *spectrum.Sampler, sink ports.CaptureSink) *Manager {
	return NewManager(capture, encoder, sampler, sink, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeAudioCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAudioSession yields its chunks, then blocks like a live microphone
// until Stop is called. With endOfStream set it returns io.EOF as soon as
// the chunks run out, like a device process that exited.
type fakeAudioSession struct {
	mu          sync.Mutex
	chunks      [][]byte
	index       int
	endOfStream bool
	stopCalls   int
	stopped     chan struct{}
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		n := copy(p, f.chunks[f.index])
		f.index++
		f.mu.Unlock()
		return n, nil
	}
	ended := f.endOfStream
	f.mu.Unlock()
	if ended {
		return 0, io.EOF
	}
	<-f.stopped
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopCalls == 1 {
		close(f.stopped)
	}
	return nil
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeEncoder struct {
	err error
}

func (f *fakeEncoder) MimeType() string  { return "audio/test" }
func (f *fakeEncoder) Extension() string { return "tst" }
func (f *fakeEncoder) Encode(_ context.Context, pcm []byte, _ int, _ int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("enc:"), pcm...), nil
}

type fakeCaptureSink struct {
	mu     sync.Mutex
	frames []domain.SpectrumFrame
	errors []domain.ErrorCode
}

func (f *fakeCaptureSink) SessionError(code domain.ErrorCode, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, code)
}

func (f *fakeCaptureSink) errorCodes() []domain.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ErrorCode(nil), f.errors...)
}

func (f *fakeCaptureSink) SpectrumFrame(frame domain.SpectrumFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeCaptureSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeCaptureSink) last() domain.SpectrumFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

type errorReader struct {
	err error
}

func (r *errorReader) Read(_ []byte) (int, error) { return 0, r.err }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
