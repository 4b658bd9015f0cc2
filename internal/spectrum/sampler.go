// Package spectrum samples a live capture into frequency frames for the UI.
package spectrum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quizmic/internal/domain"
	"quizmic/internal/ports"
)

// Config controls analysis window and cadence.
type Config struct {
	WindowSize  int
	Interval    time.Duration
	MinDecibels float64
	MaxDecibels float64
	Smoothing   float64
}

// DefaultConfig matches a 2048-point analyser ticking at animation rate.
func DefaultConfig() Config {
	return Config{
		WindowSize:  2048,
		Interval:    16 * time.Millisecond,
		MinDecibels: -100,
		MaxDecibels: -30,
		Smoothing:   0.8,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WindowSize < 32 || c.WindowSize%2 != 0 {
		c.WindowSize = def.WindowSize
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxDecibels <= c.MinDecibels {
		c.MinDecibels, c.MaxDecibels = def.MinDecibels, def.MaxDecibels
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		c.Smoothing = def.Smoothing
	}
	return c
}

// Sampler produces spectrum frames from an attached source until detached or
// until the source closes. Frames are delivered on a single-slot channel;
// a slow consumer only ever sees the newest frame.
type Sampler struct {
	cfg    Config
	onDrop func()
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler builds a sampler. onDrop, when set, is called for every frame
// replaced before the consumer read it.
func NewSampler(cfg Config, onDrop func()) *Sampler {
	return &Sampler{cfg: cfg.normalized(), onDrop: onDrop, now: time.Now}
}

// WindowSize is the analysis window; frames carry WindowSize/2 bins.
func (s *Sampler) WindowSize() int {
	return s.cfg.WindowSize
}

// Attach starts a new production loop reading from source.
func (s *Sampler) Attach(source ports.SampleSource) (<-chan domain.SpectrumFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return nil, fmt.Errorf("%w: spectrum sampler already attached", domain.ErrInvalidState)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.SpectrumFrame, 1)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(ctx, cancel, source, out, done)
	return out, nil
}

// Detach stops the production loop and waits for it to exit. Calling it
// while not attached is a no-op.
func (s *Sampler) Detach() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Attached reports whether a production loop is running.
func (s *Sampler) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Sampler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Sampler) run(ctx context.Context, cancel context.CancelFunc, source ports.SampleSource, out chan domain.SpectrumFrame, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer s.finish(done, cancel)

	an := newAnalyzer(s.cfg)
	samples := make([]float64, s.cfg.WindowSize)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Any source error, closed or otherwise, ends production quietly.
		if err := source.Latest(samples); err != nil {
			return
		}
		s.publish(out, domain.SpectrumFrame{Bins: an.frame(samples), At: s.now()})
	}
}

// finish releases the loop context and forgets the loop unless Detach
// already took it.
func (s *Sampler) finish(done chan struct{}, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
}

func (s *Sampler) publish(out chan domain.SpectrumFrame, frame domain.SpectrumFrame) {
	select {
	case out <- frame:
		return
	default:
	}

	select {
	case <-out:
		if s.onDrop != nil {
			s.onDrop()
		}
	default:
	}

	select {
	case out <- frame:
	default:
	}
}
