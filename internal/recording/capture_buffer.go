package recording

import (
	"encoding/binary"
	"sync"

	"quizmic/internal/ports"
)

// captureBuffer accumulates s16le PCM for the whole attempt and serves the
// newest window of mono samples to the spectrum sampler.
type captureBuffer struct {
	channels int

	mu     sync.Mutex
	pcm    []byte
	closed bool
}

func newCaptureBuffer(channels int) *captureBuffer {
	if channels <= 0 {
		channels = 1
	}
	return &captureBuffer{channels: channels}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ports.ErrSourceClosed
	}
	b.pcm = append(b.pcm, p...)
	return len(p), nil
}

// Latest implements ports.SampleSource. Channels are averaged to mono and
// samples scaled to [-1, 1).
func (b *captureBuffer) Latest(dst []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ports.ErrSourceClosed
	}

	frameBytes := 2 * b.channels
	available := len(b.pcm) / frameBytes
	take := len(dst)
	if available < take {
		take = available
	}
	pad := len(dst) - take
	for i := 0; i < pad; i++ {
		dst[i] = 0
	}

	start := (available - take) * frameBytes
	for i := 0; i < take; i++ {
		offset := start + i*frameBytes
		var sum float64
		for ch := 0; ch < b.channels; ch++ {
			sum += float64(int16(binary.LittleEndian.Uint16(b.pcm[offset+ch*2:])))
		}
		dst[pad+i] = sum / float64(b.channels) / 32768
	}
	return nil
}

// Close ends the sample stream; buffered PCM stays readable via Bytes.
func (b *captureBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Bytes returns the frame-aligned PCM captured so far.
func (b *captureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	aligned := len(b.pcm) - len(b.pcm)%(2*b.channels)
	return append([]byte(nil), b.pcm[:aligned]...)
}
