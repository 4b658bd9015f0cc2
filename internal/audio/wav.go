package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVEncoder wraps 16-bit PCM in a RIFF/WAVE container.
type WAVEncoder struct {
	tempDir string
}

func NewWAVEncoder() *WAVEncoder {
	return &WAVEncoder{tempDir: os.TempDir()}
}

func (e *WAVEncoder) MimeType() string  { return "audio/wav" }
func (e *WAVEncoder) Extension() string { return "wav" }

// Encode writes pcm through a temporary file, since the wav encoder needs to
// seek back and patch the header sizes on close.
func (e *WAVEncoder) Encode(_ context.Context, pcm []byte, sampleRate int, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("cannot encode empty audio")
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm payload not aligned")
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm format: rate=%d channels=%d", sampleRate, channels)
	}

	file, err := os.CreateTemp(e.tempDir, "quizmic_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           pcmToInts(pcm),
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	data, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return data, nil
}

func pcmToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples
}
