package recording

import (
	"errors"
	"fmt"
	"io"
	"os"

	"quizmic/internal/domain"
)

// pumpAudio copies device PCM into the capture buffer until the device
// stream ends. A closed pipe after Stop is a normal end of stream.
func pumpAudio(audio io.Reader, buffer io.Writer, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if _, writeErr := buffer.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("%w: buffer audio: %v", domain.ErrDeviceUnavailable, writeErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: audio capture error: %v", domain.ErrDeviceUnavailable, err)
		}
	}
}
