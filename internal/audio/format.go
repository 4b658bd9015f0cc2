package audio

import (
	"fmt"
	"strings"

	"quizmic/internal/ports"
)

// Format names a capture container.
type Format string

const (
	FormatAuto Format = "auto"
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
	FormatM4A  Format = "m4a"
)

// ParseFormat accepts the configured capture format name.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatWAV, FormatWebM, FormatM4A:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported capture format %q", value)
	}
}

// SelectFormat resolves auto to the host's native recording container:
// m4a on Apple platforms, webm elsewhere.
func SelectFormat(goos string, preference Format) Format {
	if preference != "" && preference != FormatAuto {
		return preference
	}
	switch goos {
	case "darwin", "ios":
		return FormatM4A
	default:
		return FormatWebM
	}
}

// NewEncoder returns the encoder for a resolved format. Compressed
// containers are produced by ffmpeg using command.
func NewEncoder(format Format, command string) (ports.AudioEncoder, error) {
	switch format {
	case FormatWAV:
		return NewWAVEncoder(), nil
	case FormatWebM, FormatM4A:
		return NewFFMPEGEncoder(command, format)
	default:
		return nil, fmt.Errorf("no encoder for format %q", format)
	}
}
