package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// FFMPEGEncoder transcodes raw PCM into a compressed container.
type FFMPEGEncoder struct {
	argv   []string
	format Format
}

func NewFFMPEGEncoder(command string, format Format) (*FFMPEGEncoder, error) {
	if format != FormatWebM && format != FormatM4A {
		return nil, fmt.Errorf("ffmpeg encoder does not support %q", format)
	}
	argv, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	return &FFMPEGEncoder{argv: argv, format: format}, nil
}

func (e *FFMPEGEncoder) MimeType() string {
	if e.format == FormatM4A {
		return "audio/mp4"
	}
	return "audio/webm"
}

func (e *FFMPEGEncoder) Extension() string { return string(e.format) }

func (e *FFMPEGEncoder) Encode(ctx context.Context, pcm []byte, sampleRate int, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("cannot encode empty audio")
	}

	args := append([]string{}, e.argv[1:]...)
	args = append(args,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
	)
	args = append(args, e.codecArgs()...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(pcm)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg transcode to %s failed: %w: %s", e.format, err, stringsTrimSpaceSafe(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg transcode to %s produced no output", e.format)
	}
	return stdout.Bytes(), nil
}

func (e *FFMPEGEncoder) codecArgs() []string {
	if e.format == FormatM4A {
		// ipod muxer writes fragmented mp4 that can stream to a pipe.
		return []string{"-c:a", "aac", "-movflags", "frag_keyframe+empty_moov", "-f", "ipod"}
	}
	return []string{"-c:a", "libopus", "-f", "webm"}
}
