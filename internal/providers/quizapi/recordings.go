package quizapi

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"quizmic/internal/domain"
)

// Archive stores a copy of the recording with the backend. It reads the
// artifact without consuming it.
func (c *Client) Archive(ctx context.Context, participant domain.Participant, artifact *domain.AudioArtifact) error {
	const op = "archive recording"
	if artifact == nil {
		return fmt.Errorf("%s: no artifact", op)
	}
	data, err := artifact.Peek()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s: artifact payload is empty", op)
	}

	ext := artifact.Extension
	if ext == "" {
		ext = "wav"
	}
	resp, err := c.postMultipart(ctx, op, "recordings", func(w *multipart.Writer) error {
		if err := w.WriteField("user_id", participant.Name); err != nil {
			return err
		}
		if err := w.WriteField("age", strconv.Itoa(participant.Age)); err != nil {
			return err
		}
		if err := w.WriteField("question_id", artifact.PromptID); err != nil {
			return err
		}
		return writeFilePart(w, "recording", "recording."+ext, artifact.MimeType, data)
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return statusError(op, c.endpoint("recordings"), resp)
	}

	c.logger.Info("recording archived",
		slog.String("prompt_id", artifact.PromptID),
		slog.String("artifact_id", artifact.ID),
		slog.String("message", serviceMessage(resp.body)))
	return nil
}
