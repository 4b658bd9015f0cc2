package quizapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"quizmic/internal/domain"
)

// Transcribe uploads the artifact once and returns the recognized text.
// The artifact payload is consumed whether or not the request succeeds.
func (c *Client) Transcribe(ctx context.Context, artifact *domain.AudioArtifact) (domain.TranscriptResult, error) {
	const op = "transcribe"
	if artifact == nil {
		return domain.TranscriptResult{}, &domain.UploadRejectedError{Message: "no recording to upload"}
	}
	data, err := artifact.Take()
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("%w: %w", domain.ErrUploadRejected, err)
	}
	if len(data) == 0 {
		return domain.TranscriptResult{}, &domain.UploadRejectedError{Message: "recording is empty"}
	}

	started := time.Now()
	resp, err := c.postMultipart(ctx, op, "transcribe", func(w *multipart.Writer) error {
		if err := writeFilePart(w, "file", "recording.wav", artifact.MimeType, data); err != nil {
			return err
		}
		return w.WriteField("question_id", artifact.PromptID)
	})
	c.metrics.TranscriptionFinished(time.Since(started))
	if err != nil {
		return domain.TranscriptResult{}, err
	}
	target := c.endpoint("transcribe")
	if resp.status != http.StatusOK {
		return domain.TranscriptResult{}, statusError(op, target, resp)
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return domain.TranscriptResult{}, &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("decode transcript: %w", err)}
	}
	if payload.Text == nil {
		return domain.TranscriptResult{}, &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("response has no text field")}
	}

	text := *payload.Text
	c.logger.Debug("transcript received",
		slog.String("prompt_id", artifact.PromptID),
		slog.Int("chars", len(text)))
	return domain.TranscriptResult{PromptID: artifact.PromptID, Text: text}, nil
}
