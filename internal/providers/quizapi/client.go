// Package quizapi talks to the quiz backend: prompt listing, transcription
// and recording archival.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quizmic/internal/domain"
	"quizmic/internal/metrics"
)

const maxResponseBytes = 4 << 20

// Config controls the quiz backend client.
type Config struct {
	BaseURL      string
	MediaBaseURL string
	Timeout      time.Duration
}

// Client implements ports.PromptSource, ports.Transcriber and
// ports.RecordingArchiver against the quiz backend.
type Client struct {
	base      *url.URL
	mediaBase *url.URL
	http      *http.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:5000/api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := parseBase(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	mediaBase := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	if strings.TrimSpace(cfg.MediaBaseURL) != "" {
		mediaBase, err = parseBase(cfg.MediaBaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid media base URL: %w", err)
		}
	}

	return &Client{
		base:      base,
		mediaBase: mediaBase,
		http:      &http.Client{Timeout: cfg.Timeout},
		metrics:   m,
		logger:    logger,
	}, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(req *http.Request, op string) (response, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, &domain.TransportError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, &domain.TransportError{Op: op, URL: req.URL.String(), StatusCode: resp.StatusCode, Err: err}
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) postMultipart(ctx context.Context, op string, path string, build func(w *multipart.Writer) error) (response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := build(writer); err != nil {
		return response{}, fmt.Errorf("%s: build multipart body: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return response{}, fmt.Errorf("%s: close multipart writer: %w", op, err)
	}

	target := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return response{}, &domain.TransportError{Op: op, URL: target, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, op)
}

// writeFilePart writes a file part with an explicit content type rather
// than the application/octet-stream CreateFormFile would use.
func writeFilePart(w *multipart.Writer, field, filename, contentType string, data []byte) error {
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// serviceMessage extracts a human readable message from an error body.
func serviceMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func isRejection(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func statusError(op string, target string, resp response) error {
	if isRejection(resp.status) {
		return &domain.UploadRejectedError{StatusCode: resp.status, Message: serviceMessage(resp.body)}
	}
	return &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("%s", serviceMessage(resp.body))}
}
