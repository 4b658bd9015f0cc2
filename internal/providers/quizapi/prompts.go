package quizapi

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/samber/lo"

	"quizmic/internal/domain"
)

type wirePrompt struct {
	ID            json.RawMessage `json:"id"`
	Text          string          `json:"text"`
	Description   string          `json:"description"`
	Media         []string        `json:"media"`
	CorrectAnswer *string         `json:"correct_answer"`
	OrderNumber   *int            `json:"order_number"`
	ShowSpectrum  *bool           `json:"show_spectrum"`
}

// FetchPrompts retrieves the ordered prompt list.
func (c *Client) FetchPrompts(ctx context.Context) ([]domain.Prompt, error) {
	const op = "fetch prompts"
	target := c.endpoint("prompts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: op, URL: target, Err: err}
	}
	resp, err := c.do(req, op)
	if err != nil {
		c.metrics.PromptFetch("error")
		return nil, err
	}
	if resp.status != http.StatusOK {
		c.metrics.PromptFetch("error")
		return nil, &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("%s", serviceMessage(resp.body))}
	}

	var raw []wirePrompt
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		c.metrics.PromptFetch("error")
		return nil, &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("decode prompt list: %w", err)}
	}

	prompts := make([]domain.Prompt, 0, len(raw))
	ordered := false
	for i, entry := range raw {
		prompt, err := c.toPrompt(entry)
		if err != nil {
			c.metrics.PromptFetch("error")
			return nil, &domain.TransportError{Op: op, URL: target, StatusCode: resp.status, Err: fmt.Errorf("prompt %d: %w", i, err)}
		}
		if entry.OrderNumber != nil {
			ordered = true
		}
		prompts = append(prompts, prompt)
	}
	if ordered {
		slices.SortStableFunc(prompts, func(a, b domain.Prompt) int {
			return cmp.Compare(a.OrderNumber, b.OrderNumber)
		})
	}

	result := "ok"
	if len(prompts) == 0 {
		result = "empty"
	}
	c.metrics.PromptFetch(result)
	c.logger.Info("prompts loaded", slog.Int("count", len(prompts)))
	return prompts, nil
}

func (c *Client) toPrompt(entry wirePrompt) (domain.Prompt, error) {
	id, err := parseID(entry.ID)
	if err != nil {
		return domain.Prompt{}, err
	}
	if entry.CorrectAnswer == nil {
		return domain.Prompt{}, errors.New("missing correct_answer")
	}

	prompt := domain.Prompt{
		ID:             id,
		Text:           entry.Text,
		Description:    entry.Description,
		ExpectedAnswer: *entry.CorrectAnswer,
		ShowSpectrum:   true,
		MediaRefs: lo.FilterMap(entry.Media, func(ref string, _ int) (string, bool) {
			return c.resolveMedia(ref)
		}),
	}
	if entry.OrderNumber != nil {
		prompt.OrderNumber = *entry.OrderNumber
	}
	if entry.ShowSpectrum != nil {
		prompt.ShowSpectrum = *entry.ShowSpectrum
	}
	return prompt, nil
}

// parseID accepts string or numeric identifiers.
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing id")
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		if strings.TrimSpace(id) == "" {
			return "", errors.New("missing id")
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s", string(raw))
	}
	return n.String(), nil
}

// resolveMedia turns backend-relative media paths into absolute URLs.
func (c *Client) resolveMedia(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		c.logger.Warn("dropping unparseable media reference", slog.String("ref", ref))
		return "", false
	}
	if u.IsAbs() {
		return ref, true
	}
	return c.mediaBase.ResolveReference(u).String(), true
}
