package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxHumanizerBody caps how much of a humanizer reply is read.
const maxHumanizerBody = 1 << 20

// HTTPHumanizerConfig configures the humanization endpoint.
type HTTPHumanizerConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPHumanizer implements Humanizer with a JSON POST.
type HTTPHumanizer struct {
	cfg HTTPHumanizerConfig
}

type humanizeRequest struct {
	Text       string       `json:"text"`
	GradeLevel int          `json:"grade_level"`
	Tone       Tone         `json:"tone"`
	Style      RewriteStyle `json:"style"`
}

type humanizeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPHumanizer creates the adapter. Timeouts come from the caller's
// context.
func NewHTTPHumanizer(cfg HTTPHumanizerConfig) *HTTPHumanizer {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &HTTPHumanizer{cfg: cfg}
}

// Humanize posts text to the service and returns its rewrite.
func (h *HTTPHumanizer) Humanize(ctx context.Context, text string, gradeLevel int, tone Tone, style RewriteStyle) (string, error) {
	body, err := json.Marshal(humanizeRequest{
		Text:       text,
		GradeLevel: gradeLevel,
		Tone:       tone,
		Style:      style,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %w", ErrHumanizer, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %w", ErrHumanizer, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(h.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrHumanizer, ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHumanizerBody))
	if err != nil {
		return "", fmt.Errorf("%w: reading reply: %w", ErrHumanizer, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %w", ErrHumanizer, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: %w: status %d", ErrHumanizer, ErrServiceUnavailable, resp.StatusCode)
	}

	var out humanizeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrHumanizer, ErrMalformedResponse, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrHumanizer, out.Error)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("%w: %w: empty text", ErrHumanizer, ErrMalformedResponse)
	}
	return out.Text, nil
}
