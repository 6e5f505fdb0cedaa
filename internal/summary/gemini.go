// Package summary generates natural-language synopses of detections via the
// Gemini API. Summaries are best-effort: any failure yields no summary and
// never surfaces to the ingestion path.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/pestvision/internal/config"
	"github.com/your-org/pestvision/internal/models"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API origin.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client calls the Gemini generateContent endpoint. A client built without an
// API key is disabled and never attempts a call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(cfg config.GeminiConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Summarize returns a short operational synopsis of the detection, or false
// when disabled or when the call fails for any reason.
func (c *Client) Summarize(ctx context.Context, d *models.Detection) (string, bool) {
	if !c.Enabled() {
		return "", false
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(d)}}}},
	})
	if err != nil {
		slog.Warn("gemini: marshal request", "error", err)
		return "", false
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("gemini: build request", "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("gemini: request failed", "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("gemini: unexpected status", "status", resp.StatusCode)
		return "", false
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("gemini: decode response", "error", err)
		return "", false
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		slog.Warn("gemini: response missing candidates")
		return "", false
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", false
	}
	return text, true
}

func buildPrompt(d *models.Detection) string {
	var b strings.Builder
	b.WriteString("You are an agronomy expert. Analyse the following pest detection event and provide a two sentence actionable summary for field technicians.\n")
	if !d.DetectedAt.IsZero() {
		fmt.Fprintf(&b, "Detection timestamp: %s\n", d.DetectedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Pest type: %s\n", d.PestType)
	fmt.Fprintf(&b, "Detected count: %d with max confidence %.2f.\n", d.PestCount, d.MaxConfidence)
	if len(d.Boxes) > 0 {
		b.WriteString("Bounding boxes: ")
		for _, box := range d.Boxes {
			fmt.Fprintf(&b, "[label=%s, confidence=%.2f] ", box.Label, box.Confidence)
		}
		b.WriteString("\n")
	}
	b.WriteString("If the event suggests human presence, highlight that pesticide actions should be paused. Focus on concise operational guidance.")
	return b.String()
}
