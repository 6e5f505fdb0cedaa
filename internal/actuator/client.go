// Package actuator talks to the physical spray controller. Triggering is
// fire-and-forget: a failed actuation is logged and never rolls back the
// recorded spray decision.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/pestvision/internal/models"
)

// Client triggers the spray controller over HTTP. With no controller URL
// configured it only logs the trigger, which is how bench setups run.
type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(controllerURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		url:        controllerURL,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

type triggerRequest struct {
	DetectionID string  `json:"detectionId"`
	StreamID    string  `json:"streamId"`
	PestType    string  `json:"pestType"`
	Confidence  float64 `json:"confidence"`
}

// Trigger fires the spray controller for the detection.
func (c *Client) Trigger(ctx context.Context, d *models.Detection) error {
	if c.url == "" {
		slog.Info("spray triggered (no controller configured)",
			"detection_id", d.ID,
			"confidence", d.MaxConfidence,
		)
		return nil
	}

	body, err := json.Marshal(triggerRequest{
		DetectionID: d.ID.String(),
		StreamID:    d.StreamID,
		PestType:    d.PestType,
		Confidence:  d.MaxConfidence,
	})
	if err != nil {
		return fmt.Errorf("marshal trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger spray: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("trigger spray: controller returned %d", resp.StatusCode)
	}

	slog.Info("spray triggered",
		"detection_id", d.ID,
		"confidence", d.MaxConfidence,
	)
	return nil
}
