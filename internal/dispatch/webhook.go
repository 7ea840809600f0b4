package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/normalize"
)

// WebhookSender posts display requests to an HTTP display agent.
type WebhookSender struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string        // Display agent endpoint
	Timeout time.Duration // Request timeout, defaults to 30s
}

// displayRequest is the wire envelope sent to the display agent.
type displayRequest struct {
	Action       string                `json:"action"` // "show" or "close"
	Tag          string                `json:"tag,omitempty"`
	Notification *normalize.Descriptor `json:"notification,omitempty"`
}

// NewWebhookSender creates a sender that targets the given display agent.
func NewWebhookSender(cfg WebhookConfig, logger *zap.Logger) *WebhookSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// Deliver posts the descriptor to the display agent and returns its
// completion. All descriptor fields travel as-is; the agent decides how to
// render optional ones.
func (s *WebhookSender) Deliver(ctx context.Context, d normalize.Descriptor) error {
	err := s.post(ctx, displayRequest{Action: "show", Tag: d.Tag, Notification: &d})
	if err != nil {
		return fmt.Errorf("display request failed: %w", err)
	}

	s.logger.Info("notification displayed",
		zap.String("title", d.Title),
		zap.String("tag", d.Tag),
	)
	return nil
}

// Close asks the display agent to dismiss the notification with the given
// tag.
func (s *WebhookSender) Close(ctx context.Context, tag string) error {
	if err := s.post(ctx, displayRequest{Action: "close", Tag: tag}); err != nil {
		return fmt.Errorf("close request failed: %w", err)
	}
	return nil
}

func (s *WebhookSender) post(ctx context.Context, dr displayRequest) error {
	body, err := json.Marshal(dr)
	if err != nil {
		return fmt.Errorf("failed to marshal display request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pushlens/1.0.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("display agent returned status %d, body: %s", resp.StatusCode, string(preview))
	}
	return nil
}
