// Package notify implements the outbound webhook notification sink for
// monitor trigger events. Delivery is best-effort with exactly one attempt
// per crossing: a failed delivery is logged and never retried, and never
// rolls back the monitor's state transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"rainwatch/internal/config"
	"rainwatch/internal/types"
)

// SignatureHeader carries the HMAC payload signature when a signing secret
// is configured. Format: "t=<unix>,v1=<hex hmac-sha256>".
const SignatureHeader = "X-Rainwatch-Signature"

// maxResponseBodyRead limits how much of an error response body is read for
// the diagnostic log line.
const maxResponseBodyRead = 1024

// Compile-time assertion that WebhookNotifier implements types.Notifier.
var _ types.Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier delivers trigger events to a single configured webhook
// endpoint via HTTP POST.
type WebhookNotifier struct {
	url           string
	userAgent     string
	signingSecret string
	httpClient    *http.Client
	logger        *slog.Logger
	clock         types.Clock
}

// NewWebhookNotifier creates a WebhookNotifier from the webhook config. The
// short client timeout bounds each delivery so a slow sink cannot block the
// evaluation cycle's progress to subsequent monitors.
func NewWebhookNotifier(cfg config.WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:           cfg.URL,
		userAgent:     cfg.UserAgent,
		signingSecret: cfg.SigningSecret,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
		clock:         types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (n *WebhookNotifier) SetClock(c types.Clock) {
	n.clock = c
}

// SetHTTPClient overrides the HTTP client for testing.
func (n *WebhookNotifier) SetHTTPClient(c *http.Client) {
	n.httpClient = c
}

// NotifyTriggered posts the trigger event as JSON to the configured
// endpoint. A non-2xx response is returned as an error for the caller to
// log; it is never retried.
func (n *WebhookNotifier) NotifyTriggered(ctx context.Context, event *types.TriggerEvent) error {
	if event == nil {
		return fmt.Errorf("webhook: event is nil")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	if n.signingSecret != "" {
		req.Header.Set(SignatureHeader, SignPayload(payload, n.signingSecret, n.clock.Now()))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return fmt.Errorf("webhook: endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	n.logger.InfoContext(ctx, "trigger notification delivered",
		"monitor_id", event.Monitor.ID,
		"status", resp.StatusCode,
	)
	return nil
}
