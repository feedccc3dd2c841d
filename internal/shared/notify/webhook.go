package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier posts events to the municipality's mail gateway, which
// renders the template and delivers the email.
type WebhookNotifier struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

func NewWebhookNotifier(endpoint, authToken string) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint:  endpoint,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Send posts one event. Any non-2xx response is an error so the dispatcher
// can queue a retry.
func (n *WebhookNotifier) Send(ctx context.Context, event Event) error {
	bodyBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.authToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
