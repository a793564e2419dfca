// internal/infra/delivery/http_client.go
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	domainDelivery "birthday_notification_service/internal/domain/delivery"
)

// HTTPClient delivers notifications to a remote HTTP API as a JSON POST.
// Response categorization follows the delivery contract: 2xx accepted,
// 4xx permanently rejected (except 408/429, which signal pressure rather
// than a bad request), everything else transient.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

func NewHTTPClient(url string) *HTTPClient {
	// Per-call deadlines come from the caller's context; the client itself
	// carries no timeout so the two cannot fight.
	return &HTTPClient{url: url, httpClient: &http.Client{}}
}

type sendPayload struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

func (c *HTTPClient) Send(ctx context.Context, userID int64, message string) (domainDelivery.Result, error) {
	body, err := json.Marshal(sendPayload{UserID: userID, Message: message})
	if err != nil {
		return domainDelivery.Result{}, fmt.Errorf("failed to marshal delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domainDelivery.Result{}, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are transient by contract.
		return domainDelivery.Result{}, fmt.Errorf("delivery request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domainDelivery.Result{Outcome: domainDelivery.Accepted}, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return domainDelivery.Result{
			Outcome: domainDelivery.TransientError,
			Reason:  fmt.Sprintf("remote returned %d", resp.StatusCode),
		}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domainDelivery.Result{
			Outcome: domainDelivery.Rejected,
			Reason:  fmt.Sprintf("remote rejected with %d", resp.StatusCode),
		}, nil
	default:
		return domainDelivery.Result{
			Outcome: domainDelivery.TransientError,
			Reason:  fmt.Sprintf("remote returned %d", resp.StatusCode),
		}, nil
	}
}
