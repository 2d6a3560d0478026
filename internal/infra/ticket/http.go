package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTicketer opens tracking tickets against a ticketing endpoint.
type HTTPTicketer struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTPTicketer creates a ticketing client. The token is optional.
func NewHTTPTicketer(endpoint, token string, timeout time.Duration) *HTTPTicketer {
	return &HTTPTicketer{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateTicket opens one ticket and returns its identifier.
func (t *HTTPTicketer) CreateTicket(ctx context.Context, details map[string]any, priority string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"details":  details,
		"priority": priority,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ticketing endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		TicketID string `json:"ticket_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ticket response: %w", err)
	}
	if out.TicketID == "" {
		return "", fmt.Errorf("ticketing endpoint returned no ticket id")
	}
	return out.TicketID, nil
}
