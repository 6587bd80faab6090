package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// Request is the wire format sent to a delivery vendor.
type Request struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// Response is the vendor's acknowledgement.
type Response struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPVendor posts delivery requests to an external vendor endpoint. One
// instance per channel; each carries its own URL and timeout.
type HTTPVendor struct {
	client  *http.Client
	baseURL string
}

// NewHTTPVendor creates a new HTTPVendor
func NewHTTPVendor(url string, timeout time.Duration) *HTTPVendor {
	return &HTTPVendor{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: url,
	}
}

// Send posts the request and classifies the result. Network failures and
// timeouts are retryable; HTTP failures are retryable only for 5xx and 429.
func (v *HTTPVendor) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewProviderError(0, fmt.Sprintf("request failed: %v", err), true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, domain.NewProviderError(resp.StatusCode, string(respBody), retryable)
	}

	var vendorResp Response
	if err := json.Unmarshal(respBody, &vendorResp); err != nil {
		// Vendors that reply with an empty or non-JSON body still accepted
		// the message; synthesize an acknowledgement.
		vendorResp = Response{
			MessageID: fmt.Sprintf("msg-%d", time.Now().UnixNano()),
			Status:    "accepted",
			Timestamp: time.Now().UTC(),
		}
	}

	return &vendorResp, nil
}
