// Package facilitator drives the verify-then-settle exchange against a B777
// facilitator over HTTP. Verify is a cheap idempotent check; settle commits
// the on-chain relay and is never retried by this package.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/b777-bsc/b777/types"
)

// DefaultURL is the public B777 facilitator.
const DefaultURL = "https://facilitator.b777.ai"

// Config configures the facilitator client.
type Config struct {
	// URL is the base URL of the facilitator service.
	URL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout per request (optional, defaults to 30s). Independent of the
	// authorization's own validity window.
	Timeout time.Duration
}

// Client posts payment payloads to a facilitator's verify and settle
// endpoints.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a facilitator client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	url := config.URL
	if url == "" {
		url = DefaultURL
	}
	url = strings.TrimRight(url, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		url:        url,
		httpClient: httpClient,
	}
}

// URL returns the configured base URL.
func (c *Client) URL() string {
	return c.url
}

// NewPaymentID generates a client-side correlation identifier for one
// payment attempt, sent as the X-Payment-Id header on verify and settle.
// Format: "pay_" followed by a UUID v4 without hyphens.
func NewPaymentID() string {
	return "pay_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TransportError reports that an HTTP exchange itself failed: a network
// error, a non-2xx status, or an undecodable body. Ambiguous is set on
// settle failures, where the on-chain relay may already have been committed
// before the response was lost.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Ambiguous  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s request failed: HTTP %d - %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// VerifyOutcome is the facilitator's structured answer to verify. Raw holds
// the response body verbatim for diagnosability.
type VerifyOutcome struct {
	Valid         bool
	InvalidReason string
	Raw           string
}

// SettleOutcome is the facilitator's structured answer to settle.
type SettleOutcome struct {
	Success     bool
	Transaction string
	ErrorReason string
	Raw         string
}

// Verify posts the payload and requirements to the verify endpoint.
func (c *Client) Verify(ctx context.Context, paymentID string, payload *types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyOutcome, error) {
	body, status, err := c.post(ctx, "verify", paymentID, payload, requirements)
	if err != nil {
		return nil, &TransportError{Endpoint: "verify", Err: err}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Endpoint: "verify", StatusCode: status, Body: string(body)}
	}

	var response types.VerifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &TransportError{Endpoint: "verify", StatusCode: status, Body: string(body), Err: fmt.Errorf("decode verify response: %w", err)}
	}

	return &VerifyOutcome{
		Valid:         response.IsValid,
		InvalidReason: response.InvalidReason,
		Raw:           string(body),
	}, nil
}

// Settle posts the payload and requirements to the settle endpoint. Callers
// must only invoke Settle after Verify reported Valid for the same payload,
// and must not retry on a TransportError: the relay may have partially
// succeeded.
func (c *Client) Settle(ctx context.Context, paymentID string, payload *types.PaymentPayload, requirements types.PaymentRequirements) (*SettleOutcome, error) {
	body, status, err := c.post(ctx, "settle", paymentID, payload, requirements)
	if err != nil {
		return nil, &TransportError{Endpoint: "settle", Ambiguous: true, Err: err}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Endpoint: "settle", StatusCode: status, Body: string(body), Ambiguous: true}
	}

	var response types.SettleResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &TransportError{Endpoint: "settle", StatusCode: status, Body: string(body), Ambiguous: true, Err: fmt.Errorf("decode settle response: %w", err)}
	}

	return &SettleOutcome{
		Success:     response.Success,
		Transaction: response.Transaction,
		ErrorReason: response.ErrorReason,
		Raw:         string(body),
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint, paymentID string, payload *types.PaymentPayload, requirements types.PaymentRequirements) ([]byte, int, error) {
	requestBody := map[string]interface{}{
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	}

	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create %s request: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if paymentID != "" {
		req.Header.Set("X-Payment-Id", paymentID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response body: %w", endpoint, err)
	}

	return responseBody, resp.StatusCode, nil
}
