// Package payment talks to the external payment processor. The core depends
// on it through exactly two operations: CreateSession and ConstructEvent.
// Any processor exposing hosted checkout sessions and signed webhooks is
// substitutable behind this package.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrExternal covers processor-side failures: unreachable, non-2xx, garbage
// response. Callers must not retry session creation on it (duplicate-charge
// risk).
var ErrExternal = errors.New("payment processor error")

type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int64  `json:"quantity"`
	Currency   string `json:"currency"`
}

type SessionParams struct {
	LineItems     []LineItem        `json:"line_items"`
	CustomerEmail string            `json:"customer_email"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`
}

// Session is the redirect handle returned by the processor. Opaque beyond
// its id, redirect URL and charged amount.
type Session struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	AmountTotal int64  `json:"amount_total"`
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient builds a processor client. timeout bounds every outbound call;
// there is no automatic retry.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// CreateSession requests a hosted checkout session.
func (c *Client) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrExternal, resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrExternal, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: session without id", ErrExternal)
	}
	return &session, nil
}
