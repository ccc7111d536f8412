// Package payment contains the client for the external payment provider.
// The provider is a collaborator: this service only opens checkout
// sessions and later consumes the provider's already-verified terminal
// webhooks.  Request/response bodies are treated as opaque beyond the few
// fields the workflow needs.
package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

// CheckoutRequest describes a checkout session to open.  Reference is a
// caller-generated unique id sent as the Idempotency-Key header, so a
// retried request can never open a second session.
type CheckoutRequest struct {
    Reference   string `json:"reference"`
    AmountCents uint32 `json:"amount_cents"`
    Currency    string `json:"currency"`
    Description string `json:"description"`
}

// CheckoutSession is the provider's handle for a payment in progress.
// ID is stored on the purchase record; URL is where the customer
// completes the payment.
type CheckoutSession struct {
    ID  string `json:"id"`
    URL string `json:"url"`
}

// Provider opens checkout sessions with the payment backend.  The
// purchase workflow depends on this interface so tests can substitute a
// fake.
type Provider interface {
    CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// HTTPProvider talks to a provider API over HTTPS.
type HTTPProvider struct {
    baseURL string
    apiKey  string
    client  *http.Client
}

// NewHTTPProvider builds an HTTPProvider for the given base URL and API
// key.  A 10 second request timeout bounds how long a purchase request
// can stall inside its lock waiting on the provider.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
    return &HTTPProvider{
        baseURL: baseURL,
        apiKey:  apiKey,
        client:  &http.Client{Timeout: 10 * time.Second},
    }
}

// CreateCheckoutSession posts the request to /v1/checkout/sessions and
// decodes the session handle.  Provider error bodies are not surfaced to
// callers; only the status code is reported.
func (p *HTTPProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
    body, err := json.Marshal(req)
    if err != nil {
        return nil, err
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
    if err != nil {
        return nil, err
    }
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("Idempotency-Key", req.Reference)
    if p.apiKey != "" {
        httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
    }
    resp, err := p.client.Do(httpReq)
    if err != nil {
        return nil, fmt.Errorf("payment: create session: %w", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return nil, fmt.Errorf("payment: create session: provider returned %d", resp.StatusCode)
    }
    var sess CheckoutSession
    if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
        return nil, fmt.Errorf("payment: decode session: %w", err)
    }
    if sess.ID == "" {
        return nil, fmt.Errorf("payment: provider returned session without id")
    }
    return &sess, nil
}
