// Package gateway implements the primary outbound channel: the automated
// messaging gateway that fans a broadcast out to the driver group.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xraph/hail"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/ride"
)

// Compile-time interface check.
var _ channel.Channel = (*Client)(nil)

// Client talks to the gateway's HTTP API. The router owns timeout and
// retry policy; Client only honors the context deadline it is given.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) { g.httpc = c }
}

// New creates a gateway channel client.
func New(baseURL, apiKey string, opts ...Option) *Client {
	g := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements channel.Channel.
func (g *Client) Name() string { return channel.Primary }

type broadcastRequest struct {
	RideID     string `json:"ride_id"`
	RideNumber int64  `json:"ride_number"`
	Pickup     string `json:"pickup"`
	Dropoff    string `json:"dropoff"`
	ClaimToken string `json:"claim_token"`
}

type broadcastResponse struct {
	MessageID  string `json:"message_id"`
	Recipients int    `json:"recipients"`
}

// Send implements channel.Channel. A 4xx from the gateway is a hard
// rejection (wrapped hail.ErrSendRejected, never retried); a 5xx or a
// transport failure is transient and left to the router's retry policy.
func (g *Client) Send(ctx context.Context, r *ride.Ride) (*channel.Receipt, error) {
	body, err := json.Marshal(broadcastRequest{
		RideID:     r.ID.String(),
		RideNumber: r.Number,
		Pickup:     r.Pickup,
		Dropoff:    r.Dropoff,
		ClaimToken: r.ClaimToken,
	})
	if err != nil {
		return nil, fmt.Errorf("hail/gateway: marshal broadcast: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/broadcasts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hail/gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hail/gateway: send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var br broadcastResponse
		if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
			return nil, fmt.Errorf("hail/gateway: decode response: %w", err)
		}
		return &channel.Receipt{ProviderMessageID: br.MessageID, Recipients: br.Recipients}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: gateway returned %d", hail.ErrSendRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("hail/gateway: gateway returned %d", resp.StatusCode)
	}
}

// HealthCheck implements channel.Channel.
func (g *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.StatusCode == http.StatusOK
}
