// Package provider implements the secondary outbound channel: the
// messaging provider's own REST API, used when the automated gateway is
// down or when an operator forces provider-direct mode.
package provider

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

// Client talks directly to the messaging provider's API.
type Client struct {
	baseURL string
	token   string
	groupID string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Client) { p.httpc = c }
}

// New creates a provider-direct channel client. groupID is the driver
// group conversation the broadcast is posted to.
func New(baseURL, token, groupID string, opts ...Option) *Client {
	p := &Client{
		baseURL: baseURL,
		token:   token,
		groupID: groupID,
		httpc:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements channel.Channel.
func (p *Client) Name() string { return channel.Secondary }

type messageRequest struct {
	ChatID string `json:"chat_id"`
	Body   string `json:"body"`
}

type messageResponse struct {
	ID string `json:"id"`
}

// Send implements channel.Channel. The provider renders the broadcast as
// a plain text message in the driver group; drivers answer with the
// claim token.
func (p *Client) Send(ctx context.Context, r *ride.Ride) (*channel.Receipt, error) {
	text := fmt.Sprintf("Ride #%d\nFrom: %s\nTo: %s\nReply %q to take it.",
		r.Number, r.Pickup, r.Dropoff, r.ClaimToken)

	body, err := json.Marshal(messageRequest{ChatID: p.groupID, Body: text})
	if err != nil {
		return nil, fmt.Errorf("hail/provider: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hail/provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hail/provider: send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var mr messageResponse
		if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
			return nil, fmt.Errorf("hail/provider: decode response: %w", err)
		}
		return &channel.Receipt{ProviderMessageID: mr.ID}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: provider returned %d", hail.ErrSendRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("hail/provider: provider returned %d", resp.StatusCode)
	}
}

// HealthCheck implements channel.Channel.
func (p *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/status", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.StatusCode == http.StatusOK
}
