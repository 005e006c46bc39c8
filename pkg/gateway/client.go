package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/stagehq/stagehand/internal/logging"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// Client is a remote proxy for one instrument behind a gateway. It
// implements ports.Driver, so orchestrators drive remote and local
// instruments through the same interface.
//
// Every call is idempotent-safe against retry: set-parameter converges by
// nature, trigger and read are guarded by the caller's sequence number. The
// client therefore retries transient failures with bounded exponential
// backoff before surfacing domain.ErrCommunication.
type Client struct {
	base       string
	instrument string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger

	retries int
	backoff time.Duration
	ttl     time.Duration

	token  string
	params []domain.ParameterDescriptor
}

var _ ports.Driver = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithClientLogger configures a logger for proxy events.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientRetry bounds the retry policy for transient failures.
func WithClientRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

// WithLeaseTTL sets the lease duration requested on Connect.
func WithLeaseTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithHTTPClient substitutes the transport, e.g. an httptest client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a proxy for the named instrument served at baseURL.
func NewClient(baseURL, instrument string, opts ...ClientOption) *Client {
	c := &Client{
		base:       baseURL,
		instrument: instrument,
		clientID:   uuid.NewString(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
		retries:    3,
		backoff:    100 * time.Millisecond,
		ttl:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect fetches the instrument descriptors and acquires the write lease.
func (c *Client) Connect(ctx context.Context) error {
	var info instrumentInfo
	if err := c.do(ctx, http.MethodGet, c.path(""), nil, &info); err != nil {
		return err
	}
	c.params = info.Parameters

	if c.token != "" {
		return nil
	}
	var resp lockResponse
	body := lockRequest{ClientID: c.clientID, TTLMS: c.ttl.Milliseconds()}
	if err := c.do(ctx, http.MethodPost, c.path("/lock"), body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	c.logger.Debug("lease acquired", "instrument", c.instrument, "expires_at", resp.ExpiresAt)
	return nil
}

// Close releases the lease. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodDelete, c.path("/lock"), nil, nil)
	c.token = ""
	return err
}

// Ping verifies the instrument is reachable and usable through the gateway.
func (c *Client) Ping(ctx context.Context) error {
	var info instrumentInfo
	if err := c.do(ctx, http.MethodGet, c.path(""), nil, &info); err != nil {
		return err
	}
	if !info.State.Usable() {
		return fmt.Errorf("%w: %q is %s", domain.ErrUnavailable, c.instrument, info.State)
	}
	return nil
}

// Parameters returns the descriptors fetched on Connect.
func (c *Client) Parameters() []domain.ParameterDescriptor {
	return c.params
}

// SetParameter writes one parameter through the gateway.
func (c *Client) SetParameter(ctx context.Context, name string, value any) error {
	return c.do(ctx, http.MethodPut, c.path("/parameters/"+url.PathEscape(name)), valueRequest{Value: value}, nil)
}

// GetParameter reads one parameter back through the gateway.
func (c *Client) GetParameter(ctx context.Context, name string) (any, error) {
	var resp valueResponse
	if err := c.do(ctx, http.MethodGet, c.path("/parameters/"+url.PathEscape(name)), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Trigger fires an acquisition for seq. Retries are safe: the gateway
// ignores a duplicate trigger for an already-seen sequence.
func (c *Client) Trigger(ctx context.Context, seq uint64) error {
	return c.do(ctx, http.MethodPost, c.path("/trigger"), triggerRequest{Seq: seq}, nil)
}

// Read fetches the payload for seq.
func (c *Client) Read(ctx context.Context, seq uint64) (map[string]float64, error) {
	var resp readResponse
	if err := c.do(ctx, http.MethodGet, c.path(fmt.Sprintf("/read?seq=%d", seq)), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) path(suffix string) string {
	return c.base + "/v1/instruments/" + url.PathEscape(c.instrument) + suffix
}

// do performs one HTTP exchange with bounded exponential-backoff retries for
// transient failures. Non-transient error kinds surface immediately.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	delay := c.backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = c.once(ctx, method, rawURL, body, out)
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		if attempt >= c.retries {
			return err
		}
		c.logger.Debug("retrying remote call", "method", method, "url", rawURL, "attempt", attempt+1, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
	}
}

func (c *Client) once(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCommunication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&eb); decodeErr != nil {
			return fmt.Errorf("%w: gateway returned status %d", domain.ErrCommunication, resp.StatusCode)
		}
		return errOf(eb.Error, eb.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrCommunication, err)
		}
	}
	return nil
}
