// Package api is a client of the auction data service, which indexes the
// orders participants placed in EasyAuction auctions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/order"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// StatusError is returned for non-success responses of the data service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// retryable reports whether a request failing with this status may succeed
// when repeated.
func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Client talks to the data service of one network.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a data service client for the API rooted at baseURL,
// e.g. "https://ido-api.example/api/v1/".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing api url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported api url scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/") + "/",
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetUserOrders returns all encoded orders account placed in the auction.
// The returned orders are validated to be well-formed bytes32 values.
func (c *Client) GetUserOrders(ctx context.Context, auctionID uint64, account common.Address) ([]order.Encoded, error) {
	endpoint := fmt.Sprintf("%sget_user_orders/%d/%s", c.baseURL, auctionID, account.Hex())

	var raw []string
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, errors.WithMessagef(err, "fetching orders of %s in auction %d", account.Hex(), auctionID)
	}

	orders := make([]order.Encoded, len(raw))
	for i, r := range raw {
		orders[i] = order.Encoded(r)
		if _, err := order.Decode(orders[i]); err != nil {
			return nil, errors.WithMessagef(err, "order %d of auction %d", i, auctionID)
		}
	}
	return orders, nil
}

// get performs a GET request with retries and exponential backoff and
// decodes the JSON response into result.
func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(err, "creating request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = errors.Wrap(err, "http request")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "reading response")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if !serr.retryable() {
				return serr
			}
			lastErr = serr
			continue
		}

		// Malformed payloads are not retried.
		if err := json.Unmarshal(body, result); err != nil {
			return errors.Wrap(err, "decoding response")
		}
		return nil
	}

	return errors.Wrap(lastErr, "max retries exceeded")
}
