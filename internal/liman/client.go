package liman

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/nhle/liman-notify/internal/logging"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the root URL of the Liman instance.
	BaseURL string

	// APIPrefix and AuthPrefix are joined to BaseURL for the notification
	// and authentication endpoints respectively.
	APIPrefix  string
	AuthPrefix string

	// ChannelAuthPath is the private-channel authorization endpoint.
	ChannelAuthPath string

	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             logrus.FieldLogger

	// HTTPClient overrides the transport; tests pass httptest clients.
	HTTPClient *http.Client
}

// Client is a thin HTTP client for the Liman REST API.
// It handles Bearer token authentication, JSON marshaling, retry with
// exponential backoff on HTTP 429, and trips a circuit breaker when the
// server keeps failing.
type Client struct {
	baseURL         string
	apiPrefix       string
	authPrefix      string
	channelAuthPath string
	token           string
	httpClient      *http.Client
	maxRetries      int
	breaker         *gobreaker.CircuitBreaker
	log             *logrus.Entry
}

// NewClient creates a new Liman HTTP client without credentials. Use
// WithToken to obtain an authenticated copy.
func NewClient(opts Options) *Client {
	log := logging.Component(opts.Logger, "liman")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed Liman installs
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "liman-api",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		// Client errors are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil || IsAuthError(err) || errors.Is(err, ErrPasswordChangeRequired) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		apiPrefix:       strings.TrimRight(opts.APIPrefix, "/"),
		authPrefix:      strings.TrimRight(opts.AuthPrefix, "/"),
		channelAuthPath: opts.ChannelAuthPath,
		httpClient:      httpClient,
		maxRetries:      3,
		breaker:         breaker,
		log:             log,
	}
}

// WithToken returns a copy of the client that authenticates with token.
// The copy shares the HTTP client and circuit breaker.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token in use, if any.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the root URL of the Liman instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	path string,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request and unmarshals the JSON response.
// A url.Values body is sent form-encoded, anything else as JSON.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do runs a request through the circuit breaker.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("liman api unavailable (%s %s): %w", method, path, err)
	}
	return err
}

// encodeBody returns the request payload and its content type.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request body: %w", err)
		}
		return data, "application/json", nil
	}
}

// roundTrip builds the request, handles auth, rate limiting with
// exponential backoff, and JSON deserialization.
func (c *Client) roundTrip(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	target := c.baseURL + path

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			c.log.WithField("wait", waitDuration).Debug("rate limited, backing off")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &AuthError{Message: fmt.Sprintf("%s %s rejected the access token", method, path)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := string(respBody)
			var apiErr ErrorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
				msg = apiErr.Message
			}
			return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: msg}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
