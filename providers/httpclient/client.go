// Package httpclient is the shared outbound HTTP client for all metadata providers.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"oa-workflow/metrics"
)

// DefaultMaxAttempts is the number of attempts made before a timeout is surfaced.
const DefaultMaxAttempts = 10

// Config steuert Timeouts, Retries und Rate-Limit.
type Config struct {
	Timeout time.Duration

	// MaxAttempts counts the first request, so 10 means one request plus nine retries.
	MaxAttempts int

	// BaseDelay is doubled after every timed-out attempt, capped at MaxDelay.
	// Zero retries immediately.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	RateLimit float64
	Burst     int
	UserAgent string
}

// StatusError is returned when a response arrives with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status: %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// RequestOption modifies an outgoing request.
type RequestOption func(*http.Request)

// WithBasicAuth sets HTTP basic auth credentials.
func WithBasicAuth(username, password string) RequestOption {
	return func(req *http.Request) {
		req.SetBasicAuth(username, password)
	}
}

// WithHeader sets a single header.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// Client wiederholt Anfragen nur bei Timeouts. Alle anderen Fehler werden sofort zurückgegeben.
// It is safe for concurrent use.
type Client struct {
	client     *http.Client
	noRedirect *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     *zap.Logger
}

// New erstellt einen Client mit Defaults für fehlende Werte.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "oa-workflow/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		noRedirect: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		config:  cfg,
		logger:  logger,
	}
}

// Get returns the response body. Non-2xx responses yield a *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	status, body, err := c.roundTrip(ctx, c.client, http.MethodGet, rawURL, "", nil, opts)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &StatusError{StatusCode: status, URL: rawURL}
	}
	return string(body), nil
}

// Post sends body with the given content type and returns the response body.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte, opts ...RequestOption) (string, error) {
	status, resp, err := c.roundTrip(ctx, c.client, http.MethodPost, rawURL, contentType, body, opts)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &StatusError{StatusCode: status, URL: rawURL}
	}
	return string(resp), nil
}

// Head issues a HEAD request without following redirects and returns the status code.
func (c *Client) Head(ctx context.Context, rawURL string, opts ...RequestOption) (int, error) {
	status, _, err := c.roundTrip(ctx, c.noRedirect, http.MethodHead, rawURL, "", nil, opts)
	return status, err
}

func (c *Client) roundTrip(ctx context.Context, client *http.Client, method, rawURL, contentType string, body []byte, opts []RequestOption) (int, []byte, error) {
	log := c.logger.With(zap.String("method", method), zap.String("url", rawURL))

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		status, data, err := c.once(ctx, client, method, rawURL, contentType, body, opts)
		if err == nil {
			return status, data, nil
		}
		if ctx.Err() != nil || !isTimeout(err) {
			return 0, nil, err
		}

		lastErr = err
		metrics.HTTPTimeoutsTotal.WithLabelValues(hostOf(rawURL)).Inc()
		log.Debug("Request timed out", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < c.config.MaxAttempts {
			if err := c.waitForRetry(ctx, c.backoff(attempt)); err != nil {
				return 0, nil, err
			}
		}
	}

	log.Warn("Giving up after repeated timeouts", zap.Int("attempts", c.config.MaxAttempts))
	return 0, nil, fmt.Errorf("giving up after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, client *http.Client, method, rawURL, contentType string, body []byte, opts []RequestOption) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if c.config.BaseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		return c.config.MaxDelay
	}
	delay := c.config.BaseDelay << (attempt - 1)
	if delay <= 0 || delay > c.config.MaxDelay {
		return c.config.MaxDelay
	}
	return delay
}

func (c *Client) waitForRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Host
}
