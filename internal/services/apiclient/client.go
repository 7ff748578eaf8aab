// Package apiclient is the shared HTTP layer behind every provider client.
//
// Each Client serializes its calls through a Throttle, refuses calls past its
// daily Quota before touching the network, counts every call it issues, and
// maps HTTP outcomes onto the services error markers:
//
//	404        -> services.ErrNotFound
//	429        -> services.ErrRateLimited
//	401, 403   -> services.ErrConfiguration
//	5xx, other -> services.ErrTransient (also timeouts and undecodable bodies)
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"marquee/internal/logging"
	"marquee/internal/metrics"
	"marquee/internal/services"
)

const maxErrorSnippet = 512

// Config describes one provider endpoint and its cadence.
type Config struct {
	Provider    string
	BaseURL     string
	MinInterval time.Duration
	DailyQuota  int
	Timeout     time.Duration
}

// Client issues throttled, quota-checked JSON requests against one provider.
type Client struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	throttle   *Throttle
	quota      *Quota
	usedToday  int
	dailyQuota int
	calls      atomic.Int64
	metrics    *metrics.Recorder
	logger     *slog.Logger
	authorize  func(*http.Request)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics records every call outcome on the recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

// WithLogger attaches a debug logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUsedToday seeds the daily quota with calls already spent by earlier
// processes today.
func WithUsedToday(n int) Option {
	return func(c *Client) {
		c.usedToday = n
	}
}

// WithQueryKey authenticates by adding a query parameter to every request.
func WithQueryKey(name, value string) Option {
	return func(c *Client) {
		c.authorize = func(req *http.Request) {
			q := req.URL.Query()
			q.Set(name, value)
			req.URL.RawQuery = q.Encode()
		}
	}
}

// WithBearerToken authenticates with an Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.authorize = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// New creates a provider client.
func New(cfg Config, opts ...Option) (*Client, error) {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		return nil, errors.New("apiclient provider name required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s base url required", provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		throttle:   NewThrottle(cfg.MinInterval),
		dailyQuota: cfg.DailyQuota,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.quota = NewQuota(client.dailyQuota, client.usedToday)
	return client, nil
}

// Provider returns the provider name used in errors, metrics and usage rows.
func (c *Client) Provider() string {
	return c.provider
}

// Calls returns the number of requests issued by this client.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Remaining reports calls left under the daily quota; ok is false when unlimited.
func (c *Client) Remaining() (int, bool) {
	return c.quota.Remaining()
}

// GetJSON issues a GET for endpoint with params and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	target, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.provider, "build url", endpoint, err)
	}
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}
	return c.do(ctx, http.MethodGet, target, endpoint, nil, out)
}

// PostJSON issues a POST with body encoded as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body any, out any) error {
	target, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.provider, "build url", endpoint, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.provider, "encode body", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, target, endpoint, payload, out)
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, endpoint string, body []byte, out any) error {
	if err := c.quota.Reserve(c.provider); err != nil {
		c.metrics.ProviderCall(c.provider, string(services.KindQuotaExceeded))
		return err
	}
	if err := c.throttle.Wait(ctx); err != nil {
		c.quota.Release()
		return fmt.Errorf("%s throttle wait: %w", c.provider, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		c.quota.Release()
		return services.Wrap(services.ErrValidation, c.provider, "build request", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	c.calls.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.record(endpoint, string(services.KindUnknown), latency)
			return fmt.Errorf("%s %s: %w", c.provider, endpoint, ctxErr)
		}
		c.record(endpoint, string(services.KindTransient), latency)
		return services.Wrap(services.ErrTransient, c.provider, method+" "+endpoint,
			fmt.Sprintf("request failed (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(c.provider, method, endpoint, resp, latency); err != nil {
		c.record(endpoint, string(services.Classify(err)), latency)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.record(endpoint, string(services.KindTransient), latency)
			return services.Wrap(services.ErrTransient, c.provider, method+" "+endpoint, "decode response", err)
		}
	}
	c.record(endpoint, "ok", latency)
	return nil
}

func (c *Client) record(endpoint, outcome string, latency time.Duration) {
	c.metrics.ProviderCall(c.provider, outcome)
	c.logger.Debug("provider call",
		logging.String(logging.FieldProvider, c.provider),
		logging.String("endpoint", endpoint),
		logging.String("outcome", outcome),
		logging.Duration("latency", latency),
		logging.Int64("calls", c.calls.Load()),
	)
}

func classifyStatus(provider, method, endpoint string, resp *http.Response, latency time.Duration) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet := readSnippet(resp.Body)
	message := fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency)
	if snippet != "" {
		message += ": " + snippet
	}
	op := method + " " + endpoint

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, provider, op, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		if retry := strings.TrimSpace(resp.Header.Get("Retry-After")); retry != "" {
			message += " (retry after " + retry + ")"
		}
		return services.Wrap(services.ErrRateLimited, provider, op, message, nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, provider, op, message+"; check the api key", nil)
	default:
		return services.Wrap(services.ErrTransient, provider, op, message, nil)
	}
}

func readSnippet(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorSnippet))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
