package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming and the health registry.
	Name string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 20 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// Jar keeps the provider's session cookies between requests (optional).
	Jar http.CookieJar

	// UserAgent is sent with every request when set.
	UserAgent string

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives success and failure reports (optional).
	Registry *Registry
}

// DefaultClientConfig returns the defaults used for provider page loads.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         20 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Client is an HTTP client with circuit breaker, retry, and cookie session support.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     cfg.Jar,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Jar returns the cookie jar, or nil when the client is stateless.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// WithJar returns a client that shares this client's circuit breaker and
// registry entry but keeps cookies in jar.
func (c *Client) WithJar(jar http.CookieJar) *Client {
	hc := *c.httpClient
	hc.Jar = jar
	cfg := c.config
	cfg.Jar = jar
	return &Client{
		httpClient:     &hc,
		circuitBreaker: c.circuitBreaker,
		config:         cfg,
	}
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// Requests are retried on network errors and 5xx responses with exponential
// backoff. Request bodies are replayed through req.GetBody, so POST forms built
// with http.NewRequest are safe to retry.
//
// The whole retry loop runs as one breaker call: a request that is still
// failing after its retries counts as a single failure.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
		return c.doWithRetry(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.report(ErrCircuitOpen)
			return nil, ErrCircuitOpen
		}
		c.report(err)
		// A 5xx that exhausted retries is still handed back to the caller.
		var serverErr *ServerError
		if resp != nil && errors.As(err, &serverErr) {
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	c.report(nil)
	return resp, nil
}

// doWithRetry runs the backoff loop. A final 5xx comes back together with
// its ServerError.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by MaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		attempt, err := c.prepare(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(attempt) //nolint:bodyclose // kept as lastResp
		if err != nil {
			return err
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		if resp.StatusCode >= 500 {
			return &ServerError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var serverErr *ServerError
		if lastResp != nil && errors.As(err, &serverErr) {
			return lastResp, err
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		return nil, err
	}
	return lastResp, nil
}

// prepare clones req for one attempt, rewinding the body if there is one.
func (c *Client) prepare(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request to %s has a body that cannot be replayed", req.URL)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		attempt.Body = body
	}
	if c.config.UserAgent != "" && attempt.Header.Get("User-Agent") == "" {
		attempt.Header.Set("User-Agent", c.config.UserAgent)
	}
	return attempt, nil
}

func (c *Client) report(err error) {
	if c.config.Registry == nil {
		return
	}
	if err != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
		return
	}
	c.config.Registry.RecordSuccess(c.config.Name)
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
