// Package timescar drives the Times Car Share member site over plain HTTP.
// It logs in with a member card, loads station reservation pages, submits
// the timetable search form, and reads vehicle timetables out of the HTML.
package timescar

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the reservation site root.
	DefaultBaseURL = "https://share.timescar.jp"

	// DefaultLoginURL is the member login page. After login the site
	// redirects to the member top page.
	DefaultLoginURL = "https://api.timesclub.jp/view/pc/tpLogin.jsp?siteKbn=TP&doa=ON&redirectPath=https%3A%2F%2Fshare.timescar.jp%2Fview%2Fmember%2Fmypage.jsp"

	// ProviderName identifies this provider in the health registry.
	ProviderName = "timescar"

	stationPath    = "/view/reserve/input.jsp"
	errorPagePath  = "/view/error/"
	defaultUA      = "slotwatch/1.0"
	defaultTimeout = 20 * time.Second
)

var (
	// ErrLoginFailed is returned when the site rejects the member credentials.
	ErrLoginFailed = errors.New("login failed")

	// ErrMissingCredentials is returned when a card number part or the password is empty.
	ErrMissingCredentials = errors.New("missing member credentials")

	// ErrElementNotFound is returned when an expected page element is absent.
	ErrElementNotFound = errors.New("element not found")

	// ErrOptionNotFound is returned when a select has no option for the requested value.
	ErrOptionNotFound = errors.New("option not found")

	// ErrSessionClosed is returned by any page call after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Credentials are the member card number (in its two printed parts) and password.
type Credentials struct {
	CardNumber1 string
	CardNumber2 string
	Password    string
}

// Validate reports whether every credential field is set.
func (c Credentials) Validate() error {
	var missing []string
	if c.CardNumber1 == "" {
		missing = append(missing, "card number 1")
	}
	if c.CardNumber2 == "" {
		missing = append(missing, "card number 2")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// ClientConfig holds configuration for the Times Car Share client.
type ClientConfig struct {
	// BaseURL is the reservation site root (defaults to DefaultBaseURL).
	BaseURL string

	// LoginURL is the member login page (defaults to DefaultLoginURL).
	LoginURL string

	Credentials Credentials

	// HTTPClient carries the circuit breaker and retry policy shared by all
	// sessions. If nil, a default resilient client is created.
	HTTPClient *resilience.Client

	// Timeout for individual page loads when HTTPClient is nil (default: 20s).
	Timeout time.Duration

	// Registry receives provider health reports when HTTPClient is nil.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client opens logged-in sessions against the member site.
type Client struct {
	baseURL     *url.URL
	loginURL    string
	credentials Credentials
	httpClient  *resilience.Client
	logger      zerolog.Logger
}

// NewClient creates a new Times Car Share client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}

	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	if _, err := url.Parse(loginURL); err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = timeout
		rc.UserAgent = defaultUA
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:     base,
		loginURL:    loginURL,
		credentials: cfg.Credentials,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}, nil
}

// Open logs in with a fresh cookie jar and returns the session. It
// satisfies availability.SessionOpener.
func (c *Client) Open(ctx context.Context) (availability.Session, error) {
	return c.OpenSession(ctx)
}

// OpenSession is Open with the concrete session type.
func (c *Client) OpenSession(ctx context.Context) (*Session, error) {
	if err := c.credentials.Validate(); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &Session{
		client: c,
		http:   c.httpClient.WithJar(jar),
		logger: c.logger,
	}
	if err := s.login(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug().Msg("provider session opened")
	return s, nil
}

// StationURL resolves an endpoint to a reservation page URL. A bare
// station code such as "U882" expands to the site's reservation input
// page; an absolute URL is used as is.
func (c *Client) StationURL(endpoint availability.StationEndpoint) (string, error) {
	raw := strings.TrimSpace(string(endpoint))
	if raw == "" {
		return "", errors.New("empty station endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse station url: %w", err)
		}
		return u.String(), nil
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + stationPath
	u.RawQuery = url.Values{"scd": {raw}}.Encode()
	return u.String(), nil
}
