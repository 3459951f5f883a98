// Package elevation resolves terrain heights ("koter") for EPSG:25832
// coordinates through the Datafordeler DHM terrain service.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
)

const defaultBaseURL = "https://services.datafordeler.dk/DHMTerraen/DHMKoter/1.0.0/GEOREST"

// ErrNoElevation is returned when the service responds with a well-formed
// envelope containing zero elevation samples.
var ErrNoElevation = errors.New("elevation: no elevation data found")

// Credentials identifies a Datafordeler service user. They are passed as
// query parameters; that is the service's own convention.
type Credentials struct {
	Username string
	Password string
}

// Client resolves ground elevations.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials Credentials
	retry       fetch.Policy
	logger      *slog.Logger
}

// Option mutates the client when constructing it.
type Option func(*Client)

// WithBaseURL overrides the default service host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient configures a custom HTTP client instance.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy fetch.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the given service user.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		credentials: creds,
		retry:       fetch.DefaultPolicy(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the HentKoter response document.
type envelope struct {
	HentKoterRespons struct {
		Data []struct {
			Kote float64 `json:"kote"`
		} `json:"data"`
	} `json:"HentKoterRespons"`
}

// Resolve returns the terrain elevation at the coordinate. The first sample
// of the response is used. A response without samples yields ErrNoElevation,
// which callers must treat as a domain outcome distinct from transport
// failure.
func (c *Client) Resolve(ctx context.Context, coord model.WorldCoordinate) (float64, error) {
	if c == nil {
		return 0, errors.New("elevation: nil client")
	}
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, fmt.Errorf("elevation: invalid base URL: %w", err)
	}
	endpoint.Path = endpoint.Path + "/HentKoter"

	values := make(url.Values)
	values.Set("username", c.credentials.Username)
	values.Set("password", c.credentials.Password)
	values.Set("geop", coord.WKT())
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("elevation: create request: %w", err)
	}

	resp, err := fetch.DoRequest(ctx, c.httpClient, req, c.retry, c.logger)
	if err != nil {
		return 0, fmt.Errorf("elevation: request: %w", err)
	}
	defer resp.Body.Close()

	var payload envelope
	if err := fetch.DecodeJSON(resp.Body, &payload); err != nil {
		return 0, fmt.Errorf("elevation: decode response: %w", err)
	}
	if len(payload.HentKoterRespons.Data) == 0 {
		return 0, ErrNoElevation
	}
	return payload.HentKoterRespons.Data[0].Kote, nil
}
