// Package polygonstore persists drawn polygon collections to the local
// PostGIS connector service. The connector is an external collaborator
// reached over a single PUT endpoint.
package polygonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "http://localhost:5000"

// ErrNameConflict is returned when the collection name is already in use.
var ErrNameConflict = errors.New("polygonstore: collection name already in use")

// Ring is one closed polygon ring of EPSG:25832 coordinates.
type Ring [][2]float64

// Client saves polygon collections.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option mutates the client when constructing it.
type Option func(*Client)

// WithBaseURL overrides the connector host.
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

// NewClient creates a Client with sensible defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save stores the rings under the given collection name. A 409 from the
// connector maps to ErrNameConflict; any other non-success status surfaces
// the connector's response text.
func (c *Client) Save(ctx context.Context, name string, rings []Ring) error {
	if c == nil {
		return errors.New("polygonstore: nil client")
	}
	if name == "" {
		return errors.New("polygonstore: collection name is required")
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("polygonstore: invalid base URL: %w", err)
	}
	endpoint.Path = endpoint.Path + "/add_polygon_collection/" + url.PathEscape(name)

	body, err := json.Marshal(rings)
	if err != nil {
		return fmt.Errorf("polygonstore: marshal rings: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("polygonstore: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polygonstore: request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrNameConflict, name)
	default:
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("polygonstore: save failed with status %d: %s", resp.StatusCode, string(message))
	}
}
