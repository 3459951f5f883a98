// Package address turns Danish street addresses into EPSG:25832 coordinates
// through the Dataforsyningen gsearch and adgangsadresser services.
package address

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
)

const (
	defaultSearchBaseURL  = "https://api.dataforsyningen.dk/rest/gsearch/v2.0"
	defaultAddressBaseURL = "https://api.dataforsyningen.dk/adgangsadresser"

	srid25832 = "25832"
)

// ErrNotFound is returned when no address record matches the query.
var ErrNotFound = errors.New("address: no matching address found")

// Address identifies a house by its street components.
type Address struct {
	Road        string
	HouseNumber string
	PostalCode  string
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Address Address
	Label   string
}

// Record is one address row from a polygon-bounded search.
type Record struct {
	ID          string  `json:"id"`
	Text        string  `json:"betegnelse"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	RoadName    string  `json:"vejnavn"`
	HouseNumber string  `json:"husnr"`
	PostalCode  string  `json:"postnr"`
}

// houseRecord mirrors a gsearch husnummer row.
type houseRecord struct {
	RoadName    string `json:"vejnavn"`
	HouseNumber string `json:"husnummertekst"`
	PostalCode  string `json:"postnummer"`
	DisplayText string `json:"visningstekst"`
	Geometry    struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometri"`
}

// Client performs address lookups.
type Client struct {
	searchBaseURL  string
	addressBaseURL string
	httpClient     *http.Client
	token          string
	retry          fetch.Policy
	logger         *slog.Logger
}

// Option mutates the client when constructing it.
type Option func(*Client)

// WithSearchBaseURL overrides the gsearch host.
func WithSearchBaseURL(u string) Option {
	return func(c *Client) {
		c.searchBaseURL = u
	}
}

// WithAddressBaseURL overrides the adgangsadresser host.
func WithAddressBaseURL(u string) Option {
	return func(c *Client) {
		c.addressBaseURL = u
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

// NewClient creates a Client authenticating with the given token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		searchBaseURL:  defaultSearchBaseURL,
		addressBaseURL: defaultAddressBaseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		token:          token,
		retry:          fetch.DefaultPolicy(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Autocomplete suggests house addresses for a free-text query.
func (c *Client) Autocomplete(ctx context.Context, query string) ([]Suggestion, error) {
	houses, err := c.searchHouses(ctx, query, 100)
	if err != nil {
		return nil, err
	}
	suggestions := make([]Suggestion, 0, len(houses))
	for _, h := range houses {
		suggestions = append(suggestions, Suggestion{
			Address: Address{Road: h.RoadName, HouseNumber: h.HouseNumber, PostalCode: h.PostalCode},
			Label:   h.DisplayText + ", " + h.PostalCode,
		})
	}
	return suggestions, nil
}

// ResolveCoordinates finds the EPSG:25832 location of a house address. The
// candidate whose house number and postal code match exactly is used.
func (c *Client) ResolveCoordinates(ctx context.Context, addr Address) (model.WorldCoordinate, error) {
	query := addr.Road + " " + addr.HouseNumber + " " + addr.PostalCode
	houses, err := c.searchHouses(ctx, query, 99)
	if err != nil {
		return model.WorldCoordinate{}, err
	}
	for _, h := range houses {
		if h.HouseNumber != addr.HouseNumber || h.PostalCode != addr.PostalCode {
			continue
		}
		if len(h.Geometry.Coordinates) == 0 || len(h.Geometry.Coordinates[0]) < 2 {
			return model.WorldCoordinate{}, fmt.Errorf("address: house %s has no usable geometry", h.DisplayText)
		}
		point := h.Geometry.Coordinates[0]
		return model.WorldCoordinate{X: point[0], Y: point[1]}, nil
	}
	return model.WorldCoordinate{}, ErrNotFound
}

// WithinPolygon lists the access addresses inside a closed polygon ring of
// EPSG:25832 coordinates. The mini record structure keeps responses small.
func (c *Client) WithinPolygon(ctx context.Context, ring [][2]float64) ([]Record, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("address: polygon needs at least 3 points, got %d", len(ring))
	}
	endpoint, err := url.Parse(c.addressBaseURL)
	if err != nil {
		return nil, fmt.Errorf("address: invalid base URL: %w", err)
	}
	values := make(url.Values)
	values.Set("polygon", encodePolygon(ring))
	values.Set("srid", srid25832)
	values.Set("struktur", "mini")
	endpoint.RawQuery = values.Encode()

	var records []Record
	if err := c.getJSON(ctx, endpoint.String(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) searchHouses(ctx context.Context, query string, limit int) ([]houseRecord, error) {
	endpoint, err := url.Parse(c.searchBaseURL)
	if err != nil {
		return nil, fmt.Errorf("address: invalid base URL: %w", err)
	}
	endpoint.Path = endpoint.Path + "/husnummer"

	values := make(url.Values)
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	values.Set("srid", srid25832)
	endpoint.RawQuery = values.Encode()

	var houses []houseRecord
	if err := c.getJSON(ctx, endpoint.String(), &houses); err != nil {
		return nil, err
	}
	return houses, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("address: create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}
	resp, err := fetch.DoRequest(ctx, c.httpClient, req, c.retry, c.logger)
	if err != nil {
		return fmt.Errorf("address: request: %w", err)
	}
	defer resp.Body.Close()
	if err := fetch.DecodeJSON(resp.Body, v); err != nil {
		return fmt.Errorf("address: decode response: %w", err)
	}
	return nil
}

// encodePolygon serialises a ring as the nested JSON array literal the
// adgangsadresser API expects, closing the ring if the caller did not.
func encodePolygon(ring [][2]float64) string {
	closed := ring
	if ring[0] != ring[len(ring)-1] {
		closed = append(append([][2]float64{}, ring...), ring[0])
	}
	out := "[["
	for i, p := range closed {
		if i > 0 {
			out += ","
		}
		out += "[" + strconv.FormatFloat(p[0], 'f', -1, 64) + "," + strconv.FormatFloat(p[1], 'f', -1, 64) + "]"
	}
	return out + "]]"
}
