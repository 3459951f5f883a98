// Package skraafoto provides access to the Danish oblique aerial photo
// catalog (skraafoto STAC API) exposed by Dataforsyningen.
package skraafoto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
	"github.com/example/go-skraafoto/skraafoto/search"
)

const defaultBaseURL = "https://api.dataforsyningen.dk/rest/skraafoto_api/v1.0"

// sentinelItemID is a corrupt placeholder entry in the catalog. It is
// excluded from every sweep batch.
const sentinelItemID = "2023_jul_i_job"

var (
	// ErrNilClient is returned when methods are invoked on a nil Client pointer.
	ErrNilClient = errors.New("skraafoto: nil client")
	// ErrMalformedResponse indicates a well-formed transport exchange whose
	// payload is missing expected structure. It is never retried.
	ErrMalformedResponse = errors.New("skraafoto: malformed response")
)

// Client provides access to the catalog's search and collection endpoints.
type Client struct {
	baseURL string
	session *Session
	retry   fetch.Policy
	logger  *slog.Logger
}

// NewClient creates a Client with sensible defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		session: NewSession(),
		retry:   fetch.DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = NewSession()
	}
	return c
}

// QueryByPoint finds items whose footprint contains the coordinate and whose
// view direction matches. The returned collection may legitimately be empty;
// that is a "no coverage here" outcome, not an error.
func (c *Client) QueryByPoint(ctx context.Context, coord model.WorldCoordinate, direction model.Direction, collection string, limit int) (*model.FeatureCollection, error) {
	if limit == 0 {
		limit = 1
	}
	query := search.PointQuery{
		Coordinate: coord,
		Direction:  direction,
		Collection: collection,
		Limit:      limit,
	}
	return c.Search(ctx, query)
}

// Search issues a point query against the catalog search endpoint.
func (c *Client) Search(ctx context.Context, query search.PointQuery) (*model.FeatureCollection, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	values, err := query.Encode()
	if err != nil {
		return nil, err
	}
	endpoint, err := c.endpoint("search")
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = values.Encode()
	return c.fetchPage(ctx, endpoint.String())
}

// Collections fetches the catalog's dataset list, sorted lexicographically
// by id. Collections whose id contains "test" (case-insensitive) are hidden;
// those are non-production datasets not meant for end users.
func (c *Client) Collections(ctx context.Context) ([]model.Collection, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	endpoint, err := c.endpoint("collections")
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("skraafoto: fetch collections: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Collections []model.Collection `json:"collections"`
	}
	if err := fetch.DecodeJSON(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	collections := make([]model.Collection, 0, len(payload.Collections))
	for _, coll := range payload.Collections {
		if strings.Contains(strings.ToLower(coll.ID), "test") {
			continue
		}
		collections = append(collections, coll)
	}
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].ID < collections[j].ID
	})
	return collections, nil
}

// Sweep traverses every item intersecting the bounding box, following the
// catalog's cursor links page by page. The iterator is lazy and single-use.
func (c *Client) Sweep(bbox model.BoundingBox) *SweepIterator {
	return &SweepIterator{client: c, bbox: bbox}
}

// fetchPage GETs a search URL and decodes the feature collection it returns.
func (c *Client) fetchPage(ctx context.Context, rawURL string) (*model.FeatureCollection, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("skraafoto: search request: %w", err)
	}
	defer resp.Body.Close()

	var page model.FeatureCollection
	if err := fetch.DecodeJSON(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := c.session.authenticate(req); err != nil {
		return nil, err
	}
	return fetch.DoRequest(ctx, c.session.client, req, c.retry, c.logger)
}

func (c *Client) endpoint(elem string) (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("skraafoto: invalid base URL: %w", err)
	}
	u.Path = joinURLPath(u.Path, elem)
	return u, nil
}

func joinURLPath(basePath string, elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	trimmedBase := strings.Trim(basePath, "/")
	if trimmedBase != "" {
		parts = append(parts, trimmedBase)
	}
	for _, elem := range elems {
		trimmed := strings.Trim(elem, "/")
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return "/" + path.Join(parts...)
}
