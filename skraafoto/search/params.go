// Package search builds spatial and attribute filter queries for the
// oblique photo catalog.
package search

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/example/go-skraafoto/skraafoto/model"
)

// CRS25832 identifies the projected reference system every query and
// response geometry is expressed in.
const CRS25832 = "http://www.opengis.net/def/crs/EPSG/0/25832"

// FilterLang is the filter encoding accepted by the catalog search endpoint.
const FilterLang = "cql-json"

// PointQuery asks the catalog for items whose footprint contains a point,
// captured looking in a given direction.
type PointQuery struct {
	Coordinate model.WorldCoordinate
	Direction  model.Direction
	Collection string
	Limit      int
}

// New returns a PointQuery with the default result limit of one, matching
// the "first feature is best" convention.
func New() PointQuery {
	return PointQuery{Limit: 1}
}

type property struct {
	Property string `json:"property"`
}

type pointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Encode serialises the query into the catalog's search parameters. The
// filter is an AND of point-in-geometry and direction equality, plus
// collection equality when a collection is set.
func (q PointQuery) Encode() (url.Values, error) {
	if !q.Coordinate.IsFinite() {
		return nil, fmt.Errorf("search: coordinate must be finite, got %+v", q.Coordinate)
	}
	if !q.Direction.Valid() {
		return nil, fmt.Errorf("search: invalid direction %q", q.Direction)
	}
	if q.Limit < 1 {
		return nil, fmt.Errorf("search: limit must be at least 1, got %d", q.Limit)
	}

	terms := []any{
		map[string]any{"contains": []any{
			property{Property: "geometry"},
			pointGeometry{Type: "Point", Coordinates: [2]float64{q.Coordinate.X, q.Coordinate.Y}},
		}},
		map[string]any{"eq": []any{
			property{Property: "direction"},
			q.Direction.String(),
		}},
	}
	if q.Collection != "" {
		terms = append(terms, map[string]any{"eq": []any{
			property{Property: "collection"},
			q.Collection,
		}})
	}

	filter, err := json.Marshal(map[string]any{"and": terms})
	if err != nil {
		return nil, fmt.Errorf("search: marshal filter: %w", err)
	}

	values := make(url.Values)
	values.Set("limit", strconv.Itoa(q.Limit))
	values.Set("filter", string(filter))
	values.Set("filter-lang", FilterLang)
	values.Set("filter-crs", CRS25832)
	values.Set("crs", CRS25832)
	return values, nil
}

// BBoxQuery asks the catalog for every item intersecting a bounding box.
// Results arrive paginated; see the client's sweep iterator.
type BBoxQuery struct {
	Box model.BoundingBox
}

// Encode serialises the bounding box query parameters.
func (q BBoxQuery) Encode() (url.Values, error) {
	if q.Box[0] >= q.Box[2] || q.Box[1] >= q.Box[3] {
		return nil, fmt.Errorf("search: bounding box min must be below max, got %v", q.Box)
	}
	values := make(url.Values)
	values.Set("bbox", fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(q.Box[0]), formatCoord(q.Box[1]), formatCoord(q.Box[2]), formatCoord(q.Box[3])))
	return values, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
