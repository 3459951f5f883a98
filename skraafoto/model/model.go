package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// WorldCoordinate is an easting/northing pair in EPSG:25832 (UTM zone 32N).
type WorldCoordinate struct {
	X float64
	Y float64
}

// WKT renders the coordinate as a well-known-text point.
func (c WorldCoordinate) WKT() string {
	return "POINT(" + strconv.FormatFloat(c.X, 'f', -1, 64) + " " + strconv.FormatFloat(c.Y, 'f', -1, 64) + ")"
}

// IsFinite reports whether both components are finite numbers.
func (c WorldCoordinate) IsFinite() bool {
	return !math.IsNaN(c.X) && !math.IsInf(c.X, 0) && !math.IsNaN(c.Y) && !math.IsInf(c.Y, 0)
}

// Direction is one of the five fixed viewing angles an oblique photo is
// captured from.
type Direction string

const (
	DirectionNorth Direction = "north"
	DirectionSouth Direction = "south"
	DirectionEast  Direction = "east"
	DirectionWest  Direction = "west"
	DirectionNadir Direction = "nadir"
)

// Directions lists every valid direction in a stable order.
func Directions() []Direction {
	return []Direction{DirectionNorth, DirectionSouth, DirectionEast, DirectionWest, DirectionNadir}
}

// Valid reports whether d is one of the five supported directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionNorth, DirectionSouth, DirectionEast, DirectionWest, DirectionNadir:
		return true
	}
	return false
}

// String returns the underlying string value.
func (d Direction) String() string {
	return string(d)
}

// ParseDirection converts a raw string into a Direction.
func ParseDirection(value string) (Direction, error) {
	d := Direction(value)
	if !d.Valid() {
		return "", fmt.Errorf("model: unknown direction %q", value)
	}
	return d, nil
}

// BoundingBox is a min-x, min-y, max-x, max-y rectangle in EPSG:25832.
type BoundingBox [4]float64

// ImagePixelCoordinate addresses a pixel inside a photo. The origin is the
// bottom-left corner of the image, column increasing rightward and row
// increasing upward. Renderers using a top-left origin must flip the row.
type ImagePixelCoordinate struct {
	Column int
	Row    int
}

// FeatureCollection is one page of catalog search results.
type FeatureCollection struct {
	Type     string `json:"type"`
	Features []Item `json:"features"`
	Links    []Link `json:"links"`
}

// First returns the catalog's best match, or nil when the page is empty. The
// catalog's own relevance ordering is trusted; results are never re-sorted.
func (fc *FeatureCollection) First() *Item {
	if fc == nil || len(fc.Features) == 0 {
		return nil
	}
	return &fc.Features[0]
}

// Item is one photograph record from the catalog.
type Item struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties ItemProperties  `json:"properties"`
	Assets     Assets          `json:"assets"`
	Links      []Link          `json:"links"`
}

// ItemProperties carries the subset of catalog properties the viewer needs,
// most importantly the interior/exterior camera orientation of the pers
// extension.
type ItemProperties struct {
	Datetime            string              `json:"datetime"`
	Direction           Direction           `json:"direction"`
	GSD                 float64             `json:"gsd"`
	InteriorOrientation InteriorOrientation `json:"pers:interior_orientation"`
	PerspectiveCenter   []float64           `json:"pers:perspective_center"`
	Omega               *float64            `json:"pers:omega"`
	Phi                 *float64            `json:"pers:phi"`
	Kappa               *float64            `json:"pers:kappa"`
}

// InteriorOrientation holds the camera-intrinsic calibration parameters.
type InteriorOrientation struct {
	FocalLength           *float64  `json:"focal_length"`
	PixelSpacing          []float64 `json:"pixel_spacing"`
	PrincipalPointOffset  []float64 `json:"principal_point_offset"`
	SensorArrayDimensions []int     `json:"sensor_array_dimensions"`
}

// Assets references the downloadable representations of an item.
type Assets struct {
	Data      Asset `json:"data"`
	Thumbnail Asset `json:"thumbnail"`
}

// Asset is a single downloadable file reference.
type Asset struct {
	Href  string `json:"href"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Link is a hypermedia link on a collection page or item.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type"`
}

// Collection describes one dataset exposed by the catalog.
type Collection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CameraOrientation is the validated central-perspective camera model of one
// item: interior orientation plus the exterior pose in world space. Angles
// are in degrees.
type CameraOrientation struct {
	PrincipalPointOffsetX float64
	PrincipalPointOffsetY float64
	FocalLength           float64
	PixelSpacing          float64
	SensorColumns         int
	SensorRows            int
	PerspectiveCenter     [3]float64
	Omega                 float64
	Phi                   float64
	Kappa                 float64
}

// CameraOrientation extracts and validates the pers orientation parameters.
// Every field is required; missing or non-finite values are an error because
// the projection is meaningless without them.
func (it *Item) CameraOrientation() (CameraOrientation, error) {
	if it == nil {
		return CameraOrientation{}, fmt.Errorf("model: nil item")
	}
	p := it.Properties
	io := p.InteriorOrientation

	if io.FocalLength == nil {
		return CameraOrientation{}, missingField(it.ID, "pers:interior_orientation.focal_length")
	}
	if len(io.PixelSpacing) < 1 {
		return CameraOrientation{}, missingField(it.ID, "pers:interior_orientation.pixel_spacing")
	}
	if len(io.PrincipalPointOffset) < 2 {
		return CameraOrientation{}, missingField(it.ID, "pers:interior_orientation.principal_point_offset")
	}
	if len(io.SensorArrayDimensions) < 2 {
		return CameraOrientation{}, missingField(it.ID, "pers:interior_orientation.sensor_array_dimensions")
	}
	if len(p.PerspectiveCenter) < 3 {
		return CameraOrientation{}, missingField(it.ID, "pers:perspective_center")
	}
	if p.Omega == nil {
		return CameraOrientation{}, missingField(it.ID, "pers:omega")
	}
	if p.Phi == nil {
		return CameraOrientation{}, missingField(it.ID, "pers:phi")
	}
	if p.Kappa == nil {
		return CameraOrientation{}, missingField(it.ID, "pers:kappa")
	}

	cam := CameraOrientation{
		PrincipalPointOffsetX: io.PrincipalPointOffset[0],
		PrincipalPointOffsetY: io.PrincipalPointOffset[1],
		FocalLength:           *io.FocalLength,
		PixelSpacing:          io.PixelSpacing[0],
		SensorColumns:         io.SensorArrayDimensions[0],
		SensorRows:            io.SensorArrayDimensions[1],
		PerspectiveCenter:     [3]float64{p.PerspectiveCenter[0], p.PerspectiveCenter[1], p.PerspectiveCenter[2]},
		Omega:                 *p.Omega,
		Phi:                   *p.Phi,
		Kappa:                 *p.Kappa,
	}
	if err := cam.Validate(); err != nil {
		return CameraOrientation{}, fmt.Errorf("model: item %s: %w", it.ID, err)
	}
	return cam, nil
}

// Validate checks that every numeric parameter is finite and the pixel
// spacing and sensor dimensions are usable.
func (c CameraOrientation) Validate() error {
	values := []float64{
		c.PrincipalPointOffsetX, c.PrincipalPointOffsetY,
		c.FocalLength, c.PixelSpacing,
		c.PerspectiveCenter[0], c.PerspectiveCenter[1], c.PerspectiveCenter[2],
		c.Omega, c.Phi, c.Kappa,
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("camera orientation contains a non-finite value")
		}
	}
	if c.PixelSpacing <= 0 {
		return fmt.Errorf("camera orientation pixel spacing must be positive, got %v", c.PixelSpacing)
	}
	if c.SensorColumns <= 0 || c.SensorRows <= 0 {
		return fmt.Errorf("camera orientation sensor dimensions must be positive, got %dx%d", c.SensorColumns, c.SensorRows)
	}
	return nil
}

func missingField(id, field string) error {
	return fmt.Errorf("model: item %s: missing required camera field %s", id, field)
}
