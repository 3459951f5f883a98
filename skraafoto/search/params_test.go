package search

import (
	"encoding/json"
	"testing"

	"github.com/example/go-skraafoto/skraafoto/model"
)

func decodeFilter(t *testing.T, raw string) map[string][]map[string][]any {
	t.Helper()
	var filter map[string][]map[string][]any
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}
	return filter
}

func TestPointQueryEncodeEchoesCoordinate(t *testing.T) {
	query := PointQuery{
		Coordinate: model.WorldCoordinate{X: 728368.05, Y: 6174304.56},
		Direction:  model.DirectionNorth,
		Limit:      1,
	}
	values, err := query.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if got := values.Get("limit"); got != "1" {
		t.Fatalf("unexpected limit %q", got)
	}
	if got := values.Get("filter-lang"); got != "cql-json" {
		t.Fatalf("unexpected filter-lang %q", got)
	}
	if got := values.Get("filter-crs"); got != CRS25832 {
		t.Fatalf("unexpected filter-crs %q", got)
	}
	if got := values.Get("crs"); got != CRS25832 {
		t.Fatalf("unexpected crs %q", got)
	}

	filter := decodeFilter(t, values.Get("filter"))
	terms := filter["and"]
	if len(terms) != 2 {
		t.Fatalf("expected 2 filter terms without a collection, got %d", len(terms))
	}

	contains := terms[0]["contains"]
	point, ok := contains[1].(map[string]any)
	if !ok {
		t.Fatalf("unexpected contains operand %T", contains[1])
	}
	coords, ok := point["coordinates"].([]any)
	if !ok || len(coords) != 2 {
		t.Fatalf("unexpected coordinates %v", point["coordinates"])
	}
	if coords[0].(float64) != 728368.05 || coords[1].(float64) != 6174304.56 {
		t.Fatalf("filter coordinates do not echo the input: %v", coords)
	}

	eq := terms[1]["eq"]
	if eq[1].(string) != "north" {
		t.Fatalf("direction term does not match the request: %v", eq[1])
	}
}

func TestPointQueryEncodeIncludesCollection(t *testing.T) {
	query := PointQuery{
		Coordinate: model.WorldCoordinate{X: 1, Y: 2},
		Direction:  model.DirectionNadir,
		Collection: "skraafotos2023",
		Limit:      5,
	}
	values, err := query.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	filter := decodeFilter(t, values.Get("filter"))
	terms := filter["and"]
	if len(terms) != 3 {
		t.Fatalf("expected 3 filter terms with a collection, got %d", len(terms))
	}
	eq := terms[2]["eq"]
	if eq[1].(string) != "skraafotos2023" {
		t.Fatalf("collection term does not match the request: %v", eq[1])
	}
}

func TestPointQueryEncodeValidation(t *testing.T) {
	cases := []struct {
		name  string
		query PointQuery
	}{
		{"zero limit", PointQuery{Coordinate: model.WorldCoordinate{X: 1, Y: 2}, Direction: model.DirectionEast}},
		{"negative limit", PointQuery{Coordinate: model.WorldCoordinate{X: 1, Y: 2}, Direction: model.DirectionEast, Limit: -1}},
		{"invalid direction", PointQuery{Coordinate: model.WorldCoordinate{X: 1, Y: 2}, Direction: "up", Limit: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.query.Encode(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestBBoxQueryEncode(t *testing.T) {
	values, err := BBoxQuery{Box: model.BoundingBox{720000, 6170000, 730000, 6180000}}.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if got := values.Get("bbox"); got != "720000,6170000,730000,6180000" {
		t.Fatalf("unexpected bbox %q", got)
	}

	if _, err := (BBoxQuery{Box: model.BoundingBox{2, 2, 1, 1}}).Encode(); err == nil {
		t.Fatal("expected an inverted bbox to be rejected")
	}
}

func TestBuilder(t *testing.T) {
	query := QueryBuilder().
		At(model.WorldCoordinate{X: 10, Y: 20}).
		Direction(model.DirectionWest).
		Collection("skraafotos2021").
		Limit(3).
		Build()

	if query.Coordinate.X != 10 || query.Coordinate.Y != 20 {
		t.Fatalf("unexpected coordinate %+v", query.Coordinate)
	}
	if query.Direction != model.DirectionWest {
		t.Fatalf("unexpected direction %q", query.Direction)
	}
	if query.Collection != "skraafotos2021" {
		t.Fatalf("unexpected collection %q", query.Collection)
	}
	if query.Limit != 3 {
		t.Fatalf("unexpected limit %d", query.Limit)
	}
}
