package search

import "github.com/example/go-skraafoto/skraafoto/model"

// Builder provides a fluent way to construct a PointQuery.
type Builder struct {
	query PointQuery
}

// QueryBuilder creates a new Builder with default parameters.
func QueryBuilder() Builder {
	return Builder{query: New()}
}

// At sets the world coordinate the item footprint must contain.
func (b Builder) At(coord model.WorldCoordinate) Builder {
	b.query.Coordinate = coord
	return b
}

// Direction filters by viewing direction.
func (b Builder) Direction(d model.Direction) Builder {
	b.query.Direction = d
	return b
}

// Collection restricts results to a single collection.
func (b Builder) Collection(id string) Builder {
	b.query.Collection = id
	return b
}

// Limit sets the maximum number of results to return.
func (b Builder) Limit(n int) Builder {
	b.query.Limit = n
	return b
}

// Build returns the composed PointQuery.
func (b Builder) Build() PointQuery {
	return b.query
}
