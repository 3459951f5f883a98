// Package viewer coordinates catalog lookups, elevation resolution and
// projection into one "locate and project" operation per selected world
// coordinate.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-skraafoto/skraafoto/model"
	"github.com/example/go-skraafoto/skraafoto/projection"
)

// ErrStale reports that a selection was superseded by a newer one before its
// results could be published. The stale results are discarded.
var ErrStale = errors.New("viewer: selection superseded")

// Catalog is the subset of the catalog client the orchestrator needs.
type Catalog interface {
	QueryByPoint(ctx context.Context, coord model.WorldCoordinate, direction model.Direction, collection string, limit int) (*model.FeatureCollection, error)
}

// ElevationResolver resolves ground elevation for a coordinate.
type ElevationResolver interface {
	Resolve(ctx context.Context, coord model.WorldCoordinate) (float64, error)
}

// Failure is a terminal, user-facing failure for the current selection. The
// code carries HTTP-like semantics: 401 for "no coverage / unauthorized",
// 503 for "service unavailable". The two must be rendered differently.
type Failure struct {
	Code    int
	Message string
}

func noCoverageFailure() *Failure {
	return &Failure{Code: 401, Message: "invalid authorization credentials or no coverage at this location"}
}

func unavailableFailure() *Failure {
	return &Failure{Code: 503, Message: "the catalog service seems to be down for the moment"}
}

// DirectionResult is the settled outcome of one direction query. Exactly one
// of Item or Err is meaningful; both nil means the catalog had no coverage
// for that direction.
type DirectionResult struct {
	Item         *model.Item
	ImageURL     string
	ThumbnailURL string
	Err          error
}

// Snapshot is the published state for one coordinate selection.
type Snapshot struct {
	Coordinate model.WorldCoordinate
	Direction  model.Direction
	Results    map[model.Direction]DirectionResult
	Elevation  *float64
	Pixel      *model.ImagePixelCoordinate
	Failure    *Failure
}

// Orchestrator runs the per-selection pipeline: a five-way direction
// fan-out, then elevation and projection for the selected direction. Results
// belonging to a superseded selection are discarded, never published.
type Orchestrator struct {
	catalog    Catalog
	elevation  ElevationResolver
	collection string
	limit      int
	logger     *slog.Logger

	mu      sync.Mutex
	token   uint64
	current *Snapshot
}

// Option mutates the orchestrator when constructing it.
type Option func(*Orchestrator)

// WithCollection restricts every direction query to one collection.
func WithCollection(id string) Option {
	return func(o *Orchestrator) {
		o.collection = id
	}
}

// WithLimit sets the per-direction result limit.
func WithLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithLogger sets the logger used for per-direction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator on top of a catalog and an elevation service.
func New(catalog Catalog, elevation ElevationResolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:   catalog,
		elevation: elevation,
		limit:     1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the most recently published state, or nil while idle.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Select runs the full pipeline for a coordinate and direction choice. Every
// direction query runs concurrently and settles independently; one failed
// direction never cancels the others. The snapshot is published only if no
// newer selection has been made in the meantime, otherwise ErrStale is
// returned and the published state is left untouched.
func (o *Orchestrator) Select(ctx context.Context, coord model.WorldCoordinate, direction model.Direction) (*Snapshot, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("viewer: invalid direction %q", direction)
	}

	o.mu.Lock()
	o.token++
	token := o.token
	o.current = nil
	o.mu.Unlock()

	directions := model.Directions()
	settled := make([]DirectionResult, len(directions))

	var g errgroup.Group
	for i, dir := range directions {
		g.Go(func() error {
			page, err := o.catalog.QueryByPoint(ctx, coord, dir, o.collection, o.limit)
			if err != nil {
				o.logger.Warn("direction query failed",
					slog.String("direction", dir.String()),
					slog.String("error", err.Error()))
				settled[i] = DirectionResult{Err: err}
				return nil
			}
			item := page.First()
			if item == nil {
				settled[i] = DirectionResult{}
				return nil
			}
			settled[i] = DirectionResult{
				Item:         item,
				ImageURL:     item.Assets.Data.Href,
				ThumbnailURL: item.Assets.Thumbnail.Href,
			}
			return nil
		})
	}
	g.Wait()

	snap := &Snapshot{
		Coordinate: coord,
		Direction:  direction,
		Results:    make(map[model.Direction]DirectionResult, len(directions)),
	}
	for i, dir := range directions {
		snap.Results[dir] = settled[i]
	}

	selected := snap.Results[direction]
	switch {
	case selected.Err != nil:
		snap.Failure = unavailableFailure()
	case selected.Item == nil:
		snap.Failure = noCoverageFailure()
	default:
		o.resolveAndProject(ctx, snap, selected.Item)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		return nil, ErrStale
	}
	o.current = snap
	return snap, nil
}

// resolveAndProject runs the sequential tail of the pipeline: elevation
// lookup, then the collinearity projection onto the selected item.
func (o *Orchestrator) resolveAndProject(ctx context.Context, snap *Snapshot, item *model.Item) {
	kote, err := o.elevation.Resolve(ctx, snap.Coordinate)
	if err != nil {
		o.logger.Warn("elevation lookup failed", slog.String("error", err.Error()))
		snap.Failure = unavailableFailure()
		return
	}
	snap.Elevation = &kote

	cam, err := item.CameraOrientation()
	if err != nil {
		o.logger.Warn("unusable camera orientation",
			slog.String("item", item.ID),
			slog.String("error", err.Error()))
		return
	}
	pixel, err := projection.Project(cam, snap.Coordinate.X, snap.Coordinate.Y, kote)
	if err != nil {
		// The viewer degrades gracefully: the images are still usable even
		// when no pixel marker can be placed.
		o.logger.Warn("projection failed",
			slog.String("item", item.ID),
			slog.String("error", err.Error()))
		return
	}
	snap.Pixel = &pixel
}
