package skraafoto

import (
	"context"
	"log/slog"

	"github.com/example/go-skraafoto/skraafoto/model"
	"github.com/example/go-skraafoto/skraafoto/search"
)

// SweepIterator provides streaming access to a bounding-box sweep. Pages are
// fetched on demand by following the catalog's "next" cursor link; traversal
// state lives only inside the iterator and is discarded when it is done.
// The iterator is not restartable.
type SweepIterator struct {
	client  *Client
	bbox    model.BoundingBox
	started bool

	// pageURL is the URL the current batch was fetched from, nextURL the
	// cursor to follow. An empty nextURL after start means exhaustion.
	pageURL string
	nextURL string

	batch     []model.Item
	index     int
	lastErr   error
	exhausted bool
}

// Next advances to the next item. It returns false when the sweep is
// complete or an error occurred; check Err afterwards.
func (it *SweepIterator) Next(ctx context.Context) bool {
	if it.exhausted || it.lastErr != nil {
		return false
	}

	for {
		if it.index < len(it.batch) {
			it.index++
			return true
		}
		if err := it.loadNext(ctx); err != nil {
			it.lastErr = err
			return false
		}
		if it.exhausted {
			return false
		}
		// The batch may be empty after sentinel filtering; keep following
		// the cursor until an item or the end of the chain appears.
	}
}

// Item returns the current item. Call after Next returns true.
func (it *SweepIterator) Item() model.Item {
	if it.index == 0 || it.index > len(it.batch) {
		return model.Item{}
	}
	return it.batch[it.index-1]
}

// Err reports any error encountered during the sweep.
func (it *SweepIterator) Err() error {
	return it.lastErr
}

func (it *SweepIterator) loadNext(ctx context.Context) error {
	var target string
	if !it.started {
		values, err := search.BBoxQuery{Box: it.bbox}.Encode()
		if err != nil {
			return err
		}
		endpoint, err := it.client.endpoint("search")
		if err != nil {
			return err
		}
		endpoint.RawQuery = values.Encode()
		target = endpoint.String()
		it.started = true
	} else {
		if it.nextURL == "" {
			it.exhausted = true
			return nil
		}
		target = it.nextURL
	}

	page, err := it.client.fetchPage(ctx, target)
	if err != nil {
		return err
	}

	it.batch = excludeSentinel(page.Features, it.client.logger)
	it.index = 0
	it.pageURL = target
	it.nextURL = nextLink(page.Links, target)
	if len(it.batch) == 0 && it.nextURL == "" {
		it.exhausted = true
	}
	return nil
}

// nextLink extracts a usable "next" cursor from a page's link set. The
// second link slot carries the next/previous pair; anything else ends the
// traversal. A link echoing the page it came from would loop forever, so it
// ends the traversal too.
func nextLink(links []model.Link, currentURL string) string {
	if len(links) < 2 {
		return ""
	}
	link := links[1]
	if link.Rel != "next" || link.Href == "" || link.Href == currentURL {
		return ""
	}
	return link.Href
}

func excludeSentinel(items []model.Item, logger *slog.Logger) []model.Item {
	kept := make([]model.Item, 0, len(items))
	for _, item := range items {
		if item.ID == sentinelItemID {
			logger.Debug("excluding sentinel catalog entry", slog.String("id", item.ID))
			continue
		}
		kept = append(kept, item)
	}
	return kept
}
