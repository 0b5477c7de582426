package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// TotalCounter reports the server-side item count for a source within a
// price window.
type TotalCounter interface {
	CountItems(ctx context.Context, src wbapi.Source, minPrice, maxPrice int) (int, error)
}

// DiscovererOptions tunes the bisection bounds.
type DiscovererOptions struct {
	// MaxItemsPerFilter is the count above which a window is split further.
	MaxItemsPerFilter int

	// MinWindow stops bisection once max-min is at or below it, regardless
	// of count. Termination is by construction: the window strictly narrows
	// on every split.
	MinWindow int

	// MaxPrice is the upper bound of the root window, in minor price units.
	MaxPrice int
}

func (o DiscovererOptions) withDefaults() DiscovererOptions {
	if o.MaxItemsPerFilter <= 0 {
		o.MaxItemsPerFilter = 1000
	}
	if o.MinWindow <= 0 {
		o.MinWindow = 2
	}
	if o.MaxPrice <= 0 {
		o.MaxPrice = 100_000_000
	}
	return o
}

// Discoverer bisects a catalog's price range into page-bounded filters.
type Discoverer struct {
	counter TotalCounter
	opts    DiscovererOptions
}

// NewDiscoverer creates a Discoverer using the given item counter.
func NewDiscoverer(counter TotalCounter, opts DiscovererOptions) *Discoverer {
	return &Discoverer{counter: counter, opts: opts.withDefaults()}
}

type priceWindow struct {
	min, max int
}

// Discover populates the catalog's filter pool by walking an explicit
// worklist of price windows. Windows are processed strictly sequentially,
// left half before right half, because each split depends on the count
// returned for its parent. A window counting zero marks the catalog Failure
// but keeps its zero filter in the pool for diagnostics.
func (d *Discoverer) Discover(ctx context.Context, cat *Catalog) error {
	// LIFO worklist; pushing the right half first keeps left-before-right
	// order without call-stack recursion.
	stack := []priceWindow{{0, d.opts.MaxPrice}}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		total, err := d.counter.CountItems(ctx, cat.Source, w.min, w.max)
		if err != nil {
			cat.Status = StatusFailure
			return eris.Wrapf(err, "discovery: count %s [%d..%d]", cat.Name, w.min, w.max)
		}

		switch {
		case total > d.opts.MaxItemsPerFilter && w.max-w.min > d.opts.MinWindow:
			mid := (w.min + w.max) / 2
			stack = append(stack,
				priceWindow{mid + 1, w.max},
				priceWindow{w.min, mid},
			)

		case total == 0:
			cat.AddFilter(Filter{
				Name:     cat.Name,
				MinPrice: w.min,
				MaxPrice: w.max,
			})
			cat.Status = StatusFailure
			zap.L().Warn("discovery: empty price window",
				zap.String("catalog", cat.Name),
				zap.Int("min_price", w.min),
				zap.Int("max_price", w.max),
			)

		default:
			f := Filter{
				Name:       cat.Name,
				MinPrice:   w.min,
				MaxPrice:   w.max,
				TotalItems: total,
				TotalPages: total/100 + 1,
			}
			cat.AddFilter(f)
			zap.L().Debug("discovery: accepted filter", zap.Stringer("filter", f))
		}
	}

	zap.L().Info("discovery: filter pool ready",
		zap.String("catalog", cat.Name),
		zap.Int("filters", len(cat.Filters)),
		zap.Int("total_items", cat.TotalItems),
		zap.Int("total_pages", cat.TotalPages),
	)
	return nil
}
