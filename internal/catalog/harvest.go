package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// PageFetcher returns the SKUs listed on one page of a filtered catalog.
type PageFetcher interface {
	FetchPage(ctx context.Context, src wbapi.Source, minPrice, maxPrice, page int) ([]int64, error)
}

// HarvesterOptions bounds the page walk.
type HarvesterOptions struct {
	// MaxPages caps how deep any single filter is paged. The listing API
	// stops serving results past this depth, which is exactly why filters
	// are bisected down to ~10 pages in the first place.
	MaxPages int
}

func (o HarvesterOptions) withDefaults() HarvesterOptions {
	if o.MaxPages <= 0 {
		o.MaxPages = 100
	}
	return o
}

// Harvester walks every filter of a catalog page by page and accumulates
// the SKUs into the catalog's pool.
type Harvester struct {
	fetcher PageFetcher
	opts    HarvesterOptions
}

// NewHarvester creates a Harvester over the given page fetcher.
func NewHarvester(fetcher PageFetcher, opts HarvesterOptions) *Harvester {
	return &Harvester{fetcher: fetcher, opts: opts.withDefaults()}
}

// Harvest collects SKUs for all filters of the catalog. A failed page
// fetch costs that page's SKUs and nothing more; the loss surfaces through
// HarvestedPct and the parse-stage threshold decides whether the catalog
// is still acceptable.
func (h *Harvester) Harvest(ctx context.Context, cat *Catalog) error {
	for _, f := range cat.Filters {
		if err := h.harvestFilter(ctx, cat, f); err != nil {
			return err
		}
	}

	if cat.TotalItems > 0 {
		cat.HarvestedPct = float64(len(cat.SKUs)) / float64(cat.TotalItems) * 100
	}
	log := zap.L().Info
	if cat.HarvestedPct < 90 {
		log = zap.L().Warn
	}
	log("harvest: catalog collected",
		zap.String("catalog", cat.Name),
		zap.Int("skus", len(cat.SKUs)),
		zap.Int("total_items", cat.TotalItems),
		zap.Float64("harvested_pct", cat.HarvestedPct),
	)
	return nil
}

func (h *Harvester) harvestFilter(ctx context.Context, cat *Catalog, f Filter) error {
	pages := f.TotalPages
	if pages > h.opts.MaxPages {
		zap.L().Warn("harvest: filter deeper than page cap, tail pages unreachable",
			zap.Stringer("filter", f),
			zap.Int("max_pages", h.opts.MaxPages),
		)
		pages = h.opts.MaxPages
	}

	for page := 1; page <= pages; page++ {
		skus, err := h.fetcher.FetchPage(ctx, cat.Source, f.MinPrice, f.MaxPrice, page)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrapf(err, "harvest: %s page %d", f.String(), page)
			}
			zap.L().Warn("harvest: page fetch failed, skipping page",
				zap.Stringer("filter", f),
				zap.Int("page", page),
				zap.Error(err),
			)
			continue
		}
		cat.SKUs = append(cat.SKUs, skus...)
	}
	return nil
}
