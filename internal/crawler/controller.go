package crawler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/product"
)

// SKUExtractor produces one product per SKU. Failures are carried in the
// product's OK flag.
type SKUExtractor interface {
	Extract(ctx context.Context, sku int64, userSettings, catalogName, dateParse string) *product.Product
}

// Controller runs product extraction with a bounded fan-out. The limit holds
// across all five stages of every in-flight SKU.
type Controller struct {
	extractor   SKUExtractor
	concurrency int
	metrics     *monitoring.Metrics
}

// NewController creates a Controller with the given fan-out bound.
func NewController(extractor SKUExtractor, concurrency int, metrics *monitoring.Metrics) *Controller {
	if concurrency <= 0 {
		concurrency = 45
	}
	return &Controller{
		extractor:   extractor,
		concurrency: concurrency,
		metrics:     metrics,
	}
}

// ExtractBatch extracts every SKU concurrently and returns the products in
// input order, failed ones included. The only error is context
// cancellation.
func (c *Controller) ExtractBatch(ctx context.Context, skus []int64, userSettings, catalogName, dateParse string) ([]*product.Product, error) {
	products := make([]*product.Product, len(skus))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, sku := range skus {
		i, sku := i, sku
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := c.extractor.Extract(gctx, sku, userSettings, catalogName, dateParse)
			c.metrics.ObserveProduct(p.OK)
			products[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return products, err
	}
	return products, nil
}
