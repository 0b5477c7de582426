package monitoring

import (
	"context"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/catalog"
	"github.com/retail-lens/wb-crawler/internal/product"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// SmokeLister is the listing slice the checker needs.
type SmokeLister interface {
	CountItems(ctx context.Context, src wbapi.Source, minPrice, maxPrice int) (int, error)
	FetchPage(ctx context.Context, src wbapi.Source, minPrice, maxPrice, page int) ([]int64, error)
}

// SmokeExtractor extracts a single product.
type SmokeExtractor interface {
	Extract(ctx context.Context, sku int64, userSettings, catalogName, dateParse string) *product.Product
}

// CheckerOptions bounds the smoke run.
type CheckerOptions struct {
	// Catalogs is how many catalogs are sampled. Default: 5.
	Catalogs int

	// Products caps extractions per sampled catalog. Default: 50.
	Products int

	// MaxPrice is the root price window for the item count. Default
	// matches the crawl.
	MaxPrice int
}

func (o CheckerOptions) withDefaults() CheckerOptions {
	if o.Catalogs <= 0 {
		o.Catalogs = 5
	}
	if o.Products <= 0 {
		o.Products = 50
	}
	if o.MaxPrice <= 0 {
		o.MaxPrice = 100_000_000
	}
	return o
}

// Checker probes a sample of catalogs end to end: item count, one listing
// page and a bounded number of product extractions. It answers the question
// "would a full crawl work right now" in minutes instead of hours.
type Checker struct {
	lister    SmokeLister
	extractor SmokeExtractor
	opts      CheckerOptions
}

// NewChecker creates a smoke Checker.
func NewChecker(lister SmokeLister, extractor SmokeExtractor, opts CheckerOptions) *Checker {
	return &Checker{lister: lister, extractor: extractor, opts: opts.withDefaults()}
}

// CatalogCheck is the outcome for one sampled catalog.
type CatalogCheck struct {
	Name    string        `json:"name"`
	Total   int           `json:"total"`
	Sampled int           `json:"sampled"`
	Parsed  int           `json:"parsed"`
	Elapsed time.Duration `json:"elapsed"`
}

// CheckResult is the smoke verdict.
type CheckResult struct {
	OK       bool           `json:"ok"`
	Catalogs []CatalogCheck `json:"catalogs"`
	Reason   string         `json:"reason,omitempty"`
}

// Run samples the catalogs and probes each one. The first catalog whose
// probe errors aborts the whole check: a broken batch means the site or the
// proxy pool is unusable, not one unlucky category.
func (c *Checker) Run(ctx context.Context, catalogs []*catalog.Catalog, settings string) (*CheckResult, error) {
	zap.L().Info("smoke: check started")
	result := &CheckResult{OK: true}

	dateParse := time.Now().Format(product.TimeFormat)
	for _, cat := range sampleCatalogs(catalogs, c.opts.Catalogs) {
		check, err := c.checkCatalog(ctx, cat, settings, dateParse)
		if err != nil {
			result.OK = false
			result.Reason = err.Error()
			zap.L().Error("smoke: check FAIL", zap.String("catalog", cat.Name), zap.Error(err))
			return result, nil
		}
		result.Catalogs = append(result.Catalogs, *check)
		zap.L().Info("smoke: catalog probed",
			zap.String("catalog", check.Name),
			zap.Int("total", check.Total),
			zap.Int("sampled", check.Sampled),
			zap.Int("parsed", check.Parsed),
			zap.Duration("elapsed", check.Elapsed))
	}

	zap.L().Info("smoke: check OK")
	return result, nil
}

func (c *Checker) checkCatalog(ctx context.Context, cat *catalog.Catalog, settings, dateParse string) (*CatalogCheck, error) {
	start := time.Now()
	check := &CatalogCheck{Name: cat.Name}

	total, err := c.lister.CountItems(ctx, cat.Source, 0, c.opts.MaxPrice)
	if err != nil {
		return nil, eris.Wrapf(err, "smoke: count %s", cat.Name)
	}
	check.Total = total
	if total == 0 {
		check.Elapsed = time.Since(start)
		return check, nil
	}

	skus, err := c.lister.FetchPage(ctx, cat.Source, 0, c.opts.MaxPrice, 1)
	if err != nil {
		return nil, eris.Wrapf(err, "smoke: page %s", cat.Name)
	}
	if len(skus) > c.opts.Products {
		skus = skus[:c.opts.Products]
	}
	check.Sampled = len(skus)

	for _, sku := range skus {
		p := c.extractor.Extract(ctx, sku, settings, cat.Name, dateParse)
		if p.OK {
			check.Parsed++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if check.Sampled > 0 && check.Parsed == 0 {
		return nil, eris.Errorf("smoke: %s sampled %d products, parsed none", cat.Name, check.Sampled)
	}

	check.Elapsed = time.Since(start)
	return check, nil
}

func sampleCatalogs(catalogs []*catalog.Catalog, n int) []*catalog.Catalog {
	if len(catalogs) <= n {
		return catalogs
	}
	idx := rand.Perm(len(catalogs))[:n]
	out := make([]*catalog.Catalog, 0, n)
	for _, i := range idx {
		out = append(out, catalogs[i])
	}
	return out
}
