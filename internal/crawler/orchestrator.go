package crawler

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/catalog"
	"github.com/retail-lens/wb-crawler/internal/config"
	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/product"
	"github.com/retail-lens/wb-crawler/internal/store"
)

// parsedCacheSize bounds how many successfully extracted products are kept
// for reuse by the retry pass.
const parsedCacheSize = 200_000

// ProxyRefresher re-probes the proxy pool.
type ProxyRefresher interface {
	Refresh(ctx context.Context) error
}

// ReportSink receives extracted products.
type ReportSink interface {
	Append(products []*product.Product) (int, error)
}

// OrchestratorOptions wires the crawl stages together.
type OrchestratorOptions struct {
	Crawl      config.CrawlConfig
	Registry   ProxyRefresher
	Settings   func(ctx context.Context) string
	Discoverer *catalog.Discoverer
	Harvester  *catalog.Harvester
	Controller *Controller
	Report     ReportSink
	Store      store.Store // optional
	Metrics    *monitoring.Metrics
	ReportPath string
}

// Orchestrator runs catalogs through discovery, harvesting and extraction
// sequentially, with at most one retry pass over catalogs that missed the
// completion threshold.
type Orchestrator struct {
	opts      OrchestratorOptions
	threshold float64
	delay     time.Duration

	cache *lru.Cache[int64, *product.Product]

	// claimed maps each SKU to the catalog that first produced it. One
	// mutex guards the whole check-then-insert.
	mu      sync.Mutex
	claimed map[int64]string

	retry []*catalog.Catalog
}

// Summary is the outcome of one run.
type Summary struct {
	RunID         string
	Mode          string
	StartedAt     time.Time
	FinishedAt    time.Time
	CatalogsTotal int
	CatalogsOK    int
	Retried       int
	Products      int
}

// NewOrchestrator creates an Orchestrator from wired stages.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	threshold := opts.Crawl.CompletionThreshold
	if threshold <= 0 {
		threshold = 90
	}
	cache, _ := lru.New[int64, *product.Product](parsedCacheSize)
	return &Orchestrator{
		opts:      opts,
		threshold: threshold,
		delay:     time.Duration(opts.Crawl.RetryDelaySecs) * time.Second,
		cache:     cache,
		claimed:   make(map[int64]string),
	}
}

// Run crawls the catalogs and returns the run summary. In by-SKU mode the
// catalogs arrive with their SKU pools pre-filled and discovery and
// harvesting are skipped, on the retry pass too.
func (o *Orchestrator) Run(ctx context.Context, catalogs []*catalog.Catalog, bySKU bool) (*Summary, error) {
	summary := &Summary{
		Mode:          "full",
		StartedAt:     time.Now(),
		CatalogsTotal: len(catalogs),
	}
	if bySKU {
		summary.Mode = "by-sku"
	}

	run := o.createRun(ctx, summary.Mode)
	if run != nil {
		summary.RunID = run.ID
	}

	if err := o.opts.Registry.Refresh(ctx); err != nil {
		return summary, eris.Wrap(err, "crawler: initial proxy refresh")
	}
	settings := o.opts.Settings(ctx)

	if !bySKU {
		if err := o.prepare(ctx, catalogs, false); err != nil {
			return summary, err
		}
	}

	dateParse := time.Now().Format(product.TimeFormat)
	written, err := o.parsePass(ctx, catalogs, settings, dateParse, false)
	summary.Products += written
	if err != nil {
		return summary, err
	}

	summary.Retried = len(o.retry)
	o.logPassOutcome(summary)

	if len(o.retry) > 0 {
		written, err := o.retryPass(ctx, settings, bySKU)
		summary.Products += written
		if err != nil {
			return summary, err
		}
	}

	for _, cat := range catalogs {
		if cat.TotalItems > 0 && cat.ParsedPct >= o.threshold {
			summary.CatalogsOK++
		}
		o.recordStat(ctx, summary.RunID, cat)
	}

	summary.FinishedAt = time.Now()
	o.finishRun(ctx, run, summary)
	return summary, nil
}

// prepare rebuilds filter and SKU pools. On the retry pass the previous
// pools are dropped first so discovered totals are not counted twice.
func (o *Orchestrator) prepare(ctx context.Context, catalogs []*catalog.Catalog, isRetry bool) error {
	zap.L().Info("crawler: preparing catalogs",
		zap.Int("count", len(catalogs)), zap.Bool("retry", isRetry))

	for _, cat := range catalogs {
		if isRetry {
			cat.Reset()
		}
		if err := o.opts.Discoverer.Discover(ctx, cat); err != nil {
			if ctx.Err() != nil {
				return err
			}
			zap.L().Error("crawler: discovery failed", zap.Stringer("catalog", cat), zap.Error(err))
			continue
		}
		if err := o.opts.Harvester.Harvest(ctx, cat); err != nil {
			if ctx.Err() != nil {
				return err
			}
			cat.Status = catalog.StatusFailure
			zap.L().Error("crawler: harvest failed", zap.Stringer("catalog", cat), zap.Error(err))
		}
	}

	zap.L().Info("crawler: catalogs prepared")
	return nil
}

// parsePass extracts every runnable catalog. A catalog runs when it is
// enqueued with a non-empty pool, or when it is marked failed and deserves
// another attempt.
func (o *Orchestrator) parsePass(ctx context.Context, catalogs []*catalog.Catalog, settings, dateParse string, isRetry bool) (int, error) {
	written := 0
	for _, cat := range catalogs {
		runnable := (cat.Status == catalog.StatusEnqueued && cat.TotalItems > 0) ||
			cat.Status == catalog.StatusFailure
		if !runnable {
			continue
		}
		cat.Status = catalog.StatusDone

		products, err := o.extractCatalog(ctx, cat, settings, dateParse)
		if err != nil {
			return written, err
		}

		parsed := 0
		for _, p := range products {
			if p != nil && p.OK {
				parsed++
			}
		}
		cat.ParsedCount = parsed
		if cat.TotalItems > 0 {
			cat.ParsedPct = float64(parsed) / float64(cat.TotalItems) * 100
		}
		o.opts.Metrics.SetCoverage(cat.Name, cat.HarvestedPct, cat.ParsedPct)

		if parsed == 0 && cat.TotalItems > 100 {
			if isRetry {
				zap.L().Error("crawler: catalog yielded no products, full rerun required",
					zap.Stringer("catalog", cat))
			} else {
				zap.L().Warn("crawler: catalog collection failed",
					zap.Stringer("catalog", cat))
			}
		}

		if !isRetry && cat.ParsedPct < o.threshold {
			cat.Status = catalog.StatusFailure
			o.retry = append(o.retry, cat)
			o.opts.Metrics.IncCatalogRetried()
			o.cacheParsed(products)
			zap.L().Warn("crawler: retry scheduled",
				zap.Stringer("catalog", cat),
				zap.Float64("parsed_pct", cat.ParsedPct))
			continue
		}

		n, err := o.opts.Report.Append(products)
		written += n
		if err != nil {
			return written, eris.Wrapf(err, "crawler: flush %s", cat.Name)
		}

		zap.L().Info("crawler: catalog parsed",
			zap.Stringer("catalog", cat),
			zap.Int("parsed", parsed),
			zap.Float64("parsed_pct", cat.ParsedPct))
	}
	return written, nil
}

// retryPass waits out the configured delay, refreshes the proxy pool,
// rebuilds the failed catalogs and runs them once more. There is no third
// pass: whatever the retry collects is flushed as-is.
func (o *Orchestrator) retryPass(ctx context.Context, settings string, bySKU bool) (int, error) {
	zap.L().Warn("crawler: waiting before retry pass",
		zap.Int("catalogs", len(o.retry)),
		zap.Duration("delay", o.delay))

	timer := time.NewTimer(o.delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return 0, ctx.Err()
	case <-timer.C:
	}

	if err := o.opts.Registry.Refresh(ctx); err != nil {
		return 0, eris.Wrap(err, "crawler: retry proxy refresh")
	}
	if !bySKU {
		if err := o.prepare(ctx, o.retry, true); err != nil {
			return 0, err
		}
	}

	dateParse := time.Now().Format(product.TimeFormat)
	return o.parsePass(ctx, o.retry, settings, dateParse, true)
}

// extractCatalog claims the catalog's SKUs against the run-wide dedup set
// and extracts the claimed ones, reusing products already parsed on a
// previous pass.
func (o *Orchestrator) extractCatalog(ctx context.Context, cat *catalog.Catalog, settings, dateParse string) ([]*product.Product, error) {
	skus := o.claim(cat)
	if skipped := len(cat.SKUs) - len(skus); skipped > 0 {
		zap.L().Info("crawler: duplicate skus skipped",
			zap.String("catalog", cat.Name), zap.Int("count", skipped))
	}

	var cached []*product.Product
	fresh := skus[:0]
	for _, sku := range skus {
		if p, ok := o.cache.Get(sku); ok {
			cached = append(cached, p)
			continue
		}
		fresh = append(fresh, sku)
	}

	zap.L().Info("crawler: extracting catalog",
		zap.String("catalog", cat.Name),
		zap.Int("skus", len(fresh)),
		zap.Int("cached", len(cached)))

	products, err := o.opts.Controller.ExtractBatch(ctx, fresh, settings, cat.Name, dateParse)
	if err != nil {
		return nil, err
	}
	return append(products, cached...), nil
}

// claim filters the catalog's SKU pool down to the SKUs this catalog owns
// for the run. The first catalog to present a SKU keeps it; later passes of
// the same catalog re-claim their own SKUs.
func (o *Orchestrator) claim(cat *catalog.Catalog) []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]int64, 0, len(cat.SKUs))
	seen := make(map[int64]struct{}, len(cat.SKUs))
	for _, sku := range cat.SKUs {
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}

		owner, ok := o.claimed[sku]
		if ok && owner != cat.Name {
			continue
		}
		o.claimed[sku] = cat.Name
		out = append(out, sku)
	}
	return out
}

func (o *Orchestrator) cacheParsed(products []*product.Product) {
	for _, p := range products {
		if p != nil && p.OK {
			o.cache.Add(p.SKU, p)
		}
	}
}

func (o *Orchestrator) logPassOutcome(summary *Summary) {
	okCount := summary.CatalogsTotal - summary.Retried
	pct := 0.0
	if summary.CatalogsTotal > 0 {
		pct = float64(okCount) / float64(summary.CatalogsTotal) * 100
	}
	log := zap.L().Info
	if pct <= 90 {
		log = zap.L().Error
	}
	log("crawler: first pass finished",
		zap.Int("ok", okCount),
		zap.Int("total", summary.CatalogsTotal),
		zap.Float64("ok_pct", pct))
}

func (o *Orchestrator) createRun(ctx context.Context, mode string) *store.Run {
	if o.opts.Store == nil {
		return nil
	}
	run, err := o.opts.Store.CreateRun(ctx, mode)
	if err != nil {
		zap.L().Warn("crawler: run history unavailable", zap.Error(err))
		return nil
	}
	return run
}

func (o *Orchestrator) finishRun(ctx context.Context, run *store.Run, summary *Summary) {
	if o.opts.Store == nil || run == nil {
		return
	}
	run.CatalogsTotal = summary.CatalogsTotal
	run.CatalogsOK = summary.CatalogsOK
	run.Products = summary.Products
	run.ReportPath = o.opts.ReportPath
	run.FinishedAt = summary.FinishedAt
	if err := o.opts.Store.FinishRun(ctx, run); err != nil {
		zap.L().Warn("crawler: finish run record", zap.Error(err))
	}
}

func (o *Orchestrator) recordStat(ctx context.Context, runID string, cat *catalog.Catalog) {
	if o.opts.Store == nil || runID == "" {
		return
	}
	retried := false
	for _, r := range o.retry {
		if r == cat {
			retried = true
			break
		}
	}
	err := o.opts.Store.RecordCatalogStat(ctx, store.CatalogStat{
		RunID:        runID,
		Name:         cat.Name,
		Status:       cat.Status.String(),
		TotalItems:   cat.TotalItems,
		Harvested:    len(cat.SKUs),
		Parsed:       cat.ParsedCount,
		HarvestedPct: cat.HarvestedPct,
		ParsedPct:    cat.ParsedPct,
		Retried:      retried,
	})
	if err != nil {
		zap.L().Warn("crawler: record catalog stat", zap.Error(err))
	}
}
