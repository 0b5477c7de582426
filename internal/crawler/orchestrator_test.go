package crawler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/retail-lens/wb-crawler/internal/catalog"
	"github.com/retail-lens/wb-crawler/internal/config"
	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/product"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

type fakeRegistry struct {
	mu        sync.Mutex
	refreshes int
	onRefresh func(n int)
}

func (r *fakeRegistry) Refresh(context.Context) error {
	r.mu.Lock()
	r.refreshes++
	n := r.refreshes
	fn := r.onRefresh
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	products []*product.Product
}

func (s *fakeSink) Append(products []*product.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range products {
		if p != nil && p.OK {
			s.products = append(s.products, p)
			n++
		}
	}
	return n, nil
}

// listingFake serves a fixed total and deterministic per-page SKUs, so a
// re-harvest on the retry pass sees the same pool.
type listingFake struct {
	total   int
	perPage int
}

func (l *listingFake) CountItems(context.Context, wbapi.Source, int, int) (int, error) {
	return l.total, nil
}

func (l *listingFake) FetchPage(_ context.Context, _ wbapi.Source, _, _, page int) ([]int64, error) {
	skus := make([]int64, 0, l.perPage)
	for i := 1; i <= l.perPage; i++ {
		skus = append(skus, int64(page*1000+i))
	}
	return skus, nil
}

// extractRecorder extracts via fn and remembers which SKUs each catalog
// asked for.
type extractRecorder struct {
	mu    sync.Mutex
	calls map[string][]int64
	fn    func(sku int64) bool // returns the OK flag
}

func newExtractRecorder(fn func(sku int64) bool) *extractRecorder {
	return &extractRecorder{calls: make(map[string][]int64), fn: fn}
}

func (r *extractRecorder) Extract(_ context.Context, sku int64, _, catalogName, dateParse string) *product.Product {
	r.mu.Lock()
	r.calls[catalogName] = append(r.calls[catalogName], sku)
	r.mu.Unlock()

	p := product.New(sku, catalogName, dateParse)
	p.OK = r.fn(sku)
	return p
}

func (r *extractRecorder) skusFor(name string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.calls[name]...)
}

func newTestOrchestrator(listing *listingFake, rec *extractRecorder, sink *fakeSink, reg *fakeRegistry) *Orchestrator {
	metrics := monitoring.NewMetrics()
	return NewOrchestrator(OrchestratorOptions{
		Crawl: config.CrawlConfig{
			Concurrency:         4,
			CompletionThreshold: 90,
			RetryDelaySecs:      0,
		},
		Registry:   reg,
		Settings:   func(context.Context) string { return wbapi.DefaultUserSettings },
		Discoverer: catalog.NewDiscoverer(listing, catalog.DiscovererOptions{MaxPrice: 1000}),
		Harvester:  catalog.NewHarvester(listing, catalog.HarvesterOptions{}),
		Controller: NewController(rec, 4, metrics),
		Report:     sink,
		Metrics:    metrics,
	})
}

func TestRunHappyPath(t *testing.T) {
	listing := &listingFake{total: 150, perPage: 75}
	rec := newExtractRecorder(func(int64) bool { return true })
	sink := &fakeSink{}
	reg := &fakeRegistry{}

	o := newTestOrchestrator(listing, rec, sink, reg)
	cat := catalog.New("Socks", wbapi.Source{Shard: "shard1"})

	summary, err := o.Run(context.Background(), []*catalog.Catalog{cat}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.refreshes)
	assert.Equal(t, catalog.StatusDone, cat.Status)
	assert.Equal(t, 150, cat.TotalItems)
	assert.InDelta(t, 100, cat.ParsedPct, 0.01)
	assert.Len(t, sink.products, 150)
	assert.Equal(t, 150, summary.Products)
	assert.Equal(t, 1, summary.CatalogsOK)
	assert.Zero(t, summary.Retried)
	assert.Equal(t, "full", summary.Mode)
}

func TestRunRetriesBelowThreshold(t *testing.T) {
	listing := &listingFake{total: 150, perPage: 75}
	rec := newExtractRecorder(func(int64) bool { return false })
	sink := &fakeSink{}
	reg := &fakeRegistry{}

	o := newTestOrchestrator(listing, rec, sink, reg)
	cat := catalog.New("Socks", wbapi.Source{Shard: "shard1"})

	summary, err := o.Run(context.Background(), []*catalog.Catalog{cat}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.refreshes, "proxy pool must be refreshed before the retry pass")
	assert.Equal(t, 1, summary.Retried)
	// One retry pass only: the catalog was extracted exactly twice.
	assert.Len(t, rec.skusFor("Socks"), 300)
	// Retry results are flushed regardless of coverage, but nothing
	// succeeded here.
	assert.Empty(t, sink.products)
	assert.Zero(t, summary.CatalogsOK)
	assert.Equal(t, catalog.StatusDone, cat.Status)
}

func TestRunRetryFlushesAndReusesCache(t *testing.T) {
	listing := &listingFake{total: 150, perPage: 75}
	sink := &fakeSink{}

	// Odd SKUs succeed on the first pass; after the retry refresh the
	// extractor succeeds for everything.
	var mu sync.Mutex
	firstPass := true
	rec := newExtractRecorder(nil)
	rec.fn = func(sku int64) bool {
		mu.Lock()
		defer mu.Unlock()
		if firstPass {
			return sku%2 == 1
		}
		return true
	}

	reg := &fakeRegistry{onRefresh: func(n int) {
		if n == 2 {
			mu.Lock()
			firstPass = false
			mu.Unlock()
		}
	}}

	o := newTestOrchestrator(listing, rec, sink, reg)
	cat := catalog.New("Socks", wbapi.Source{Shard: "shard1"})

	summary, err := o.Run(context.Background(), []*catalog.Catalog{cat}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Retried)
	assert.Len(t, sink.products, 150, "retry pass must flush the whole catalog")
	assert.Equal(t, 1, summary.CatalogsOK)

	// Products parsed OK on the first pass are served from the cache on the
	// retry: each odd SKU is extracted exactly once across both passes.
	counts := make(map[int64]int)
	for _, sku := range rec.skusFor("Socks") {
		counts[sku]++
	}
	for sku, n := range counts {
		if sku%2 == 1 {
			assert.Equalf(t, 1, n, "sku %d parsed on pass one must not be refetched", sku)
		}
	}
}

func TestRunDeduplicatesAcrossCatalogs(t *testing.T) {
	rec := newExtractRecorder(func(int64) bool { return true })
	sink := &fakeSink{}

	o := newTestOrchestrator(&listingFake{}, rec, sink, &fakeRegistry{})

	first := catalog.NewBySKUs("First", []int64{1, 2, 3})
	second := catalog.NewBySKUs("Second", []int64{3, 4, 2, 5})

	_, err := o.Run(context.Background(), []*catalog.Catalog{first, second}, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2, 3}, rec.skusFor("First"))
	assert.ElementsMatch(t, []int64{4, 5}, rec.skusFor("Second"), "shared skus belong to the first catalog")
	assert.Len(t, sink.products, 5)
}

func TestRunBySKUSkipsDiscovery(t *testing.T) {
	rec := newExtractRecorder(func(int64) bool { return true })
	sink := &fakeSink{}

	o := newTestOrchestrator(&listingFake{}, rec, sink, &fakeRegistry{})

	cat := catalog.NewBySKUs("Preset", []int64{7, 8})
	summary, err := o.Run(context.Background(), []*catalog.Catalog{cat}, true)
	require.NoError(t, err)

	assert.Equal(t, "by-sku", summary.Mode)
	assert.Equal(t, 2, summary.Products)
	assert.ElementsMatch(t, []int64{7, 8}, rec.skusFor("Preset"))
}

func TestRunEmptyCatalogExtractsNothing(t *testing.T) {
	rec := newExtractRecorder(func(int64) bool { return true })
	sink := &fakeSink{}

	listing := &listingFake{total: 0}
	o := newTestOrchestrator(listing, rec, sink, &fakeRegistry{})

	cat := catalog.New("Ghost", wbapi.Source{Shard: "shard1"})
	summary, err := o.Run(context.Background(), []*catalog.Catalog{cat}, false)
	require.NoError(t, err)

	assert.Empty(t, rec.skusFor("Ghost"))
	assert.Zero(t, summary.Products)
	assert.Zero(t, summary.CatalogsOK)
}

func TestRunRerunMessageOnlyOnRetry(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	listing := &listingFake{total: 150, perPage: 75}
	rec := newExtractRecorder(func(int64) bool { return false })
	sink := &fakeSink{}
	reg := &fakeRegistry{}

	o := newTestOrchestrator(listing, rec, sink, reg)
	cat := catalog.New("Socks", wbapi.Source{Shard: "shard1"})

	_, err := o.Run(context.Background(), []*catalog.Catalog{cat}, false)
	require.NoError(t, err)

	var firstPass, rerun int
	for _, entry := range logs.All() {
		switch entry.Message {
		case "crawler: catalog collection failed":
			firstPass++
			assert.Equal(t, zap.WarnLevel, entry.Level)
		case "crawler: catalog yielded no products, full rerun required":
			rerun++
			assert.Equal(t, zap.ErrorLevel, entry.Level)
		}
	}
	assert.Equal(t, 1, firstPass, "first pass logs a plain collection failure")
	assert.Equal(t, 1, rerun, "only the retry pass declares a full rerun")
}
