package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/catalog"
	"github.com/retail-lens/wb-crawler/internal/crawler"
	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/product"
	"github.com/retail-lens/wb-crawler/internal/proxy"
	"github.com/retail-lens/wb-crawler/internal/report"
	"github.com/retail-lens/wb-crawler/internal/store"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// crawlEnv bundles the wired crawl components shared by the run and smoke
// commands.
type crawlEnv struct {
	Registry   *proxy.Registry
	Client     *wbapi.Client
	API        *crawler.API
	Extractor  *product.Extractor
	Controller *crawler.Controller
	Metrics    *monitoring.Metrics
}

// initCrawlEnv loads the proxy pool and builds the API client stack on top
// of it. The registry is returned unprobed; callers refresh it when they
// actually need reachable proxies.
func initCrawlEnv() (*crawlEnv, error) {
	pool, err := proxy.LoadFile(cfg.Proxy.File)
	if err != nil {
		return nil, eris.Wrap(err, "load proxy pool")
	}
	zap.L().Info("proxy pool loaded",
		zap.String("file", cfg.Proxy.File),
		zap.Int("proxies", len(pool)),
	)

	registry := proxy.NewRegistry(pool, proxy.RegistryOptions{
		ProbeURLs:       cfg.Proxy.ProbeURLs,
		ProbeTimeout:    time.Duration(cfg.Proxy.ProbeTimeoutSecs) * time.Second,
		DisableCooldown: time.Duration(cfg.Proxy.DisableCooldownSecs) * time.Second,
		EmptyPoolWait:   time.Duration(cfg.Proxy.EmptyPoolWaitSecs) * time.Second,
	})

	client := wbapi.NewClient(registry, wbapi.ClientOptions{
		Timeout:           time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
		Burst:             cfg.Crawl.Burst,
	})

	metrics := monitoring.NewMetrics()
	api := crawler.NewAPI(client, metrics)
	extractor := product.NewExtractor(api)
	extractor.StageErrors = metrics.IncStageError

	return &crawlEnv{
		Registry:   registry,
		Client:     client,
		API:        api,
		Extractor:  extractor,
		Controller: crawler.NewController(extractor, cfg.Crawl.Concurrency, metrics),
		Metrics:    metrics,
	}, nil
}

// newOrchestrator wires a crawl environment, report writer and store into
// an orchestrator configured from the loaded config.
func newOrchestrator(env *crawlEnv, st store.Store, writer *report.Writer) *crawler.Orchestrator {
	return crawler.NewOrchestrator(crawler.OrchestratorOptions{
		Crawl:    cfg.Crawl,
		Registry: env.Registry,
		Settings: func(ctx context.Context) string {
			return wbapi.FetchUserSettings(ctx, env.Client)
		},
		Discoverer: catalog.NewDiscoverer(env.API, catalog.DiscovererOptions{
			MaxItemsPerFilter: cfg.Crawl.MaxItemsPerFilter,
			MaxPrice:          cfg.Crawl.MaxPrice,
		}),
		Harvester: catalog.NewHarvester(env.API, catalog.HarvesterOptions{
			MaxPages: cfg.Crawl.MaxPages,
		}),
		Controller: env.Controller,
		Report:     writer,
		Store:      st,
		Metrics:    env.Metrics,
		ReportPath: writer.Path(),
	})
}

// initStore opens the run-history database and applies migrations.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadTargets reads the catalog set for the given crawl mode.
func loadTargets(ctx context.Context, mode string) ([]*catalog.Catalog, error) {
	switch mode {
	case "catalogs":
		menu, err := wbapi.FetchMenu(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "fetch menu")
		}
		return catalog.LoadCatalogs(cfg.Catalogs.CatalogsFile, menu)
	case "brands":
		return catalog.LoadBrands(cfg.Catalogs.BrandsFile)
	case "skus":
		return catalog.LoadSKUList(cfg.Catalogs.SKUsFile)
	default:
		return nil, eris.Errorf("unknown crawl mode %q", mode)
	}
}
