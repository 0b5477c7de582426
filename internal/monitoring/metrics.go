// Package monitoring carries crawl metrics, the alert webhook and the
// pre-flight smoke check.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler. All methods are
// nil-safe so call sites need no guards when metrics are disabled.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	ProductsParsedTotal  prometheus.Counter
	ProductsFailedTotal  prometheus.Counter
	StageErrorsTotal     *prometheus.CounterVec
	ProxiesDisabledTotal prometheus.Counter
	CatalogsRetriedTotal prometheus.Counter
	HarvestCoverage      *prometheus.GaugeVec
	ParseCoverage        *prometheus.GaugeVec
}

// NewMetrics constructs and registers all collectors on a dedicated
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "API requests issued, by crawl phase.",
		},
		[]string{"phase"},
	)
	parsed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_products_parsed_total",
			Help: "Products extracted successfully.",
		},
	)
	failed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_products_failed_total",
			Help: "Products whose mandatory extraction stages failed.",
		},
	)
	stageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_stage_errors_total",
			Help: "Extraction stage errors, by stage.",
		},
		[]string{"stage"},
	)
	proxiesDisabled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_proxies_disabled_total",
			Help: "Proxies benched after connection failures.",
		},
	)
	catalogsRetried := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_catalogs_retried_total",
			Help: "Catalogs scheduled for the retry pass.",
		},
	)
	harvestCoverage := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_harvest_coverage_percent",
			Help: "Harvested SKUs vs. discovered item count, per catalog.",
		},
		[]string{"catalog"},
	)
	parseCoverage := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_parse_coverage_percent",
			Help: "Parsed products vs. discovered item count, per catalog.",
		},
		[]string{"catalog"},
	)

	registry.MustRegister(requests, parsed, failed, stageErrors,
		proxiesDisabled, catalogsRetried, harvestCoverage, parseCoverage)

	return &Metrics{
		Registry:             registry,
		RequestsTotal:        requests,
		ProductsParsedTotal:  parsed,
		ProductsFailedTotal:  failed,
		StageErrorsTotal:     stageErrors,
		ProxiesDisabledTotal: proxiesDisabled,
		CatalogsRetriedTotal: catalogsRetried,
		HarvestCoverage:      harvestCoverage,
		ParseCoverage:        parseCoverage,
	}
}

// IncRequest increments the request counter for a phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveProduct records one extraction outcome.
func (m *Metrics) ObserveProduct(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ProductsParsedTotal.Inc()
		return
	}
	m.ProductsFailedTotal.Inc()
}

// IncStageError increments the error counter for an extraction stage.
func (m *Metrics) IncStageError(stage string) {
	if m == nil {
		return
	}
	m.StageErrorsTotal.WithLabelValues(stage).Inc()
}

// IncProxyDisabled counts one benched proxy.
func (m *Metrics) IncProxyDisabled() {
	if m == nil {
		return
	}
	m.ProxiesDisabledTotal.Inc()
}

// IncCatalogRetried counts one catalog pushed to the retry pool.
func (m *Metrics) IncCatalogRetried() {
	if m == nil {
		return
	}
	m.CatalogsRetriedTotal.Inc()
}

// SetCoverage records harvest and parse coverage for a catalog.
func (m *Metrics) SetCoverage(catalog string, harvestedPct, parsedPct float64) {
	if m == nil {
		return
	}
	m.HarvestCoverage.WithLabelValues(catalog).Set(harvestedPct)
	m.ParseCoverage.WithLabelValues(catalog).Set(parsedPct)
}
