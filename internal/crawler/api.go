// Package crawler orchestrates the full crawl: discovery, harvesting,
// bounded product extraction and the retry pass.
package crawler

import (
	"context"
	"net/http"

	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/proxy"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// API adapts the marketplace client to the discovery, harvesting and
// extraction interfaces, counting requests per phase along the way.
type API struct {
	client  *wbapi.Client
	metrics *monitoring.Metrics
}

// NewAPI wraps a client for use by the crawl stages.
func NewAPI(client *wbapi.Client, metrics *monitoring.Metrics) *API {
	return &API{client: client, metrics: metrics}
}

// CountItems reports the item total for a source within a price window,
// walking the listing parameter fallback.
func (a *API) CountItems(ctx context.Context, src wbapi.Source, minPrice, maxPrice int) (int, error) {
	a.metrics.IncRequest("discovery")
	resp, err := wbapi.FetchCatalogJSON(ctx, a.client, wbapi.FilterURL(src, minPrice, maxPrice))
	if err != nil {
		return 0, err
	}
	return resp.Data.Total, nil
}

// FetchPage returns the SKUs on one listing page of a filtered source.
func (a *API) FetchPage(ctx context.Context, src wbapi.Source, minPrice, maxPrice, page int) ([]int64, error) {
	a.metrics.IncRequest("harvest")
	resp, err := wbapi.FetchCatalogJSON(ctx, a.client, wbapi.PageURL(src, minPrice, maxPrice, page))
	if err != nil {
		return nil, err
	}
	skus := make([]int64, 0, len(resp.Data.Products))
	for _, p := range resp.Data.Products {
		skus = append(skus, p.ID)
	}
	return skus, nil
}

// Lease picks a proxy for one extraction stage.
func (a *API) Lease(ctx context.Context) (proxy.Descriptor, error) {
	return a.client.Lease(ctx)
}

// Disable benches the proxy for the configured cooldown.
func (a *API) Disable(d proxy.Descriptor) {
	a.metrics.IncProxyDisabled()
	a.client.Disable(d)
}

// GetJSONVia proxies to the client, counting the request.
func (a *API) GetJSONVia(ctx context.Context, d proxy.Descriptor, rawURL string, headers http.Header, out any) error {
	a.metrics.IncRequest("extract")
	return a.client.GetJSONVia(ctx, d, rawURL, headers, out)
}

// GetJSON proxies to the client, counting the request.
func (a *API) GetJSON(ctx context.Context, rawURL string, headers http.Header, out any) error {
	a.metrics.IncRequest("extract")
	return a.client.GetJSON(ctx, rawURL, headers, out)
}
