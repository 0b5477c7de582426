package product

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/proxy"
	"github.com/retail-lens/wb-crawler/internal/resilience"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// API is the slice of the marketplace client the extractor needs.
type API interface {
	Lease(ctx context.Context) (proxy.Descriptor, error)
	Disable(d proxy.Descriptor)
	GetJSONVia(ctx context.Context, d proxy.Descriptor, rawURL string, headers http.Header, out any) error
	GetJSON(ctx context.Context, rawURL string, headers http.Header, out any) error
}

// Extractor fills products from the five detail endpoints. Each stage leases
// its own proxy so one benched exit node does not poison the whole SKU.
type Extractor struct {
	client API

	// StageErrors, when set, is notified of every failed stage by name.
	// Soft skips (a shard with no document for the SKU) do not count.
	StageErrors func(stage string)
}

// NewExtractor creates an Extractor over the given API client.
func NewExtractor(client API) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) noteStageError(stage string) {
	if e.StageErrors != nil {
		e.StageErrors(stage)
	}
}

// Extract assembles the product for one SKU. It always returns a product;
// failures are reported through its OK flag rather than an error so a batch
// keeps moving. The card stage is mandatory. The static-metadata stage fails
// the product too, but a bare non-200 there only skips the enrichment. The
// merchant, sub-catalog and order stages are best effort.
func (e *Extractor) Extract(ctx context.Context, sku int64, userSettings, catalogName, dateParse string) *Product {
	p := New(sku, catalogName, dateParse)

	if !e.fetchCard(ctx, p, userSettings) {
		return p
	}
	if !e.fetchStatic(ctx, p) {
		return p
	}
	e.fetchMerchant(ctx, p)
	e.fetchSitePath(ctx, p)
	e.fetchOrders(ctx, p)
	return p
}

func (e *Extractor) fetchCard(ctx context.Context, p *Product, userSettings string) bool {
	lease, err := e.client.Lease(ctx)
	if err != nil {
		p.OK = false
		return false
	}

	var card wbapi.CardResponse
	if err := e.client.GetJSONVia(ctx, lease, wbapi.ProductCardURL(userSettings, p.SKU), nil, &card); err != nil {
		zap.L().Error("extract: product card failed",
			zap.Int64("sku", p.SKU), zap.Error(err))
		e.noteStageError("card")
		p.OK = false
		if resilience.IsConnectionFailure(err) {
			e.client.Disable(lease)
		}
		return false
	}

	for _, item := range card.Data.Products {
		p.applyCard(item)
	}
	return true
}

// fetchStatic pulls the static card from the basket shard. A connection
// failure benches the proxy and fails the product but lets the remaining
// stages run, matching the card data already collected. Any other transport
// or decode error fails the product outright; a plain non-200 means the
// shard simply has no document for this SKU.
func (e *Extractor) fetchStatic(ctx context.Context, p *Product) bool {
	lease, err := e.client.Lease(ctx)
	if err != nil {
		p.OK = false
		return false
	}

	var card wbapi.StaticCard
	err = e.client.GetJSONVia(ctx, lease, wbapi.StaticCardURL(p.SKU), nil, &card)
	switch {
	case err == nil:
		p.applyStatic(card)
		return true
	case isStatusError(err):
		return true
	case resilience.IsConnectionFailure(err):
		zap.L().Error("extract: static card unreachable",
			zap.Int64("sku", p.SKU), zap.Error(err))
		e.noteStageError("static")
		p.OK = false
		e.client.Disable(lease)
		return true
	default:
		zap.L().Error("extract: static card failed",
			zap.Int64("sku", p.SKU), zap.Error(err))
		e.noteStageError("static")
		p.OK = false
		return false
	}
}

func (e *Extractor) fetchMerchant(ctx context.Context, p *Product) {
	var m wbapi.Merchant
	if err := e.client.GetJSON(ctx, wbapi.MerchantURL(p.SKU), nil, &m); err != nil {
		if !isStatusError(err) {
			zap.L().Error("extract: merchant failed",
				zap.Int64("sku", p.SKU), zap.Error(err))
			e.noteStageError("merchant")
		}
		return
	}
	p.applyMerchant(m)
}

func (e *Extractor) fetchSitePath(ctx context.Context, p *Product) {
	url := wbapi.ProductInfoURL(p.SKU, p.SubjectID, p.BrandID)
	var info wbapi.ProductInfo
	if err := e.client.GetJSON(ctx, url, wbapi.DefaultHeaders(), &info); err != nil {
		if !isStatusError(err) {
			zap.L().Error("extract: sub-catalog failed",
				zap.Int64("sku", p.SKU), zap.Error(err))
			e.noteStageError("site_path")
		}
		return
	}
	p.applySitePath(info.Value.Data.SitePath)
}

func (e *Extractor) fetchOrders(ctx context.Context, p *Product) {
	var orders wbapi.OrderCount
	if err := e.client.GetJSON(ctx, wbapi.OrdersURL(p.SKU), nil, &orders); err != nil {
		if !isStatusError(err) {
			zap.L().Error("extract: order count failed",
				zap.Int64("sku", p.SKU), zap.Error(err))
			e.noteStageError("orders")
		}
		p.SoldQty = 0
		return
	}
	p.applyOrders(orders)
}

func isStatusError(err error) bool {
	var se *wbapi.StatusError
	return errors.As(err, &se)
}
