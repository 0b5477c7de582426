// Package product assembles one report row per SKU out of the five detail
// endpoints.
package product

import (
	"strconv"
	"strings"
	"time"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// TimeFormat is the timestamp layout used in report rows.
const TimeFormat = "2006-01-02 15:04:05"

// Product is the flattened result of extracting one SKU. OK reports whether
// the mandatory stages succeeded; products with OK=false are excluded from
// the report and retried with their catalog.
type Product struct {
	SKU          int64
	URL          string
	Title        string
	FullPrice    int64
	SalePrice    int64
	Quantity     int
	Feedbacks    int
	BrandID      int64
	BrandName    string
	DateCreate   string
	DateParse    string
	SoldQty      int
	SubCatalog   string
	CatalogName  string
	MerchantName string
	MerchantOGRN string
	SubjectID    int64
	EAN          string
	OK           bool
}

// New creates a product shell for the given SKU. DateParse is the shared
// start timestamp of the catalog pass; DateCreate is stamped now.
func New(sku int64, catalogName, dateParse string) *Product {
	return &Product{
		SKU:         sku,
		URL:         wbapi.ProductPageURL(sku),
		CatalogName: catalogName,
		DateParse:   dateParse,
		DateCreate:  time.Now().Format(TimeFormat),
		OK:          true,
	}
}

// Header returns the report column names, in row order.
func Header() []string {
	return []string{
		"date_parse", "sku", "title", "url", "price", "old_price", "qty",
		"date_create", "sold_qty", "sub_catalog", "catalog_name", "merchant",
		"details", "ean", "nmark",
	}
}

// Row renders the product as one report record. The title is prefixed with
// the brand the way downstream consumers expect.
func (p *Product) Row() []string {
	return []string{
		p.DateParse,
		strconv.FormatInt(p.SKU, 10),
		p.BrandName + " / " + p.Title,
		p.URL,
		strconv.FormatInt(p.SalePrice, 10),
		strconv.FormatInt(p.FullPrice, 10),
		strconv.Itoa(p.Quantity),
		p.DateCreate,
		strconv.Itoa(p.SoldQty),
		p.SubCatalog,
		p.CatalogName,
		p.MerchantName,
		p.MerchantOGRN,
		p.EAN,
		strconv.Itoa(p.Feedbacks),
	}
}

// applyCard takes pricing, brand, title, feedbacks and stock from the
// product card. Prices arrive in kopecks.
func (p *Product) applyCard(item wbapi.CardProduct) {
	p.FullPrice = item.PriceU / 100
	p.SalePrice = item.SalePriceU / 100
	p.BrandID = item.BrandID
	p.BrandName = item.Brand
	p.Title = stripNewlines(item.Name)
	p.Feedbacks = item.Feedbacks

	qty := 0
	for _, size := range item.Sizes {
		for _, stock := range size.Stocks {
			qty += stock.Qty
		}
	}
	p.Quantity = qty
}

// applyStatic overrides the title with the full static name when present and
// records subject id and EAN.
func (p *Product) applyStatic(card wbapi.StaticCard) {
	if name := stripNewlines(card.ImtName); name != "" {
		p.Title = name
	}
	if len(card.Data.Skus) > 0 {
		p.EAN = card.Data.Skus[0]
	}
	p.SubjectID = card.Data.SubjectID
}

// applyMerchant records the seller. OGRN placeholders "0" and "NULL" mean
// the field is absent upstream.
func (p *Product) applyMerchant(m wbapi.Merchant) {
	p.MerchantName = m.SupplierName
	if m.OGRN == "0" || m.OGRN == "NULL" {
		p.MerchantOGRN = ""
		return
	}
	p.MerchantOGRN = m.OGRN
}

// applySitePath picks the deepest non-root breadcrumb as the sub-catalog.
func (p *Product) applySitePath(path []wbapi.Breadcrumb) {
	if len(path) == 0 {
		return
	}
	last := path[len(path)-1]
	if last.ID == 0 {
		if len(path) < 2 {
			return
		}
		last = path[len(path)-2]
	}
	if last.Name != "" {
		p.SubCatalog = last.Name
	}
}

// applyOrders records the sold quantity from the first counter entry.
func (p *Product) applyOrders(orders wbapi.OrderCount) {
	if len(orders) > 0 {
		p.SoldQty = orders[0].Qnt
	}
}

func stripNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
