// Package wbapi builds requests against the undocumented marketplace API
// and decodes its JSON responses.
package wbapi

import (
	"fmt"
	"net/http"
	"net/url"
)

const (
	userSettingsURL = "https://www.wildberries.ru/webapi/user/get-xinfo-v2"
	productCardURL  = "https://card.wb.ru/cards/v2/detail?%s&nm=%d"
	productPageURL  = "https://www.wildberries.ru/catalog/%d/detail.aspx"
	productInfoURL  = "https://www.wildberries.ru/webapi/product/%d/data?"
	ordersURL       = "https://product-order-qnt.wildberries.ru/v2/by-nm/?nm=%d"
	filtersURL      = "https://catalog.wb.ru/catalog/%s/v4/filters?%s&dest=-1299031"
	brandFiltersURL = "https://catalog.wb.ru/brands/v4/filters?brand=%s&dest=-1257786"
	productsURL     = "https://catalog.wb.ru/catalog/%s/v2/catalog?%s&dest=-1299031&page=1&sort=popular"
	brandURL        = "https://catalog.wb.ru/brands/v2/catalog?brand=%s&dest=-1257786&page=1&sort=popular"
	menuURL         = "https://static-basket-01.wbbasket.ru/vol0/data/main-menu-ru-ru-v3.json"
)

// DefaultUserSettings is the hardcoded session string used when the
// user-settings endpoint cannot be reached.
const DefaultUserSettings = "appType=1&curr=rub&dest=-1255987&regions=80,38,4,64,83,33,68,70,69,30,86,75,40,1,66,110,22,31,48,71,114&spp=0"

// Source identifies one listing endpoint: either a category shard+query or
// a brand id, both optionally narrowed by an xsubject filter.
type Source struct {
	Shard    string
	Query    string
	XSubject string
	BrandID  string
}

// IsBrand reports whether the source addresses the brand endpoint family.
func (s Source) IsBrand() bool { return s.BrandID != "" }

// UserSettingsURL returns the session-settings endpoint.
func UserSettingsURL() string { return userSettingsURL }

// MenuURL returns the remote category-menu document.
func MenuURL() string { return menuURL }

// DefaultHeaders returns the headers the production frontend sends.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("x-spa-version", "9.3.73.3")
	return h
}

// FilterURL returns the item-count endpoint for the source constrained to
// the [minPrice, maxPrice] window (minor price units).
func FilterURL(src Source, minPrice, maxPrice int) string {
	var base string
	if src.IsBrand() {
		base = fmt.Sprintf(brandFiltersURL, src.BrandID)
	} else {
		base = fmt.Sprintf(filtersURL, src.Shard, src.Query)
	}
	return withParams(base, map[string]string{
		"priceU":   fmt.Sprintf("%d;%d", minPrice, maxPrice),
		"xsubject": src.XSubject,
	})
}

// PageURL returns the listing-page endpoint for the source, window and page.
func PageURL(src Source, minPrice, maxPrice, page int) string {
	var base string
	if src.IsBrand() {
		base = fmt.Sprintf(brandURL, src.BrandID)
	} else {
		base = fmt.Sprintf(productsURL, src.Shard, src.Query)
	}
	return withParams(base, map[string]string{
		"priceU":   fmt.Sprintf("%d;%d", minPrice, maxPrice),
		"page":     fmt.Sprintf("%d", page),
		"xsubject": src.XSubject,
	})
}

// ProductCardURL returns the primary card endpoint for a SKU, keyed by the
// session settings string.
func ProductCardURL(settings string, sku int64) string {
	return fmt.Sprintf(productCardURL, settings, sku)
}

// ProductPageURL returns the customer-facing product page, used as the URL
// column of the report.
func ProductPageURL(sku int64) string {
	return fmt.Sprintf(productPageURL, sku)
}

// ProductInfoURL returns the sub-catalog endpoint for a SKU, optionally
// narrowed by subject and brand ids.
func ProductInfoURL(sku, subject, brandID int64) string {
	u := fmt.Sprintf(productInfoURL, sku)
	if subject != 0 {
		u += fmt.Sprintf("&subject=%d", subject)
	}
	if brandID != 0 {
		u += fmt.Sprintf("&brand=%d", brandID)
	}
	return u
}

// OrdersURL returns the order-count endpoint for a SKU.
func OrdersURL(sku int64) string {
	return fmt.Sprintf(ordersURL, sku)
}

// StaticCardURL returns the static-metadata document for a SKU, hosted on
// the content-delivery shard derived from the SKU.
func StaticCardURL(sku int64) string {
	return skuHostURL(sku) + "/info/ru/card.json"
}

// MerchantURL returns the seller document for a SKU, on the same shard.
func MerchantURL(sku int64) string {
	return skuHostURL(sku) + "/info/sellers.json"
}

// basketRange maps a vol interval to its content-delivery host. The table
// mirrors the routing script served by the production frontend.
type basketRange struct {
	lo, hi int
	host   string
}

var basketRanges = []basketRange{
	{0, 143, "basket-01.wbbasket.ru"},
	{144, 287, "basket-02.wbbasket.ru"},
	{288, 431, "basket-03.wbbasket.ru"},
	{432, 719, "basket-04.wbbasket.ru"},
	{720, 1007, "basket-05.wbbasket.ru"},
	{1008, 1061, "basket-06.wbbasket.ru"},
	{1062, 1115, "basket-07.wbbasket.ru"},
	{1116, 1169, "basket-08.wbbasket.ru"},
	{1170, 1313, "basket-09.wbbasket.ru"},
	{1314, 1601, "basket-10.wbbasket.ru"},
	{1602, 1655, "basket-11.wbbasket.ru"},
	{1656, 1919, "basket-12.wbbasket.ru"},
	{1920, 2045, "basket-13.wbbasket.ru"},
	{2046, 2189, "basket-14.wbbasket.ru"},
	{2190, 2405, "basket-15.wbbasket.ru"},
	{2406, 2621, "basket-16.wbbasket.ru"},
	{2622, 2837, "basket-17.wbbasket.ru"},
	{2838, 3053, "basket-18.wbbasket.ru"},
	{3054, 3269, "basket-19.wbbasket.ru"},
	{3270, 3485, "basket-20.wbbasket.ru"},
	{3486, 3701, "basket-21.wbbasket.ru"},
	{3702, 3917, "basket-22.wbbasket.ru"},
	{3918, 4133, "basket-23.wbbasket.ru"},
	{4134, 4349, "basket-24.wbbasket.ru"},
	{4350, 4565, "basket-25.wbbasket.ru"},
}

const basketOverflowHost = "basket-26.wbbasket.ru"

func basketHost(vol int) string {
	for _, r := range basketRanges {
		if vol >= r.lo && vol <= r.hi {
			return r.host
		}
	}
	return basketOverflowHost
}

func skuHostURL(sku int64) string {
	vol := int(sku / 100_000)
	part := sku / 1_000
	return fmt.Sprintf("https://%s/vol%d/part%d/%d", basketHost(vol), vol, part, sku)
}

// withParams sets (or overrides) query parameters on a raw URL. Empty values
// are dropped rather than rendered as bare keys.
func withParams(raw string, params map[string]string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		if v == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
