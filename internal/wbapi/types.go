package wbapi

// CatalogResponse is the shape shared by the filter (item-count) and
// listing-page endpoints.
type CatalogResponse struct {
	Data struct {
		Total    int             `json:"total"`
		Products []ListedProduct `json:"products"`
	} `json:"data"`
}

// ListedProduct is one entry of a listing page. Only the identifier is
// consumed; detail comes from the per-product endpoints.
type ListedProduct struct {
	ID int64 `json:"id"`
}

// CardResponse is the primary product-card payload.
type CardResponse struct {
	Data struct {
		Products []CardProduct `json:"products"`
	} `json:"data"`
}

// CardProduct carries pricing, brand, title and stock for one SKU.
type CardProduct struct {
	PriceU     int64      `json:"priceU"`
	SalePriceU int64      `json:"salePriceU"`
	BrandID    int64      `json:"brandId"`
	Brand      string     `json:"brand"`
	Name       string     `json:"name"`
	Feedbacks  int        `json:"feedbacks"`
	Sizes      []CardSize `json:"sizes"`
}

// CardSize holds per-warehouse stock entries for one size.
type CardSize struct {
	Stocks []CardStock `json:"stocks"`
}

// CardStock is one warehouse stock line.
type CardStock struct {
	Qty int `json:"qty"`
}

// StaticCard is the static-metadata document from the content-delivery shard.
type StaticCard struct {
	ImtName string `json:"imt_name"`
	Data    struct {
		SubjectID int64    `json:"subject_id"`
		Skus      []string `json:"skus"`
	} `json:"data"`
}

// Merchant is the seller document from the content-delivery shard.
type Merchant struct {
	SupplierName string `json:"supplierName"`
	OGRN         string `json:"ogrn"`
}

// ProductInfo wraps the site-path breadcrumb list of the sub-catalog
// endpoint.
type ProductInfo struct {
	Value struct {
		Data struct {
			SitePath []Breadcrumb `json:"sitePath"`
		} `json:"data"`
	} `json:"value"`
}

// Breadcrumb is one element of the site path. ID 0 is the root sentinel.
type Breadcrumb struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// OrderCount is the order-count payload: a list whose first element carries
// the sold quantity.
type OrderCount []struct {
	Qnt int `json:"qnt"`
}

// UserSettings is the session-settings payload.
type UserSettings struct {
	XInfo string `json:"xinfo"`
}
