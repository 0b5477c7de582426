package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

func TestApplyCard(t *testing.T) {
	p := New(123, "Socks", "2026-08-30 10:00:00")
	p.applyCard(wbapi.CardProduct{
		PriceU:     125099,
		SalePriceU: 99900,
		BrandID:    77,
		Brand:      "Acme",
		Name:       "Wool\nsocks",
		Feedbacks:  41,
		Sizes: []wbapi.CardSize{
			{Stocks: []wbapi.CardStock{{Qty: 3}, {Qty: 4}}},
			{Stocks: []wbapi.CardStock{{Qty: 5}}},
		},
	})

	assert.Equal(t, int64(1250), p.FullPrice)
	assert.Equal(t, int64(999), p.SalePrice)
	assert.Equal(t, int64(77), p.BrandID)
	assert.Equal(t, "Acme", p.BrandName)
	assert.Equal(t, "Wool socks", p.Title)
	assert.Equal(t, 41, p.Feedbacks)
	assert.Equal(t, 12, p.Quantity)
}

func TestApplyStatic(t *testing.T) {
	p := New(123, "Socks", "2026-08-30 10:00:00")
	p.Title = "short name"

	card := wbapi.StaticCard{ImtName: "Full\nname"}
	card.Data.SubjectID = 105
	card.Data.Skus = []string{"4607051234567", "4607059999999"}
	p.applyStatic(card)

	assert.Equal(t, "Full name", p.Title)
	assert.Equal(t, int64(105), p.SubjectID)
	assert.Equal(t, "4607051234567", p.EAN)

	// Empty static name keeps the card title.
	p.applyStatic(wbapi.StaticCard{})
	assert.Equal(t, "Full name", p.Title)
}

func TestApplyMerchant(t *testing.T) {
	tests := []struct {
		name     string
		ogrn     string
		wantOGRN string
	}{
		{"real ogrn", "1027700132195", "1027700132195"},
		{"zero placeholder", "0", ""},
		{"null placeholder", "NULL", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(1, "c", "t")
			p.applyMerchant(wbapi.Merchant{SupplierName: "OOO Seller", OGRN: tt.ogrn})
			assert.Equal(t, "OOO Seller", p.MerchantName)
			assert.Equal(t, tt.wantOGRN, p.MerchantOGRN)
		})
	}
}

func TestApplySitePath(t *testing.T) {
	tests := []struct {
		name string
		path []wbapi.Breadcrumb
		want string
	}{
		{"empty", nil, ""},
		{"deepest wins", []wbapi.Breadcrumb{{ID: 1, Name: "Clothes"}, {ID: 2, Name: "Socks"}}, "Socks"},
		{"root sentinel skipped", []wbapi.Breadcrumb{{ID: 2, Name: "Socks"}, {ID: 0, Name: "Home"}}, "Socks"},
		{"lone root", []wbapi.Breadcrumb{{ID: 0, Name: "Home"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(1, "c", "t")
			p.applySitePath(tt.path)
			assert.Equal(t, tt.want, p.SubCatalog)
		})
	}
}

func TestApplyOrders(t *testing.T) {
	p := New(1, "c", "t")
	p.applyOrders(wbapi.OrderCount{{Qnt: 17}, {Qnt: 99}})
	assert.Equal(t, 17, p.SoldQty)

	p2 := New(1, "c", "t")
	p2.applyOrders(wbapi.OrderCount{})
	assert.Zero(t, p2.SoldQty)
}

func TestRowMatchesHeader(t *testing.T) {
	p := New(181_364_213, "Socks", "2026-08-30 10:00:00")
	p.BrandName = "Acme"
	p.Title = "Wool socks"
	p.SalePrice = 999
	p.FullPrice = 1250
	p.Quantity = 12
	p.SoldQty = 17
	p.SubCatalog = "Socks"
	p.MerchantName = "OOO Seller"
	p.MerchantOGRN = "1027700132195"
	p.EAN = "4607051234567"
	p.Feedbacks = 41

	row := p.Row()
	require.Len(t, row, len(Header()))

	assert.Equal(t, "2026-08-30 10:00:00", row[0])
	assert.Equal(t, "181364213", row[1])
	assert.Equal(t, "Acme / Wool socks", row[2])
	assert.Equal(t, "https://www.wildberries.ru/catalog/181364213/detail.aspx", row[3])
	assert.Equal(t, "999", row[4])
	assert.Equal(t, "1250", row[5])
	assert.Equal(t, "12", row[6])
	assert.Equal(t, "17", row[8])
	assert.Equal(t, "Socks", row[9])
	assert.Equal(t, "Socks", row[10])
	assert.Equal(t, "OOO Seller", row[11])
	assert.Equal(t, "1027700132195", row[12])
	assert.Equal(t, "4607051234567", row[13])
	assert.Equal(t, "41", row[14])
}
