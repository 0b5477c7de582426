package monitoring

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-lens/wb-crawler/internal/catalog"
	"github.com/retail-lens/wb-crawler/internal/product"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

type smokeListerFake struct {
	total    int
	pageSKUs []int64
	countErr error
	pageErr  error
}

func (f *smokeListerFake) CountItems(context.Context, wbapi.Source, int, int) (int, error) {
	return f.total, f.countErr
}

func (f *smokeListerFake) FetchPage(context.Context, wbapi.Source, int, int, int) ([]int64, error) {
	return f.pageSKUs, f.pageErr
}

type smokeExtractorFake struct {
	ok    func(sku int64) bool
	calls int
}

func (f *smokeExtractorFake) Extract(_ context.Context, sku int64, _, catalogName, dateParse string) *product.Product {
	f.calls++
	p := product.New(sku, catalogName, dateParse)
	p.OK = f.ok(sku)
	return p
}

func smokeCatalogs(n int) []*catalog.Catalog {
	out := make([]*catalog.Catalog, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, catalog.New(fmt.Sprintf("Catalog %d", i), wbapi.Source{Shard: "s"}))
	}
	return out
}

func TestSmokeOK(t *testing.T) {
	lister := &smokeListerFake{total: 500, pageSKUs: []int64{1, 2, 3}}
	extractor := &smokeExtractorFake{ok: func(int64) bool { return true }}

	c := NewChecker(lister, extractor, CheckerOptions{Catalogs: 2})
	res, err := c.Run(context.Background(), smokeCatalogs(10), wbapi.DefaultUserSettings)
	require.NoError(t, err)

	assert.True(t, res.OK)
	require.Len(t, res.Catalogs, 2, "sample size bounds probed catalogs")
	for _, check := range res.Catalogs {
		assert.Equal(t, 500, check.Total)
		assert.Equal(t, 3, check.Sampled)
		assert.Equal(t, 3, check.Parsed)
	}
}

func TestSmokeBoundsExtractions(t *testing.T) {
	skus := make([]int64, 100)
	for i := range skus {
		skus[i] = int64(i + 1)
	}
	lister := &smokeListerFake{total: 10_000, pageSKUs: skus}
	extractor := &smokeExtractorFake{ok: func(int64) bool { return true }}

	c := NewChecker(lister, extractor, CheckerOptions{Catalogs: 1, Products: 10})
	res, err := c.Run(context.Background(), smokeCatalogs(1), wbapi.DefaultUserSettings)
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, 10, extractor.calls)
}

func TestSmokeFailsOnListingError(t *testing.T) {
	lister := &smokeListerFake{countErr: fmt.Errorf("all params exhausted")}
	extractor := &smokeExtractorFake{ok: func(int64) bool { return true }}

	c := NewChecker(lister, extractor, CheckerOptions{Catalogs: 3})
	res, err := c.Run(context.Background(), smokeCatalogs(3), wbapi.DefaultUserSettings)
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Reason)
	assert.Zero(t, extractor.calls, "first failure aborts the batch")
}

func TestSmokeFailsWhenNothingParses(t *testing.T) {
	lister := &smokeListerFake{total: 500, pageSKUs: []int64{1, 2, 3}}
	extractor := &smokeExtractorFake{ok: func(int64) bool { return false }}

	c := NewChecker(lister, extractor, CheckerOptions{Catalogs: 1})
	res, err := c.Run(context.Background(), smokeCatalogs(1), wbapi.DefaultUserSettings)
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "parsed none")
}

func TestSmokeEmptyCatalogIsNotFatal(t *testing.T) {
	lister := &smokeListerFake{total: 0}
	extractor := &smokeExtractorFake{ok: func(int64) bool { return true }}

	c := NewChecker(lister, extractor, CheckerOptions{Catalogs: 1})
	res, err := c.Run(context.Background(), smokeCatalogs(1), wbapi.DefaultUserSettings)
	require.NoError(t, err)

	assert.True(t, res.OK)
	require.Len(t, res.Catalogs, 1)
	assert.Zero(t, res.Catalogs[0].Sampled)
}
