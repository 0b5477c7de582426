package report

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-lens/wb-crawler/internal/config"
	"github.com/retail-lens/wb-crawler/internal/product"
)

func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func testProduct(sku int64, catalog, dateCreate string) *product.Product {
	p := product.New(sku, catalog, "2026-08-30 10:00:00")
	p.DateCreate = dateCreate
	p.Title = "item"
	p.BrandName = "brand"
	return p
}

func TestWriterAppendFiltersFailed(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "products_")
	require.NoError(t, err)

	good := testProduct(100, "Socks", "2026-08-30 10:01:00")
	bad := testProduct(200, "Socks", "2026-08-30 10:02:00")
	bad.OK = false

	n, err := w.Append([]*product.Product{good, bad, nil})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records := readReport(t, w.Path())
	require.Len(t, records, 2)
	assert.Equal(t, product.Header(), records[0])
	assert.Equal(t, "100", records[1][1])
}

func TestWriterAppendAccumulates(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "products_")
	require.NoError(t, err)

	_, err = w.Append([]*product.Product{testProduct(1, "A", "t1")})
	require.NoError(t, err)
	_, err = w.Append([]*product.Product{testProduct(2, "B", "t2")})
	require.NoError(t, err)

	records := readReport(t, w.Path())
	assert.Len(t, records, 3)
}

func TestWriterDedupKeepsEarliest(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "products_")
	require.NoError(t, err)

	first := testProduct(100, "Socks", "2026-08-30 10:00:00")
	first.SalePrice = 999
	retry := testProduct(100, "Socks", "2026-08-30 14:00:00")
	retry.SalePrice = 888
	otherCatalog := testProduct(100, "Shoes", "2026-08-30 12:00:00")

	_, err = w.Append([]*product.Product{retry, first, otherCatalog})
	require.NoError(t, err)
	require.NoError(t, w.Dedup())

	records := readReport(t, w.Path())
	require.Len(t, records, 3, "same sku in another catalog is not a duplicate")

	for _, row := range records[1:] {
		if row[10] == "Socks" {
			assert.Equal(t, "999", row[4], "earliest date_create row wins")
		}
	}
}

func TestWriterArchive(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "products_")
	require.NoError(t, err)
	_, err = w.Append([]*product.Product{testProduct(1, "A", "t")})
	require.NoError(t, err)

	csvPath := w.Path()
	zipPath, err := w.Archive()
	require.NoError(t, err)

	_, err = os.Stat(csvPath)
	assert.True(t, os.IsNotExist(err), "archived csv must be removed")

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
}

func TestUploadDisabled(t *testing.T) {
	err := Upload(context.Background(), config.ReportConfig{}, "/nonexistent.zip")
	require.NoError(t, err)
}

func TestWriterDedupDropsShortRows(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "products_")
	require.NoError(t, err)

	_, err = w.Append([]*product.Product{
		testProduct(1, "A", "2026-08-30 10:00:00"),
		testProduct(2, "A", "2026-08-30 10:01:00"),
	})
	require.NoError(t, err)

	// A truncated line, as left by a crash mid-write.
	f, err := os.OpenFile(w.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2026-08-30 10:02:00;3;partial\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, w.Dedup())

	records := readReport(t, w.Path())
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[1][1])
	assert.Equal(t, "2", records[2][1])
}
