package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/product"
)

type extractFunc func(ctx context.Context, sku int64, userSettings, catalogName, dateParse string) *product.Product

func (f extractFunc) Extract(ctx context.Context, sku int64, userSettings, catalogName, dateParse string) *product.Product {
	return f(ctx, sku, userSettings, catalogName, dateParse)
}

func okProduct(sku int64, catalogName, dateParse string) *product.Product {
	return product.New(sku, catalogName, dateParse)
}

func TestExtractBatchPreservesOrder(t *testing.T) {
	ctrl := NewController(extractFunc(func(_ context.Context, sku int64, _, catalogName, dateParse string) *product.Product {
		return okProduct(sku, catalogName, dateParse)
	}), 4, monitoring.NewMetrics())

	skus := []int64{10, 20, 30, 40, 50}
	products, err := ctrl.ExtractBatch(context.Background(), skus, "settings", "Socks", "t")
	require.NoError(t, err)
	require.Len(t, products, len(skus))
	for i, p := range products {
		assert.Equal(t, skus[i], p.SKU)
		assert.Equal(t, "Socks", p.CatalogName)
	}
}

func TestExtractBatchBoundsConcurrency(t *testing.T) {
	const limit = 5
	var inFlight, peak int64
	var mu sync.Mutex

	ctrl := NewController(extractFunc(func(_ context.Context, sku int64, _, _, _ string) *product.Product {
		cur := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return okProduct(sku, "c", "t")
	}), limit, monitoring.NewMetrics())

	skus := make([]int64, 60)
	for i := range skus {
		skus[i] = int64(i)
	}
	_, err := ctrl.ExtractBatch(context.Background(), skus, "s", "c", "t")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(limit))
	assert.Positive(t, peak)
}

func TestExtractBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64

	ctrl := NewController(extractFunc(func(_ context.Context, sku int64, _, _, _ string) *product.Product {
		atomic.AddInt64(&calls, 1)
		cancel()
		return okProduct(sku, "c", "t")
	}), 1, monitoring.NewMetrics())

	skus := make([]int64, 100)
	for i := range skus {
		skus[i] = int64(i)
	}
	_, err := ctrl.ExtractBatch(ctx, skus, "s", "c", "t")
	require.Error(t, err)
	assert.Less(t, atomic.LoadInt64(&calls), int64(100), "cancellation must stop the batch early")
}

func TestExtractBatchCountsOutcomes(t *testing.T) {
	metrics := monitoring.NewMetrics()
	ctrl := NewController(extractFunc(func(_ context.Context, sku int64, _, _, _ string) *product.Product {
		p := okProduct(sku, "c", "t")
		if sku%2 == 0 {
			p.OK = false
		}
		return p
	}), 3, metrics)

	products, err := ctrl.ExtractBatch(context.Background(), []int64{1, 2, 3, 4}, "s", "c", "t")
	require.NoError(t, err)

	okCount := 0
	for _, p := range products {
		if p.OK {
			okCount++
		}
	}
	assert.Equal(t, 2, okCount)
}
