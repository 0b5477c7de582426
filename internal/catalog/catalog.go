// Package catalog models crawl targets and turns them into page-bounded
// price filters and SKU pools.
package catalog

import (
	"fmt"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// Status is the catalog lifecycle state. Transitions are one-directional
// within a pass: Enqueued -> Done, or Enqueued/Done -> Failure. Failure on a
// retry pass is terminal.
type Status int

const (
	StatusEnqueued Status = iota
	StatusDone
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusFailure:
		return "failure"
	default:
		return "enqueued"
	}
}

// Filter is one leaf of the price-bisection tree: a price window whose item
// count fits under the page cap, or whose window collapsed to the minimum
// width. A zero-item filter stays in the pool but is never harvested.
type Filter struct {
	Name       string
	MinPrice   int
	MaxPrice   int
	TotalItems int
	TotalPages int
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %d pages, %d items, %d..%d",
		f.Name, f.TotalPages, f.TotalItems, f.MinPrice, f.MaxPrice)
}

// Catalog is one crawl target: a named listing endpoint plus the filter and
// SKU pools discovery fills in, and the counters the completion threshold is
// judged against.
type Catalog struct {
	Name    string
	Address string // site URL of the category, empty for brand catalogs
	Source  wbapi.Source

	Status  Status
	Filters []Filter
	SKUs    []int64

	// TotalItems is the server-reported item count summed over accepted
	// filters (or the SKU-pool length in by-SKU mode).
	TotalItems int
	TotalPages int

	// HarvestedPct is |SKUs| / TotalItems after page harvesting.
	HarvestedPct float64

	// ParsedCount and ParsedPct are set by the extraction pass.
	ParsedCount int
	ParsedPct   float64
}

// New creates a catalog for a listing source.
func New(name string, src wbapi.Source) *Catalog {
	return &Catalog{Name: name, Source: src}
}

// NewBySKUs creates a catalog over a pre-collected SKU pool, skipping
// discovery and harvesting entirely.
func NewBySKUs(name string, skus []int64) *Catalog {
	return &Catalog{
		Name:       name,
		SKUs:       skus,
		TotalItems: len(skus),
	}
}

// AddFilter appends a filter leaf and rolls its counts into the catalog
// totals. Zero-item filters are retained but contribute nothing.
func (c *Catalog) AddFilter(f Filter) {
	c.Filters = append(c.Filters, f)
	c.TotalItems += f.TotalItems
	c.TotalPages += f.TotalPages
}

// Reset clears discovery and extraction state ahead of a retry pass
// rebuild.
func (c *Catalog) Reset() {
	c.Filters = nil
	c.SKUs = nil
	c.TotalItems = 0
	c.TotalPages = 0
	c.HarvestedPct = 0
	c.ParsedCount = 0
	c.ParsedPct = 0
}

func (c *Catalog) String() string {
	return fmt.Sprintf("%s (%d items) %s", c.Name, c.TotalItems, c.Address)
}
