// Package report writes the delimited product report and ships it out.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/product"
)

// Writer appends product rows to a dated semicolon-delimited report file.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates the report file for today under dir, writing the header.
// An existing file for the same date is truncated.
func NewWriter(dir, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "report: create dir")
	}
	path := filepath.Join(dir, prefix+time.Now().Format("2006-01-02")+".csv")

	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(product.Header()); err != nil {
		return nil, eris.Wrap(err, "report: write header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "report: flush header")
	}
	return &Writer{path: path}, nil
}

// Path returns the report file location.
func (w *Writer) Path() string { return w.path }

// Append writes the successfully extracted products and returns how many
// were written. Failed products are dropped with a diagnostic listing their
// SKUs, so a stuck batch is visible in the log.
func (w *Writer) Append(products []*product.Product) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var bad []int64
	for _, p := range products {
		if p != nil && !p.OK {
			bad = append(bad, p.SKU)
		}
	}
	if len(bad) > 0 {
		zap.L().Error("report: products dropped after failed extraction",
			zap.Int64s("skus", bad))
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, eris.Wrap(err, "report: open for append")
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	cw.Comma = ';'

	written := 0
	for _, p := range products {
		if p == nil || !p.OK {
			continue
		}
		if err := cw.Write(p.Row()); err != nil {
			return written, eris.Wrap(err, "report: write row")
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, eris.Wrap(err, "report: flush")
	}

	zap.L().Info("report: products written", zap.Int("count", written))
	return written, nil
}

// Dedup rewrites the report keeping, per (catalog_name, sku) pair, the row
// with the earliest date_create. Retry passes can legitimately produce a
// second row for the same product.
func (w *Writer) Dedup() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return eris.Wrap(err, "report: open for dedup")
	}
	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	f.Close() //nolint:errcheck,gosec
	if err != nil {
		return eris.Wrap(err, "report: read for dedup")
	}
	if len(records) < 2 {
		return nil
	}

	header, rows := records[0], records[1:]
	before := len(rows)

	// Short rows are dropped before the sort touches their columns.
	full := rows[:0]
	for _, row := range rows {
		if len(row) >= len(header) {
			full = append(full, row)
		}
	}
	rows = full

	// Column positions per product.Header: sku=1, date_create=7,
	// catalog_name=10.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][7] < rows[j][7]
	})

	type key struct{ catalog, sku string }
	seen := make(map[key]struct{}, len(rows))
	kept := rows[:0]
	for _, row := range rows {
		k := key{catalog: row[10], sku: row[1]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}

	out, err := os.Create(w.path)
	if err != nil {
		return eris.Wrap(err, "report: rewrite for dedup")
	}
	defer out.Close() //nolint:errcheck

	cw := csv.NewWriter(out)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: rewrite header")
	}
	if err := cw.WriteAll(kept); err != nil {
		return eris.Wrap(err, "report: rewrite rows")
	}

	zap.L().Info("report: duplicates cleared",
		zap.Int("before", before), zap.Int("after", len(kept)))
	return nil
}
