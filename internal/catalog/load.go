package catalog

import (
	"encoding/csv"
	"net/url"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

// LoadCatalogs reads the catalog list from a tab-separated file with a
// `name`/`url` header and resolves each URL against the site menu to obtain
// its shard and query. Catalogs whose path is missing from the menu are kept
// with an empty source; discovery will fail them cleanly instead of the
// loader guessing a shard.
func LoadCatalogs(path string, menu wbapi.Menu) ([]*Catalog, error) {
	rows, err := readDelimited(path, '\t')
	if err != nil {
		return nil, eris.Wrap(err, "catalog: load catalogs file")
	}

	var out []*Catalog
	for _, row := range rows {
		name, address := row["name"], row["url"]
		if name == "" || address == "" {
			continue
		}

		u, err := url.Parse(address)
		if err != nil {
			zap.L().Warn("catalog: skipping unparseable url",
				zap.String("name", name), zap.String("url", address))
			continue
		}

		item, ok := menu[u.Path]
		if !ok {
			zap.L().Warn("catalog: address not found in site menu",
				zap.String("name", name), zap.String("path", u.Path))
		}

		c := New(name, wbapi.Source{
			Shard:    item.Shard,
			Query:    item.Query,
			XSubject: u.Query().Get("xsubject"),
		})
		c.Address = address
		out = append(out, c)
	}
	return out, nil
}

// LoadBrands reads brand catalogs from a tab-separated file with a
// `category_name`/`brand id`/`xsubject` header.
func LoadBrands(path string) ([]*Catalog, error) {
	rows, err := readDelimited(path, '\t')
	if err != nil {
		return nil, eris.Wrap(err, "catalog: load brands file")
	}

	var out []*Catalog
	for _, row := range rows {
		name, brandID := row["category_name"], row["brand id"]
		if name == "" || brandID == "" {
			continue
		}
		out = append(out, New(name, wbapi.Source{
			BrandID:  brandID,
			XSubject: row["xsubject"],
		}))
	}
	return out, nil
}

// LoadSKUList reads a pre-collected `catalog_name;sku` CSV and returns one
// catalog per distinct name, each holding the deduplicated SKUs of its group.
// Catalog order follows first appearance in the file.
func LoadSKUList(path string) ([]*Catalog, error) {
	rows, err := readDelimited(path, ';')
	if err != nil {
		return nil, eris.Wrap(err, "catalog: load sku list")
	}

	var order []string
	groups := make(map[string][]int64)
	seen := make(map[string]map[int64]struct{})

	for _, row := range rows {
		name := row["catalog_name"]
		sku, err := strconv.ParseInt(row["sku"], 10, 64)
		if name == "" || err != nil {
			continue
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
			seen[name] = make(map[int64]struct{})
		}
		if _, dup := seen[name][sku]; dup {
			continue
		}
		seen[name][sku] = struct{}{}
		groups[name] = append(groups[name], sku)
	}

	out := make([]*Catalog, 0, len(order))
	for _, name := range order {
		out = append(out, NewBySKUs(name, groups[name]))
	}
	return out, nil
}

// readDelimited reads a headered delimited file into one map per data row.
func readDelimited(path string, comma rune) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
