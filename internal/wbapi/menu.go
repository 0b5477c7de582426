package wbapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// MenuItem resolves a catalog's site path to the shard and query string the
// catalog endpoints expect.
type MenuItem struct {
	URL   string `json:"url"`
	Shard string `json:"shard"`
	Query string `json:"query"`
}

type menuCategory struct {
	MenuItem
	Childs []menuCategory `json:"childs"`
}

// Menu maps a site path (e.g. /catalog/zhenshchinam/odezhda) to its item.
type Menu map[string]MenuItem

// FetchMenu downloads the remote category menu and flattens its tree into a
// path-keyed lookup. The menu is a static CDN document and is fetched
// directly, without a proxy.
func FetchMenu(ctx context.Context) (Menu, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, MenuURL(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wbapi: create menu request")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wbapi: fetch menu")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: MenuURL(), StatusCode: resp.StatusCode}
	}

	var categories []menuCategory
	if err := json.NewDecoder(resp.Body).Decode(&categories); err != nil {
		return nil, eris.Wrap(err, "wbapi: decode menu")
	}

	menu := make(Menu)
	flattenMenu(categories, menu)
	return menu, nil
}

func flattenMenu(categories []menuCategory, into Menu) {
	for _, c := range categories {
		if c.URL != "" {
			into[c.URL] = c.MenuItem
		}
		flattenMenu(c.Childs, into)
	}
}
