package wbapi

import (
	"encoding/json"
	"testing"
)

func TestFlattenMenu(t *testing.T) {
	raw := `[
		{
			"url": "/catalog/muzhchinam", "shard": "men", "query": "cat=100",
			"childs": [
				{"url": "/catalog/muzhchinam/odezhda", "shard": "men_clothes", "query": "cat=101", "childs": [
					{"url": "/catalog/muzhchinam/odezhda/noski", "shard": "men_clothes", "query": "cat=566"}
				]},
				{"url": "", "shard": "hidden", "query": "cat=999"}
			]
		},
		{"url": "/catalog/zhenshchinam", "shard": "women", "query": "cat=200"}
	]`

	var categories []menuCategory
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	menu := make(Menu)
	flattenMenu(categories, menu)

	if len(menu) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(menu))
	}

	leaf, ok := menu["/catalog/muzhchinam/odezhda/noski"]
	if !ok {
		t.Fatal("nested leaf missing from flattened menu")
	}
	if leaf.Shard != "men_clothes" || leaf.Query != "cat=566" {
		t.Fatalf("leaf resolved to %+v", leaf)
	}

	if _, ok := menu[""]; ok {
		t.Fatal("entries without a url must be dropped")
	}
}
