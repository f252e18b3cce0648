package usecase

import (
	"testing"

	"speedliner/internal/domain/models"
)

const routeDoc = `[
	{"id": 1, "from": "Jita", "to": "Amarr", "pricePerM3": "500", "visibility": "Whitelist", "allowedCorps": [98000001]},
	{"id": "2", "from": "", "to": "Hek", "pricePerM3": 1},
	{"id": "3", "from": "Amarr", "to": "Hek", "pricePerM3": -1},
	{"id": "4", "from": "Jita", "to": "Rens", "pricePerM3": 10, "noCollateral": true, "min_price": 70000000},
	"garbage",
	{"id": "4", "from": "Jita", "to": "Rens", "pricePerM3": 20}
]`

func TestRegistryReplaceJSON(t *testing.T) {
	reg := NewRouteRegistry(nil)
	res, err := reg.ReplaceJSON([]byte(routeDoc))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 4 || res.Version != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	r1, ok := reg.Get("1")
	if !ok {
		t.Fatalf("route 1 missing")
	}
	if r1.PricePerM3 != 500 || r1.Visibility != models.VisibilityWhitelist || r1.MinPrice != models.DefaultMinPrice {
		t.Fatalf("route 1 not coerced: %+v", r1)
	}

	r4, _ := reg.Get("4")
	if r4.Visibility != models.VisibilityAll || r4.MinPrice != 70_000_000 || r4.PricePerM3 != 10 {
		t.Fatalf("route 4 not coerced: %+v", r4)
	}

	opts := reg.Options()
	if len(opts) != 2 {
		t.Fatalf("options = %d", len(opts))
	}
	if opts[0].Value != "1" || opts[0].Label != "Jita ↔ Amarr — 🔒 Corp" {
		t.Fatalf("option 0 = %+v", opts[0])
	}
	if opts[1].Label != "Jita ↔ Rens — No collateral" {
		t.Fatalf("option 1 = %+v", opts[1])
	}
}

func TestRegistryKeepsCollectionOnBadDocument(t *testing.T) {
	reg := testRegistry(t)
	if _, err := reg.ReplaceJSON([]byte(`{"id": 1}`)); err == nil {
		t.Fatalf("expected error for non-array document")
	}
	if reg.Len() != 3 || reg.Version() != 1 {
		t.Fatalf("registry changed: len %d version %d", reg.Len(), reg.Version())
	}
}

func TestRegistryReplaceIsWholesale(t *testing.T) {
	reg := testRegistry(t)
	reg.Replace([]models.Route{{ID: "9", From: "A", To: "B", PricePerM3: 1}})
	if _, ok := reg.Get("1"); ok {
		t.Fatalf("old route survived a replace")
	}
	if reg.Len() != 1 || reg.Version() != 2 {
		t.Fatalf("len %d version %d", reg.Len(), reg.Version())
	}
}

func TestRegistryVisible(t *testing.T) {
	reg := testRegistry(t)
	if got := len(reg.Visible(98000001)); got != 3 {
		t.Fatalf("member sees %d routes, want 3", got)
	}
	if got := len(reg.Visible(1)); got != 2 {
		t.Fatalf("outsider sees %d routes, want 2", got)
	}
}

func TestRegistryRoutesAreImmutable(t *testing.T) {
	reg := NewRouteRegistry(nil)
	if _, err := reg.ReplaceJSON([]byte(routeDoc)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	r, _ := reg.Get("1")
	r.AllowedCorps[0] = 99
	reg.List()[0].AllowedCorps[0] = 99
	for _, v := range reg.Visible(98000001) {
		if v.ID == "1" {
			v.AllowedCorps[0] = 99
		}
	}

	got, _ := reg.Get("1")
	if len(got.AllowedCorps) != 1 || got.AllowedCorps[0] != 98000001 {
		t.Fatalf("allowed corps changed by a caller: %v", got.AllowedCorps)
	}
	if !got.VisibleTo(98000001) || got.VisibleTo(99) {
		t.Fatalf("visibility changed by a caller")
	}

	input := []models.Route{{ID: "7", From: "Jita", To: "Amarr", PricePerM3: 1, Visibility: models.VisibilityWhitelist, AllowedCorps: []int64{5}}}
	reg.Replace(input)
	input[0].AllowedCorps[0] = 6
	if got, _ := reg.Get("7"); got.AllowedCorps[0] != 5 {
		t.Fatalf("registry aliases the replaced slice: %v", got.AllowedCorps)
	}
}

func TestQuoteCacheDiscardsStaleResults(t *testing.T) {
	var c QuoteCache
	old := c.Invalidate()
	newer := c.Invalidate()

	if c.Store(old, models.Quote{BaseTotal: 1}) {
		t.Fatalf("stale result stored")
	}
	if _, ok := c.Get(); ok {
		t.Fatalf("cache should be empty")
	}
	if !c.Store(newer, models.Quote{BaseTotal: 2}) {
		t.Fatalf("current result rejected")
	}
	q, ok := c.Get()
	if !ok || q.BaseTotal != 2 {
		t.Fatalf("got %+v %v", q, ok)
	}
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Fatalf("invalidate must clear the quote")
	}
}
