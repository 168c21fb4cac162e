package cmd

import (
	"testing"

	"github.com/marcus/kasir/internal/models"
	"github.com/shopspring/decimal"
)

var testMenu = []models.MenuItem{
	{ID: "m-latte", Name: "Es Kopi Susu", Price: decimal.NewFromInt(18000), Category: "coffee"},
	{ID: "m-toast", Name: "Roti Bakar", Price: decimal.NewFromInt(15000), Category: "food"},
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		item  string
		name  string
		id    string
		price int64
		qty   int
		note  string
	}{
		{"Es Kopi Susu", "Es Kopi Susu", "m-latte", 18000, 1, ""},
		{"es kopi susu*3", "Es Kopi Susu", "m-latte", 18000, 3, ""},
		{"m-toast#no butter", "Roti Bakar", "m-toast", 15000, 1, "no butter"},
		{"Roti Bakar=12000*2", "Roti Bakar", "m-toast", 12000, 2, ""},
		{"Air Mineral=5000", "Air Mineral", "", 5000, 1, ""},
		{" Teh Manis = 6000 * 2 # less sugar ", "Teh Manis", "", 6000, 2, "less sugar"},
	}
	for _, tc := range tests {
		got, err := parseItem(tc.item, testMenu)
		if err != nil {
			t.Errorf("parseItem(%q): %v", tc.item, err)
			continue
		}
		if got.Item.Name != tc.name || got.Item.ID != tc.id {
			t.Errorf("parseItem(%q) item = %+v", tc.item, got.Item)
		}
		if !got.Item.Price.Equal(decimal.NewFromInt(tc.price)) {
			t.Errorf("parseItem(%q) price = %s, want %d", tc.item, got.Item.Price, tc.price)
		}
		if got.Quantity != tc.qty || got.Note != tc.note {
			t.Errorf("parseItem(%q) = qty %d note %q", tc.item, got.Quantity, got.Note)
		}
	}
}

func TestParseItemErrors(t *testing.T) {
	for _, item := range []string{"Nasi Goreng", "=5000", "Roti Bakar*0", "Roti Bakar*x", "Teh=abc"} {
		if _, err := parseItem(item, testMenu); err == nil {
			t.Errorf("parseItem(%q) should fail", item)
		}
	}
}

func TestParseItemsSkipsBlankLines(t *testing.T) {
	items, err := parseItems([]string{"Roti Bakar", "", "  "}, testMenu)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestParseDiscount(t *testing.T) {
	d, err := parseDiscount("10%")
	if err != nil || d.Type != models.DiscountPercent || !d.Value.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("percent: %+v %v", d, err)
	}
	d, err = parseDiscount("5000")
	if err != nil || d.Type != models.DiscountFixed || !d.Value.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("fixed: %+v %v", d, err)
	}
	d, err = parseDiscount("")
	if err != nil || d.Type != "" {
		t.Fatalf("empty: %+v %v", d, err)
	}
	for _, bad := range []string{"-5", "150%", "ten"} {
		if _, err := parseDiscount(bad); err == nil {
			t.Errorf("parseDiscount(%q) should fail", bad)
		}
	}
}

func TestFilterOrders(t *testing.T) {
	orders := []models.Order{
		{ID: "a", Status: models.StatusPending, Dirty: true},
		{ID: "b", Status: models.StatusReady},
		{ID: "c", Status: models.StatusPending},
	}
	if got := filterOrders(orders, []string{"pending"}, false); len(got) != 2 {
		t.Errorf("status filter = %d, want 2", len(got))
	}
	if got := filterOrders(orders, nil, true); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("pending filter = %+v", got)
	}
	if got := filterOrders(orders, nil, false); len(got) != 3 {
		t.Errorf("no filter = %d", len(got))
	}
}
