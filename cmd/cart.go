package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/kasir/internal/models"
	"github.com/shopspring/decimal"
)

// parseItem reads a cart line written as name[=price][*qty][#note]. Without
// a price the item must exist in the menu, matched by id or name.
func parseItem(arg string, menu []models.MenuItem) (models.LineItem, error) {
	line := models.LineItem{Quantity: 1}
	s := strings.TrimSpace(arg)

	if i := strings.Index(s, "#"); i >= 0 {
		line.Note = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}
	if i := strings.LastIndex(s, "*"); i >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
		if err != nil || n <= 0 {
			return models.LineItem{}, fmt.Errorf("invalid quantity in %q", arg)
		}
		line.Quantity = n
		s = strings.TrimSpace(s[:i])
	}

	var price *decimal.Decimal
	if i := strings.LastIndex(s, "="); i >= 0 {
		p, err := decimal.NewFromString(strings.TrimSpace(s[i+1:]))
		if err != nil {
			return models.LineItem{}, fmt.Errorf("invalid price in %q", arg)
		}
		price = &p
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return models.LineItem{}, fmt.Errorf("missing item name in %q", arg)
	}

	item, found := lookupMenu(menu, s)
	switch {
	case found && price != nil:
		item.Price = *price
	case !found && price == nil:
		return models.LineItem{}, fmt.Errorf("%q is not on the menu; give a price as name=price", s)
	case !found:
		item = models.MenuItem{Name: s, Price: *price}
	}
	line.Item = item
	return line, nil
}

func parseItems(args []string, menu []models.MenuItem) ([]models.LineItem, error) {
	items := make([]models.LineItem, 0, len(args))
	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		l, err := parseItem(arg, menu)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}

func lookupMenu(menu []models.MenuItem, key string) (models.MenuItem, bool) {
	for _, m := range menu {
		if m.ID != "" && m.ID == key {
			return m, true
		}
	}
	for _, m := range menu {
		if strings.EqualFold(m.Name, key) {
			return m, true
		}
	}
	return models.MenuItem{}, false
}

// parseDiscount reads "10%" as a percentage and a bare number as a fixed
// amount. Empty means no discount.
func parseDiscount(s string) (models.Discount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Discount{}, nil
	}
	typ := models.DiscountFixed
	if strings.HasSuffix(s, "%") {
		typ = models.DiscountPercent
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	v, err := decimal.NewFromString(s)
	if err != nil || v.IsNegative() {
		return models.Discount{}, fmt.Errorf("invalid discount %q", s)
	}
	if typ == models.DiscountPercent && v.GreaterThan(decimal.NewFromInt(100)) {
		return models.Discount{}, fmt.Errorf("discount above 100%%")
	}
	return models.Discount{Type: typ, Value: v}, nil
}
