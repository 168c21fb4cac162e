// Package pricing computes the financial breakdown of a cart.
package pricing

import (
	"github.com/marcus/kasir/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config holds the store-level tax and service switches
type Config struct {
	EnableTax     bool
	TaxRate       decimal.Decimal
	EnableService bool
	ServiceRate   decimal.Decimal
}

// ConfigFromProfile extracts the pricing switches from a store profile
func ConfigFromProfile(p models.Profile) Config {
	return Config{
		EnableTax:     p.EnableTax,
		TaxRate:       p.TaxRate,
		EnableService: p.EnableService,
		ServiceRate:   p.ServiceRate,
	}
}

// Subtotal sums price × quantity over all lines. Lines with a
// non-positive quantity contribute nothing.
func Subtotal(items []models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range items {
		if l.Quantity <= 0 {
			continue
		}
		sum = sum.Add(l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// DiscountAmount resolves the discount input against subtotal. The result
// never exceeds subtotal and is never negative.
func DiscountAmount(subtotal decimal.Decimal, d models.Discount) decimal.Decimal {
	value := d.Value
	if value.IsNegative() {
		value = decimal.Zero
	}
	amount := value
	if d.Type == models.DiscountPercent {
		amount = subtotal.Mul(value).Div(hundred)
	}
	return decimal.Min(amount, subtotal)
}

// Compute returns the breakdown for a cart. It is a pure function: the same
// inputs always produce the same output. Only the total is rounded, half-up
// to whole currency units.
func Compute(items []models.LineItem, d models.Discount, cfg Config) models.Breakdown {
	subtotal := Subtotal(items)
	discount := DiscountAmount(subtotal, d)
	taxable := subtotal.Sub(discount)

	service := decimal.Zero
	if cfg.EnableService {
		service = taxable.Mul(cfg.ServiceRate).Div(hundred)
	}
	tax := decimal.Zero
	if cfg.EnableTax {
		tax = taxable.Add(service).Mul(cfg.TaxRate).Div(hundred)
	}

	return models.Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Taxable:  taxable,
		Service:  service,
		Tax:      tax,
		Total:    taxable.Add(service).Add(tax).Round(0),
	}
}
