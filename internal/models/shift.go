package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shift is a cash drawer session. Orders take their ticket number from
// NextSequence while the shift is open.
type Shift struct {
	ID           string          `json:"id"`
	BranchID     string          `json:"branch_id"`
	OpenedBy     string          `json:"opened_by"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	NextSequence int             `json:"next_sequence"`
}

// IsOpen reports whether the shift is still accepting orders
func (s Shift) IsOpen() bool {
	return s.ID != "" && s.ClosedAt == nil
}

// ShiftSummary is the end-of-shift totals handed to the receipt printer
type ShiftSummary struct {
	ShiftID   string                            `json:"shift_id"`
	OpenedAt  time.Time                         `json:"opened_at"`
	ClosedAt  *time.Time                        `json:"closed_at,omitempty"`
	Orders    int                               `json:"orders"`
	Completed int                               `json:"completed"`
	Cancelled int                               `json:"cancelled"`
	Unpaid    int                               `json:"unpaid"`
	Gross     decimal.Decimal                   `json:"gross"`
	Discounts decimal.Decimal                   `json:"discounts"`
	Service   decimal.Decimal                   `json:"service"`
	Tax       decimal.Decimal                   `json:"tax"`
	ByMethod  map[PaymentMethod]decimal.Decimal `json:"by_method"`
	Cash      decimal.Decimal                   `json:"expected_cash"`
}

// Summarize totals the given orders for shift s. Cancelled orders count
// toward Cancelled only; unpaid orders are excluded from money totals.
func Summarize(s Shift, orders []Order) ShiftSummary {
	sum := ShiftSummary{
		ShiftID:   s.ID,
		OpenedAt:  s.OpenedAt,
		ClosedAt:  s.ClosedAt,
		Gross:     decimal.Zero,
		Discounts: decimal.Zero,
		Service:   decimal.Zero,
		Tax:       decimal.Zero,
		ByMethod:  map[PaymentMethod]decimal.Decimal{},
		Cash:      s.OpeningCash,
	}
	for _, o := range orders {
		if o.ShiftID != s.ID {
			continue
		}
		sum.Orders++
		switch o.Status {
		case StatusCancelled:
			sum.Cancelled++
			continue
		case StatusCompleted:
			sum.Completed++
		}
		if o.Payment.Status != PaymentPaid {
			sum.Unpaid++
			continue
		}
		sum.Gross = sum.Gross.Add(o.Breakdown.Total)
		sum.Discounts = sum.Discounts.Add(o.Breakdown.Discount)
		sum.Service = sum.Service.Add(o.Breakdown.Service)
		sum.Tax = sum.Tax.Add(o.Breakdown.Tax)
		sum.ByMethod[o.Payment.Method] = sum.ByMethod[o.Payment.Method].Add(o.Breakdown.Total)
		if o.Payment.Method == MethodCash {
			sum.Cash = sum.Cash.Add(o.Breakdown.Total)
		}
	}
	return sum
}
