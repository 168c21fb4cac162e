package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the kitchen/lifecycle status of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// OrderType tags where the order came from / how it is served
type OrderType string

const (
	OrderDineIn    OrderType = "dine_in"
	OrderTakeaway  OrderType = "takeaway"
	OrderDelivery  OrderType = "delivery"
	OrderSelfOrder OrderType = "self_order"
)

// PaymentStatus represents whether an order has been settled
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentMethod represents how an order was paid
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodQRIS     PaymentMethod = "qris"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// DiscountType selects how Discount.Value is interpreted
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrOrderClosed       = errors.New("order is closed")
)

// MenuItem is a snapshot of a menu entry at the time it was put in the cart
type MenuItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
}

// LineItem is one cart line
type LineItem struct {
	Item     MenuItem `json:"item"`
	Quantity int      `json:"quantity"`
	Note     string   `json:"note,omitempty"`
}

// Discount is the cashier's discount input
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Breakdown is the computed financial summary of an order
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	Service  decimal.Decimal `json:"service"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Payment holds the settlement state of an order
type Payment struct {
	Status PaymentStatus `json:"status"`
	Method PaymentMethod `json:"method,omitempty"`
	PaidAt *time.Time    `json:"paid_at,omitempty"`
}

// Order is the central ledger entity. ID is generated locally and never changes.
type Order struct {
	ID           string      `json:"id"`
	BranchID     string      `json:"branch_id"`
	ShiftID      string      `json:"shift_id"`
	Sequence     int         `json:"sequence"`
	CustomerName string      `json:"customer_name"`
	Type         OrderType   `json:"order_type"`
	Items        []LineItem  `json:"items"`
	Discount     Discount    `json:"discount"`
	Breakdown    Breakdown   `json:"breakdown"`
	Status       OrderStatus `json:"status"`
	Payment      Payment     `json:"payment"`
	Device       string      `json:"device,omitempty"`
	Revision     int64       `json:"revision"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Dirty is sync metadata: true until the remote store acknowledged the
	// current revision. Never sent to the remote store.
	Dirty bool `json:"dirty"`
}

// IsTerminal reports whether the order can no longer change status
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed lifecycle step
func CanTransition(from, to OrderStatus) bool {
	switch to {
	case StatusReady:
		return from == StatusPending
	case StatusCompleted:
		return from == StatusReady
	case StatusCancelled:
		return !from.IsTerminal()
	}
	return false
}

// IsValid reports whether m is a known payment method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodQRIS, MethodCard, MethodTransfer:
		return true
	}
	return false
}

// IsValid reports whether t is a known order type
func (t OrderType) IsValid() bool {
	switch t {
	case OrderDineIn, OrderTakeaway, OrderDelivery, OrderSelfOrder:
		return true
	}
	return false
}

// Ticket returns the human-readable ticket number, e.g. "#007"
func (o Order) Ticket() string {
	return fmt.Sprintf("#%03d", o.Sequence)
}

// ItemCount returns the total quantity across all lines
func (o Order) ItemCount() int {
	n := 0
	for _, l := range o.Items {
		n += l.Quantity
	}
	return n
}

// Transition applies a status change. Same-status calls are no-ops.
func (o *Order) Transition(to OrderStatus) error {
	if o.Status == to {
		return nil
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	return nil
}

// Pay marks the order paid with the given method
func (o *Order) Pay(method PaymentMethod, at time.Time) error {
	if o.Status == StatusCancelled {
		return ErrOrderClosed
	}
	if o.Payment.Status == PaymentPaid {
		return ErrAlreadyPaid
	}
	o.Payment = Payment{Status: PaymentPaid, Method: method, PaidAt: &at}
	return nil
}
