// Package notify fans order changes out to other systems, such as a
// kitchen display queue or a webhook. Delivery is best-effort.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcus/kasir/internal/models"
)

// EventType names what happened to an order
type EventType string

const (
	OrderCreated   EventType = "order.created"
	OrderStatus    EventType = "order.status"
	OrderPaid      EventType = "order.paid"
	OrderEdited    EventType = "order.edited"
	OrderCancelled EventType = "order.cancelled"
)

// Event is one order change
type Event struct {
	Type   EventType    `json:"type"`
	Branch string       `json:"branch"`
	Device string       `json:"device"`
	At     time.Time    `json:"at"`
	Order  models.Order `json:"order"`
}

// Sink receives order events
type Sink interface {
	OrderChanged(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) OrderChanged(ctx context.Context, ev Event) error { return f(ctx, ev) }

type multi []Sink

// Multi delivers to every sink; one failing sink does not stop the rest.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) OrderChanged(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.OrderChanged(ctx, ev); err != nil {
			slog.Debug("notify: sink failed", "event", ev.Type, "order", ev.Order.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
