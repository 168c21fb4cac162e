package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/notify"
	"github.com/marcus/kasir/internal/pricing"
	"github.com/marcus/kasir/internal/remote"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOrderLocked   = errors.New("order can only be edited while pending and unpaid")
	ErrInvalidInput  = errors.New("invalid input")
)

// OrderInput is what the order entry screen submits
type OrderInput struct {
	CustomerName string
	Type         models.OrderType
	Items        []models.LineItem
	Discount     models.Discount
}

// OrderEdit changes an open order. Nil fields are left as they are.
type OrderEdit struct {
	CustomerName *string
	Items        []models.LineItem
	Discount     *models.Discount
}

func validateItems(items []models.LineItem) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for _, l := range items {
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %q must be positive", ErrInvalidInput, l.Item.Name)
		}
		if l.Item.Price.IsNegative() {
			return fmt.Errorf("%w: price for %q is negative", ErrInvalidInput, l.Item.Name)
		}
	}
	return nil
}

// CreateOrder records a new order locally, then pushes it in the background.
// It never waits on the network.
func (e *Engine) CreateOrder(ctx context.Context, in OrderInput) (models.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return models.Order{}, err
	}
	if in.Type == "" {
		in.Type = models.OrderDineIn
	}
	if !in.Type.IsValid() {
		return models.Order{}, fmt.Errorf("%w: order type %q", ErrInvalidInput, in.Type)
	}
	branch := e.Branch()
	if branch == "" {
		return models.Order{}, ErrNoBranch
	}

	shift, err := e.takeSequence(branch)
	if err != nil {
		return models.Order{}, err
	}

	now := e.now()
	o := models.Order{
		ID:           newID(),
		BranchID:     branch,
		ShiftID:      shift.ID,
		Sequence:     shift.NextSequence - 1,
		CustomerName: strings.TrimSpace(in.CustomerName),
		Type:         in.Type,
		Items:        in.Items,
		Discount:     in.Discount,
		Breakdown:    pricing.Compute(in.Items, in.Discount, pricing.ConfigFromProfile(e.profile(branch))),
		Status:       models.StatusPending,
		Payment:      models.Payment{Status: models.PaymentUnpaid},
		Device:       e.device,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Dirty:        true,
	}

	key := e.key(branch, localstore.EntityOrders)
	localstore.Mutate(e.store, key, func(orders []models.Order) ([]models.Order, error) {
		return append([]models.Order{o}, orders...), nil
	})
	slog.Debug("order created", "order", o.ID, "ticket", o.Ticket(), "branch", branch)

	e.pushOrder(ctx, key, o, true)
	e.publish(ctx, notify.OrderCreated, branch, o)
	return o, nil
}

// UpdateOrderStatus moves an order along its lifecycle.
func (e *Engine) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	if !status.IsValid() {
		return models.Order{}, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	typ := notify.OrderStatus
	if status == models.StatusCancelled {
		typ = notify.OrderCancelled
	}
	return e.mutateOrder(ctx, id, typ, func(o *models.Order) error {
		return o.Transition(status)
	})
}

// CancelOrder cancels a pending or ready order.
func (e *Engine) CancelOrder(ctx context.Context, id string) (models.Order, error) {
	return e.UpdateOrderStatus(ctx, id, models.StatusCancelled)
}

// PayOrder settles an order.
func (e *Engine) PayOrder(ctx context.Context, id string, method models.PaymentMethod) (models.Order, error) {
	if !method.IsValid() {
		return models.Order{}, fmt.Errorf("%w: payment method %q", ErrInvalidInput, method)
	}
	now := e.now()
	return e.mutateOrder(ctx, id, notify.OrderPaid, func(o *models.Order) error {
		return o.Pay(method, now)
	})
}

// EditOrder changes items, discount or customer name of a pending, unpaid
// order and recomputes its breakdown.
func (e *Engine) EditOrder(ctx context.Context, id string, edit OrderEdit) (models.Order, error) {
	if edit.Items != nil {
		if err := validateItems(edit.Items); err != nil {
			return models.Order{}, err
		}
	}
	branch := e.Branch()
	cfg := pricing.ConfigFromProfile(e.profile(branch))
	return e.mutateOrder(ctx, id, notify.OrderEdited, func(o *models.Order) error {
		if o.Status != models.StatusPending || o.Payment.Status == models.PaymentPaid {
			return ErrOrderLocked
		}
		if edit.CustomerName != nil {
			o.CustomerName = strings.TrimSpace(*edit.CustomerName)
		}
		if edit.Items != nil {
			o.Items = edit.Items
		}
		if edit.Discount != nil {
			o.Discount = *edit.Discount
		}
		o.Breakdown = pricing.Compute(o.Items, o.Discount, cfg)
		return nil
	})
}

// mutateOrder applies fn to the local record, marks it dirty under a new
// revision and pushes the change in the background.
func (e *Engine) mutateOrder(ctx context.Context, id string, typ notify.EventType, fn func(*models.Order) error) (models.Order, error) {
	key, err := e.activeKey(localstore.EntityOrders)
	if err != nil {
		return models.Order{}, err
	}

	var updated models.Order
	_, err = localstore.Mutate(e.store, key, func(orders []models.Order) ([]models.Order, error) {
		for i := range orders {
			if orders[i].ID != id {
				continue
			}
			o := orders[i]
			if err := fn(&o); err != nil {
				return nil, err
			}
			o.Revision++
			o.UpdatedAt = e.now()
			o.Dirty = true
			orders[i] = o
			updated = o
			return orders, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	})
	if err != nil {
		return models.Order{}, err
	}

	e.pushOrder(ctx, key, updated, false)
	e.publish(ctx, typ, key.Branch, updated)
	return updated, nil
}

// pushOrder writes o to the remote store in the background. A create
// inserts; a mutation updates by identity, and a zero match leaves the
// record dirty for the reconciler. Success clears the dirty flag if no newer
// local edit happened meanwhile.
func (e *Engine) pushOrder(ctx context.Context, key localstore.Key, o models.Order, create bool) {
	if !e.remote.Available() {
		return
	}

	e.background(ctx, func(ctx context.Context) {
		defer e.pushes.lock(CollectionOrders + "/" + o.ID)()
		o := latest[models.Order](e.store, key, o)
		doc, err := o.Document()
		if err != nil {
			slog.Error("order not pushable", "order", o.ID, "err", err)
			return
		}

		if create {
			_, err = e.remote.Insert(ctx, CollectionOrders, doc)
		} else {
			var matched int
			matched, err = e.remote.UpdateWhere(ctx, CollectionOrders, "id", o.ID, doc)
			if err == nil && matched == 0 {
				slog.Debug("order not in remote yet, left for reconcile", "order", o.ID)
				return
			}
		}

		entry := localstore.HistoryEntry{
			Direction: localstore.DirectionPush,
			Entity:    localstore.EntityOrders,
			EntityID:  o.ID,
			Result:    localstore.ResultOK,
		}
		if err != nil {
			slog.Debug("order push failed, left dirty", "order", o.ID, "kind", remote.KindOf(err).String(), "err", err)
			if create && remote.KindOf(err) == remote.KindTimeout {
				e.notifier.SlowSubmission(o)
			}
			entry.Result = localstore.ResultFailed
			entry.Detail = err.Error()
			e.recordHistory(entry)
			return
		}

		markClean[models.Order](e.store, key, o.ID, o.Revision)
		e.recordHistory(entry)
	})
}

// Orders returns the active branch's orders, newest first.
func (e *Engine) Orders() []models.Order {
	key, err := e.activeKey(localstore.EntityOrders)
	if err != nil {
		return []models.Order{}
	}
	orders := localstore.Load[models.Order](e.store, key)
	SortOrders(orders)
	return orders
}

// Order looks up one order of the active branch. A unique id prefix is
// accepted too.
func (e *Engine) Order(id string) (models.Order, bool) {
	var match []models.Order
	for _, o := range e.Orders() {
		if o.ID == id {
			return o, true
		}
		if id != "" && strings.HasPrefix(o.ID, id) {
			match = append(match, o)
		}
	}
	if len(match) == 1 {
		return match[0], true
	}
	return models.Order{}, false
}

// OnOrdersChanged registers fn to receive the active branch's orders after
// every local change, including merges from the remote store. It follows
// branch switches.
func (e *Engine) OnOrdersChanged(fn func([]models.Order)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextListen
	e.nextListen++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// watchOrders hooks the local store's change feed for the current branch.
func (e *Engine) watchOrders() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	if e.branch == "" {
		return
	}
	e.unwatch = e.store.OnChange(e.key(e.branch, localstore.EntityOrders), func(k localstore.Key) {
		e.mu.Lock()
		if k.Branch != e.branch {
			e.mu.Unlock()
			return
		}
		fns := make([]func([]models.Order), 0, len(e.listeners))
		for _, fn := range e.listeners {
			fns = append(fns, fn)
		}
		e.mu.Unlock()
		if len(fns) == 0 {
			return
		}

		orders := localstore.Load[models.Order](e.store, k)
		SortOrders(orders)
		for _, fn := range fns {
			fn(orders)
		}
	})
}
