package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	"github.com/shopspring/decimal"
)

var (
	ErrNoOpenShift      = errors.New("no open shift")
	ErrShiftAlreadyOpen = errors.New("a shift is already open")
)

// takeSequence reserves the next ticket number of the open shift. It
// returns the shift after the counter was advanced.
func (e *Engine) takeSequence(branch string) (models.Shift, error) {
	return localstore.MutateDoc(e.store, e.key(branch, localstore.EntityShift), func(s models.Shift, ok bool) (models.Shift, error) {
		if !ok || !s.IsOpen() {
			return s, ErrNoOpenShift
		}
		if s.NextSequence < 1 {
			s.NextSequence = 1
		}
		s.NextSequence++
		return s, nil
	})
}

// CurrentShift returns the active branch's open shift.
func (e *Engine) CurrentShift() (models.Shift, bool) {
	key, err := e.activeKey(localstore.EntityShift)
	if err != nil {
		return models.Shift{}, false
	}
	s, ok := localstore.LoadDoc[models.Shift](e.store, key)
	if !ok || !s.IsOpen() {
		return models.Shift{}, false
	}
	return s, true
}

// OpenShift starts a cash drawer session; ticket numbers restart at 1.
func (e *Engine) OpenShift(ctx context.Context, by string, openingCash decimal.Decimal) (models.Shift, error) {
	key, err := e.activeKey(localstore.EntityShift)
	if err != nil {
		return models.Shift{}, err
	}
	s, err := localstore.MutateDoc(e.store, key, func(cur models.Shift, ok bool) (models.Shift, error) {
		if ok && cur.IsOpen() {
			return cur, ErrShiftAlreadyOpen
		}
		return models.Shift{
			ID:           newID(),
			BranchID:     key.Branch,
			OpenedBy:     by,
			OpenedAt:     e.now(),
			OpeningCash:  openingCash,
			NextSequence: 1,
		}, nil
	})
	if err != nil {
		return models.Shift{}, err
	}
	slog.Info("shift opened", "shift", s.ID, "branch", key.Branch, "by", by)
	e.mirrorShift(ctx, key.Branch, s)
	return s, nil
}

// CloseShift ends the open shift and returns its totals.
func (e *Engine) CloseShift(ctx context.Context) (models.ShiftSummary, error) {
	key, err := e.activeKey(localstore.EntityShift)
	if err != nil {
		return models.ShiftSummary{}, err
	}
	s, err := localstore.MutateDoc(e.store, key, func(cur models.Shift, ok bool) (models.Shift, error) {
		if !ok || !cur.IsOpen() {
			return cur, ErrNoOpenShift
		}
		now := e.now()
		cur.ClosedAt = &now
		return cur, nil
	})
	if err != nil {
		return models.ShiftSummary{}, err
	}

	orders := localstore.Load[models.Order](e.store, e.key(key.Branch, localstore.EntityOrders))
	summary := models.Summarize(s, orders)
	slog.Info("shift closed", "shift", s.ID, "orders", summary.Orders, "gross", summary.Gross.String())
	e.mirrorShift(ctx, key.Branch, s)
	return summary, nil
}

// ShiftSummary totals the open shift so far.
func (e *Engine) ShiftSummary() (models.ShiftSummary, error) {
	s, ok := e.CurrentShift()
	if !ok {
		return models.ShiftSummary{}, ErrNoOpenShift
	}
	return models.Summarize(s, e.Orders()), nil
}

// mirrorShift publishes the shift document best-effort.
func (e *Engine) mirrorShift(ctx context.Context, branch string, s models.Shift) {
	if !e.remote.Available() {
		return
	}
	path := "branches/" + branch + "/shift/current"
	e.background(ctx, func(ctx context.Context) {
		doc := remote.NormalizeDocument(remote.Document{"shift": s})
		if err := e.remote.SetDocument(ctx, path, doc); err != nil {
			slog.Debug("shift mirror failed", "shift", s.ID, "err", err)
		}
	})
}
