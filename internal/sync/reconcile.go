package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

// ReconcileResult counts what one reconcile pass pushed.
type ReconcileResult struct {
	Orders     int
	Attendance int
	// Failed records stay dirty for the next pass.
	Failed int
}

// Synced is the number of records pushed.
func (r ReconcileResult) Synced() int { return r.Orders + r.Attendance }

// pending is one dirty record queued for replay. Its document is built
// when its turn comes, from the record as stored then.
type pending struct {
	entity string
	id     string
}

// Reconcile replays every dirty order and attendance record of the active
// branch. Each record commits independently: an upsert by id that is safe to
// repeat. A rejected record is skipped; an unreachable or timing-out remote
// ends the pass early. Nothing pending is a silent no-op.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	if !e.reconciling.CompareAndSwap(false, true) {
		return res, ErrReconcileInProgress
	}
	defer e.reconciling.Store(false)

	branch := e.Branch()
	if branch == "" {
		return res, ErrNoBranch
	}
	orderKey := e.key(branch, localstore.EntityOrders)
	attKey := e.key(branch, localstore.EntityAttendance)

	var queue []pending
	for _, o := range dirtyRecords[models.Order](e.store, orderKey) {
		queue = append(queue, pending{entity: localstore.EntityOrders, id: o.ID})
	}
	for _, a := range dirtyRecords[models.Attendance](e.store, attKey) {
		queue = append(queue, pending{entity: localstore.EntityAttendance, id: a.ID})
	}
	if len(queue) == 0 {
		return res, nil
	}
	if !e.remote.Available() {
		slog.Debug("reconcile skipped, no remote", "pending", len(queue))
		return res, nil
	}

	slog.Debug("reconcile started", "branch", branch, "pending", len(queue))
	var firstErr error
	var history []localstore.HistoryEntry
	for i, p := range queue {
		collection, key := CollectionOrders, orderKey
		if p.entity == localstore.EntityAttendance {
			collection, key = CollectionAttendance, attKey
		}

		unlock := e.pushes.lock(collection + "/" + p.id)
		rev, doc, ok, err := e.pendingDocument(p.entity, key, p.id)
		if !ok {
			unlock()
			continue
		}
		if err == nil {
			wctx, cancel := context.WithTimeout(ctx, e.timeout)
			err = upsert(wctx, e.remote, collection, p.id, doc)
			cancel()
		}
		unlock()

		entry := localstore.HistoryEntry{
			Direction: localstore.DirectionPush,
			Entity:    p.entity,
			EntityID:  p.id,
			Result:    localstore.ResultOK,
		}
		if err != nil {
			entry.Result = localstore.ResultFailed
			entry.Detail = err.Error()
			history = append(history, entry)
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
			kind := remote.KindOf(err)
			slog.Debug("reconcile push failed", "entity", p.entity, "id", p.id, "kind", kind.String(), "err", err)
			if kind == remote.KindUnavailable || kind == remote.KindTimeout {
				res.Failed += len(queue) - i - 1
				break
			}
			continue
		}

		history = append(history, entry)
		switch p.entity {
		case localstore.EntityOrders:
			markClean[models.Order](e.store, key, p.id, rev)
			res.Orders++
		default:
			markClean[models.Attendance](e.store, key, p.id, rev)
			res.Attendance++
		}
	}
	e.recordHistory(history...)

	if n := res.Synced(); n > 0 {
		slog.Info("reconciled", "branch", branch, "orders", res.Orders, "attendance", res.Attendance, "failed", res.Failed)
		e.notifier.Synced(n)
	}
	if firstErr != nil {
		return res, fmt.Errorf("reconcile: %d left pending: %w", res.Failed, firstErr)
	}
	return res, nil
}

// pendingDocument reloads a queued record and builds its remote document
// from the current revision. ok is false when the record is gone or a live
// push already cleaned it.
func (e *Engine) pendingDocument(entity string, key localstore.Key, id string) (rev int64, doc remote.Document, ok bool, err error) {
	switch entity {
	case localstore.EntityOrders:
		o, found := findRecord[models.Order](e.store, key, id)
		if !found || !o.Dirty {
			return 0, nil, false, nil
		}
		doc, err = o.Document()
		if err != nil {
			return 0, nil, true, fmt.Errorf("order %s not pushable: %w", id, err)
		}
		return o.Revision, doc, true, nil
	default:
		a, found := findRecord[models.Attendance](e.store, key, id)
		if !found || !a.Dirty {
			return 0, nil, false, nil
		}
		doc, err = a.Document()
		if err != nil {
			return 0, nil, true, fmt.Errorf("attendance %s not pushable: %w", id, err)
		}
		return a.Revision, doc, true, nil
	}
}
