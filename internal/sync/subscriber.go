package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

// Start subscribes to the active branch's orders and, when mirroring is
// enabled, its master documents. Without a remote backend it is a no-op.
// Subscription failures are reported to the notifier, never returned as
// fatal: the engine keeps working locally.
func (e *Engine) Start(ctx context.Context) error {
	e.life.Lock()
	defer e.life.Unlock()
	return e.startLocked(ctx)
}

func (e *Engine) startLocked(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	branch := e.branch
	e.mu.Unlock()

	if branch == "" {
		return ErrNoBranch
	}
	if !e.remote.Available() {
		slog.Debug("no remote configured, running local-only", "branch", branch)
		return nil
	}

	// healthy until an error callback says otherwise, including one fired
	// while subscribing
	e.mu.Lock()
	e.subscribed = true
	e.mu.Unlock()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var subs []remote.Unsubscribe
	var failed error

	unsub, err := e.remote.Subscribe(subCtx, CollectionOrders, BranchField, branch,
		e.onOrdersSnapshot(branch), e.onSubscriptionError("orders"))
	if err != nil {
		failed = fmt.Errorf("subscribe orders: %w", err)
	} else {
		subs = append(subs, unsub)
	}

	if e.mirror && failed == nil {
		for _, kind := range models.AllMasterKinds() {
			unsub, err := e.remote.SubscribeDocument(subCtx, MasterPath(branch, kind),
				e.onMasterDocument(branch, kind), e.onSubscriptionError("master."+string(kind)))
			if err != nil {
				failed = fmt.Errorf("subscribe %s: %w", kind, err)
				break
			}
			subs = append(subs, unsub)
		}
	}

	if failed != nil {
		for _, u := range subs {
			u()
		}
		cancel()
		e.mu.Lock()
		e.subscribed = false
		e.mu.Unlock()
		e.reportRemoteError("subscribe", failed)
		return failed
	}

	e.subs = subs
	e.cancelSubs = cancel
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	slog.Debug("subscriptions started", "branch", branch, "count", len(subs))
	return nil
}

// Stop tears down every subscription. Background writes keep running;
// use Wait to drain them.
func (e *Engine) Stop() {
	e.life.Lock()
	defer e.life.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	for _, u := range e.subs {
		u()
	}
	e.subs = nil
	if e.cancelSubs != nil {
		e.cancelSubs()
		e.cancelSubs = nil
	}
	e.mu.Lock()
	e.started = false
	e.subscribed = false
	e.mu.Unlock()
}

// Subscribed reports whether live subscriptions are up and healthy.
func (e *Engine) Subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscribed
}

// Resubscribe restarts the subscriptions if a subscription error took them
// down, or if they were never started.
func (e *Engine) Resubscribe(ctx context.Context) error {
	e.life.Lock()
	defer e.life.Unlock()
	if e.Subscribed() {
		return nil
	}
	e.stopLocked()
	return e.startLocked(ctx)
}

// SwitchBranch changes the active branch. Every subscription is torn down
// and, if the engine was started, re-established under the new branch.
// Records of the old branch stay in their own keys and are never visible
// under the new one.
func (e *Engine) SwitchBranch(ctx context.Context, branch string) error {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return ErrNoBranch
	}
	e.life.Lock()
	defer e.life.Unlock()

	e.mu.Lock()
	wasStarted := e.started
	old := e.branch
	e.mu.Unlock()
	if old == branch {
		return nil
	}

	e.stopLocked()
	e.mu.Lock()
	e.branch = branch
	e.mu.Unlock()
	e.watchOrders()
	slog.Info("branch switched", "from", old, "to", branch)

	if wasStarted {
		return e.startLocked(ctx)
	}
	return nil
}

// onOrdersSnapshot merges every snapshot into the local orders of the branch
// the subscription was opened for, even if the active branch moved on.
func (e *Engine) onOrdersSnapshot(branch string) remote.SnapshotFunc {
	key := e.key(branch, localstore.EntityOrders)
	return func(docs []remote.Document) {
		snapshot := ordersFromDocuments(docs)
		merged, err := localstore.Mutate(e.store, key, func(local []models.Order) ([]models.Order, error) {
			return MergeOrders(local, snapshot), nil
		})
		if err != nil {
			slog.Warn("merge not applied", "branch", branch, "err", err)
			return
		}
		dirty := 0
		for _, o := range merged {
			if o.Dirty {
				dirty++
			}
		}
		slog.Debug("orders merged", "branch", branch, "remote", len(snapshot), "total", len(merged), "dirty", dirty)
		e.recordHistory(localstore.HistoryEntry{
			Direction: localstore.DirectionMerge,
			Entity:    localstore.EntityOrders,
			Result:    localstore.ResultOK,
			Detail:    fmt.Sprintf("%d remote, %d kept dirty", len(snapshot), dirty),
		})
	}
}

func (e *Engine) onMasterDocument(branch string, kind models.MasterKind) remote.DocumentFunc {
	return func(doc remote.Document) {
		if len(doc) == 0 {
			return
		}
		e.applyRemoteMaster(branch, kind, doc)
	}
}

// onSubscriptionError marks the subscriptions unhealthy so the next online
// transition restarts them. It must not unsubscribe: it may run on the
// subscription's own goroutine.
func (e *Engine) onSubscriptionError(name string) remote.ErrorFunc {
	return func(err error) {
		e.mu.Lock()
		e.subscribed = false
		e.mu.Unlock()
		e.reportRemoteError("subscription "+name, err)
	}
}
