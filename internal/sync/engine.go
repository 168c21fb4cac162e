// Package sync is the offline-first core: every write lands in the local
// store first, and the remote document store is brought up to date in the
// background, by live merge, or by the reconciler once connectivity returns.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/notify"
	"github.com/marcus/kasir/internal/remote"
)

// Remote collection names and the branch filter field
const (
	CollectionOrders     = "orders"
	CollectionAttendance = "attendance"
	BranchField          = "branch_id"
)

// DefaultWriteTimeout bounds each remote write attempt
const DefaultWriteTimeout = 10 * time.Second

var (
	ErrNoBranch            = errors.New("no active branch")
	ErrReconcileInProgress = errors.New("reconcile already in progress")
)

// Options configures an Engine
type Options struct {
	Prefix       string
	Branch       string
	Device       string
	WriteTimeout time.Duration
	Notifier     Notifier
	Events       notify.Sink
	Clock        func() time.Time
	// MirrorMaster subscribes to remote master documents and pushes local
	// master changes.
	MirrorMaster bool
}

// Engine is the per-process sync instance. It owns the remote handle, the
// active subscriptions and the one-shot remote error latch.
type Engine struct {
	store    *localstore.Store
	remote   remote.Store
	prefix   string
	device   string
	timeout  time.Duration
	notifier Notifier
	events   notify.Sink
	now      func() time.Time
	mirror   bool

	// life serializes Start, Stop and SwitchBranch. It is never held while
	// e.mu is, and subscription callbacks never take it.
	life       sync.Mutex
	subs       []remote.Unsubscribe
	cancelSubs context.CancelFunc

	mu          sync.Mutex
	branch      string
	started     bool
	subscribed  bool
	unwatch     func()
	listeners   map[int]func([]models.Order)
	nextListen  int
	errReported atomic.Bool
	reconciling atomic.Bool

	pushes recordLocks
	wg     sync.WaitGroup
}

// New builds an engine over an open local store and a remote (use
// remote.Null() when none is configured).
func New(store *localstore.Store, rs remote.Store, opts Options) *Engine {
	if rs == nil {
		rs = remote.Null()
	}
	if opts.Prefix == "" {
		opts.Prefix = localstore.DefaultPrefix
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		store:     store,
		remote:    rs,
		prefix:    opts.Prefix,
		device:    opts.Device,
		timeout:   opts.WriteTimeout,
		notifier:  opts.Notifier,
		events:    opts.Events,
		now:       func() time.Time { return opts.Clock().UTC() },
		mirror:    opts.MirrorMaster,
		branch:    opts.Branch,
		listeners: make(map[int]func([]models.Order)),
	}
	e.watchOrders()
	return e
}

// Branch returns the active branch
func (e *Engine) Branch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branch
}

// Device returns the terminal id stamped on records
func (e *Engine) Device() string { return e.device }

// RemoteAvailable reports whether a remote backend is configured
func (e *Engine) RemoteAvailable() bool { return e.remote.Available() }

// Store exposes the local store, for status and history views.
func (e *Engine) Store() *localstore.Store { return e.store }

func (e *Engine) key(branch, entity string) localstore.Key {
	return localstore.Key{Prefix: e.prefix, Branch: branch, Entity: entity}
}

// activeKey returns the key for entity under the current branch.
func (e *Engine) activeKey(entity string) (localstore.Key, error) {
	branch := e.Branch()
	if branch == "" {
		return localstore.Key{}, ErrNoBranch
	}
	return e.key(branch, entity), nil
}

// Wait blocks until every background remote write has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// WaitTimeout is Wait with an upper bound; it reports whether all writes
// finished in time.
func (e *Engine) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Close stops subscriptions, waits for background writes and closes the
// remote handle. The local store is left open for the caller.
func (e *Engine) Close() error {
	e.Stop()
	e.Wait()

	e.mu.Lock()
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	e.mu.Unlock()
	return e.remote.Close()
}

// background runs fn on its own goroutine with a write deadline derived
// from ctx but not cancelled with it, so a returning caller does not abort
// an in-flight remote write.
func (e *Engine) background(ctx context.Context, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		fn(wctx)
	}()
}

// reportRemoteError logs err and hands the first one to the notifier.
func (e *Engine) reportRemoteError(op string, err error) {
	slog.Warn("remote error", "op", op, "kind", remote.KindOf(err).String(), "err", err)
	if e.errReported.CompareAndSwap(false, true) {
		e.notifier.RemoteError(err)
	}
}

// publish sends an order event to the configured sinks in the background.
func (e *Engine) publish(ctx context.Context, typ notify.EventType, branch string, o models.Order) {
	if e.events == nil {
		return
	}
	ev := notify.Event{Type: typ, Branch: branch, Device: e.device, At: e.now(), Order: o}
	e.background(ctx, func(ctx context.Context) {
		if err := e.events.OrderChanged(ctx, ev); err != nil {
			slog.Debug("order event not delivered", "type", typ, "order", o.ID, "err", err)
		}
	})
}

func (e *Engine) recordHistory(entries ...localstore.HistoryEntry) {
	for i := range entries {
		entries[i].DeviceID = e.device
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = e.now()
		}
	}
	if err := e.store.RecordHistory(entries); err != nil {
		slog.Debug("sync history not recorded", "err", err)
	}
}
