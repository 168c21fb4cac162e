package sync

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	"github.com/shopspring/decimal"
)

// recorder is a Notifier that keeps what it was told.
type recorder struct {
	mu     sync.Mutex
	slow   []models.Order
	synced []int
	errs   []error
}

func (r *recorder) SlowSubmission(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slow = append(r.slow, o)
}

func (r *recorder) Synced(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, n)
}

func (r *recorder) RemoteError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (slow, synced, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slow), len(r.synced), len(r.errs)
}

// tickingClock advances one second per reading so creation order is stable.
func tickingClock() func() time.Time {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func openStore(t *testing.T, dir string) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(dir, localstore.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T, rs remote.Store, opts Options) (*Engine, *recorder) {
	t.Helper()
	return newTestEngineAt(t, t.TempDir(), rs, opts)
}

func newTestEngineAt(t *testing.T, dir string, rs remote.Store, opts Options) (*Engine, *recorder) {
	t.Helper()
	s := openStore(t, dir)
	rec := &recorder{}
	if opts.Branch == "" {
		opts.Branch = "b1"
	}
	if opts.Device == "" {
		opts.Device = "till-1"
	}
	if opts.Notifier == nil {
		opts.Notifier = rec
	}
	if opts.Clock == nil {
		opts.Clock = tickingClock()
	}
	e := New(s, rs, opts)
	t.Cleanup(func() {
		e.Close()
		s.Close()
	})
	return e, rec
}

func mustOpenShift(t *testing.T, e *Engine) models.Shift {
	t.Helper()
	s, err := e.OpenShift(t.Context(), "ani", decimal.NewFromInt(100000))
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	return s
}

func cart() []models.LineItem {
	return []models.LineItem{{
		Item:     models.MenuItem{ID: "kopi-susu", Name: "Kopi Susu", Price: decimal.NewFromInt(15000)},
		Quantity: 2,
	}}
}

func mustCreate(t *testing.T, e *Engine, name string) models.Order {
	t.Helper()
	o, err := e.CreateOrder(t.Context(), OrderInput{CustomerName: name, Items: cart()})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func findOrder(orders []models.Order, id string) (models.Order, int) {
	var found models.Order
	n := 0
	for _, o := range orders {
		if o.ID == id {
			found = o
			n++
		}
	}
	return found, n
}

func localOrders(e *Engine, branch string) []models.Order {
	return localstore.Load[models.Order](e.store, e.key(branch, localstore.EntityOrders))
}
