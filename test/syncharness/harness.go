// Package syncharness runs several terminals against one shared remote store
// in a single process, each with its own on-disk local store, and gives
// tests control over every terminal's network link.
package syncharness

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/shopspring/decimal"
)

// Driver is the database/sql driver the harness opens local stores with.
// It differs from the production default so both sqlite drivers run the
// same migrations.
const Driver = "sqlite3"

// WriteTimeout bounds every remote write in the harness
const WriteTimeout = 2 * time.Second

// Harness is a set of terminals sharing one remote store
type Harness struct {
	t       testing.TB
	Server  *remote.Memory
	devices map[string]*Device
	order   []string
}

// Device is one terminal: a local store on disk, an engine, and a link to
// the shared server that can be cut.
type Device struct {
	ID     string
	Dir    string
	Branch string
	Link   *Link
	Store  *localstore.Store
	Engine *kasirsync.Engine

	h *Harness
}

// New creates a harness with one terminal per id, all serving branch and
// all online and subscribed.
func New(t testing.TB, branch string, ids ...string) *Harness {
	t.Helper()
	h := &Harness{
		t:       t,
		Server:  remote.NewMemory(),
		devices: make(map[string]*Device),
	}
	for _, id := range ids {
		d := &Device{
			ID:     id,
			Dir:    t.TempDir(),
			Branch: branch,
			Link:   NewLink(h.Server),
			h:      h,
		}
		d.open()
		h.devices[id] = d
		h.order = append(h.order, id)
	}
	t.Cleanup(h.Close)
	return h
}

// Device returns the terminal registered under id
func (h *Harness) Device(id string) *Device {
	d, ok := h.devices[id]
	if !ok {
		h.t.Fatalf("unknown device %q", id)
	}
	return d
}

// Settle waits for every terminal's background writes.
func (h *Harness) Settle() {
	for _, id := range h.order {
		h.devices[id].Settle()
	}
}

// Close shuts every terminal down
func (h *Harness) Close() {
	for _, id := range h.order {
		h.devices[id].close()
	}
}

// ServerOrders returns the branch's orders as stored remotely, newest first.
func (h *Harness) ServerOrders(branch string) []models.Order {
	var out []models.Order
	for _, doc := range h.Server.All(kasirsync.CollectionOrders) {
		if doc[kasirsync.BranchField] != branch {
			continue
		}
		o, err := models.OrderFromDocument(doc)
		if err != nil {
			h.t.Fatalf("server holds an unreadable order: %v", err)
		}
		out = append(out, o)
	}
	kasirsync.SortOrders(out)
	return out
}

func (d *Device) open() {
	d.h.t.Helper()
	store, err := localstore.Open(d.Dir, localstore.Options{Driver: Driver})
	if err != nil {
		d.h.t.Fatalf("%s: open store: %v", d.ID, err)
	}
	d.Store = store
	d.Engine = kasirsync.New(store, d.Link, kasirsync.Options{
		Branch:       d.Branch,
		Device:       d.ID,
		WriteTimeout: WriteTimeout,
		MirrorMaster: true,
	})
	if err := d.Engine.Start(context.Background()); err != nil && !d.Link.Down() {
		d.h.t.Fatalf("%s: start: %v", d.ID, err)
	}
}

func (d *Device) close() {
	if d.Engine == nil {
		return
	}
	d.Engine.Close()
	d.Store.Close()
	d.Engine, d.Store = nil, nil
}

// Restart closes the terminal as a crash or reboot would after its writes
// settled, and opens it again from disk.
func (d *Device) Restart() {
	d.h.t.Helper()
	d.close()
	d.open()
}

// Offline cuts the terminal's link. Its subscriptions see an error and
// every remote call fails as unavailable.
func (d *Device) Offline() {
	d.Link.SetDown(true)
}

// Online restores the link and does what the connectivity watcher does on
// reconnect: resubscribe, then reconcile.
func (d *Device) Online(ctx context.Context) (kasirsync.ReconcileResult, error) {
	d.Link.SetDown(false)
	if err := d.Engine.Resubscribe(ctx); err != nil {
		return kasirsync.ReconcileResult{}, err
	}
	return d.Engine.Reconcile(ctx)
}

// SwitchBranch moves the terminal to branch; a later Restart keeps it there.
func (d *Device) SwitchBranch(branch string) {
	d.h.t.Helper()
	if err := d.Engine.SwitchBranch(context.Background(), branch); err != nil {
		d.h.t.Fatalf("%s: switch to %s: %v", d.ID, branch, err)
	}
	d.Branch = branch
}

// Settle waits for the terminal's background writes.
func (d *Device) Settle() {
	d.h.t.Helper()
	if !d.Engine.WaitTimeout(2 * WriteTimeout) {
		d.h.t.Fatalf("%s: background writes did not finish", d.ID)
	}
}

// OpenShift opens a shift with some cash in the drawer.
func (d *Device) OpenShift() models.Shift {
	d.h.t.Helper()
	s, err := d.Engine.OpenShift(context.Background(), d.ID, decimal.NewFromInt(100000))
	if err != nil {
		d.h.t.Fatalf("%s: open shift: %v", d.ID, err)
	}
	return s
}

// Order records an order for customer with one line per item name, priced
// at 10000 each.
func (d *Device) Order(customer string, items ...string) models.Order {
	d.h.t.Helper()
	in := kasirsync.OrderInput{CustomerName: customer}
	for _, name := range items {
		in.Items = append(in.Items, models.LineItem{
			Item:     models.MenuItem{Name: name, Price: decimal.NewFromInt(10000)},
			Quantity: 1,
		})
	}
	o, err := d.Engine.CreateOrder(context.Background(), in)
	if err != nil {
		d.h.t.Fatalf("%s: create order: %v", d.ID, err)
	}
	return o
}

// Orders returns the terminal's local view of its branch.
func (d *Device) Orders() []models.Order {
	return d.Engine.Orders()
}

// Dirty returns the ids of local orders not yet acknowledged.
func (d *Device) Dirty() []string {
	var ids []string
	for _, o := range d.Orders() {
		if o.Dirty {
			ids = append(ids, o.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// OrderIDs returns the sorted ids of the terminal's local orders.
func (d *Device) OrderIDs() []string {
	return orderIDs(d.Orders())
}

func orderIDs(orders []models.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	sort.Strings(ids)
	return ids
}

// Converged reports whether every online terminal serving branch holds
// exactly the server's orders at the server's revisions, all clean.
func (h *Harness) Converged(branch string) error {
	server := h.ServerOrders(branch)
	want := make(map[string]int64, len(server))
	for _, o := range server {
		want[o.ID] = o.Revision
	}

	for _, id := range h.order {
		d := h.devices[id]
		if d.Branch != branch || d.Link.Down() {
			continue
		}
		local := d.Orders()
		if len(local) != len(want) {
			return fmt.Errorf("%s holds %d orders, server %d", d.ID, len(local), len(want))
		}
		for _, o := range local {
			rev, ok := want[o.ID]
			switch {
			case !ok:
				return fmt.Errorf("%s holds %s which the server does not", d.ID, o.ID)
			case rev != o.Revision:
				return fmt.Errorf("%s holds %s at revision %d, server %d", d.ID, o.ID, o.Revision, rev)
			case o.Dirty:
				return fmt.Errorf("%s still has %s pending", d.ID, o.ID)
			}
		}
	}
	return nil
}

// Link is one terminal's connection to the shared server. Cutting it fails
// every call as unavailable and silences the terminal's subscriptions,
// leaving the server and other terminals untouched.
type Link struct {
	server *remote.Memory

	mu     sync.Mutex
	down   bool
	errFns map[int]remote.ErrorFunc
	nextID int
}

// NewLink connects to server
func NewLink(server *remote.Memory) *Link {
	return &Link{server: server, errFns: make(map[int]remote.ErrorFunc)}
}

// SetDown cuts or restores the link. Cutting it reports the failure to the
// terminal's live subscriptions.
func (l *Link) SetDown(down bool) {
	l.mu.Lock()
	changed := l.down != down
	l.down = down
	var fns []remote.ErrorFunc
	if changed && down {
		for _, fn := range l.errFns {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(fmt.Errorf("link: %w", remote.ErrUnavailable))
	}
}

// Down reports whether the link is cut
func (l *Link) Down() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.down
}

func (l *Link) check() error {
	if l.Down() {
		return fmt.Errorf("link: %w", remote.ErrUnavailable)
	}
	return nil
}

func (l *Link) Available() bool { return true }

func (l *Link) Ping(ctx context.Context) error {
	if err := l.check(); err != nil {
		return err
	}
	return l.server.Ping(ctx)
}

func (l *Link) Insert(ctx context.Context, collection string, doc remote.Document) (string, error) {
	if err := l.check(); err != nil {
		return "", err
	}
	return l.server.Insert(ctx, collection, doc)
}

func (l *Link) UpdateWhere(ctx context.Context, collection, field string, value any, patch remote.Document) (int, error) {
	if err := l.check(); err != nil {
		return 0, err
	}
	return l.server.UpdateWhere(ctx, collection, field, value, patch)
}

func (l *Link) Find(ctx context.Context, collection, field string, value any) ([]remote.Document, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	return l.server.Find(ctx, collection, field, value)
}

func (l *Link) Subscribe(ctx context.Context, collection, field string, value any, onSnapshot remote.SnapshotFunc, onError remote.ErrorFunc) (remote.Unsubscribe, error) {
	if err := l.check(); err != nil {
		return func() {}, err
	}
	id := l.track(onError)
	unsub, err := l.server.Subscribe(ctx, collection, field, value, func(docs []remote.Document) {
		if !l.Down() {
			onSnapshot(docs)
		}
	}, onError)
	return l.untrack(id, unsub), err
}

func (l *Link) SetDocument(ctx context.Context, path string, value remote.Document) error {
	if err := l.check(); err != nil {
		return err
	}
	return l.server.SetDocument(ctx, path, value)
}

func (l *Link) SubscribeDocument(ctx context.Context, path string, onValue remote.DocumentFunc, onError remote.ErrorFunc) (remote.Unsubscribe, error) {
	if err := l.check(); err != nil {
		return func() {}, err
	}
	id := l.track(onError)
	unsub, err := l.server.SubscribeDocument(ctx, path, func(doc remote.Document) {
		if !l.Down() {
			onValue(doc)
		}
	}, onError)
	return l.untrack(id, unsub), err
}

// Close leaves the shared server running for the other terminals.
func (l *Link) Close() error { return nil }

func (l *Link) track(fn remote.ErrorFunc) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	if fn != nil {
		l.errFns[id] = fn
	}
	return id
}

func (l *Link) untrack(id int, unsub remote.Unsubscribe) remote.Unsubscribe {
	return func() {
		l.mu.Lock()
		delete(l.errFns, id)
		l.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}
}

var _ remote.Store = (*Link)(nil)
