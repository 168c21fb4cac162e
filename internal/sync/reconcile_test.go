package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

func TestReconcile_OfflineThenOnline(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetOnline(false)
	e, rec := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)

	o := mustCreate(t, e, "Sari")
	e.Wait()
	if orders := e.Orders(); len(orders) != 1 || !orders[0].Dirty {
		t.Fatalf("offline create: %+v, want one dirty order", orders)
	}

	rs.SetOnline(true)
	res, err := e.Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Orders != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 order pushed", res)
	}

	docs := rs.All(CollectionOrders)
	if len(docs) != 1 || remote.IDOf(docs[0]) != o.ID {
		t.Fatalf("remote = %v, want the order", docs)
	}
	if got, _ := e.Order(o.ID); got.Dirty {
		t.Fatal("order should be clean after reconcile")
	}
	if _, synced, _ := rec.counts(); synced != 1 {
		t.Fatalf("Synced called %d times, want 1", synced)
	}
	if rec.synced[0] != 1 {
		t.Fatalf("Synced(%d), want 1", rec.synced[0])
	}
}

func TestReconcile_NothingPendingIsSilent(t *testing.T) {
	rs := remote.NewMemory()
	e, rec := newTestEngine(t, rs, Options{})

	res, err := e.Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Synced() != 0 {
		t.Fatalf("synced %d, want 0", res.Synced())
	}
	if _, synced, _ := rec.counts(); synced != 0 {
		t.Fatal("Synced should not fire with nothing pending")
	}
}

func TestReconcile_ManyOrdersAllClean(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetOnline(false)
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)
	for i := 0; i < 5; i++ {
		mustCreate(t, e, "x")
	}
	e.Wait()

	rs.SetOnline(true)
	res, err := e.Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Orders != 5 {
		t.Fatalf("pushed %d, want 5", res.Orders)
	}
	for _, o := range e.Orders() {
		if o.Dirty {
			t.Fatalf("order %s still dirty", o.ID)
		}
	}
	if rs.Count(CollectionOrders) != 5 {
		t.Fatalf("remote has %d orders, want 5", rs.Count(CollectionOrders))
	}
}

func TestReconcile_UnavailableLeavesDirty(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetOnline(false)
	e, rec := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)
	mustCreate(t, e, "a")
	mustCreate(t, e, "b")
	e.Wait()

	res, err := e.Reconcile(t.Context())
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if res.Failed != 2 || res.Synced() != 0 {
		t.Fatalf("result = %+v, want 2 failed", res)
	}
	for _, o := range e.Orders() {
		if !o.Dirty {
			t.Fatal("orders must stay dirty")
		}
	}
	if _, synced, _ := rec.counts(); synced != 0 {
		t.Fatal("Synced must not fire")
	}
}

func TestReconcile_RejectedLeavesDirty(t *testing.T) {
	rs := remote.NewMemory()
	rs.RejectWrites(true)
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)
	mustCreate(t, e, "a")
	mustCreate(t, e, "b")
	e.Wait()

	res, err := e.Reconcile(t.Context())
	if !errors.Is(err, remote.ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
	if res.Failed != 2 {
		t.Fatalf("failed = %d, want 2 (rejection does not stop the pass)", res.Failed)
	}

	rs.RejectWrites(false)
	res, err = e.Reconcile(t.Context())
	if err != nil || res.Orders != 2 {
		t.Fatalf("retry: %+v %v, want 2 pushed", res, err)
	}
}

func TestReconcile_ReplaysUpdatedOrder(t *testing.T) {
	rs := remote.NewMemory()
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")
	e.Wait()

	rs.SetOnline(false)
	if _, err := e.PayOrder(t.Context(), o.ID, models.MethodCash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	e.Wait()
	rs.SetOnline(true)

	if _, err := e.Reconcile(t.Context()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	docs := rs.All(CollectionOrders)
	if len(docs) != 1 {
		t.Fatalf("remote has %d orders, want 1 (upsert, not duplicate insert)", len(docs))
	}
	got, err := models.OrderFromDocument(docs[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Payment.Status != models.PaymentPaid || got.Revision != 2 {
		t.Fatalf("remote payment %s rev %d, want paid rev 2", got.Payment.Status, got.Revision)
	}
}

func TestReconcile_Attendance(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetOnline(false)
	e, _ := newTestEngine(t, rs, Options{})

	if _, err := e.ClockIn(t.Context(), ClockInInput{UserID: "u1", UserName: "Ani"}); err != nil {
		t.Fatalf("clock in: %v", err)
	}
	if _, err := e.ClockOut(t.Context(), "u1"); err != nil {
		t.Fatalf("clock out: %v", err)
	}
	e.Wait()

	rs.SetOnline(true)
	res, err := e.Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Attendance != 1 {
		t.Fatalf("attendance pushed = %d, want 1", res.Attendance)
	}
	docs := rs.All(CollectionAttendance)
	if len(docs) != 1 || docs[0]["status"] != string(models.AttendanceDone) {
		t.Fatalf("remote attendance = %v", docs)
	}
}

func TestReconcile_InProgress(t *testing.T) {
	e, _ := newTestEngine(t, remote.NewMemory(), Options{})
	e.reconciling.Store(true)
	if _, err := e.Reconcile(t.Context()); !errors.Is(err, ErrReconcileInProgress) {
		t.Fatalf("got %v, want ErrReconcileInProgress", err)
	}
	e.reconciling.Store(false)
	if _, err := e.Reconcile(t.Context()); err != nil {
		t.Fatalf("second call: %v", err)
	}
}

func TestReconcile_NoRemoteIsNoop(t *testing.T) {
	e, rec := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	mustCreate(t, e, "a")

	res, err := e.Reconcile(t.Context())
	if err != nil || res.Synced() != 0 {
		t.Fatalf("got %+v %v, want silent no-op", res, err)
	}
	if _, synced, errs := rec.counts(); synced != 0 || errs != 0 {
		t.Fatal("no notifications expected without a remote")
	}
}

func TestSlowSubmission_TimeoutThenReconcile(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetLatency(300 * time.Millisecond)
	e, rec := newTestEngine(t, rs, Options{WriteTimeout: 30 * time.Millisecond})
	mustOpenShift(t, e)

	o := mustCreate(t, e, "a")
	e.Wait()

	if slow, _, _ := rec.counts(); slow != 1 {
		t.Fatalf("SlowSubmission fired %d times, want 1", slow)
	}
	if got, _ := e.Order(o.ID); !got.Dirty {
		t.Fatal("timed-out order should stay dirty")
	}
	if rs.Count(CollectionOrders) != 1 {
		t.Fatal("the write landed despite the timeout")
	}

	rs.SetLatency(0)
	if _, err := e.Reconcile(t.Context()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rs.Count(CollectionOrders) != 1 {
		t.Fatalf("remote has %d orders after replay, want 1", rs.Count(CollectionOrders))
	}
	if got, _ := e.Order(o.ID); got.Dirty {
		t.Fatal("order should be clean after replay")
	}
}

// updateHookRemote runs beforeUpdate ahead of every UpdateWhere.
type updateHookRemote struct {
	*remote.Memory
	beforeUpdate func(value any)
}

func (r *updateHookRemote) UpdateWhere(ctx context.Context, collection, field string, value any, patch remote.Document) (int, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate(value)
	}
	return r.Memory.UpdateWhere(ctx, collection, field, value, patch)
}

func TestReconcile_EditDuringPassKeepsNewestRevision(t *testing.T) {
	mem := remote.NewMemory()
	rs := &updateHookRemote{Memory: mem}
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)

	x := mustCreate(t, e, "Sari")
	e.Wait()

	mem.SetOnline(false)
	if _, err := e.UpdateOrderStatus(t.Context(), x.ID, models.StatusReady); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	a := mustCreate(t, e, "Budi")
	e.Wait()
	mem.SetOnline(true)

	// the cashier takes payment for x while the pass is pushing a
	fired := false
	rs.beforeUpdate = func(value any) {
		if fired || value != a.ID {
			return
		}
		fired = true
		if _, err := e.PayOrder(t.Context(), x.ID, models.MethodQRIS); err != nil {
			t.Errorf("pay: %v", err)
		}
		e.Wait()
	}

	res, err := e.Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !fired {
		t.Fatal("payment was not taken during the pass")
	}
	if res.Orders != 1 {
		t.Fatalf("reconcile pushed %d orders, want 1 (x went out with the payment)", res.Orders)
	}

	local, _ := e.Order(x.ID)
	if local.Dirty || local.Revision != 3 || local.Payment.Status != models.PaymentPaid {
		t.Fatalf("local x = rev %d dirty %v payment %s, want clean paid rev 3", local.Revision, local.Dirty, local.Payment.Status)
	}

	var server models.Order
	for _, doc := range mem.All(CollectionOrders) {
		if remote.IDOf(doc) == x.ID {
			server, err = models.OrderFromDocument(doc)
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	if server.Revision != local.Revision || server.Payment.Status != models.PaymentPaid {
		t.Fatalf("remote x = rev %d payment %s, want rev %d paid", server.Revision, server.Payment.Status, local.Revision)
	}
}

func TestReconcile_PushesRevisionEditedAfterQueueing(t *testing.T) {
	mem := remote.NewMemory()
	rs := &updateHookRemote{Memory: mem}
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)

	x := mustCreate(t, e, "Sari")
	e.Wait()
	mem.SetOnline(false)
	if _, err := e.UpdateOrderStatus(t.Context(), x.ID, models.StatusReady); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	a := mustCreate(t, e, "Budi")
	e.Wait()

	// while a is pushed, x changes again and its live push fails
	fired := false
	rs.beforeUpdate = func(value any) {
		if fired || value != a.ID {
			return
		}
		fired = true
		mem.SetOnline(false)
		if _, err := e.PayOrder(t.Context(), x.ID, models.MethodCash); err != nil {
			t.Errorf("pay: %v", err)
		}
		e.Wait()
		mem.SetOnline(true)
	}
	mem.SetOnline(true)

	if _, err := e.Reconcile(t.Context()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	local, _ := e.Order(x.ID)
	if local.Dirty || local.Revision != 3 {
		t.Fatalf("local x = rev %d dirty %v, want clean rev 3", local.Revision, local.Dirty)
	}
	for _, doc := range mem.All(CollectionOrders) {
		if remote.IDOf(doc) != x.ID {
			continue
		}
		server, err := models.OrderFromDocument(doc)
		if err != nil {
			t.Fatal(err)
		}
		if server.Revision != 3 || server.Payment.Status != models.PaymentPaid {
			t.Fatalf("remote x = rev %d payment %s, want the paid revision", server.Revision, server.Payment.Status)
		}
	}
}
