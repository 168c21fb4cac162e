package sync

import (
	"errors"
	"testing"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	"github.com/shopspring/decimal"
)

func TestCreateOrder_RequiresOpenShift(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	_, err := e.CreateOrder(t.Context(), OrderInput{Items: cart()})
	if !errors.Is(err, ErrNoOpenShift) {
		t.Fatalf("got %v, want ErrNoOpenShift", err)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)

	if _, err := e.CreateOrder(t.Context(), OrderInput{}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("empty cart: got %v", err)
	}
	bad := cart()
	bad[0].Quantity = 0
	if _, err := e.CreateOrder(t.Context(), OrderInput{Items: bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero quantity: got %v", err)
	}
	if _, err := e.CreateOrder(t.Context(), OrderInput{Items: cart(), Type: "drive_thru"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: got %v", err)
	}
}

func TestCreateOrder_OfflineIsDirty(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)

	o := mustCreate(t, e, "Sari")
	if !o.Dirty {
		t.Fatal("new order should be dirty")
	}
	if o.Sequence != 1 || o.Ticket() != "#001" {
		t.Fatalf("sequence = %d ticket %s, want 1 #001", o.Sequence, o.Ticket())
	}
	if o.Device != "till-1" || o.BranchID != "b1" {
		t.Fatalf("device/branch not stamped: %+v", o)
	}
	if !o.Breakdown.Total.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("total = %s, want 30000 without tax/service", o.Breakdown.Total)
	}

	orders := e.Orders()
	if len(orders) != 1 || !orders[0].Dirty {
		t.Fatalf("local orders = %+v, want one dirty", orders)
	}
}

func TestCreateOrder_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := openStore(t, dir)
	e := New(s, remote.Null(), Options{Branch: "b1", Clock: tickingClock()})
	if _, err := e.OpenShift(t.Context(), "ani", decimal.Zero); err != nil {
		t.Fatalf("open shift: %v", err)
	}
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		o, err := e.CreateOrder(t.Context(), OrderInput{CustomerName: name, Items: cart()})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, o.ID)
	}
	e.Close()
	s.Close()

	s2 := openStore(t, dir)
	defer s2.Close()
	e2 := New(s2, remote.Null(), Options{Branch: "b1"})
	defer e2.Close()

	orders := e2.Orders()
	if len(orders) != 3 {
		t.Fatalf("after restart: %d orders, want 3", len(orders))
	}
	for _, id := range ids {
		o, n := findOrder(orders, id)
		if n != 1 || !o.Dirty {
			t.Fatalf("order %s lost or clean after restart", id)
		}
	}
}

func TestCreateOrder_SequenceIncrements(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	a := mustCreate(t, e, "a")
	b := mustCreate(t, e, "b")
	if a.Sequence != 1 || b.Sequence != 2 {
		t.Fatalf("sequences = %d, %d; want 1, 2", a.Sequence, b.Sequence)
	}
}

func TestCreateOrder_UsesProfilePricing(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	profile := models.Profile{
		Name: "Warung", EnableTax: true, TaxRate: decimal.NewFromInt(10),
		EnableService: true, ServiceRate: decimal.NewFromInt(5),
	}
	if _, err := e.SetMaster(t.Context(), models.MasterProfile, profile, "owner"); err != nil {
		t.Fatalf("set profile: %v", err)
	}

	o, err := e.CreateOrder(t.Context(), OrderInput{
		Items:    cart(),
		Discount: models.Discount{Type: models.DiscountPercent, Value: decimal.NewFromInt(10)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !o.Breakdown.Total.Equal(decimal.NewFromInt(31185)) {
		t.Fatalf("total = %s, want 31185", o.Breakdown.Total)
	}
}

func TestCreateOrder_OnlineClearsDirty(t *testing.T) {
	rs := remote.NewMemory()
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)

	o := mustCreate(t, e, "Sari")
	e.Wait()

	got, _ := findOrder(e.Orders(), o.ID)
	if got.Dirty {
		t.Fatal("order should be clean after acknowledged insert")
	}
	docs := rs.All(CollectionOrders)
	if len(docs) != 1 || remote.IDOf(docs[0]) != o.ID {
		t.Fatalf("remote docs = %v, want the order", docs)
	}
	if _, ok := docs[0]["dirty"]; ok {
		t.Fatal("dirty flag must not be sent to the remote store")
	}
}

func TestCreateOrder_RejectedStaysDirty(t *testing.T) {
	rs := remote.NewMemory()
	rs.RejectWrites(true)
	e, rec := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)

	o := mustCreate(t, e, "Sari")
	e.Wait()

	got, _ := findOrder(e.Orders(), o.ID)
	if !got.Dirty {
		t.Fatal("rejected order should stay dirty")
	}
	if slow, _, _ := rec.counts(); slow != 0 {
		t.Fatal("a rejection is not a slow submission")
	}
}

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")

	ready, err := e.UpdateOrderStatus(t.Context(), o.ID, models.StatusReady)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ready.Revision != 2 || !ready.Dirty {
		t.Fatalf("revision = %d dirty %v, want 2 dirty", ready.Revision, ready.Dirty)
	}
	if _, err := e.UpdateOrderStatus(t.Context(), o.ID, models.StatusPending); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("ready->pending: got %v", err)
	}
	if _, err := e.UpdateOrderStatus(t.Context(), o.ID, models.StatusCompleted); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if _, err := e.CancelOrder(t.Context(), o.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("cancel completed: got %v", err)
	}

	got, _ := e.Order(o.ID)
	if got.Status != models.StatusCompleted || got.Revision != 3 {
		t.Fatalf("got %s rev %d, want completed rev 3", got.Status, got.Revision)
	}
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	if _, err := e.UpdateOrderStatus(t.Context(), "nope", models.StatusReady); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}

func TestPayOrder(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")

	paid, err := e.PayOrder(t.Context(), o.ID, models.MethodQRIS)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Payment.Status != models.PaymentPaid || paid.Payment.PaidAt == nil {
		t.Fatalf("payment = %+v", paid.Payment)
	}
	if _, err := e.PayOrder(t.Context(), o.ID, models.MethodCash); !errors.Is(err, models.ErrAlreadyPaid) {
		t.Fatalf("second pay: got %v", err)
	}
	if _, err := e.PayOrder(t.Context(), o.ID, "barter"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad method: got %v", err)
	}
}

func TestEditOrder(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")

	name := "  Dewi "
	items := cart()
	items[0].Quantity = 3
	edited, err := e.EditOrder(t.Context(), o.ID, OrderEdit{CustomerName: &name, Items: items})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.CustomerName != "Dewi" {
		t.Fatalf("customer = %q", edited.CustomerName)
	}
	if !edited.Breakdown.Subtotal.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("subtotal = %s, want 45000", edited.Breakdown.Subtotal)
	}

	if _, err := e.PayOrder(t.Context(), o.ID, models.MethodCash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := e.EditOrder(t.Context(), o.ID, OrderEdit{Items: cart()}); !errors.Is(err, ErrOrderLocked) {
		t.Fatalf("edit paid order: got %v", err)
	}
}

func TestMutation_ZeroMatchLeftForReconcile(t *testing.T) {
	rs := remote.NewMemory()
	rs.SetOnline(false)
	e, _ := newTestEngine(t, rs, Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")
	e.Wait()

	rs.SetOnline(true)
	if _, err := e.UpdateOrderStatus(t.Context(), o.ID, models.StatusReady); err != nil {
		t.Fatalf("ready: %v", err)
	}
	e.Wait()

	got, _ := e.Order(o.ID)
	if !got.Dirty {
		t.Fatal("update that matched nothing remotely should leave the order dirty")
	}
	if rs.Count(CollectionOrders) != 0 {
		t.Fatal("update path must not insert")
	}
}

func TestMarkClean_RevisionGuard(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")
	if _, err := e.UpdateOrderStatus(t.Context(), o.ID, models.StatusReady); err != nil {
		t.Fatalf("ready: %v", err)
	}

	key := e.key("b1", localstore.EntityOrders)
	if markClean[models.Order](e.store, key, o.ID, 1) {
		t.Fatal("ack for revision 1 must not clear revision 2")
	}
	if got, _ := e.Order(o.ID); !got.Dirty {
		t.Fatal("order should still be dirty")
	}
	if !markClean[models.Order](e.store, key, o.ID, 2) {
		t.Fatal("ack for current revision should clear")
	}
	if got, _ := e.Order(o.ID); got.Dirty {
		t.Fatal("order should be clean")
	}
}

func TestOrder_PrefixLookup(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	o := mustCreate(t, e, "a")

	got, ok := e.Order(o.ID[:12])
	if !ok || got.ID != o.ID {
		t.Fatalf("prefix lookup failed: %v %v", ok, got.ID)
	}
	if _, ok := e.Order(""); ok {
		t.Fatal("empty id should not match")
	}
}

func TestOnOrdersChanged(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)

	var seen [][]models.Order
	unsub := e.OnOrdersChanged(func(orders []models.Order) {
		seen = append(seen, orders)
	})
	mustCreate(t, e, "a")
	mustCreate(t, e, "b")
	unsub()
	mustCreate(t, e, "c")

	if len(seen) != 2 {
		t.Fatalf("listener called %d times, want 2", len(seen))
	}
	if len(seen[1]) != 2 || seen[1][0].CustomerName != "b" {
		t.Fatalf("second notification = %+v, want newest first", seen[1])
	}
}
