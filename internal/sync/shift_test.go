package sync

import (
	"errors"
	"testing"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	"github.com/shopspring/decimal"
)

func TestShift_OpenClose(t *testing.T) {
	rs := remote.NewMemory()
	e, _ := newTestEngine(t, rs, Options{})

	if _, ok := e.CurrentShift(); ok {
		t.Fatal("no shift expected yet")
	}
	s := mustOpenShift(t, e)
	if _, err := e.OpenShift(t.Context(), "budi", decimal.Zero); !errors.Is(err, ErrShiftAlreadyOpen) {
		t.Fatalf("second open: got %v", err)
	}

	paid := mustCreate(t, e, "paid")
	if _, err := e.PayOrder(t.Context(), paid.ID, models.MethodCash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	unpaid := mustCreate(t, e, "unpaid")
	cancelled := mustCreate(t, e, "cancelled")
	if _, err := e.CancelOrder(t.Context(), cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = unpaid

	live, err := e.ShiftSummary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if live.Orders != 3 {
		t.Fatalf("live orders = %d, want 3", live.Orders)
	}

	sum, err := e.CloseShift(t.Context())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	e.Wait()
	if sum.ShiftID != s.ID || sum.ClosedAt == nil {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Cancelled != 1 || sum.Unpaid != 1 {
		t.Fatalf("cancelled %d unpaid %d, want 1 and 1", sum.Cancelled, sum.Unpaid)
	}
	if !sum.Gross.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("gross = %s, want 30000", sum.Gross)
	}
	if !sum.Cash.Equal(decimal.NewFromInt(130000)) {
		t.Fatalf("expected cash = %s, want 130000", sum.Cash)
	}

	if _, ok := e.CurrentShift(); ok {
		t.Fatal("shift should be closed")
	}
	if _, err := e.CloseShift(t.Context()); !errors.Is(err, ErrNoOpenShift) {
		t.Fatalf("second close: got %v", err)
	}
	if _, err := e.CreateOrder(t.Context(), OrderInput{Items: cart()}); !errors.Is(err, ErrNoOpenShift) {
		t.Fatalf("create after close: got %v", err)
	}
	if _, ok := rs.Document("branches/b1/shift/current"); !ok {
		t.Fatal("shift not mirrored")
	}
}

func TestShift_SequenceRestarts(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	mustOpenShift(t, e)
	mustCreate(t, e, "a")
	mustCreate(t, e, "b")
	if _, err := e.CloseShift(t.Context()); err != nil {
		t.Fatalf("close: %v", err)
	}
	mustOpenShift(t, e)
	if o := mustCreate(t, e, "c"); o.Sequence != 1 {
		t.Fatalf("sequence after new shift = %d, want 1", o.Sequence)
	}
}
