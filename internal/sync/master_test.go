package sync

import (
	"errors"
	"testing"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
	"github.com/shopspring/decimal"
)

func TestSetMaster_InvalidKind(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	if _, err := e.SetMaster(t.Context(), "recipes", nil, "owner"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestProfile_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	if p := e.Profile(); p.Name != "" || p.EnableTax {
		t.Fatalf("empty profile = %+v", p)
	}
	want := models.Profile{Name: "Warung Sari", EnableTax: true, TaxRate: decimal.NewFromInt(11)}
	doc, err := e.SetMaster(t.Context(), models.MasterProfile, want, "owner")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if doc.UpdatedBy != "owner" || doc.UpdatedAt.IsZero() {
		t.Fatalf("doc metadata = %+v", doc)
	}
	got := e.Profile()
	if got.Name != want.Name || !got.EnableTax || !got.TaxRate.Equal(want.TaxRate) {
		t.Fatalf("profile = %+v", got)
	}
}

func TestBranchStatus_DefaultsOpen(t *testing.T) {
	e, _ := newTestEngine(t, remote.Null(), Options{})
	if st := e.BranchStatus(); !st.Open {
		t.Fatal("branch without status document should be open")
	}
	if err := e.SetBranchStatus(t.Context(), models.BranchStatus{Open: false}, "owner"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if st := e.BranchStatus(); st.Open {
		t.Fatal("branch should be closed")
	}
}

func TestMaster_RemoteOverwritesLocal(t *testing.T) {
	rs := remote.NewMemory()
	e, _ := newTestEngine(t, rs, Options{MirrorMaster: true})
	if _, err := e.SetMaster(t.Context(), models.MasterCategories, []models.Category{{ID: "food", Name: "Food"}}, "till"); err != nil {
		t.Fatalf("set: %v", err)
	}
	e.Wait()
	if err := e.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}

	remoteDoc := models.MasterDoc{Kind: models.MasterCategories, Value: []byte(`[{"id":"drinks","name":"Drinks"}]`), UpdatedBy: "office"}
	doc, err := remoteDoc.Document()
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if err := rs.SetDocument(t.Context(), MasterPath("b1", models.MasterCategories), doc); err != nil {
		t.Fatalf("remote set: %v", err)
	}

	var cats []models.Category
	if !e.DecodeMaster(models.MasterCategories, &cats) {
		t.Fatal("categories missing")
	}
	if len(cats) != 1 || cats[0].ID != "drinks" {
		t.Fatalf("categories = %+v, want remote value", cats)
	}
	m, _ := e.Master(models.MasterCategories)
	if m.UpdatedBy != "office" {
		t.Fatalf("updated by = %q", m.UpdatedBy)
	}
}
