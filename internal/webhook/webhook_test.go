package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/notify"
	"github.com/shopspring/decimal"
)

func sampleEvent() notify.Event {
	return notify.Event{
		Type:   notify.OrderCreated,
		Branch: "jkt-01",
		Device: "till-1",
		At:     time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC),
		Order: models.Order{
			ID:        "ord-1",
			Sequence:  7,
			Status:    models.StatusPending,
			Items:     []models.LineItem{{Item: models.MenuItem{Name: "Kopi"}, Quantity: 2}},
			Breakdown: models.Breakdown{Total: decimal.NewFromInt(31185)},
		},
	}
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload("jkt-01", "till-1", []notify.Event{sampleEvent()})

	if p.Branch != "jkt-01" || p.Device != "till-1" {
		t.Errorf("branch/device = %q/%q", p.Branch, p.Device)
	}
	if len(p.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(p.Events))
	}
	ev := p.Events[0]
	if ev.Type != "order.created" || ev.Ticket != "#007" || ev.Total != "31185" || ev.Items != 2 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Payment != "unpaid" {
		t.Errorf("payment = %q, want unpaid", ev.Payment)
	}
	if ev.Timestamp != "2026-02-18T10:00:00Z" {
		t.Errorf("timestamp = %q", ev.Timestamp)
	}
}

func TestBuildPayload_Empty(t *testing.T) {
	p := BuildPayload("b", "d", nil)
	if len(p.Events) != 0 {
		t.Errorf("len(Events) = %d, want 0", len(p.Events))
	}
}

func TestDispatch_Success(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	err := Dispatch(t.Context(), srv.URL, "", BuildPayload("b", "d", []notify.Event{sampleEvent()}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("X-Kasir-Timestamp") == "" {
		t.Error("X-Kasir-Timestamp header missing")
	}
	if gotHeaders.Get("X-Kasir-Signature") != "" {
		t.Error("X-Kasir-Signature should be absent without secret")
	}

	var p Payload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(p.Events) != 1 || p.Events[0].OrderID != "ord-1" {
		t.Errorf("body events = %+v", p.Events)
	}
}

func TestDispatch_WithSecret(t *testing.T) {
	secret := "test-hmac-key"
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(204)
	}))
	defer srv.Close()

	if err := Dispatch(t.Context(), srv.URL, secret, Payload{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	sig := gotHeaders.Get("X-Kasir-Signature")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature = %q", sig)
	}
	expected := "sha256=" + Sign(secret, gotHeaders.Get("X-Kasir-Timestamp"), gotBody)
	if sig != expected {
		t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
	}
}

func TestDispatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	err := Dispatch(t.Context(), srv.URL, "", Payload{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %q, want to contain 'status 500'", err.Error())
	}
}

func TestDispatch_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := Dispatch(ctx, srv.URL, "", Payload{}); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestSink(t *testing.T) {
	if NewSink("", "x") != nil {
		t.Fatal("empty url should give no sink")
	}

	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := NewSink(srv.URL, "k")
	if err := sink.OrderChanged(t.Context(), sampleEvent()); err != nil {
		t.Fatalf("OrderChanged: %v", err)
	}
	if got.Branch != "jkt-01" || len(got.Events) != 1 {
		t.Fatalf("payload = %+v", got)
	}
}
