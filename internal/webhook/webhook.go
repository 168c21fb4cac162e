// Package webhook posts HMAC-signed order events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/notify"
)

// Payload is the webhook POST body.
type Payload struct {
	Branch    string         `json:"branch"`
	Device    string         `json:"device"`
	Timestamp string         `json:"timestamp"`
	Events    []EventPayload `json:"events"`
}

// EventPayload is one order change within a payload.
type EventPayload struct {
	Type      string `json:"type"`
	OrderID   string `json:"order_id"`
	Ticket    string `json:"ticket"`
	Status    string `json:"status"`
	Payment   string `json:"payment"`
	Total     string `json:"total"`
	Items     int    `json:"items"`
	Timestamp string `json:"timestamp"`
}

// BuildPayload converts order events into a webhook payload.
func BuildPayload(branch, device string, events []notify.Event) Payload {
	p := Payload{
		Branch:    branch,
		Device:    device,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Events:    make([]EventPayload, len(events)),
	}
	for i, ev := range events {
		p.Events[i] = eventPayload(ev)
	}
	return p
}

func eventPayload(ev notify.Event) EventPayload {
	o := ev.Order
	return EventPayload{
		Type:      string(ev.Type),
		OrderID:   o.ID,
		Ticket:    o.Ticket(),
		Status:    string(o.Status),
		Payment:   string(paymentOf(o)),
		Total:     o.Breakdown.Total.String(),
		Items:     o.ItemCount(),
		Timestamp: ev.At.UTC().Format(time.RFC3339),
	}
}

func paymentOf(o models.Order) models.PaymentStatus {
	if o.Payment.Status == "" {
		return models.PaymentUnpaid
	}
	return o.Payment.Status
}

// Dispatch performs a synchronous HTTP POST to the webhook URL.
// Returns nil on success (2xx status).
func Dispatch(ctx context.Context, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kasir-webhook/1")

	unixTS := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("X-Kasir-Timestamp", unixTS)

	if secret != "" {
		req.Header.Set("X-Kasir-Signature", "sha256="+Sign(secret, unixTS, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sink posts every order event as its own payload.
type Sink struct {
	URL    string
	Secret string
}

// NewSink returns nil when url is empty, so callers can pass the result to
// notify.Multi unconditionally.
func NewSink(url, secret string) notify.Sink {
	if url == "" {
		return nil
	}
	return &Sink{URL: url, Secret: secret}
}

func (s *Sink) OrderChanged(ctx context.Context, ev notify.Event) error {
	return Dispatch(ctx, s.URL, s.Secret, BuildPayload(ev.Branch, ev.Device, []notify.Event{ev}))
}
