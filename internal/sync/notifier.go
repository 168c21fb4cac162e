package sync

import (
	"log/slog"

	"github.com/marcus/kasir/internal/models"
)

// Notifier receives the few sync outcomes a user should see
type Notifier interface {
	// SlowSubmission fires when creating an order timed out against the
	// remote store. The order is safe locally; staff should verify it.
	SlowSubmission(o models.Order)
	// Synced fires after the reconciler pushed n pending records.
	Synced(n int)
	// RemoteError fires at most once per engine, for the first remote
	// subscription or connection failure.
	RemoteError(err error)
}

// NopNotifier ignores everything
type NopNotifier struct{}

func (NopNotifier) SlowSubmission(models.Order) {}
func (NopNotifier) Synced(int)                  {}
func (NopNotifier) RemoteError(error)           {}

// LogNotifier reports through slog
type LogNotifier struct{}

func (LogNotifier) SlowSubmission(o models.Order) {
	slog.Warn("order submission is slow; verify with staff", "order", o.ID, "ticket", o.Ticket())
}

func (LogNotifier) Synced(n int) {
	slog.Info("pending records synced", "count", n)
}

func (LogNotifier) RemoteError(err error) {
	slog.Warn("remote store error", "err", err)
}
