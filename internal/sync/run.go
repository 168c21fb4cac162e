package sync

import (
	"context"
	"errors"
	"log/slog"
)

// Connectivity is the host's online/offline signal. OnOnline callbacks fire
// on every offline to online transition, including the first successful
// probe at startup.
type Connectivity interface {
	OnOnline(fn func())
	Run(ctx context.Context) error
}

// Run drives the engine until ctx is done: subscriptions start immediately,
// and every time the connection comes back the subscriptions are restored
// and pending records reconciled.
func (e *Engine) Run(ctx context.Context, conn Connectivity) error {
	if err := e.Start(ctx); err != nil && !errors.Is(err, ErrNoBranch) {
		slog.Warn("starting subscriptions failed, will retry when online", "err", err)
	}

	conn.OnOnline(func() {
		if err := e.Resubscribe(ctx); err != nil {
			slog.Warn("resubscribe failed", "err", err)
		}
		res, err := e.Reconcile(ctx)
		switch {
		case errors.Is(err, ErrReconcileInProgress):
		case err != nil:
			slog.Warn("reconcile incomplete", "synced", res.Synced(), "err", err)
		}
	})

	err := conn.Run(ctx)
	e.Stop()
	e.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
