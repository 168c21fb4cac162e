// Package connectivity turns a periodic reachability probe into online and
// offline transitions.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the probe runs
const DefaultInterval = 15 * time.Second

// Probe checks reachability; nil means online.
type Probe func(ctx context.Context) error

// Watcher tracks the online state. The zero state is offline, so the first
// successful probe counts as a transition.
type Watcher struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	online    bool
	checked   bool
	onOnline  []func()
	onOffline []func()
}

// New returns a watcher running probe every interval (DefaultInterval when
// zero). Each probe is bounded by the interval.
func New(probe Probe, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{probe: probe, interval: interval, timeout: interval}
}

// OnOnline registers fn for every offline to online transition.
func (w *Watcher) OnOnline(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOnline = append(w.onOnline, fn)
}

// OnOffline registers fn for every online to offline transition.
func (w *Watcher) OnOffline(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOffline = append(w.onOffline, fn)
}

// Online reports the result of the last probe.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run probes immediately and then on every tick until ctx is done. It
// returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one probe and fires callbacks on a state change. Callbacks run
// on the caller's goroutine.
func (w *Watcher) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.probe(pctx)
	cancel()
	if ctx.Err() != nil {
		return w.Online()
	}
	up := err == nil

	w.mu.Lock()
	changed := up != w.online || !w.checked
	w.online = up
	w.checked = true
	var fns []func()
	if changed {
		if up {
			fns = append(fns, w.onOnline...)
		} else {
			fns = append(fns, w.onOffline...)
		}
	}
	w.mu.Unlock()

	if changed {
		if up {
			slog.Info("connectivity: online")
		} else {
			slog.Warn("connectivity: offline", "err", err)
		}
	}
	for _, fn := range fns {
		fn()
	}
	return up
}
