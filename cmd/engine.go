package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcus/kasir/internal/config"
	"github.com/marcus/kasir/internal/features"
	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/notify"
	"github.com/marcus/kasir/internal/output"
	"github.com/marcus/kasir/internal/remote"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/marcus/kasir/internal/webhook"
	"github.com/spf13/cobra"
)

// reconcileBudget bounds the post-command reconcile so a dead server never
// makes the CLI hang.
const reconcileBudget = 5 * time.Second

// terminal is the engine plus the resources it was built from, owned by the
// running command.
type terminal struct {
	*kasirsync.Engine
	cfg    *config.Config
	store  *localstore.Store
	remote remote.Store
	amqp   *notify.AMQPSink
}

var current *terminal

// mutatingCommands lists commands whose writes are worth reconciling before
// the process exits.
var mutatingCommands = map[string]bool{
	"order create":         true,
	"order status":         true,
	"order pay":            true,
	"order edit":           true,
	"order cancel":         true,
	"shift open":           true,
	"shift close":          true,
	"attendance clock-in":  true,
	"attendance clock-out": true,
	"master set":           true,
	"master status":        true,
}

func commandKey(cmd *cobra.Command) string {
	if p := cmd.Parent(); p != nil && p != rootCmd {
		return p.Name() + " " + cmd.Name()
	}
	return cmd.Name()
}

// openEngine builds the engine for this invocation. The remote store is
// opened with a short connect deadline; any failure runs local-only.
func openEngine(ctx context.Context) (*terminal, error) {
	if current != nil {
		return current, nil
	}
	dir := getDataDir()

	cfg, err := config.Resolve(dir)
	if err != nil {
		return nil, err
	}
	device, err := config.DeviceID(dir)
	if err != nil {
		return nil, err
	}

	store, err := localstore.Open(dir, localstore.Options{})
	if err != nil {
		return nil, err
	}

	rs := remote.Open(ctx, remote.Config{
		URL:            cfg.Remote.URL,
		Username:       cfg.Remote.Username,
		Password:       cfg.Remote.Password,
		Namespace:      cfg.Remote.Namespace,
		Database:       cfg.Remote.Database,
		ConnectTimeout: cfg.ConnectTimeout(),
	})

	t := &terminal{cfg: cfg, store: store, remote: rs}
	events := t.eventSinks(dir)

	t.Engine = kasirsync.New(store, rs, kasirsync.Options{
		Prefix:       cfg.Prefix,
		Branch:       cfg.Branch,
		Device:       device,
		WriteTimeout: cfg.WriteTimeout(),
		Notifier:     cliNotifier{},
		Events:       events,
		MirrorMaster: features.IsEnabled(dir, features.MasterMirror.Name),
	})
	current = t
	return t, nil
}

// eventSinks builds the order event fan-out. Nil when the feature is off or
// nothing is configured.
func (t *terminal) eventSinks(dir string) notify.Sink {
	if !features.IsEnabled(dir, features.KitchenEvents.Name) {
		return nil
	}
	var sinks []notify.Sink
	if t.cfg.Events.AMQPURL != "" {
		t.amqp = notify.NewAMQPSink(t.cfg.Events.AMQPURL, t.cfg.Exchange())
		sinks = append(sinks, t.amqp)
	}
	if s := webhook.NewSink(t.cfg.Events.WebhookURL, t.cfg.Events.WebhookSecret); s != nil {
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil
	}
	return notify.Multi(sinks...)
}

// mustEngine opens the engine and reports failures the way every command
// does.
func mustEngine(cmd *cobra.Command) (*terminal, error) {
	t, err := openEngine(cmd.Context())
	if err != nil {
		output.Error("open terminal: %v", err)
		return nil, err
	}
	return t, nil
}

// finishEngine runs after a successful command. Mutations get a bounded
// reconcile so records left pending by earlier offline runs go out too.
func finishEngine(cmd *cobra.Command) {
	if current == nil || !mutatingCommands[commandKey(cmd)] {
		return
	}
	if !features.IsEnabled(getDataDir(), features.AutoReconcile.Name) {
		return
	}
	if !current.WaitTimeout(current.cfg.WriteTimeout()) {
		slog.Debug("background writes still running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), reconcileBudget)
	defer cancel()
	if _, err := current.Reconcile(ctx); err != nil && !errors.Is(err, kasirsync.ErrReconcileInProgress) {
		slog.Debug("post-command reconcile", "err", err)
	}
}

// closeEngine waits for background writes and releases everything.
func closeEngine() {
	if current == nil {
		return
	}
	t := current
	current = nil
	if err := t.Close(); err != nil {
		slog.Debug("close remote", "err", err)
	}
	if t.amqp != nil {
		t.amqp.Close()
	}
	if err := t.store.Close(); err != nil {
		slog.Debug("close local store", "err", err)
	}
}

// cliNotifier prints the two sync outcomes the person at the till acts on.
// Remote errors only go to the log.
type cliNotifier struct {
	kasirsync.LogNotifier
}

func (cliNotifier) SlowSubmission(o models.Order) {
	output.Warning("order %s is saved on this terminal but the server is slow; check the kitchen received it", o.Ticket())
}

func (cliNotifier) Synced(n int) {
	output.Success("%d pending record(s) synced", n)
}

