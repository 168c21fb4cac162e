package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcus/kasir/internal/connectivity"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Inspect and drive synchronization with the branch server",
	GroupID: "sync",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is still waiting for the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}

		pendingOrders := 0
		for _, o := range t.Orders() {
			if o.Dirty {
				pendingOrders++
			}
		}
		pendingAttendance := 0
		for _, a := range t.Attendance() {
			if a.Dirty {
				pendingAttendance++
			}
		}

		reachable := "not configured"
		if t.RemoteAvailable() {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if err := t.remote.Ping(ctx); err != nil {
				reachable = "unreachable"
			} else {
				reachable = "reachable"
			}
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{
				"branch":             t.Branch(),
				"device":             t.Device(),
				"server":             reachable,
				"pending_orders":     pendingOrders,
				"pending_attendance": pendingAttendance,
				"schema_version":     t.store.SchemaVersion(),
			})
		}

		fmt.Printf("Branch:      %s\n", orUnknown(t.Branch()))
		fmt.Printf("Device:      %s\n", t.Device())
		fmt.Printf("Server:      %s\n", reachable)
		fmt.Printf("Pending:     %d order(s), %d attendance record(s)\n", pendingOrders, pendingAttendance)
		fmt.Printf("Schema:      v%d\n", t.store.SchemaVersion())
		return nil
	},
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Recent pushes and merges",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := t.store.HistoryTail(limit)
		if err != nil {
			output.Error("read history: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No sync history")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-5s  %-10s  %-8s  %s",
				e.Timestamp.Local().Format("01-02 15:04:05"),
				e.Direction, e.Entity, output.ShortID(e.EntityID), e.Result)
			if e.Detail != "" {
				line += "  " + output.Subtle(e.Detail)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var syncPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the branch server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		if !t.RemoteAvailable() {
			output.Warning("no server configured; set remote.url with 'kasir config set'")
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), t.cfg.WriteTimeout())
		defer cancel()
		start := time.Now()
		if err := t.remote.Ping(ctx); err != nil {
			output.Error("server unreachable: %v", err)
			return err
		}
		output.Success("server reachable (%s)", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var syncReconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Aliases: []string{"push"},
	Short:   "Push every pending record now",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		if !t.RemoteAvailable() {
			output.Warning("no server configured; records stay on this terminal")
			return nil
		}
		res, err := t.Reconcile(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if res.Synced() == 0 {
			fmt.Println("Nothing pending")
		}
		return nil
	},
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Stay connected: merge live changes and push when back online",
	Long: `Run in the foreground until interrupted. Orders saved by other terminals
of the branch are merged as they arrive, and every time the server becomes
reachable again the pending records are pushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		if !t.RemoteAvailable() {
			output.Error("no server configured; set remote.url with 'kasir config set'")
			return errors.New("no remote configured")
		}
		if t.Branch() == "" {
			return reportOrderError(kasirsync.ErrNoBranch)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = t.cfg.ProbeInterval()
		}
		watcher := connectivity.New(t.remote.Ping, interval)
		watcher.OnOffline(func() {
			output.Warning("server unreachable, orders are kept on this terminal")
		})
		watcher.OnOnline(func() {
			output.Info("server reachable")
		})

		unwatch := t.OnOrdersChanged(func(orders []models.Order) {
			slog.Debug("orders changed", "count", len(orders))
		})
		defer unwatch()

		output.Info("syncing branch %s as %s (ctrl+c to stop)", t.Branch(), t.Device())
		if err := t.Run(ctx, watcher); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			output.Error("%v", err)
			return err
		}
		return nil
	},
}

func init() {
	syncStatusCmd.Flags().Bool("json", false, "JSON output")
	syncHistoryCmd.Flags().IntP("limit", "n", 20, "Entries to show")
	syncHistoryCmd.Flags().Bool("json", false, "JSON output")
	syncRunCmd.Flags().Duration("interval", 0, "Connectivity probe interval (default from config)")

	syncCmd.AddCommand(syncStatusCmd, syncHistoryCmd, syncPingCmd, syncReconcileCmd, syncRunCmd)
	rootCmd.AddCommand(syncCmd)
}
