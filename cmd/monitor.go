package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/kasir/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live order board for the kitchen and counter",
	Long: `Launch a live order board with three columns: queue, ready and done.
Orders from every terminal of the branch appear as they arrive.

Key bindings:
  Tab/Shift+Tab  Switch column
  1/2/3          Jump to column
  ↑/↓            Select order
  Enter          Advance order (queue → ready → done)
  x              Cancel order
  /              Filter
  r              Reload
  ?              Toggle help
  q              Quit`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		if err := t.Start(cmd.Context()); err != nil {
			return reportOrderError(err)
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		model := monitor.NewModel(t, interval)
		defer model.Close()

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval (default 2s)")
}
