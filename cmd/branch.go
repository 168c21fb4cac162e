package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/kasir/internal/config"
	"github.com/marcus/kasir/internal/output"
	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:     "branch",
	Short:   "Show or change the branch this terminal serves",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(getDataDir())
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		if cfg.Branch == "" {
			fmt.Println("No branch selected")
			return nil
		}
		fmt.Println(cfg.Branch)
		return nil
	},
}

var branchSwitchCmd = &cobra.Command{
	Use:   "switch <branch>",
	Short: "Serve another branch; its orders are kept apart from the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := strings.TrimSpace(args[0])
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		if err := t.SwitchBranch(cmd.Context(), branch); err != nil {
			return reportOrderError(err)
		}
		if err := config.SetBranch(getDataDir(), branch); err != nil {
			output.Error("save branch: %v", err)
			return err
		}
		output.Success("now serving branch %s", branch)

		pending := 0
		for _, o := range t.Orders() {
			if o.Dirty {
				pending++
			}
		}
		if pending > 0 {
			output.Warning("%d order(s) of %s are still waiting for the server", pending, branch)
		}
		return nil
	},
}

func init() {
	branchCmd.AddCommand(branchSwitchCmd)
	rootCmd.AddCommand(branchCmd)
}
