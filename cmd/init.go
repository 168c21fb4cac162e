package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/kasir/internal/config"
	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/output"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Set up this terminal",
	GroupID: "system",
	Long: `Create the data directory, the local database and the config file, and
assign this terminal a device id. Safe to run again; existing settings are
only changed by the flags given.`,
	Example: `  kasir init --branch jkt-01 --remote ws://pos-server:8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getDataDir()

		branch, _ := cmd.Flags().GetString("branch")
		remoteURL, _ := cmd.Flags().GetString("remote")
		err := config.Update(dir, func(cfg *config.Config) error {
			if b := strings.TrimSpace(branch); b != "" {
				cfg.Branch = b
			}
			if cmd.Flags().Changed("remote") {
				cfg.Remote.URL = strings.TrimSpace(remoteURL)
			}
			return nil
		})
		if err != nil {
			output.Error("write config: %v", err)
			return err
		}

		device, err := config.DeviceID(dir)
		if err != nil {
			output.Error("device id: %v", err)
			return err
		}

		store, err := localstore.Open(dir, localstore.Options{})
		if err != nil {
			output.Error("open local store: %v", err)
			return err
		}
		version := store.SchemaVersion()
		store.Close()

		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		output.Success("terminal ready in %s", dir)
		fmt.Printf("  device:  %s\n", device)
		fmt.Printf("  branch:  %s\n", orUnknown(cfg.Branch))
		fmt.Printf("  server:  %s\n", orNone(cfg.Remote.URL))
		fmt.Printf("  schema:  v%d\n", version)
		if cfg.Branch == "" {
			output.Warning("no branch set; run 'kasir branch switch <name>'")
		}
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "none (local only)"
	}
	return s
}

func init() {
	initCmd.Flags().StringP("branch", "b", "", "Branch this terminal serves")
	initCmd.Flags().String("remote", "", "Branch server URL (ws://, http://, postgres://)")
	rootCmd.AddCommand(initCmd)
}
