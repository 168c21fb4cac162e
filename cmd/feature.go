package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/kasir/internal/config"
	"github.com/marcus/kasir/internal/features"
	"github.com/marcus/kasir/internal/output"
	"github.com/spf13/cobra"
)

var featureCmd = &cobra.Command{
	Use:     "feature",
	Short:   "Inspect and toggle feature flags",
	GroupID: "system",
}

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature flags and where their value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getDataDir()
		jsonOut, _ := cmd.Flags().GetBool("json")

		type row struct {
			Name        string   `json:"name"`
			Enabled     bool     `json:"enabled"`
			Source      string   `json:"source"`
			Description string   `json:"description"`
			Gates       []string `json:"gates,omitempty"`
		}
		var rows []row
		for _, f := range features.ListAll() {
			enabled, source := features.Resolve(dir, f.Name)
			rows = append(rows, row{
				Name:        f.Name,
				Enabled:     enabled,
				Source:      source,
				Description: f.Description,
				Gates:       features.Surfaces(f.Name),
			})
		}
		if jsonOut {
			return output.JSON(rows)
		}
		for _, r := range rows {
			state := "off"
			if r.Enabled {
				state = "on"
			}
			fmt.Printf("%-16s %-3s %-8s %s\n", r.Name, state, output.Subtle("("+r.Source+")"), r.Description)
		}
		return nil
	},
}

var featureSetCmd = &cobra.Command{
	Use:   "set <name> <true|false>",
	Short: "Persist a feature flag in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(strings.TrimSpace(args[0]))
		if !features.IsKnownFeature(name) {
			output.Error("unknown feature: %s", name)
			return fmt.Errorf("unknown feature: %s", name)
		}
		enabled, err := strconv.ParseBool(args[1])
		if err != nil {
			output.Error("invalid bool value %q (use true/false/1/0)", args[1])
			return err
		}
		if err := config.SetFeatureFlag(getDataDir(), name, enabled); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("set %s = %t", name, enabled)
		return nil
	},
}

var featureUnsetCmd = &cobra.Command{
	Use:   "unset <name>",
	Short: "Return a feature flag to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(strings.TrimSpace(args[0]))
		if !features.IsKnownFeature(name) {
			output.Error("unknown feature: %s", name)
			return fmt.Errorf("unknown feature: %s", name)
		}
		if err := config.UnsetFeatureFlag(getDataDir(), name); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("unset %s", name)
		return nil
	},
}

func init() {
	featureListCmd.Flags().Bool("json", false, "JSON output")
	featureCmd.AddCommand(featureListCmd, featureSetCmd, featureUnsetCmd)
	rootCmd.AddCommand(featureCmd)
}
