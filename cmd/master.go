package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var masterCmd = &cobra.Command{
	Use:     "master",
	Short:   "Menu, profile and other branch-wide documents",
	GroupID: "core",
	Long: `Master documents are replaced whole: the last terminal to save one wins.
Kinds: menu, categories, profile, ingredients, status.`,
}

var masterSetCmd = &cobra.Command{
	Use:   "set <kind> [file]",
	Short: "Replace a master document from a YAML or JSON file",
	Example: `  kasir master set profile profile.yaml
  cat menu.json | kasir master set menu -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		kind := models.MasterKind(args[0])
		src := "-"
		if len(args) == 2 {
			src = args[1]
		}
		value, err := readDocument(src)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		by, _ := cmd.Flags().GetString("by")
		doc, err := t.SetMaster(cmd.Context(), kind, value, by)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("%s saved (%d bytes)", doc.Kind, len(doc.Value))
		return nil
	},
}

var masterShowCmd = &cobra.Command{
	Use:   "show <kind>",
	Short: "Print a master document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		kind := models.MasterKind(args[0])
		if !kind.IsValid() {
			output.Error("unknown master kind %q", kind)
			return fmt.Errorf("unknown master kind %q", kind)
		}
		doc, ok := t.Master(kind)
		if !ok {
			fmt.Printf("No %s document\n", kind)
			return nil
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(doc)
		}

		var v any
		if err := json.Unmarshal(doc.Value, &v); err != nil {
			output.Error("decode %s: %v", kind, err)
			return err
		}
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(output.SectionHeader(string(kind)))
		fmt.Print(output.IndentString(string(data), 2))
		fmt.Printf("\n%s\n", output.Subtle(fmt.Sprintf("updated %s by %s", output.FormatTimeAgo(doc.UpdatedAt), orUnknown(doc.UpdatedBy))))
		return nil
	},
}

var masterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show or change whether the branch is open",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		st := t.BranchStatus()
		changed := false
		if cmd.Flags().Changed("open") {
			st.Open, _ = cmd.Flags().GetBool("open")
			changed = true
		}
		if cmd.Flags().Changed("self-orders") {
			st.AcceptingSelfOrders, _ = cmd.Flags().GetBool("self-orders")
			changed = true
		}
		if changed {
			by, _ := cmd.Flags().GetString("by")
			if err := t.SetBranchStatus(cmd.Context(), st, by); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		open := "closed"
		if st.Open {
			open = "open"
		}
		self := "no"
		if st.AcceptingSelfOrders {
			self = "yes"
		}
		fmt.Printf("Branch %s is %s (self orders: %s)\n", t.Branch(), open, self)
		return nil
	},
}

// readDocument parses YAML (and so JSON) from a file or stdin.
func readDocument(src string) (any, error) {
	var r io.Reader = os.Stdin
	if src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("empty document")
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	return v, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func init() {
	masterSetCmd.Flags().String("by", "", "Who made the change")
	masterShowCmd.Flags().Bool("json", false, "JSON output")
	masterStatusCmd.Flags().Bool("open", true, "Open or close the branch")
	masterStatusCmd.Flags().Bool("self-orders", false, "Accept self orders")
	masterStatusCmd.Flags().String("by", "", "Who made the change")

	masterCmd.AddCommand(masterSetCmd, masterShowCmd, masterStatusCmd)
	rootCmd.AddCommand(masterCmd)
}
