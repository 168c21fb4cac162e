package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/spf13/cobra"
)

var shiftCmd = &cobra.Command{
	Use:     "shift",
	Short:   "Open and close the cash drawer",
	GroupID: "shift",
}

var shiftOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a shift; ticket numbers restart at 1",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		by, _ := cmd.Flags().GetString("by")
		s, err := t.OpenShift(cmd.Context(), by, getMoney(cmd, "cash"))
		if err != nil {
			if errors.Is(err, kasirsync.ErrShiftAlreadyOpen) {
				output.Error("a shift is already open since %s", output.FormatTimeAgo(currentShiftOpened(t)))
				return err
			}
			return reportOrderError(err)
		}
		output.Success("shift opened with %s in the drawer", output.FormatMoney(s.OpeningCash))
		return nil
	},
}

var shiftCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the shift and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		summary, err := t.CloseShift(cmd.Context())
		if err != nil {
			return reportOrderError(err)
		}
		return printSummary(cmd, summary)
	},
}

var shiftSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Totals of the open shift so far",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		summary, err := t.ShiftSummary()
		if err != nil {
			return reportOrderError(err)
		}
		return printSummary(cmd, summary)
	},
}

func printSummary(cmd *cobra.Command, summary models.ShiftSummary) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return output.JSON(summary)
	}
	md := output.ShiftSummaryMarkdown(summary)
	rendered, err := output.Render(md, output.RenderOptions{})
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Println(rendered)
	return nil
}

func currentShiftOpened(t *terminal) (opened time.Time) {
	if s, ok := t.CurrentShift(); ok {
		return s.OpenedAt
	}
	return opened
}

func init() {
	shiftOpenCmd.Flags().String("by", "", "Cashier opening the drawer")
	moneyFlag(shiftOpenCmd.Flags(), "cash", "Opening cash in the drawer")
	shiftCloseCmd.Flags().Bool("json", false, "JSON output")
	shiftSummaryCmd.Flags().Bool("json", false, "JSON output")

	shiftCmd.AddCommand(shiftOpenCmd, shiftCloseCmd, shiftSummaryCmd)
	rootCmd.AddCommand(shiftCmd)
}
