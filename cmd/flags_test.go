package cmd

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func TestMoneyFlag(t *testing.T) {
	c := &cobra.Command{Use: "x"}
	moneyFlag(c.Flags(), "cash", "")

	if got := getMoney(c, "cash"); !got.IsZero() {
		t.Fatalf("default = %s, want 0", got)
	}
	if err := c.Flags().Set("cash", "150000"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := getMoney(c, "cash"); !got.Equal(decimal.NewFromInt(150000)) {
		t.Fatalf("cash = %s, want 150000", got)
	}

	for _, bad := range []string{"-1", "lots", ""} {
		if err := c.Flags().Set("cash", bad); err == nil {
			t.Errorf("Set(%q) succeeded", bad)
		}
	}
	if got := getMoney(c, "missing"); !got.IsZero() {
		t.Errorf("unknown flag = %s, want 0", got)
	}
}
