package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// moneyValue is a non-negative rupiah amount flag
type moneyValue struct {
	amount decimal.Decimal
}

var _ pflag.Value = (*moneyValue)(nil)

func (m *moneyValue) String() string { return m.amount.String() }

func (m *moneyValue) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not an amount: %q", s)
	}
	if d.IsNegative() {
		return fmt.Errorf("amount must not be negative: %s", s)
	}
	m.amount = d
	return nil
}

func (m *moneyValue) Type() string { return "amount" }

// moneyFlag registers an amount flag on fs, defaulting to zero.
func moneyFlag(fs *pflag.FlagSet, name, usage string) {
	fs.Var(&moneyValue{}, name, usage)
}

// getMoney returns the parsed value of an amount flag registered with
// moneyFlag.
func getMoney(cmd *cobra.Command, name string) decimal.Decimal {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return decimal.Zero
	}
	if m, ok := f.Value.(*moneyValue); ok {
		return m.amount
	}
	return decimal.Zero
}
