package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var orderCmd = &cobra.Command{
	Use:     "order",
	Aliases: []string{"o"},
	Short:   "Take and manage orders",
	GroupID: "core",
}

var orderCreateCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"new", "add"},
	Short:   "Record a new order",
	Long: `Record a new order on this terminal. The order is saved locally before
anything is sent to the server, so it is never lost when the network is down.

Items are written as name[=price][*qty][#note]. Items on the menu can be given
by name or id alone. Run without --item on a terminal for an interactive form.`,
	Example: `  kasir order create --customer Sari --item "Kopi Susu*2" --item "Roti Bakar=18000#no butter"
  kasir order create --type takeaway --item latte --discount 10%`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}

		specs, _ := cmd.Flags().GetStringArray("item")
		customer, _ := cmd.Flags().GetString("customer")
		typ, _ := cmd.Flags().GetString("type")
		discount, _ := cmd.Flags().GetString("discount")
		jsonOut, _ := cmd.Flags().GetBool("json")

		var in kasirsync.OrderInput
		if len(specs) == 0 && term.IsTerminal(int(os.Stdin.Fd())) {
			in, err = orderForm(t.Menu())
			if err != nil {
				output.Error("%v", err)
				return err
			}
		} else {
			in.CustomerName = customer
			in.Type = models.OrderType(typ)
			if in.Items, err = parseItems(specs, t.Menu()); err != nil {
				output.Error("%v", err)
				return err
			}
			if in.Discount, err = parseDiscount(discount); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		o, err := t.CreateOrder(cmd.Context(), in)
		if err != nil {
			return reportOrderError(err)
		}

		if jsonOut {
			return output.JSON(o)
		}
		output.Success("order %s created (%s)", o.Ticket(), output.ShortID(o.ID))
		fmt.Println(output.FormatOrderShort(o))
		return nil
	},
}

var orderListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List orders of the active branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}

		statuses, _ := cmd.Flags().GetStringSlice("status")
		pendingOnly, _ := cmd.Flags().GetBool("pending")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		orders := filterOrders(t.Orders(), statuses, pendingOnly)
		if limit > 0 && len(orders) > limit {
			orders = orders[:limit]
		}

		if jsonOut {
			return output.JSON(orders)
		}
		if len(orders) == 0 {
			fmt.Println("No orders")
			return nil
		}
		for _, o := range orders {
			fmt.Println(output.FormatOrderShort(o))
		}
		return nil
	},
}

var orderShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		o, ok := t.Order(args[0])
		if !ok {
			output.Error("order not found: %s", args[0])
			return kasirsync.ErrOrderNotFound
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(o)
		}
		fmt.Print(output.FormatOrderLong(o))
		return nil
	},
}

var orderStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|ready|completed|cancelled>",
	Short: "Move an order along its lifecycle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		id, err := resolveOrderID(t, args[0])
		if err != nil {
			return err
		}
		o, err := t.UpdateOrderStatus(cmd.Context(), id, models.OrderStatus(args[1]))
		if err != nil {
			return reportOrderError(err)
		}
		output.Success("order %s is %s", o.Ticket(), output.FormatStatus(o.Status))
		return nil
	},
}

var orderPayCmd = &cobra.Command{
	Use:   "pay <id>",
	Short: "Settle an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		id, err := resolveOrderID(t, args[0])
		if err != nil {
			return err
		}
		method, _ := cmd.Flags().GetString("method")
		o, err := t.PayOrder(cmd.Context(), id, models.PaymentMethod(method))
		if err != nil {
			return reportOrderError(err)
		}
		output.Success("order %s paid by %s: %s", o.Ticket(), o.Payment.Method, output.FormatMoney(o.Breakdown.Total))
		return nil
	},
}

var orderEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change items, discount or customer of an open order",
	Long: `Change a pending, unpaid order. --item replaces the whole cart; omit it to
keep the current items.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		id, err := resolveOrderID(t, args[0])
		if err != nil {
			return err
		}

		var edit kasirsync.OrderEdit
		if cmd.Flags().Changed("customer") {
			name, _ := cmd.Flags().GetString("customer")
			edit.CustomerName = &name
		}
		if cmd.Flags().Changed("item") {
			specs, _ := cmd.Flags().GetStringArray("item")
			if edit.Items, err = parseItems(specs, t.Menu()); err != nil {
				output.Error("%v", err)
				return err
			}
			if len(edit.Items) == 0 {
				output.Error("%v", kasirsync.ErrEmptyCart)
				return kasirsync.ErrEmptyCart
			}
		}
		if cmd.Flags().Changed("discount") {
			raw, _ := cmd.Flags().GetString("discount")
			d, err := parseDiscount(raw)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			edit.Discount = &d
		}

		o, err := t.EditOrder(cmd.Context(), id, edit)
		if err != nil {
			return reportOrderError(err)
		}
		output.Success("order %s updated: %s", o.Ticket(), output.FormatMoney(o.Breakdown.Total))
		return nil
	},
}

var orderCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or ready order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		id, err := resolveOrderID(t, args[0])
		if err != nil {
			return err
		}
		o, err := t.CancelOrder(cmd.Context(), id)
		if err != nil {
			return reportOrderError(err)
		}
		output.Success("order %s cancelled", o.Ticket())
		return nil
	},
}

var orderReceiptCmd = &cobra.Command{
	Use:   "receipt <id>",
	Short: "Print a receipt for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		o, ok := t.Order(args[0])
		if !ok {
			output.Error("order not found: %s", args[0])
			return kasirsync.ErrOrderNotFound
		}
		md := output.ReceiptMarkdown(o, t.Profile())
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Print(md)
			return nil
		}
		opts := output.RenderOptions{}
		opts.Printer, _ = cmd.Flags().GetBool("preview")
		switch paper, _ := cmd.Flags().GetInt("paper"); paper {
		case 0:
		case 58:
			opts.Width = output.Paper58mm
		case 80:
			opts.Width = output.Paper80mm
		default:
			output.Error("paper must be 58 or 80 (mm), got %d", paper)
			return fmt.Errorf("unsupported paper width %d", paper)
		}
		rendered, err := output.Render(md, opts)
		if err != nil {
			fmt.Print(md)
			return nil
		}
		fmt.Println(rendered)
		return nil
	},
}

// resolveOrderID expands a unique id prefix to the full id.
func resolveOrderID(t *terminal, ref string) (string, error) {
	o, ok := t.Order(ref)
	if !ok {
		output.Error("order not found: %s", ref)
		return "", kasirsync.ErrOrderNotFound
	}
	return o.ID, nil
}

// reportOrderError prints err with a hint for the errors a cashier can fix.
func reportOrderError(err error) error {
	switch {
	case errors.Is(err, kasirsync.ErrNoOpenShift):
		output.Error("no open shift; run 'kasir shift open' first")
	case errors.Is(err, kasirsync.ErrNoBranch):
		output.Error("no branch selected; run 'kasir branch switch <name>'")
	default:
		output.Error("%v", err)
	}
	return err
}

func filterOrders(orders []models.Order, statuses []string, pendingOnly bool) []models.Order {
	want := make(map[models.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		want[models.OrderStatus(strings.TrimSpace(s))] = true
	}
	out := orders[:0:0]
	for _, o := range orders {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		if pendingOnly && !o.Dirty {
			continue
		}
		out = append(out, o)
	}
	return out
}

func init() {
	orderCreateCmd.Flags().StringArrayP("item", "i", nil, "Cart line name[=price][*qty][#note] (repeatable)")
	orderCreateCmd.Flags().StringP("customer", "c", "", "Customer name")
	orderCreateCmd.Flags().StringP("type", "t", string(models.OrderDineIn), "Order type: dine_in, takeaway, delivery, self_order")
	orderCreateCmd.Flags().StringP("discount", "d", "", "Discount: 10% or a fixed amount")
	orderCreateCmd.Flags().Bool("json", false, "JSON output")

	orderListCmd.Flags().StringSliceP("status", "s", nil, "Filter by status (repeatable or comma separated)")
	orderListCmd.Flags().Bool("pending", false, "Only orders not yet confirmed by the server")
	orderListCmd.Flags().IntP("limit", "n", 0, "Maximum orders to show")
	orderListCmd.Flags().Bool("json", false, "JSON output")

	orderShowCmd.Flags().Bool("json", false, "JSON output")

	orderPayCmd.Flags().StringP("method", "m", string(models.MethodCash), "Payment method: cash, qris, card, transfer")

	orderEditCmd.Flags().StringArrayP("item", "i", nil, "Replacement cart line (repeatable)")
	orderEditCmd.Flags().StringP("customer", "c", "", "Customer name")
	orderEditCmd.Flags().StringP("discount", "d", "", "Discount: 10% or a fixed amount, empty to clear")

	orderReceiptCmd.Flags().Bool("raw", false, "Print markdown without rendering")
	orderReceiptCmd.Flags().Int("paper", 0, "Roll width in mm (58 or 80); default fits the terminal")
	orderReceiptCmd.Flags().Bool("preview", false, "Show the receipt as the printer gets it")

	orderCmd.AddCommand(orderCreateCmd, orderListCmd, orderShowCmd, orderStatusCmd,
		orderPayCmd, orderEditCmd, orderCancelCmd, orderReceiptCmd)
	rootCmd.AddCommand(orderCmd)
}
