package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	kasirsync "github.com/marcus/kasir/internal/sync"
)

// orderForm asks for an order interactively. Menu items are picked from a
// list; anything else is typed one item per line.
func orderForm(menu []models.MenuItem) (kasirsync.OrderInput, error) {
	var (
		customer string
		typ      = string(models.OrderDineIn)
		picked   []string
		extra    string
		discount string
	)

	fields := []huh.Field{
		huh.NewInput().
			Title("Customer").
			Value(&customer),
		huh.NewSelect[string]().
			Title("Type").
			Options(
				huh.NewOption("Dine in", string(models.OrderDineIn)),
				huh.NewOption("Takeaway", string(models.OrderTakeaway)),
				huh.NewOption("Delivery", string(models.OrderDelivery)),
			).
			Value(&typ),
	}

	if len(menu) > 0 {
		opts := make([]huh.Option[string], 0, len(menu))
		for _, m := range menu {
			opts = append(opts, huh.NewOption(fmt.Sprintf("%s  %s", m.Name, output.FormatMoney(m.Price)), menuKey(m)))
		}
		fields = append(fields, huh.NewMultiSelect[string]().
			Title("Menu").
			Description("space to pick, enter to continue").
			Options(opts...).
			Value(&picked))
	}

	fields = append(fields,
		huh.NewText().
			Title("Other items").
			Description("One per line: name=price*qty#note").
			Value(&extra),
		huh.NewInput().
			Title("Discount").
			Description("10% or a fixed amount, empty for none").
			Value(&discount).
			Validate(func(s string) error {
				_, err := parseDiscount(s)
				return err
			}),
	)

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return kasirsync.OrderInput{}, err
	}

	in := kasirsync.OrderInput{
		CustomerName: customer,
		Type:         models.OrderType(typ),
	}
	for _, key := range picked {
		for _, m := range menu {
			if menuKey(m) == key {
				in.Items = append(in.Items, models.LineItem{Item: m, Quantity: 1})
				break
			}
		}
	}
	more, err := parseItems(strings.Split(extra, "\n"), menu)
	if err != nil {
		return kasirsync.OrderInput{}, err
	}
	in.Items = append(in.Items, more...)

	in.Discount, err = parseDiscount(discount)
	if err != nil {
		return kasirsync.OrderInput{}, err
	}
	return in, nil
}

func menuKey(m models.MenuItem) string {
	if m.ID != "" {
		return m.ID
	}
	return m.Name
}
