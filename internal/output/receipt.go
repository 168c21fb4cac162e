package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marcus/kasir/internal/models"
)

// ReceiptMarkdown lays out a customer receipt as markdown, for the printer
// boundary and for Render on screen.
func ReceiptMarkdown(o models.Order, p models.Profile) string {
	var sb strings.Builder
	name := p.Name
	if name == "" {
		name = "Receipt"
	}
	sb.WriteString("# " + name + "\n\n")
	if p.Address != "" {
		sb.WriteString(p.Address + "  \n")
	}
	if p.Phone != "" {
		sb.WriteString(p.Phone + "  \n")
	}
	sb.WriteString(fmt.Sprintf("**%s** · %s · %s\n\n", o.Ticket(), o.Type, o.CreatedAt.Local().Format("2006-01-02 15:04")))
	if o.CustomerName != "" {
		sb.WriteString("Customer: " + o.CustomerName + "\n\n")
	}

	sb.WriteString("| Item | Qty | Amount |\n|---|---:|---:|\n")
	for _, l := range o.Items {
		amount := l.Item.Price.Mul(decimalOf(l.Quantity))
		sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", escapeCell(l.Item.Name), l.Quantity, FormatMoney(amount)))
	}
	sb.WriteString("\n")

	b := o.Breakdown
	sb.WriteString(fmt.Sprintf("- Subtotal: %s\n", FormatMoney(b.Subtotal)))
	if b.Discount.IsPositive() {
		sb.WriteString(fmt.Sprintf("- Discount: -%s\n", FormatMoney(b.Discount)))
	}
	if b.Service.IsPositive() {
		sb.WriteString(fmt.Sprintf("- Service (%s%%): %s\n", p.ServiceRate.String(), FormatMoney(b.Service)))
	}
	if b.Tax.IsPositive() {
		sb.WriteString(fmt.Sprintf("- Tax (%s%%): %s\n", p.TaxRate.String(), FormatMoney(b.Tax)))
	}
	sb.WriteString(fmt.Sprintf("- **Total: %s**\n", FormatMoney(b.Total)))

	if o.Payment.Status == models.PaymentPaid {
		sb.WriteString(fmt.Sprintf("\nPaid by %s\n", o.Payment.Method))
	} else {
		sb.WriteString("\n_Unpaid_\n")
	}
	return sb.String()
}

// ShiftSummaryMarkdown lays out the end-of-shift report.
func ShiftSummaryMarkdown(s models.ShiftSummary) string {
	var sb strings.Builder
	sb.WriteString("# Shift summary\n\n")
	sb.WriteString(fmt.Sprintf("Opened %s", s.OpenedAt.Local().Format("2006-01-02 15:04")))
	if s.ClosedAt != nil {
		sb.WriteString(fmt.Sprintf(", closed %s", s.ClosedAt.Local().Format("15:04")))
	}
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("- Orders: %d (completed %d, cancelled %d, unpaid %d)\n", s.Orders, s.Completed, s.Cancelled, s.Unpaid))
	sb.WriteString(fmt.Sprintf("- Gross: %s\n", FormatMoney(s.Gross)))
	sb.WriteString(fmt.Sprintf("- Discounts: %s\n", FormatMoney(s.Discounts)))
	sb.WriteString(fmt.Sprintf("- Service: %s\n", FormatMoney(s.Service)))
	sb.WriteString(fmt.Sprintf("- Tax: %s\n", FormatMoney(s.Tax)))
	sb.WriteString(fmt.Sprintf("- **Expected cash in drawer: %s**\n", FormatMoney(s.Cash)))

	if len(s.ByMethod) > 0 {
		methods := make([]string, 0, len(s.ByMethod))
		for m := range s.ByMethod {
			methods = append(methods, string(m))
		}
		sort.Strings(methods)
		sb.WriteString("\n| Method | Amount |\n|---|---:|\n")
		for _, m := range methods {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", m, FormatMoney(s.ByMethod[models.PaymentMethod(m)])))
		}
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
