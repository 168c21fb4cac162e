// Package output provides styled terminal output helpers (success, error,
// warning, order formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/kasir/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	moneyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles = map[models.OrderStatus]lipgloss.Style{
		models.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.StatusReady:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Subtle renders s in the muted style
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatMoney renders an amount in rupiah with dot thousand separators,
// e.g. "Rp 31.185". Fractions are rounded away.
func FormatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	digits := d.Abs().Round(0).StringFixed(0)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

// FormatStatus formats a status with color
func FormatStatus(s models.OrderStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// SyncMark shows whether a record still waits for the remote store
func SyncMark(dirty bool) string {
	if dirty {
		return warningStyle.Render("⟳ pending")
	}
	return subtleStyle.Render("✓ synced")
}

// FormatOrderShort formats an order on one line
func FormatOrderShort(o models.Order) string {
	parts := []string{
		titleStyle.Render(o.Ticket()),
		subtleStyle.Render(ShortID(o.ID)),
	}
	if o.CustomerName != "" {
		parts = append(parts, o.CustomerName)
	}
	parts = append(parts,
		subtleStyle.Render(fmt.Sprintf("%d items", o.ItemCount())),
		moneyStyle.Render(FormatMoney(o.Breakdown.Total)),
		FormatStatus(o.Status),
	)
	if o.Payment.Status == models.PaymentPaid {
		parts = append(parts, successStyle.Render("paid:"+string(o.Payment.Method)))
	}
	parts = append(parts, SyncMark(o.Dirty))
	return strings.Join(parts, "  ")
}

// FormatOrderLong formats an order with its lines and breakdown
func FormatOrderLong(o models.Order) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s", o.Ticket(), o.ID)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Status: %s  %s\n", FormatStatus(o.Status), SyncMark(o.Dirty)))
	sb.WriteString(fmt.Sprintf("Type: %s | Branch: %s | Device: %s | Rev: %d\n", o.Type, o.BranchID, o.Device, o.Revision))
	if o.CustomerName != "" {
		sb.WriteString(fmt.Sprintf("Customer: %s\n", o.CustomerName))
	}
	sb.WriteString(fmt.Sprintf("Created: %s (%s)\n", o.CreatedAt.Local().Format("2006-01-02 15:04"), FormatTimeAgo(o.CreatedAt)))

	sb.WriteString(SectionHeader("items"))
	for _, l := range o.Items {
		line := fmt.Sprintf("  %dx %s  %s", l.Quantity, l.Item.Name, FormatMoney(l.Item.Price.Mul(decimalOf(l.Quantity))))
		if l.Note != "" {
			line += subtleStyle.Render("  (" + l.Note + ")")
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString(SectionHeader("totals"))
	sb.WriteString(IndentString(breakdownLines(o.Breakdown), 2))
	sb.WriteString("\n")

	if o.Payment.Status == models.PaymentPaid {
		paid := ""
		if o.Payment.PaidAt != nil {
			paid = " at " + o.Payment.PaidAt.Local().Format("15:04")
		}
		sb.WriteString(fmt.Sprintf("\nPaid by %s%s\n", o.Payment.Method, paid))
	} else {
		sb.WriteString("\nUNPAID\n")
	}
	return sb.String()
}

func breakdownLines(b models.Breakdown) string {
	rows := [][2]string{{"Subtotal", FormatMoney(b.Subtotal)}}
	if b.Discount.IsPositive() {
		rows = append(rows, [2]string{"Discount", "-" + FormatMoney(b.Discount)})
	}
	if b.Service.IsPositive() {
		rows = append(rows, [2]string{"Service", FormatMoney(b.Service)})
	}
	if b.Tax.IsPositive() {
		rows = append(rows, [2]string{"Tax", FormatMoney(b.Tax)})
	}
	rows = append(rows, [2]string{"Total", FormatMoney(b.Total)})

	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%-9s %14s", r[0], r[1])
	}
	return strings.Join(lines, "\n")
}

// ShortID trims a record id to its first 8 characters
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// StatusBadge returns a status indicator with symbol
// e.g., "○ pending", "◎ ready", "✓ completed", "✗ cancelled"
func StatusBadge(status models.OrderStatus) string {
	symbols := map[models.OrderStatus]string{
		models.StatusPending:   "○",
		models.StatusReady:     "◎",
		models.StatusCompleted: "✓",
		models.StatusCancelled: "✗",
	}
	symbol, ok := symbols[status]
	if !ok {
		symbol = "?"
	}
	if style, hasStyle := statusStyles[status]; hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nITEMS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	return strings.Join(IndentLines(strings.Split(s, "\n"), spaces), "\n")
}

func decimalOf(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
