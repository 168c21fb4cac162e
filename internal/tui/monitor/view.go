package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
)

var panelTitles = [panelCount]string{"QUEUE", "READY", "DONE"}

// renderView renders the complete board
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	panelHeight := m.Height - lipgloss.Height(header) - lipgloss.Height(footer)
	panelWidth := m.Width / panelCount

	cols := make([]string, 0, panelCount)
	for p := Panel(0); p < panelCount; p++ {
		cols = append(cols, m.renderColumn(p, panelWidth, panelHeight))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, cols...),
		footer,
	)
}

// renderCompact renders counts only, for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("kasir monitor (resize for full view)\n\n")
	s.WriteString(fmt.Sprintf("Branch: %s\n", m.Source.Branch()))
	s.WriteString(fmt.Sprintf("Queue: %d | Ready: %d | Done: %d\n",
		len(m.Board.Queue), len(m.Board.Ready), len(m.Board.Done)))
	if m.Board.Pending > 0 {
		s.WriteString(fmt.Sprintf("Pending sync: %d\n", m.Board.Pending))
	}
	s.WriteString("\nq:quit r:refresh ?:help")
	return s.String()
}

func (m Model) renderHeader() string {
	badge := offlineStyle.Render(" OFFLINE ")
	if m.Live {
		badge = onlineStyle.Render(" LIVE ")
	}
	title := titleStyle.Render(" " + m.Source.Branch() + " ")
	line := title + badge
	if m.Filtering || m.Filter.Value() != "" {
		line += "  " + m.Filter.View()
	}
	if m.Err != nil {
		line += "  " + errorStyle.Render(m.Err.Error())
	}
	return ansi.Truncate(line, m.Width, "…")
}

func (m Model) renderColumn(p Panel, width, height int) string {
	orders := m.Board.Column(p)
	contentWidth := width - 4

	var lines []string
	if len(orders) == 0 {
		lines = append(lines, subtleStyle.Render("No orders"))
	}

	cursor := m.Cursor[p]
	visible := height - 3
	offset := 0
	if cursor >= visible {
		offset = cursor - visible + 1
	}
	for i := offset; i < len(orders) && len(lines) < visible; i++ {
		line := formatOrderRow(orders[i])
		if m.ActivePanel == p && i == cursor {
			line = selectedRowStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	title := fmt.Sprintf("%s (%d)", panelTitles[p], len(orders))
	return m.wrapPanel(title, lines, width, height, contentWidth, p)
}

// formatOrderRow is one board line: ticket, customer, item count, age.
func formatOrderRow(o models.Order) string {
	name := o.CustomerName
	if name == "" {
		name = string(o.Type)
	}
	row := fmt.Sprintf("%s %s · %d · %s",
		titleStyle.Render(o.Ticket()),
		name,
		o.ItemCount(),
		timestampStyle.Render(output.FormatTimeAgo(o.CreatedAt)),
	)
	if o.Status == models.StatusCancelled {
		row += " " + formatStatus(o.Status)
	}
	if o.Dirty {
		row += " " + pendingSyncStyle.Render("⟳")
	}
	return row
}

func (m Model) wrapPanel(title string, lines []string, width, height, contentWidth int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	contentHeight := height - 3
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, panelTitleStyle.Render(title), strings.Join(lines, "\n"))
	return style.Width(width - 2).Render(inner)
}

func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:column  ↑↓:select  enter:advance  x:cancel  /:filter  ?:help")

	pending := ""
	if m.Board.Pending > 0 {
		pending = m.Spinner.View() + pendingSyncStyle.Render(fmt.Sprintf(" %d pending sync ", m.Board.Pending))
	}

	refresh := ""
	if !m.LastRefresh.IsZero() {
		refresh = timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))
	}

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(pending) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}
	return fmt.Sprintf(" %s%s%s%s", keys, strings.Repeat(" ", padding), pending, refresh)
}

func (m Model) renderHelp() string {
	help := `
ORDER BOARD - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch column
  1 / 2 / 3         Jump to column
  ↑ / ↓  (j / k)    Select order

ACTIONS:
  Enter / Space     Advance order (queue → ready → done)
  x                 Cancel selected order
  /                 Filter by customer, ticket or item
  r                 Reload from local store

OTHER:
  ?                 Toggle this help
  q / Ctrl+C        Quit

Orders marked ⟳ are saved on this terminal and waiting for the server.
`
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, help)
}
