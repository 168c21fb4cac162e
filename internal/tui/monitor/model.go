package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/kasir/internal/models"
)

// Panel represents which column is active
type Panel int

const (
	PanelQueue Panel = iota
	PanelReady
	PanelDone
)

const panelCount = 3

// Source is the slice of the sync engine the board needs.
type Source interface {
	Branch() string
	Orders() []models.Order
	OnOrdersChanged(fn func([]models.Order)) (unsubscribe func())
	Subscribed() bool
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error)
}

// Model is the Bubble Tea model for the order board
type Model struct {
	Source Source

	Width  int
	Height int

	Orders []models.Order
	Board  Board
	Live   bool

	ActivePanel Panel
	Cursor      map[Panel]int
	ShowHelp    bool
	Filtering   bool
	Filter      textinput.Model
	Spinner     spinner.Model
	LastRefresh time.Time
	Err         error

	RefreshInterval time.Duration

	updates     chan []models.Order
	unsubscribe func()
}

// MinWidth is the minimum terminal width for the column layout
const MinWidth = 60

// MinHeight is the minimum terminal height for the column layout
const MinHeight = 12

// TickMsg triggers a refresh of time-based fields
type TickMsg time.Time

// OrdersMsg carries the branch's orders after a local change
type OrdersMsg []models.Order

// StatusResultMsg reports the outcome of a status change from the board
type StatusResultMsg struct {
	Order models.Order
	Err   error
}

// NewModel creates a board over src. Close must be called when the program
// exits to drop the change listener.
func NewModel(src Source, interval time.Duration) Model {
	filter := textinput.New()
	filter.Placeholder = "customer, ticket or item"
	filter.Prompt = "/ "
	filter.CharLimit = 64

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = pendingSyncStyle

	m := Model{
		Source:          src,
		Cursor:          make(map[Panel]int),
		Filter:          filter,
		Spinner:         sp,
		RefreshInterval: interval,
		updates:         make(chan []models.Order, 1),
	}
	updates := m.updates
	m.unsubscribe = src.OnOrdersChanged(func(orders []models.Order) {
		// Keep only the newest snapshot; the callback must not block.
		select {
		case updates <- orders:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- orders:
			default:
			}
		}
	})
	m.setOrders(src.Orders())
	m.Live = src.Subscribed()
	return m
}

// Close drops the change listener
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForOrders(),
		m.scheduleTick(),
		m.Spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		m.Live = m.Source.Subscribed()
		m.LastRefresh = time.Time(msg)
		return m, m.scheduleTick()

	case OrdersMsg:
		m.setOrders(msg)
		return m, m.waitForOrders()

	case StatusResultMsg:
		m.Err = msg.Err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab", "right", "l":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab", "left", "h":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelQueue
		return m, nil

	case "2":
		m.ActivePanel = PanelReady
		return m, nil

	case "3":
		m.ActivePanel = PanelDone
		return m, nil

	case "j", "down":
		if m.Cursor[m.ActivePanel] < len(m.Board.Column(m.ActivePanel))-1 {
			m.Cursor[m.ActivePanel]++
		}
		return m, nil

	case "k", "up":
		if m.Cursor[m.ActivePanel] > 0 {
			m.Cursor[m.ActivePanel]--
		}
		return m, nil

	case "enter", " ":
		o, ok := m.selected()
		if !ok {
			return m, nil
		}
		next, ok := nextStatus(o.Status)
		if !ok {
			return m, nil
		}
		return m, m.setStatus(o.ID, next)

	case "x":
		o, ok := m.selected()
		if !ok || o.Status.IsTerminal() {
			return m, nil
		}
		return m, m.setStatus(o.ID, models.StatusCancelled)

	case "r":
		m.setOrders(m.Source.Orders())
		m.Live = m.Source.Subscribed()
		return m, nil

	case "/":
		m.Filtering = true
		return m, m.Filter.Focus()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Filtering = false
		m.Filter.Blur()
		m.Filter.SetValue("")
		m.setOrders(m.Orders)
		return m, nil
	case "enter":
		m.Filtering = false
		m.Filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.Filter, cmd = m.Filter.Update(msg)
	m.setOrders(m.Orders)
	return m, cmd
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// setOrders rebuilds the board and keeps cursors inside their columns.
func (m *Model) setOrders(orders []models.Order) {
	m.Orders = orders
	m.Board = BuildBoard(orders, m.Filter.Value())
	for p := Panel(0); p < panelCount; p++ {
		n := len(m.Board.Column(p))
		if m.Cursor[p] >= n {
			m.Cursor[p] = max(n-1, 0)
		}
	}
}

func (m Model) selected() (models.Order, bool) {
	col := m.Board.Column(m.ActivePanel)
	i := m.Cursor[m.ActivePanel]
	if i < 0 || i >= len(col) {
		return models.Order{}, false
	}
	return col[i], true
}

func (m Model) setStatus(id string, status models.OrderStatus) tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		o, err := src.UpdateOrderStatus(context.Background(), id, status)
		return StatusResultMsg{Order: o, Err: err}
	}
}

func (m Model) waitForOrders() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		return OrdersMsg(<-updates)
	}
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
