package monitor

import (
	"strings"

	"github.com/marcus/kasir/internal/models"
)

// Board is the order list split into the three kitchen columns.
type Board struct {
	Queue []models.Order
	Ready []models.Order
	Done  []models.Order
	// Pending counts orders not yet confirmed by the remote store.
	Pending int
}

// Column returns the orders shown in panel p
func (b Board) Column(p Panel) []models.Order {
	switch p {
	case PanelQueue:
		return b.Queue
	case PanelReady:
		return b.Ready
	default:
		return b.Done
	}
}

// BuildBoard sorts orders into columns. Orders arrive newest first; the
// queue is shown oldest first so the kitchen works in ticket order.
func BuildBoard(orders []models.Order, filter string) Board {
	var b Board
	filter = strings.ToLower(strings.TrimSpace(filter))
	for _, o := range orders {
		if o.Dirty {
			b.Pending++
		}
		if filter != "" && !matches(o, filter) {
			continue
		}
		switch o.Status {
		case models.StatusPending:
			b.Queue = append(b.Queue, o)
		case models.StatusReady:
			b.Ready = append(b.Ready, o)
		default:
			b.Done = append(b.Done, o)
		}
	}
	reverse(b.Queue)
	reverse(b.Ready)
	return b
}

func matches(o models.Order, filter string) bool {
	if strings.Contains(strings.ToLower(o.CustomerName), filter) ||
		strings.Contains(strings.ToLower(o.Ticket()), filter) ||
		strings.HasPrefix(o.ID, filter) {
		return true
	}
	for _, l := range o.Items {
		if strings.Contains(strings.ToLower(l.Item.Name), filter) {
			return true
		}
	}
	return false
}

func reverse(orders []models.Order) {
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
}

// nextStatus is the status the advance key moves an order to.
func nextStatus(s models.OrderStatus) (models.OrderStatus, bool) {
	switch s {
	case models.StatusPending:
		return models.StatusReady, true
	case models.StatusReady:
		return models.StatusCompleted, true
	}
	return "", false
}
