package sync

import (
	"log/slog"
	"sort"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

// MergeOrders folds a remote snapshot into the local collection:
//
//   - every remote order is kept and marked clean; the snapshot is the
//     source of truth
//   - a dirty local order survives only if its id is absent from the
//     snapshot; if present, the remote copy wins
//   - clean local orders absent from the snapshot are dropped
//
// The result is sorted newest first. Duplicate remote ids collapse to the
// highest revision.
func MergeOrders(local, snapshot []models.Order) []models.Order {
	byID := make(map[string]int, len(snapshot))
	merged := make([]models.Order, 0, len(snapshot)+len(local))

	for _, o := range snapshot {
		o.Dirty = false
		if i, ok := byID[o.ID]; ok {
			if o.Revision >= merged[i].Revision {
				merged[i] = o
			}
			continue
		}
		byID[o.ID] = len(merged)
		merged = append(merged, o)
	}

	for _, o := range local {
		if !o.Dirty {
			continue
		}
		if _, ok := byID[o.ID]; ok {
			continue
		}
		byID[o.ID] = len(merged)
		merged = append(merged, o)
	}

	SortOrders(merged)
	return merged
}

// SortOrders sorts newest first, by id when timestamps tie.
func SortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

// ordersFromDocuments parses a remote snapshot, skipping documents that are
// not orders.
func ordersFromDocuments(docs []remote.Document) []models.Order {
	out := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		o, err := models.OrderFromDocument(d)
		if err != nil {
			slog.Warn("skipping malformed remote order", "err", err)
			continue
		}
		out = append(out, o)
	}
	return out
}
