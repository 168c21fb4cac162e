package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInsertIsIdempotentOnID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Insert(ctx, "orders", Document{"id": "o1", "branch_id": "A", "status": "pending"})
	require.NoError(t, err)
	second, err := m.Insert(ctx, "orders", Document{"id": "o1", "branch_id": "A", "status": "ready"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.Count("orders"))
	assert.Equal(t, "pending", m.All("orders")[0]["status"], "duplicate insert must not overwrite")
}

func TestMemoryUpdateWhere(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Insert(ctx, "orders", Document{"id": "o1", "branch_id": "A", "sequence": 1})
	require.NoError(t, err)

	n, err := m.UpdateWhere(ctx, "orders", "id", "o1", Document{"status": "ready"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.UpdateWhere(ctx, "orders", "id", "missing", Document{"status": "ready"})
	require.NoError(t, err, "zero matches is not an error")
	assert.Equal(t, 0, n)

	n, err = m.UpdateWhere(ctx, "orders", "sequence", 1, Document{"note": "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "numeric values compare after normalization")

	docs, err := m.Find(ctx, "orders", "branch_id", "A")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ready", docs[0]["status"])
	assert.Equal(t, "x", docs[0]["note"])
}

func TestMemoryRejectsBadField(t *testing.T) {
	m := NewMemory()
	_, err := m.UpdateWhere(context.Background(), "orders", "id; DROP", "x", Document{})
	assert.Equal(t, KindRejected, KindOf(err))
}

func TestMemoryOfflineAndReject(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.SetOnline(false)
	_, err := m.Insert(ctx, "orders", Document{"id": "o1"})
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, KindUnavailable, KindOf(err))

	m.SetOnline(true)
	m.RejectWrites(true)
	_, err = m.Insert(ctx, "orders", Document{"id": "o1"})
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Equal(t, 0, m.Count("orders"))

	m.RejectWrites(false)
	_, err = m.Insert(ctx, "orders", Document{"id": "o1"})
	assert.NoError(t, err)
}

func TestMemoryLatencyTimesOutButLands(t *testing.T) {
	m := NewMemory()
	m.SetLatency(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Insert(ctx, "orders", Document{"id": "late"})
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, 1, m.Count("orders"), "timed-out write still lands")
}

func TestMemorySubscribeDeliversFullSnapshots(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var mu sync.Mutex
	var snapshots [][]Document
	unsub, err := m.Subscribe(ctx, "orders", "branch_id", "A", func(docs []Document) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, docs)
	}, nil)
	require.NoError(t, err)

	m.Insert(ctx, "orders", Document{"id": "a1", "branch_id": "A"})
	m.Insert(ctx, "orders", Document{"id": "b1", "branch_id": "B"})
	m.Insert(ctx, "orders", Document{"id": "a2", "branch_id": "A"})

	mu.Lock()
	require.Len(t, snapshots, 4, "initial set plus one redelivery per write to the collection")
	mu.Unlock()

	unsub()
	unsub()
	m.Insert(ctx, "orders", Document{"id": "a3", "branch_id": "A"})

	mu.Lock()
	defer mu.Unlock()
	last := snapshots[len(snapshots)-1]
	assert.Len(t, last, 2)
	for _, d := range last {
		assert.Equal(t, "A", d["branch_id"])
	}
}

func TestMemorySubscriptionErrorSideChannel(t *testing.T) {
	m := NewMemory()
	var errs []error
	var snaps int
	_, err := m.Subscribe(context.Background(), "orders", "branch_id", "A",
		func([]Document) { snaps++ },
		func(err error) { errs = append(errs, err) })
	require.NoError(t, err)

	m.SetOnline(false)
	require.Len(t, errs, 1)
	assert.Equal(t, KindUnavailable, KindOf(errs[0]))

	before := snaps
	m.SetOnline(true)
	assert.Equal(t, before+1, snaps, "reconnect redelivers the current set")
}

func TestMemoryDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got []Document
	_, err := m.SubscribeDocument(ctx, "branches/A/master/menu", func(d Document) { got = append(got, d) }, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "absent documents are not delivered")

	require.NoError(t, m.SetDocument(ctx, "branches/A/master/menu", Document{"kind": "menu", "value": []any{"kopi"}}))
	require.Len(t, got, 1)
	assert.Equal(t, "menu", got[0]["kind"])

	assert.Error(t, m.SetDocument(ctx, "../etc", Document{}))
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	s := Null()
	assert.False(t, s.Available())

	_, err := s.Insert(ctx, "orders", Document{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.UpdateWhere(ctx, "orders", "id", "x", Document{})
	assert.ErrorIs(t, err, ErrUnavailable)

	unsub, err := s.Subscribe(ctx, "orders", "branch_id", "A", func([]Document) {}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	unsub()
}
