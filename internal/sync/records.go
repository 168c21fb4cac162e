package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

// errUnchanged aborts a Mutate that has nothing to write.
var errUnchanged = errors.New("unchanged")

// syncable constrains T so that *T carries the dirty flag.
type syncable[T any] interface {
	*T
	models.Syncable
}

// markClean clears the dirty flag of record id, but only if it is still at
// the revision that was pushed. A later local edit keeps it dirty.
func markClean[T any, PT syncable[T]](s *localstore.Store, key localstore.Key, id string, rev int64) bool {
	_, err := localstore.Mutate(s, key, func(items []T) ([]T, error) {
		for i := range items {
			p := PT(&items[i])
			if p.RecordID() != id {
				continue
			}
			if p.IsDirty() && p.RecordRevision() == rev {
				p.SetDirty(false)
				return items, nil
			}
			break
		}
		return nil, errUnchanged
	})
	return err == nil
}

// dirtyRecords returns the pending records of a collection.
func dirtyRecords[T any, PT syncable[T]](s *localstore.Store, key localstore.Key) []T {
	var out []T
	for _, item := range localstore.Load[T](s, key) {
		if PT(&item).IsDirty() {
			out = append(out, item)
		}
	}
	return out
}

// findRecord returns the stored record with the given id.
func findRecord[T any, PT syncable[T]](s *localstore.Store, key localstore.Key, id string) (T, bool) {
	for _, item := range localstore.Load[T](s, key) {
		if PT(&item).RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// upsert replays a record by identity: update the remote copy if one
// exists, insert otherwise. Safe to repeat.
func upsert(ctx context.Context, rs remote.Store, collection string, id string, doc remote.Document) error {
	matched, err := rs.UpdateWhere(ctx, collection, "id", id, doc)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	if matched > 0 {
		return nil
	}
	if _, err := rs.Insert(ctx, collection, doc); err != nil {
		return fmt.Errorf("insert %s %s: %w", collection, id, err)
	}
	return nil
}

// recordLocks serializes pushes of the same record, live or reconciling.
// Every holder reloads the record under the lock, so an older revision can
// never land after a newer one.
type recordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	sync.Mutex
	refs int
}

func (l *recordLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*recordLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &recordLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// latest returns the stored copy of record id if it is newer than pushed.
// Pushes carry the freshest local state, since a queued push may run after
// a later edit of the same record.
func latest[T any, PT syncable[T]](s *localstore.Store, key localstore.Key, pushed T) T {
	want := PT(&pushed)
	for _, item := range localstore.Load[T](s, key) {
		p := PT(&item)
		if p.RecordID() == want.RecordID() && p.RecordRevision() > want.RecordRevision() {
			return item
		}
	}
	return pushed
}
