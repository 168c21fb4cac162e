package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is a process-local backend. It backs the mem:// scheme and the
// test harnesses, and can be switched offline or told to reject writes.
type Memory struct {
	deliverMu sync.Mutex // serializes snapshot delivery so subscribers never see an older set after a newer one

	mu        sync.Mutex
	online    bool
	rejectErr error
	latency   time.Duration
	closed    bool
	nextID    int
	colls     map[string][]memRecord
	docs      map[string]Document
	subs      map[int]*memSub
	docSubs   map[int]*memDocSub
	nextSubID int
}

type memRecord struct {
	remoteID string
	doc      Document
}

type memSub struct {
	collection string
	field      string
	value      any
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

type memDocSub struct {
	path    string
	onValue DocumentFunc
	onError ErrorFunc
}

// NewMemory returns an online, empty memory store.
func NewMemory() *Memory {
	return &Memory{
		online:  true,
		colls:   make(map[string][]memRecord),
		docs:    make(map[string]Document),
		subs:    make(map[int]*memSub),
		docSubs: make(map[int]*memDocSub),
	}
}

// SetOnline toggles reachability. Going offline reports ErrUnavailable to
// every subscription; coming back online redelivers current snapshots.
func (m *Memory) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if !changed {
		return
	}

	if !online {
		for _, fn := range m.errorFuncs() {
			fn(fmt.Errorf("memory: %w", ErrUnavailable))
		}
		return
	}
	m.deliverAll()
}

// Online reports the current reachability.
func (m *Memory) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online && !m.closed
}

// RejectWrites makes every write fail with ErrRejected while on is true.
func (m *Memory) RejectWrites(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.rejectErr = fmt.Errorf("memory: %w: permission denied", ErrRejected)
	} else {
		m.rejectErr = nil
	}
}

// SetLatency delays every write acknowledgment by d. The write itself is
// applied before the wait, so a caller that times out has still landed it.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.colls[collection])
}

// All returns copies of every document in collection, in insertion order.
func (m *Memory) All(collection string) []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Document, 0, len(m.colls[collection]))
	for _, r := range m.colls[collection] {
		out = append(out, NormalizeDocument(r.doc))
	}
	return out
}

func (m *Memory) Available() bool { return true }

func (m *Memory) Ping(ctx context.Context) error {
	return m.check(ctx, false)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[int]*memSub)
	m.docSubs = make(map[int]*memDocSub)
	return nil
}

// check reports the store's failure mode for an operation.
func (m *Memory) check(ctx context.Context, write bool) error {
	if err := ctx.Err(); err != nil {
		return wrap("memory", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.online {
		return fmt.Errorf("memory: %w", ErrUnavailable)
	}
	if write && m.rejectErr != nil {
		return m.rejectErr
	}
	return nil
}

func (m *Memory) ack(ctx context.Context) error {
	m.mu.Lock()
	d := m.latency
	m.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return wrap("memory", ctx.Err())
	}
}

func (m *Memory) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := m.check(ctx, true); err != nil {
		return "", err
	}

	m.mu.Lock()
	id := IDOf(doc)
	if id != "" {
		for _, r := range m.colls[collection] {
			if IDOf(r.doc) == id {
				m.mu.Unlock()
				return r.remoteID, m.ack(ctx)
			}
		}
	}
	m.nextID++
	remoteID := fmt.Sprintf("%s/%06d", collection, m.nextID)
	m.colls[collection] = append(m.colls[collection], memRecord{remoteID: remoteID, doc: NormalizeDocument(doc)})
	m.mu.Unlock()

	m.deliverCollection(collection)
	return remoteID, m.ack(ctx)
}

func (m *Memory) UpdateWhere(ctx context.Context, collection, field string, value any, patch Document) (int, error) {
	if err := ValidateField(field); err != nil {
		return 0, err
	}
	if err := m.check(ctx, true); err != nil {
		return 0, err
	}

	m.mu.Lock()
	norm := NormalizeDocument(patch)
	matched := 0
	for _, r := range m.colls[collection] {
		if !Matches(r.doc, field, value) {
			continue
		}
		for k, v := range norm {
			r.doc[k] = v
		}
		matched++
	}
	m.mu.Unlock()

	if matched > 0 {
		m.deliverCollection(collection)
	}
	return matched, m.ack(ctx)
}

func (m *Memory) Find(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ValidateField(field); err != nil {
		return nil, err
	}
	if err := m.check(ctx, false); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchLocked(collection, field, value), nil
}

func (m *Memory) matchLocked(collection, field string, value any) []Document {
	out := []Document{}
	for _, r := range m.colls[collection] {
		if Matches(r.doc, field, value) {
			out = append(out, NormalizeDocument(r.doc))
		}
	}
	return out
}

func (m *Memory) Subscribe(ctx context.Context, collection, field string, value any, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidateField(field); err != nil {
		return noop, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return noop, fmt.Errorf("memory: %w", ErrUnavailable)
	}
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = &memSub{collection: collection, field: field, value: value, onSnapshot: onSnapshot, onError: onError}
	online := m.online
	m.mu.Unlock()

	if online {
		m.deliverCollection(collection)
	} else if onError != nil {
		onError(fmt.Errorf("memory: %w", ErrUnavailable))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) SetDocument(ctx context.Context, path string, value Document) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := m.check(ctx, true); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[path] = NormalizeDocument(value)
	m.mu.Unlock()

	m.deliverDocument(path)
	return m.ack(ctx)
}

func (m *Memory) SubscribeDocument(ctx context.Context, path string, onValue DocumentFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidatePath(path); err != nil {
		return noop, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return noop, fmt.Errorf("memory: %w", ErrUnavailable)
	}
	id := m.nextSubID
	m.nextSubID++
	m.docSubs[id] = &memDocSub{path: path, onValue: onValue, onError: onError}
	online := m.online
	m.mu.Unlock()

	if online {
		m.deliverDocument(path)
	} else if onError != nil {
		onError(fmt.Errorf("memory: %w", ErrUnavailable))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.docSubs, id)
			m.mu.Unlock()
		})
	}, nil
}

// Document returns the stored whole document at path, if any.
func (m *Memory) Document(path string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil, false
	}
	return NormalizeDocument(doc), true
}

type pendingSnapshot struct {
	fn   SnapshotFunc
	docs []Document
}

func (m *Memory) deliverCollection(collection string) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if !m.online || m.closed {
		m.mu.Unlock()
		return
	}
	var pending []pendingSnapshot
	for _, s := range m.subs {
		if s.collection == collection {
			pending = append(pending, pendingSnapshot{fn: s.onSnapshot, docs: m.matchLocked(collection, s.field, s.value)})
		}
	}
	m.mu.Unlock()

	for _, p := range pending {
		p.fn(p.docs)
	}
}

func (m *Memory) deliverDocument(path string) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	doc, ok := m.docs[path]
	if !ok || !m.online || m.closed {
		m.mu.Unlock()
		return
	}
	var fns []DocumentFunc
	for _, s := range m.docSubs {
		if s.path == path {
			fns = append(fns, s.onValue)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(NormalizeDocument(doc))
	}
}

func (m *Memory) deliverAll() {
	m.mu.Lock()
	colls := map[string]bool{}
	for _, s := range m.subs {
		colls[s.collection] = true
	}
	paths := map[string]bool{}
	for _, s := range m.docSubs {
		paths[s.path] = true
	}
	m.mu.Unlock()

	for c := range colls {
		m.deliverCollection(c)
	}
	for p := range paths {
		m.deliverDocument(p)
	}
}

func (m *Memory) errorFuncs() []ErrorFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fns []ErrorFunc
	for _, s := range m.subs {
		if s.onError != nil {
			fns = append(fns, s.onError)
		}
	}
	for _, s := range m.docSubs {
		if s.onError != nil {
			fns = append(fns, s.onError)
		}
	}
	return fns
}
