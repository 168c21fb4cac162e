// Package localstore is the on-device durable store: branch-namespaced
// collections persisted in sqlite, readable without failure and observable
// per key.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dbFile = "kasir.db"

	// DefaultDriver is the pure-Go sqlite driver
	DefaultDriver = "sqlite"
)

// ErrPersistence marks a local write that did not reach disk. The value
// stays visible in memory until the process exits.
var ErrPersistence = errors.New("local persistence failure")

// ChangeFunc is invoked after a key has been written
type ChangeFunc func(key Key)

// Options configures Open
type Options struct {
	// Driver is the database/sql driver name; defaults to DefaultDriver.
	Driver string
	// LockTimeout bounds how long a write waits for the cross-process lock.
	LockTimeout time.Duration
}

// Store wraps the sqlite connection plus in-process coordination state
type Store struct {
	conn        *sql.DB
	dataDir     string
	lockTimeout time.Duration

	writeMu sync.Mutex // serializes flock acquisition within the process

	mu        sync.Mutex
	keyLocks  map[string]*sync.Mutex
	overlay   map[string][]byte
	listeners map[string]map[int]ChangeFunc
	nextID    int
}

// Open opens (creating if needed) the store under dataDir and runs pending
// migrations.
func Open(dataDir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	driver := opts.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultTimeout
	}

	conn, err := sql.Open(driver, filepath.Join(dataDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps reads concurrent while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	s := &Store{
		conn:        conn,
		dataDir:     dataDir,
		lockTimeout: lockTimeout,
		keyLocks:    make(map[string]*sync.Mutex),
		overlay:     make(map[string][]byte),
		listeners:   make(map[string]map[int]ChangeFunc),
	}
	if _, err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

// DataDir returns the directory holding the database
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	locker := newWriteLocker(s.dataDir)
	if err := locker.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

func (s *Store) keyLock(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := key.String()
	l, ok := s.keyLocks[name]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[name] = l
	}
	return l
}

// ReadRaw returns the stored bytes for key, or nil when absent. Storage
// errors are logged and read as absent.
func (s *Store) ReadRaw(key Key) []byte {
	name := key.String()

	s.mu.Lock()
	if data, ok := s.overlay[name]; ok {
		s.mu.Unlock()
		return data
	}
	s.mu.Unlock()

	var data string
	err := s.conn.QueryRow(`SELECT data FROM collections WHERE key = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		slog.Warn("localstore: read failed", "key", name, "err", err)
		return nil
	}
	return []byte(data)
}

// WriteRaw overwrites the value for key and notifies its observers.
func (s *Store) WriteRaw(key Key, data []byte) error {
	l := s.keyLock(key)
	l.Lock()
	err := s.writeLocked(key, data)
	l.Unlock()

	s.notify(key)
	return err
}

// writeLocked persists data; the caller holds the key lock. On failure the
// value is kept in the overlay so readers still see it.
func (s *Store) writeLocked(key Key, data []byte) error {
	name := key.String()
	err := s.withWriteLock(func() error {
		_, err := s.conn.Exec(`
			INSERT INTO collections (key, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.overlay[name] = data
		slog.Error("localstore: write failed, keeping value in memory", "key", name, "err", err)
		return fmt.Errorf("%w: %s: %v", ErrPersistence, name, err)
	}
	delete(s.overlay, name)
	return nil
}

// OnChange registers fn for writes to key. The returned func unsubscribes.
// Observers run synchronously after the write, outside the key lock.
func (s *Store) OnChange(key Key, fn ChangeFunc) (unsubscribe func()) {
	name := key.String()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners[name] == nil {
		s.listeners[name] = make(map[int]ChangeFunc)
	}
	s.listeners[name][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[name], id)
			if len(s.listeners[name]) == 0 {
				delete(s.listeners, name)
			}
		})
	}
}

func (s *Store) notify(key Key) {
	s.mu.Lock()
	fns := make([]ChangeFunc, 0, len(s.listeners[key.String()]))
	for _, fn := range s.listeners[key.String()] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Keys returns every persisted key name, sorted.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.conn.Query(`SELECT key FROM collections ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
