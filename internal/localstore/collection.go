package localstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Load decodes the collection stored under key. Missing or corrupt content
// yields an empty collection.
func Load[T any](s *Store, key Key) []T {
	return decodeCollection[T](key, s.ReadRaw(key))
}

// Save overwrites the collection stored under key.
func Save[T any](s *Store, key Key, items []T) error {
	data, err := encode(key, items)
	if err != nil {
		return err
	}
	return s.WriteRaw(key, data)
}

// Mutate runs a read-modify-write on the collection under the key lock.
// When fn returns an error nothing is written and observers are not called.
// Persistence failures are logged and the mutated value is still returned.
func Mutate[T any](s *Store, key Key, fn func([]T) ([]T, error)) ([]T, error) {
	l := s.keyLock(key)
	l.Lock()

	items, err := fn(decodeCollection[T](key, s.ReadRaw(key)))
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if data, encErr := encode(key, items); encErr == nil {
		_ = s.writeLocked(key, data)
	}
	l.Unlock()

	s.notify(key)
	return items, nil
}

// LoadDoc decodes a single document. ok is false when absent or corrupt.
func LoadDoc[T any](s *Store, key Key) (v T, ok bool) {
	data := s.ReadRaw(key)
	if len(data) == 0 {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("localstore: corrupt document, treating as absent", "key", key.String(), "err", err)
		var zero T
		return zero, false
	}
	return v, true
}

// SaveDoc overwrites a single document.
func SaveDoc[T any](s *Store, key Key, v T) error {
	data, err := encode(key, v)
	if err != nil {
		return err
	}
	return s.WriteRaw(key, data)
}

// MutateDoc is Mutate for single documents. fn receives the current value
// and whether it existed.
func MutateDoc[T any](s *Store, key Key, fn func(T, bool) (T, error)) (T, error) {
	l := s.keyLock(key)
	l.Lock()

	var cur T
	exists := false
	if data := s.ReadRaw(key); len(data) > 0 {
		if err := json.Unmarshal(data, &cur); err != nil {
			slog.Warn("localstore: corrupt document, treating as absent", "key", key.String(), "err", err)
			var zero T
			cur = zero
		} else {
			exists = true
		}
	}

	next, err := fn(cur, exists)
	if err != nil {
		l.Unlock()
		var zero T
		return zero, err
	}
	if data, encErr := encode(key, next); encErr == nil {
		_ = s.writeLocked(key, data)
	}
	l.Unlock()

	s.notify(key)
	return next, nil
}

func decodeCollection[T any](key Key, data []byte) []T {
	if len(data) == 0 {
		return []T{}
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("localstore: corrupt collection, treating as empty", "key", key.String(), "err", err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

func encode(key Key, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("localstore: encode failed", "key", key.String(), "err", err)
		return nil, fmt.Errorf("%w: encode %s: %v", ErrPersistence, key.String(), err)
	}
	return data, nil
}
