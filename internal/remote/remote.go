// Package remote is the adapter over the shared, branch-partitioned document
// store. Every backend satisfies Store; Null stands in when none is
// configured, so callers only ever handle error kinds.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Document is a schemaless remote record
type Document map[string]any

// SnapshotFunc receives the full current matching set on every change
type SnapshotFunc func(docs []Document)

// DocumentFunc receives the current value of a watched whole document
type DocumentFunc func(doc Document)

// ErrorFunc is the side channel for long-lived subscription failures
type ErrorFunc func(err error)

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the capability-checked remote document store.
//
// Insert is idempotent on the document's "id" field: inserting an id that
// already exists in the collection leaves the stored document untouched and
// reports success.
type Store interface {
	// Available reports whether a backend is configured at all.
	Available() bool
	Ping(ctx context.Context) error
	Insert(ctx context.Context, collection string, doc Document) (remoteID string, err error)
	// UpdateWhere merges patch into every document whose field equals value.
	// Zero matches is not an error.
	UpdateWhere(ctx context.Context, collection, field string, value any, patch Document) (matched int, err error)
	Find(ctx context.Context, collection, field string, value any) ([]Document, error)
	Subscribe(ctx context.Context, collection, field string, value any, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
	SetDocument(ctx context.Context, path string, value Document) error
	SubscribeDocument(ctx context.Context, path string, onValue DocumentFunc, onError ErrorFunc) (Unsubscribe, error)
	Close() error
}

var (
	validField = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	validPath  = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+(/[a-zA-Z0-9_\-.]+)*$`)
)

// ValidateField rejects names that cannot be safely spliced into a query.
func ValidateField(name string) error {
	if !validField.MatchString(name) {
		return fmt.Errorf("%w: invalid field name %q", ErrRejected, name)
	}
	return nil
}

// ValidatePath rejects malformed whole-document paths.
func ValidatePath(path string) error {
	if !validPath.MatchString(path) {
		return fmt.Errorf("%w: invalid document path %q", ErrRejected, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("%w: invalid document path %q", ErrRejected, path)
		}
	}
	return nil
}

// Normalize round-trips v through JSON so values from different backends
// (int vs float64, typed structs vs maps) compare equal.
func Normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// NormalizeDocument returns a deep copy of doc with JSON-normalized values.
func NormalizeDocument(doc Document) Document {
	out, ok := Normalize(map[string]any(doc)).(map[string]any)
	if !ok {
		return Document{}
	}
	return Document(out)
}

// Matches reports whether doc[field] equals value after normalization.
func Matches(doc Document, field string, value any) bool {
	got, ok := doc[field]
	if !ok {
		return false
	}
	return reflect.DeepEqual(Normalize(got), Normalize(value))
}

// IDOf returns the application identity carried in doc, if any.
func IDOf(doc Document) string {
	if id, ok := doc["id"].(string); ok {
		return id
	}
	return ""
}

func noop() {}
