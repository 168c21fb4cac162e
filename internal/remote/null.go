package remote

import "context"

type nullStore struct{}

// Null returns the store used when no backend is configured. Every
// operation fails immediately with ErrUnavailable.
func Null() Store { return nullStore{} }

func (nullStore) Available() bool            { return false }
func (nullStore) Ping(context.Context) error { return ErrUnavailable }
func (nullStore) Close() error               { return nil }

func (nullStore) Insert(context.Context, string, Document) (string, error) {
	return "", ErrUnavailable
}

func (nullStore) UpdateWhere(context.Context, string, string, any, Document) (int, error) {
	return 0, ErrUnavailable
}

func (nullStore) Find(context.Context, string, string, any) ([]Document, error) {
	return nil, ErrUnavailable
}

func (nullStore) Subscribe(context.Context, string, string, any, SnapshotFunc, ErrorFunc) (Unsubscribe, error) {
	return noop, ErrUnavailable
}

func (nullStore) SetDocument(context.Context, string, Document) error {
	return ErrUnavailable
}

func (nullStore) SubscribeDocument(context.Context, string, DocumentFunc, ErrorFunc) (Unsubscribe, error) {
	return noop, ErrUnavailable
}
