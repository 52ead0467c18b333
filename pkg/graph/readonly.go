package graph

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by a read-only store when a write transaction is attempted.
var ErrReadOnly = errors.New("operation denied: store is in read-only mode")

// ReadOnlyStore wraps a Store and refuses write transactions while
// isReadOnly reports true. Reads always pass through.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a read-only wrapper. The mode is evaluated on every
// Update, so it can be toggled without recreating the store.
func NewReadOnlyStore(store Store, isReadOnly func() bool) *ReadOnlyStore {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store.
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return r.Store.Update(ctx, fn)
}

func (r *ReadOnlyStore) Migrate(ctx context.Context) error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return r.Store.Migrate(ctx)
}
