package core

import (
	"context"
	"encoding/json"
)

// DocumentStore is the contract of the hosted hierarchical document store
// this subsystem synchronizes through. Every operation is an unconditional
// overwrite or merge of whatever currently exists at the path: there is no
// multi-path transaction, no version token, no conditional write.
type DocumentStore interface {
	// Read returns the document at exactly path, or ErrNotFound.
	Read(ctx context.Context, path string) (json.RawMessage, error)

	// Write replaces the document at path.
	Write(ctx context.Context, path string, doc json.RawMessage) error

	// Patch shallow-merges fields into the document at path, creating it
	// when absent.
	Patch(ctx context.Context, path string, fields map[string]any) error

	// Delete removes the document at path. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, path string) error

	// Subscribe attaches a listener to path and its descendants. The first
	// delivery is the current snapshot (empty when nothing exists there);
	// each subsequent delivery is a full replacement snapshot in
	// server-chosen order, with intermediate states possibly coalesced.
	// The returned unsubscribe func is idempotent and never panics, even
	// when the underlying connection is already gone.
	Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (func(), error)
}

// Unsubscribe detaches a consumer registered with a Manager or a store.
type Unsubscribe = func()
