package core

import (
	"context"
)

// ReadTree fetches the current subtree under path using a one-shot
// subscription: the store's first delivery is always the current snapshot,
// so no separate listing operation is needed at the store boundary.
func ReadTree(ctx context.Context, ds DocumentStore, path string) (Snapshot, error) {
	ch := make(chan Snapshot, 1)

	unsubscribe, err := ds.Subscribe(ctx, path, func(snap Snapshot) {
		select {
		case ch <- snap:
		default:
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case snap := <-ch:
		return snap, nil
	}
}
