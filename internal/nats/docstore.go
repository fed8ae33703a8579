package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"graphsync/internal/core"
	"graphsync/pkg/async"
	"graphsync/pkg/retry"

	"github.com/nats-io/nats.go/jetstream"
)

// DocStore implements core.DocumentStore on a JetStream KV bucket. Slash
// paths map to dot-delimited keys; a subscription is a filtered watcher on
// the key and its descendants, which gives exactly the contract the
// callers expect: current values first, then every change, coalescing
// possible under reconnects.
type DocStore struct {
	Logger *slog.Logger
	NATS   *NATS
}

func (s *DocStore) Init(context.Context) error {
	s.Logger = s.Logger.With("component", "nats.DocStore")
	return nil
}

func (s *DocStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	key, err := core.PathToKey(path)
	if err != nil {
		return nil, err
	}

	entry, err := s.NATS.KV.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (s *DocStore) Write(ctx context.Context, path string, doc json.RawMessage) error {
	key, err := core.PathToKey(path)
	if err != nil {
		return err
	}

	if _, err := s.NATS.KV.Put(ctx, key, doc); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Patch is a client-side read-merge-write: the store has no server-side
// merge, so a concurrent writer can still be clobbered here, the same as
// every other unconditional overwrite in this layer.
func (s *DocStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	merged := map[string]any{}

	cur, err := s.Read(ctx, path)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if cur != nil {
		if err := json.Unmarshal(cur, &merged); err != nil {
			return fmt.Errorf("%w: patch target at %s is not an object", core.ErrMalformedDoc, path)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return s.Write(ctx, path, doc)
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	key, err := core.PathToKey(path)
	if err != nil {
		return err
	}

	if err := s.NATS.KV.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (s *DocStore) Subscribe(ctx context.Context, path string, onChange func(core.Snapshot)) (func(), error) {
	key, err := core.PathToKey(path)
	if err != nil {
		return nil, err
	}

	w := &watch{
		store:    s,
		path:     path,
		key:      key,
		onChange: onChange,
	}
	w.handle = async.Job(context.WithoutCancel(ctx), w.run)

	return w.unsubscribe, nil
}

type watch struct {
	store    *DocStore
	path     string
	key      string
	onChange func(core.Snapshot)

	handle *async.JobHandle[any]

	deliverMu sync.Mutex
	closed    bool
}

// run attaches the KV watcher and keeps it attached until unsubscribe.
// Each (re-)attachment replays the full current state, so the mirror is
// rebuilt from scratch and the next delivery is a complete snapshot; any
// updates missed while detached are absorbed by that replay.
func (w *watch) run(ctx context.Context) (any, error) {
	err := retry.Do(ctx, func() error {
		return w.attach(ctx)
	}, func(err error, _ int) bool {
		if ctx.Err() != nil {
			return false
		}
		w.store.Logger.Warn("watcher failed, re-attaching", "path", w.path, "error", err)
		return true
	}, 100*time.Millisecond, 5*time.Second)

	if ctx.Err() != nil {
		return nil, nil
	}
	return nil, err
}

func (w *watch) attach(ctx context.Context) error {
	watcher, err := w.store.NATS.KV.WatchFiltered(ctx, []string{w.key, w.key + ".>"})
	if err != nil {
		return err
	}
	defer watcher.Stop() //nolint:errcheck

	mirror := map[string]json.RawMessage{}
	initial := true

	for {
		select {
		case <-ctx.Done():
			return nil

		case entry, ok := <-watcher.Updates():
			if !ok {
				return errors.New("watcher channel closed")
			}

			// The nil marker separates the initial replay from live
			// updates.
			if entry == nil {
				initial = false
				w.deliver(mirror)
				continue
			}

			rel, ok := core.RelativePath(w.path, core.KeyToPath(entry.Key()))
			if !ok {
				continue
			}

			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				delete(mirror, rel)
			default:
				doc := make(json.RawMessage, len(entry.Value()))
				copy(doc, entry.Value())
				mirror[rel] = doc
			}

			if !initial {
				w.deliver(mirror)
			}
		}
	}
}

func (w *watch) deliver(mirror map[string]json.RawMessage) {
	snap := core.Snapshot{Path: w.path, Docs: mirror}.Clone()

	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if w.closed {
		return
	}
	w.onChange(snap)
}

// unsubscribe is unconditional and idempotent: it never errors and never
// panics, even when the underlying connection is already gone.
func (w *watch) unsubscribe() {
	w.deliverMu.Lock()
	w.closed = true
	w.deliverMu.Unlock()

	w.handle.Stop()
}
