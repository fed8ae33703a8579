package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"graphsync/internal/core"
)

// Store is an in-process core.DocumentStore with the same delivery
// contract as the hosted one: initial snapshot on subscribe, full
// replacement snapshots on every change, coalescing permitted. It backs
// the component tests and `serve --memory`.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	subs   map[int]*subscription
	nextID int

	failPrefixes []string
}

type subscription struct {
	path     string
	onChange func(core.Snapshot)

	ch   chan core.Snapshot
	stop chan struct{}

	deliverMu sync.Mutex
	closed    bool
	once      sync.Once
}

func New() *Store {
	return &Store{
		docs: map[string]json.RawMessage{},
		subs: map[int]*subscription{},
	}
}

// FailWrites makes every Write/Patch/Delete under pathPrefix fail. Used to
// exercise partial-failure paths in tests.
func (s *Store) FailWrites(pathPrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPrefixes = append(s.failPrefixes, pathPrefix)
}

func (s *Store) injectedFailure(path string) error {
	for _, p := range s.failPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return fmt.Errorf("injected write failure at %s", path)
		}
	}
	return nil
}

func (s *Store) Read(_ context.Context, path string) (json.RawMessage, error) {
	if _, err := core.SplitPath(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
	}
	cp := make(json.RawMessage, len(doc))
	copy(cp, doc)
	return cp, nil
}

func (s *Store) Write(_ context.Context, path string, doc json.RawMessage) error {
	if _, err := core.SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.injectedFailure(path); err != nil {
		s.mu.Unlock()
		return err
	}

	cp := make(json.RawMessage, len(doc))
	copy(cp, doc)
	s.docs[path] = cp
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *Store) Patch(_ context.Context, path string, fields map[string]any) error {
	if _, err := core.SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injectedFailure(path); err != nil {
		return err
	}

	merged := map[string]any{}
	if cur, ok := s.docs[path]; ok {
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

	s.docs[path] = doc
	s.notifyLocked(path)
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	if _, err := core.SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injectedFailure(path); err != nil {
		return err
	}

	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notifyLocked(path)
	return nil
}

func (s *Store) Subscribe(_ context.Context, path string, onChange func(core.Snapshot)) (func(), error) {
	if _, err := core.SplitPath(path); err != nil {
		return nil, err
	}

	sub := &subscription{
		path:     path,
		onChange: onChange,
		ch:       make(chan core.Snapshot, 1),
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	initial := s.snapshotLocked(path)
	s.mu.Unlock()

	go sub.run()
	sub.offer(initial)

	unsubscribe := func() {
		sub.once.Do(func() {
			close(sub.stop)

			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})

		// Block teardown until any in-flight delivery has returned, so no
		// consumer observes a change after unsubscribe.
		sub.deliverMu.Lock()
		sub.closed = true
		sub.deliverMu.Unlock()
	}
	return unsubscribe, nil
}

func (s *Store) snapshotLocked(path string) core.Snapshot {
	snap := core.EmptySnapshot(path)
	for p, doc := range s.docs {
		rel, ok := core.RelativePath(path, p)
		if !ok {
			continue
		}
		cp := make(json.RawMessage, len(doc))
		copy(cp, doc)
		snap.Docs[rel] = cp
	}
	return snap
}

func (s *Store) notifyLocked(changed string) {
	for _, sub := range s.subs {
		if _, ok := core.RelativePath(sub.path, changed); !ok {
			continue
		}
		sub.offer(s.snapshotLocked(sub.path))
	}
}

// offer replaces any pending snapshot: consumers only ever need the latest
// full state, intermediate states may coalesce.
func (sub *subscription) offer(snap core.Snapshot) {
	for {
		select {
		case sub.ch <- snap:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.stop:
			return
		case snap := <-sub.ch:
			sub.deliverMu.Lock()
			if !sub.closed {
				sub.onChange(snap)
			}
			sub.deliverMu.Unlock()
		}
	}
}
