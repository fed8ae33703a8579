package subs_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"graphsync/internal/core"
	"graphsync/internal/memstore"
	"graphsync/internal/subs"

	"github.com/stretchr/testify/require"
)

// countingStore counts remote attachments so tests can assert the
// one-listener-per-path guarantee.
type countingStore struct {
	core.DocumentStore

	subscribes atomic.Int32
	active     atomic.Int32
}

func (s *countingStore) Subscribe(ctx context.Context, path string, onChange func(core.Snapshot)) (core.Unsubscribe, error) {
	s.subscribes.Add(1)
	s.active.Add(1)
	unsub, err := s.DocumentStore.Subscribe(ctx, path, onChange)
	if err != nil {
		s.active.Add(-1)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.active.Add(-1) })
		unsub()
	}, nil
}

// manualStore hands the remote listener's callback to the test so
// deliveries can be driven by hand.
type manualStore struct {
	core.DocumentStore

	mu       sync.Mutex
	onChange func(core.Snapshot)
}

func (s *manualStore) Subscribe(_ context.Context, _ string, onChange func(core.Snapshot)) (core.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = onChange
	return func() {}, nil
}

func (s *manualStore) deliver(snap core.Snapshot) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	fn(snap)
}

func newManager(t *testing.T, store core.DocumentStore) *subs.Manager {
	t.Helper()

	m := &subs.Manager{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
	}
	require.NoError(t, m.Init(context.Background()))
	return m
}

func waitFor(t *testing.T, ch <-chan core.Snapshot, pred func(core.Snapshot) bool) core.Snapshot {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestSubscribeSharesOneListener(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{DocumentStore: memstore.New()}
	m := newManager(t, store)

	a := make(chan core.Snapshot, 16)
	b := make(chan core.Snapshot, 16)

	unsubA, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { a <- s })
	require.NoError(t, err)
	defer unsubA()

	waitFor(t, a, func(core.Snapshot) bool { return true })

	unsubB, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { b <- s })
	require.NoError(t, err)
	defer unsubB()

	require.Equal(t, int32(1), store.subscribes.Load())
	require.Equal(t, 2, m.ConsumerCount("likes/p1"))

	// The late joiner starts from the cached snapshot, not the next change.
	snap := waitFor(t, b, func(core.Snapshot) bool { return true })
	require.Equal(t, "likes/p1", snap.Path)

	// Both consumers see a subsequent change.
	require.NoError(t, store.Write(ctx, "likes/p1/alice", json.RawMessage(`{}`)))
	waitFor(t, a, func(s core.Snapshot) bool { return s.Len() == 1 })
	waitFor(t, b, func(s core.Snapshot) bool { return s.Len() == 1 })
}

func TestLastUnsubscribeDetaches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{DocumentStore: memstore.New()}
	m := newManager(t, store)

	ch := make(chan core.Snapshot, 16)

	unsub, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { ch <- s })
	require.NoError(t, err)
	waitFor(t, ch, func(core.Snapshot) bool { return true })

	unsub()
	require.Equal(t, 0, m.ConsumerCount("likes/p1"))

	// No deliveries after the last consumer is gone.
	require.NoError(t, store.Write(ctx, "likes/p1/alice", json.RawMessage(`{}`)))
	select {
	case snap := <-ch:
		t.Fatalf("delivery after unsubscribe: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	// Unsubscribe is idempotent.
	unsub()

	// A remount attaches a fresh remote listener.
	unsub2, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { ch <- s })
	require.NoError(t, err)
	defer unsub2()

	require.Equal(t, int32(2), store.subscribes.Load())
	waitFor(t, ch, func(s core.Snapshot) bool { return s.Len() == 1 })
}

func TestUnsubscribeKeepsOtherConsumers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{DocumentStore: memstore.New()}
	m := newManager(t, store)

	a := make(chan core.Snapshot, 16)
	b := make(chan core.Snapshot, 16)

	unsubA, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { a <- s })
	require.NoError(t, err)
	waitFor(t, a, func(core.Snapshot) bool { return true })

	unsubB, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { b <- s })
	require.NoError(t, err)
	defer unsubB()

	unsubA()
	require.Equal(t, 1, m.ConsumerCount("likes/p1"))

	require.NoError(t, store.Write(ctx, "likes/p1/alice", json.RawMessage(`{}`)))
	waitFor(t, b, func(s core.Snapshot) bool { return s.Len() == 1 })
	require.Equal(t, int32(1), store.subscribes.Load())
}

func TestSubscribeBadPath(t *testing.T) {
	t.Parallel()

	m := newManager(t, memstore.New())

	_, err := m.Subscribe(context.Background(), "a//b", func(core.Snapshot) {})
	require.ErrorIs(t, err, core.ErrBadPath)
}

func TestUnsubscribeBarsInFlightDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// A delivery is fanned out to two consumers; the first blocks
	// mid-callback while the second unsubscribes. Once unsubscribe has
	// returned, the fan-out must skip the departed consumer.
	for i := 0; i < 50; i++ {
		store := &manualStore{}
		m := newManager(t, store)

		entered := make(chan struct{})
		release := make(chan struct{})
		unsubA, err := m.Subscribe(ctx, "likes/p1", func(core.Snapshot) {
			entered <- struct{}{}
			<-release
		})
		require.NoError(t, err)

		var unsubbed atomic.Bool
		var delivered atomic.Bool
		unsubB, err := m.Subscribe(ctx, "likes/p1", func(core.Snapshot) {
			if unsubbed.Load() {
				delivered.Store(true)
			}
		})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			store.deliver(core.EmptySnapshot("likes/p1"))
			close(done)
		}()

		<-entered
		unsubB()
		unsubbed.Store(true)
		close(release)
		<-done

		require.False(t, delivered.Load(), "iteration %d: consumer invoked after unsubscribe returned", i)
		unsubA()
	}
}

func TestUnsubscribeWaitsForRunningCallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &manualStore{}
	m := newManager(t, store)

	entered := make(chan struct{})
	release := make(chan struct{})
	unsub, err := m.Subscribe(ctx, "likes/p1", func(core.Snapshot) {
		close(entered)
		<-release
	})
	require.NoError(t, err)

	go store.deliver(core.EmptySnapshot("likes/p1"))
	<-entered

	returned := make(chan struct{})
	go func() {
		unsub()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("unsubscribe returned while the consumer's callback was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe did not return after the callback finished")
	}
}

func TestRemountDuringLastUnsubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{DocumentStore: memstore.New()}
	m := newManager(t, store)

	// Race the last unsubscribe of one consumer against a fresh subscribe
	// on the same path; teardown must never strand a remote listener.
	for i := 0; i < 200; i++ {
		unsubA, err := m.Subscribe(ctx, "likes/p1", func(core.Snapshot) {})
		require.NoError(t, err)

		var unsubB core.Unsubscribe
		var subErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubA()
		}()
		go func() {
			defer wg.Done()
			unsubB, subErr = m.Subscribe(ctx, "likes/p1", func(core.Snapshot) {})
		}()
		wg.Wait()

		require.NoError(t, subErr)
		unsubB()
		require.Equal(t, 0, m.ConsumerCount("likes/p1"), "iteration %d", i)
		require.Equal(t, int32(0), store.active.Load(), "iteration %d: remote listener leaked", i)
	}
}

func TestShutdownDetachesAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{DocumentStore: memstore.New()}
	m := newManager(t, store)

	ch := make(chan core.Snapshot, 16)

	unsub, err := m.Subscribe(ctx, "likes/p1", func(s core.Snapshot) { ch <- s })
	require.NoError(t, err)
	waitFor(t, ch, func(core.Snapshot) bool { return true })

	require.NoError(t, m.Shutdown(ctx))
	require.Equal(t, 0, m.ConsumerCount("likes/p1"))

	require.NoError(t, store.Write(ctx, "likes/p1/alice", json.RawMessage(`{}`)))
	select {
	case snap := <-ch:
		t.Fatalf("delivery after shutdown: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	// Unsubscribe after shutdown stays safe.
	unsub()
}
