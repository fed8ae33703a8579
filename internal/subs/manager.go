package subs

import (
	"context"
	"log/slog"
	"sync"

	"graphsync/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	livePaths = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsync_live_subscription_paths",
		Help: "Distinct store paths with at least one local consumer",
	})

	fanoutDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_fanout_deliveries_total",
		Help: "Snapshot deliveries fanned out to local consumers",
	}, []string{"outcome"})
)

// Manager multiplexes live subscriptions: each distinct path holds at most
// one remote listener per process, and any number of local consumers share
// it through fan-out. The first consumer for a path attaches the remote
// listener, the last unsubscribe detaches it; a remounted consumer simply
// attaches again.
type Manager struct {
	Logger *slog.Logger
	Store  core.DocumentStore

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	path   string
	detach func()

	mu        sync.Mutex
	consumers map[int]*consumer
	nextID    int
	last      *core.Snapshot
	orphaned  bool
}

// consumer carries its own delivery lock: fanout invokes the callback
// under it, and drop takes it after deregistering, so an unsubscribe
// cannot return while a delivery to that consumer is still running.
type consumer struct {
	mu      sync.Mutex
	fn      func(core.Snapshot)
	removed bool
}

func (m *Manager) Init(context.Context) error {
	m.Logger = m.Logger.With("component", "subs.Manager")
	m.entries = map[string]*entry{}
	return nil
}

// Subscribe registers onChange as a consumer of path. The first delivery
// is the current snapshot: immediately from the shared listener's cache
// when one is already attached, otherwise from the store's own initial
// delivery. The returned unsubscribe is idempotent, safe to call after
// the manager has shut down, and blocks until any in-flight delivery to
// this consumer has returned.
func (m *Manager) Subscribe(ctx context.Context, path string, onChange func(core.Snapshot)) (core.Unsubscribe, error) {
	if _, err := core.SplitPath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.entries[path]
	if ok {
		e.mu.Lock()
		if e.orphaned {
			// A concurrent last-unsubscribe is tearing this entry down;
			// replace it rather than attach to the orphan.
			delete(m.entries, path)
			e.mu.Unlock()
			ok = false
		}
	}
	if !ok {
		e = &entry{
			path:      path,
			consumers: map[int]*consumer{},
		}
		m.entries[path] = e
		e.mu.Lock()
	}

	id := e.nextID
	e.nextID++
	c := &consumer{fn: onChange}
	e.consumers[id] = c
	cached := e.last
	first := len(e.consumers) == 1 && e.detach == nil
	e.mu.Unlock()
	m.mu.Unlock()

	if first {
		detach, err := m.Store.Subscribe(ctx, path, e.fanout)
		if err != nil {
			m.drop(e, id)
			return nil, err
		}

		e.mu.Lock()
		e.detach = detach
		e.mu.Unlock()
		livePaths.Inc()
	} else if cached != nil {
		// Late joiner: replay the last known snapshot so the consumer
		// starts from current state without waiting for the next change.
		onChange(cached.Clone())
		fanoutDeliveries.WithLabelValues("replay").Inc()
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.drop(e, id)
		})
	}
	return unsubscribe, nil
}

// ConsumerCount reports the number of local consumers attached to path.
func (m *Manager) ConsumerCount(path string) int {
	m.mu.Lock()
	e, ok := m.entries[path]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.consumers)
}

// Shutdown detaches every remote listener regardless of remaining
// consumers.
func (m *Manager) Shutdown(context.Context) error {
	m.mu.Lock()
	entries := m.entries
	m.entries = map[string]*entry{}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		detach := e.detach
		e.detach = nil
		e.orphaned = true
		consumers := e.consumers
		e.consumers = map[int]*consumer{}
		e.mu.Unlock()

		for _, c := range consumers {
			c.mu.Lock()
			c.removed = true
			c.mu.Unlock()
		}

		if detach != nil {
			detach()
			livePaths.Dec()
		}
	}
	return nil
}

func (m *Manager) drop(e *entry, id int) {
	e.mu.Lock()
	c, ok := e.consumers[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.consumers, id)
	lastConsumer := len(e.consumers) == 0
	detach := e.detach
	if lastConsumer {
		e.detach = nil
		e.orphaned = true
	}
	e.mu.Unlock()

	// Block until any delivery running for this consumer has returned, so
	// no callback fires after its unsubscribe.
	c.mu.Lock()
	c.removed = true
	c.mu.Unlock()

	if !lastConsumer {
		return
	}

	m.mu.Lock()
	if cur, ok := m.entries[e.path]; ok && cur == e {
		delete(m.entries, e.path)
	}
	m.mu.Unlock()

	if detach != nil {
		detach()
		livePaths.Dec()
	}
}

// fanout delivers one store snapshot to every consumer of the entry.
// Consumers registered after this delivery get it replayed from the cache
// instead. Each callback runs under its consumer's delivery lock.
func (e *entry) fanout(snap core.Snapshot) {
	e.mu.Lock()
	e.last = &snap
	consumers := make([]*consumer, 0, len(e.consumers))
	for _, c := range e.consumers {
		consumers = append(consumers, c)
	}
	e.mu.Unlock()

	for _, c := range consumers {
		c.mu.Lock()
		if !c.removed {
			c.fn(snap.Clone())
			fanoutDeliveries.WithLabelValues("change").Inc()
		}
		c.mu.Unlock()
	}
}
