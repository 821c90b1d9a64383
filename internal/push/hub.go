package push

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/randevu-desk/internal/observability/metrics"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

const defaultRecentTTL = 30 * time.Second

// Hub fans invalidations out to subscribers and lets callers wait for a
// specific (entity, id) to be confirmed.
type Hub struct {
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
	recentTTL time.Duration
	now       func() time.Time

	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscription
	waiters map[eventKey][]chan struct{}
	recent  map[eventKey]time.Time
}

type subscription struct {
	entity string
	ch     chan Invalidation
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger, m *metrics.BookingMetrics) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:    logger,
		metrics:   m,
		recentTTL: defaultRecentTTL,
		now:       time.Now,
		subs:      make(map[uint64]*subscription),
		waiters:   make(map[eventKey][]chan struct{}),
		recent:    make(map[eventKey]time.Time),
	}
}

// WithRecentTTL sets how long a published event satisfies a later Await.
func (h *Hub) WithRecentTTL(d time.Duration) *Hub {
	if d > 0 {
		h.recentTTL = d
	}
	return h
}

// Subscribe returns a channel receiving invalidations for entity ("" for all)
// and a cancel func that closes it. Slow subscribers lose events rather than
// blocking Publish.
func (h *Hub) Subscribe(entity string, buffer int) (<-chan Invalidation, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{entity: entity, ch: make(chan Invalidation, buffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to matching subscribers and releases waiters.
func (h *Hub) Publish(ev Invalidation) {
	h.metrics.ObservePushEvent(ev.Entity)
	key := eventKey{entity: ev.Entity, id: ev.ID}
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, seen := range h.recent {
		if now.Sub(seen) > h.recentTTL {
			delete(h.recent, k)
		}
	}
	if ev.ID != "" {
		h.recent[key] = now
	}
	for _, ch := range h.waiters[key] {
		close(ch)
	}
	delete(h.waiters, key)

	for _, sub := range h.subs {
		if sub.entity != "" && sub.entity != ev.Entity {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("push subscriber full, dropping event", "entity", ev.Entity, "id", ev.ID)
		}
	}
}

// Await blocks until (entity, id) is published or ctx ends. An event seen
// within the recent window returns immediately, since the confirmation can
// arrive before the caller starts waiting.
func (h *Hub) Await(ctx context.Context, entity, id string) error {
	key := eventKey{entity: entity, id: id}

	h.mu.Lock()
	if seen, ok := h.recent[key]; ok && h.now().Sub(seen) <= h.recentTTL {
		h.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	h.waiters[key] = append(h.waiters[key], ch)
	h.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		h.dropWaiter(key, ch)
		return ctx.Err()
	}
}

func (h *Hub) dropWaiter(key eventKey, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.waiters[key]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.waiters, key)
		return
	}
	h.waiters[key] = list
}
