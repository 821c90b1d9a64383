package booking

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/observability/metrics"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// AvailabilitySource answers availability queries.
type AvailabilitySource interface {
	GetAvailability(ctx context.Context, q bookingapi.AvailabilityQuery) (bookingapi.SlotSet, error)
}

// Availability holds the slot set for the latest query. Every Refresh or
// Invalidate issues a new generation; a response is only applied when no
// newer generation exists, so a slow earlier lookup cannot overwrite a
// newer one.
type Availability struct {
	source  AvailabilitySource
	logger  *logging.Logger
	metrics *metrics.BookingMetrics

	mu      sync.Mutex
	gen     uint64
	query   bookingapi.AvailabilityQuery
	current bookingapi.SlotSet
}

// NewAvailability builds an availability tracker over source.
func NewAvailability(source AvailabilitySource, logger *logging.Logger, m *metrics.BookingMetrics) *Availability {
	if logger == nil {
		logger = logging.Default()
	}
	return &Availability{source: source, logger: logger, metrics: m}
}

// Lookup is an issued availability query tagged with its generation.
type Lookup struct {
	Query      bookingapi.AvailabilityQuery
	generation uint64
}

// Begin discards the current slots and issues a new generation for q. Callers
// that mutate their own state alongside the query should call Begin under the
// same lock so generations follow the order of those mutations.
func (a *Availability) Begin(q bookingapi.AvailabilityQuery) Lookup {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.query = q
	a.current = bookingapi.SlotSet{}
	return Lookup{Query: q, generation: a.gen}
}

// Run performs l. Failures are logged and yield an empty set. The boolean is
// false when a newer generation was issued meanwhile and the response was
// dropped; the returned set is then whatever is current.
func (a *Availability) Run(ctx context.Context, l Lookup) (bookingapi.SlotSet, bool) {
	q := l.Query
	start := time.Now()
	slots, err := a.source.GetAvailability(ctx, q)
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		a.logger.Warn("availability fetch failed",
			"error", err,
			"service_id", q.ServiceID,
			"date", q.Date,
			"staff_id", q.StaffID,
		)
		slots = bookingapi.SlotSet{}
	} else if !slots.Valid() {
		a.logger.Warn("availability slots not a subset of all_slots",
			"service_id", q.ServiceID,
			"date", q.Date,
		)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if l.generation != a.gen {
		a.metrics.ObserveAvailability("stale", elapsed)
		a.logger.Debug("dropping stale availability response", "date", q.Date, "generation", l.generation, "latest", a.gen)
		return cloneSlots(a.current), false
	}
	a.metrics.ObserveAvailability(outcome, elapsed)
	a.current = slots
	return cloneSlots(slots), true
}

// Refresh is Begin followed by Run.
func (a *Availability) Refresh(ctx context.Context, q bookingapi.AvailabilityQuery) (bookingapi.SlotSet, bool) {
	return a.Run(ctx, a.Begin(q))
}

// Invalidate clears the slot set and makes any in-flight lookup stale.
func (a *Availability) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.query = bookingapi.AvailabilityQuery{}
	a.current = bookingapi.SlotSet{}
}

// Current returns a copy of the latest applied slot set.
func (a *Availability) Current() bookingapi.SlotSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneSlots(a.current)
}

// Query returns the query the current slot set belongs to.
func (a *Availability) Query() bookingapi.AvailabilityQuery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.query
}

func cloneSlots(s bookingapi.SlotSet) bookingapi.SlotSet {
	return bookingapi.SlotSet{
		Available: append([]string{}, s.Available...),
		Busy:      append([]string{}, s.Busy...),
		All:       append([]string{}, s.All...),
	}
}
