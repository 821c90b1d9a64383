package booking

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// CustomerLister loads the customer list.
type CustomerLister interface {
	ListCustomers(ctx context.Context) ([]bookingapi.Customer, error)
}

// CustomerCache keeps the organization's customers for phone lookups.
type CustomerCache struct {
	lister CustomerLister
	logger *logging.Logger

	mu          sync.RWMutex
	customers   []bookingapi.Customer
	byPhone     map[string]bookingapi.Customer
	refreshedAt time.Time
}

// NewCustomerCache builds an empty cache over lister.
func NewCustomerCache(lister CustomerLister, logger *logging.Logger) *CustomerCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &CustomerCache{lister: lister, logger: logger, byPhone: map[string]bookingapi.Customer{}}
}

// Refresh reloads the list. On failure the previous contents are kept and the
// error is returned for the caller to log.
func (c *CustomerCache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	lister := c.lister
	c.mu.RUnlock()

	list, err := lister.ListCustomers(ctx)
	if err != nil {
		return err
	}
	byPhone := make(map[string]bookingapi.Customer, len(list))
	for _, cust := range list {
		if key := normalizePhone(cust.Phone); key != "" {
			byPhone[key] = cust
		}
	}

	c.mu.Lock()
	c.customers = list
	c.byPhone = byPhone
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// SetLister replaces the source used by later refreshes, e.g. when the
// session's token was renewed.
func (c *CustomerCache) SetLister(lister CustomerLister) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lister = lister
}

// RefreshQuietly reloads the list, logging and swallowing any failure.
func (c *CustomerCache) RefreshQuietly(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("customer list refresh failed", "error", err)
	}
}

// OnInvalidate reacts to a push invalidation; only customer events reload.
func (c *CustomerCache) OnInvalidate(ctx context.Context, entity, id string) {
	if entity != "customer" {
		return
	}
	c.logger.Debug("customer invalidated, reloading", "customer_id", id)
	c.RefreshQuietly(ctx)
}

// List returns a copy of the cached customers.
func (c *CustomerCache) List() []bookingapi.Customer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]bookingapi.Customer(nil), c.customers...)
}

// LookupPhone finds a customer by phone, ignoring formatting characters.
func (c *CustomerCache) LookupPhone(phone string) (bookingapi.Customer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cust, ok := c.byPhone[normalizePhone(phone)]
	return cust, ok
}

// RefreshedAt reports when the last successful refresh happened.
func (c *CustomerCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || (r == '+' && b.Len() == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
