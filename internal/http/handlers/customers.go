package handlers

import (
	"context"
	"sync"

	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

type cacheKey struct {
	orgID    string
	username string
}

// customerCaches holds one customer cache per user of an organization. Each
// cache loads through the backend of the session it belongs to.
type customerCaches struct {
	logger *logging.Logger

	mu     sync.Mutex
	caches map[cacheKey]*booking.CustomerCache
}

func newCustomerCaches(logger *logging.Logger) *customerCaches {
	return &customerCaches{logger: logger, caches: make(map[cacheKey]*booking.CustomerCache)}
}

// forSession returns the cache of session, loading it on first use. An
// existing cache switches to lister so refreshes carry the latest token.
func (c *customerCaches) forSession(ctx context.Context, session tenancy.Session, lister booking.CustomerLister) *booking.CustomerCache {
	key := cacheKey{orgID: session.OrgID, username: session.Username}
	c.mu.Lock()
	cache, ok := c.caches[key]
	if !ok {
		cache = booking.NewCustomerCache(lister, c.logger.With("org_id", session.OrgID, "username", session.Username))
		c.caches[key] = cache
	}
	c.mu.Unlock()

	if ok {
		cache.SetLister(lister)
	} else {
		cache.RefreshQuietly(ctx)
	}
	return cache
}

// forOrg returns every cache of orgID.
func (c *customerCaches) forOrg(orgID string) []*booking.CustomerCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*booking.CustomerCache
	for key, cache := range c.caches {
		if key.orgID == orgID {
			out = append(out, cache)
		}
	}
	return out
}
