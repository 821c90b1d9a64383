package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
)

type wizardEntry struct {
	id       string
	wizard   *booking.Wizard
	session  tenancy.Session
	lastUsed time.Time
}

// WizardStore keeps open wizards in memory. An entry is only visible to the
// organization and user that created it.
type WizardStore struct {
	mu      sync.Mutex
	entries map[string]*wizardEntry
	now     func() time.Time
}

func NewWizardStore() *WizardStore {
	return &WizardStore{entries: make(map[string]*wizardEntry), now: time.Now}
}

func (s *WizardStore) add(session tenancy.Session, w *booking.Wizard) *wizardEntry {
	e := &wizardEntry{id: uuid.NewString(), wizard: w, session: session, lastUsed: s.now()}
	s.mu.Lock()
	s.entries[e.id] = e
	s.mu.Unlock()
	return e
}

func (s *WizardStore) get(id string, session tenancy.Session) (*wizardEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.session.OrgID != session.OrgID || e.session.Username != session.Username {
		return nil, false
	}
	// same user, possibly a renewed token
	e.session = session
	e.lastUsed = s.now()
	return e, true
}

func (s *WizardStore) remove(id string, session tenancy.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.session.OrgID != session.OrgID || e.session.Username != session.Username {
		return false
	}
	delete(s.entries, id)
	return true
}

// forOrg returns copies of the open wizard entries of orgID.
func (s *WizardStore) forOrg(orgID string) []wizardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wizardEntry
	for _, e := range s.entries {
		if e.session.OrgID == orgID {
			out = append(out, *e)
		}
	}
	return out
}

// Evict drops wizards idle for longer than idle and reports how many.
func (s *WizardStore) Evict(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	n := 0
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len reports the number of open wizards.
func (s *WizardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
