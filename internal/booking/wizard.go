package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// WizardConfig wires a Wizard.
type WizardConfig struct {
	Session  tenancy.Session
	Services []bookingapi.Service
	Users    []bookingapi.User
	Settings bookingapi.Settings

	Availability *Availability
	Submitter    *Submitter
	Customers    *CustomerCache // optional, used to fill in known names

	// Draft pre-fills the wizard, e.g. from DraftFromAppointment.
	Draft  *Draft
	Logger *logging.Logger
}

// Snapshot is a consistent copy of the wizard state.
type Snapshot struct {
	Step           Step
	Draft          Draft
	Slots          bookingapi.SlotSet
	Services       []bookingapi.Service
	QualifiedStaff []bookingapi.User
	Busy           bool
}

// Wizard drives the three-step booking flow and owns the draft. Methods are
// safe for concurrent use; no lock is held across network calls.
type Wizard struct {
	session      tenancy.Session
	availability *Availability
	submitter    *Submitter
	customers    *CustomerCache
	logger       *logging.Logger

	mu       sync.Mutex
	step     Step
	draft    Draft
	catalog  []bookingapi.Service
	services []bookingapi.Service // catalog as visible to the session
	users    []bookingapi.User
	settings bookingapi.Settings
	inflight int
}

// NewWizard starts a wizard on step 1.
func NewWizard(cfg WizardConfig) (*Wizard, error) {
	if cfg.Availability == nil {
		return nil, errors.New("booking: availability required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	w := &Wizard{
		session:      cfg.Session,
		availability: cfg.Availability,
		submitter:    cfg.Submitter,
		customers:    cfg.Customers,
		logger:       logger,
		step:         StepServiceStaff,
		catalog:      append([]bookingapi.Service(nil), cfg.Services...),
		services:     VisibleServices(cfg.Session, cfg.Services, cfg.Users),
		users:        append([]bookingapi.User(nil), cfg.Users...),
		settings:     cfg.Settings,
	}
	if cfg.Draft != nil {
		w.draft = *cfg.Draft
		w.draft.Date = dateOnly(w.draft.Date)
	}
	w.clearUnqualifiedStaffLocked()
	w.availability.Invalidate()
	return w, nil
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Snapshot returns a copy of the full state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Step:           w.step,
		Draft:          w.draft,
		Slots:          w.availability.Current(),
		Services:       append([]bookingapi.Service(nil), w.services...),
		QualifiedStaff: QualifiedStaff(w.users, w.draft.ServiceID, w.settings),
		Busy:           w.inflight > 0,
	}
}

// Next advances one step if the current step is complete. Entering step 3
// fetches availability.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.step == StepDateTime {
		w.mu.Unlock()
		return ErrFinalStep
	}
	if err := w.checkStepLocked(w.step); err != nil {
		w.mu.Unlock()
		return err
	}
	w.step++
	w.logger.Debug("wizard advanced", "step", w.step.String())
	lookup, fetch := w.beginLookupLocked()
	w.mu.Unlock()

	if fetch {
		w.runLookup(ctx, lookup)
	}
	return nil
}

// Back returns one step. Landing on step 1 drops a staff selection that is no
// longer qualified.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == StepServiceStaff {
		return ErrFirstStep
	}
	w.step--
	if w.step == StepServiceStaff {
		w.clearHiddenServiceLocked()
		w.clearUnqualifiedStaffLocked()
	}
	return nil
}

// SelectService sets the service. A staff member who cannot perform it is
// silently cleared.
func (w *Wizard) SelectService(ctx context.Context, serviceID string) error {
	serviceID = strings.TrimSpace(serviceID)
	w.mu.Lock()
	if serviceID == "" {
		w.mu.Unlock()
		return invalid(CodeServiceRequired, "Please select a service.")
	}
	if _, ok := findService(w.services, serviceID); !ok {
		w.mu.Unlock()
		return invalid(CodeUnknownService, "The selected service is not available.")
	}
	if serviceID == w.draft.ServiceID {
		w.mu.Unlock()
		return nil
	}
	w.draft.ServiceID = serviceID
	w.clearUnqualifiedStaffLocked()
	lookup, fetch := w.slotInputsChangedLocked()
	w.mu.Unlock()

	if fetch {
		w.runLookup(ctx, lookup)
	}
	return nil
}

// SelectStaff sets the staff member; "" means auto-assign.
func (w *Wizard) SelectStaff(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	w.mu.Lock()
	if username != "" {
		if w.draft.ServiceID == "" {
			w.mu.Unlock()
			return invalid(CodeServiceRequired, "Please select a service first.")
		}
		if !containsUser(QualifiedStaff(w.users, w.draft.ServiceID, w.settings), username) {
			w.mu.Unlock()
			return invalid(CodeStaffNotQualified, "The selected staff member does not perform this service.")
		}
	}
	if username == w.draft.StaffMemberID {
		w.mu.Unlock()
		return nil
	}
	w.draft.StaffMemberID = username
	lookup, fetch := w.slotInputsChangedLocked()
	w.mu.Unlock()

	if fetch {
		w.runLookup(ctx, lookup)
	}
	return nil
}

// SetCustomer sets the customer details. With an empty name, a known
// customer's name is filled in from the phone number.
func (w *Wizard) SetCustomer(name, phone string) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" && phone != "" && w.customers != nil {
		if cust, ok := w.customers.LookupPhone(phone); ok {
			name = cust.Name
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.CustomerName = name
	w.draft.Phone = phone
}

// SetNotes sets the free-form notes.
func (w *Wizard) SetNotes(notes string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Notes = notes
}

// SetDate changes the date. The selected time and all slot lists are cleared
// and, on step 3, fetched again for the new date.
func (w *Wizard) SetDate(ctx context.Context, date time.Time) error {
	date = dateOnly(date)
	w.mu.Lock()
	if date.IsZero() {
		w.mu.Unlock()
		return invalid(CodeDateRequired, "Please select a date.")
	}
	if date.Equal(w.draft.Date) {
		w.mu.Unlock()
		return nil
	}
	w.draft.Date = date
	lookup, fetch := w.slotInputsChangedLocked()
	w.mu.Unlock()

	if fetch {
		w.runLookup(ctx, lookup)
	}
	return nil
}

// SelectTime picks one of the fetched available slots.
func (w *Wizard) SelectTime(t string) error {
	t = strings.TrimSpace(t)
	w.mu.Lock()
	defer w.mu.Unlock()
	if t == "" {
		return invalid(CodeTimeRequired, "Please select a time.")
	}
	if !w.availability.Current().IsAvailable(t) {
		return invalid(CodeSlotUnavailable, "The selected time is not available.")
	}
	w.draft.Time = t
	return nil
}

// RefreshSlots re-fetches availability for the current inputs. It is a no-op
// outside step 3.
func (w *Wizard) RefreshSlots(ctx context.Context) {
	w.mu.Lock()
	lookup, fetch := w.beginLookupLocked()
	w.mu.Unlock()
	if fetch {
		w.runLookup(ctx, lookup)
	}
}

// UpdateDirectory replaces the staff list and settings, e.g. after a push
// invalidation. On step 1 an unqualified staff selection is cleared.
func (w *Wizard) UpdateDirectory(users []bookingapi.User, settings bookingapi.Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users = append([]bookingapi.User(nil), users...)
	w.settings = settings
	w.services = VisibleServices(w.session, w.catalog, w.users)
	if w.step == StepServiceStaff {
		w.clearHiddenServiceLocked()
		w.clearUnqualifiedStaffLocked()
	}
}

// UpdateServices replaces the service catalog, e.g. after a push invalidation.
// Like staff, a selected service that is no longer offered is only dropped on
// step 1.
func (w *Wizard) UpdateServices(services []bookingapi.Service) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.catalog = append([]bookingapi.Service(nil), services...)
	w.services = VisibleServices(w.session, w.catalog, w.users)
	if w.step == StepServiceStaff {
		w.clearHiddenServiceLocked()
	}
}

// Submit checks step 3 and hands the draft to the submitter. On failure the
// wizard keeps its state so the user can retry.
func (w *Wizard) Submit(ctx context.Context) (*bookingapi.Appointment, error) {
	if w.submitter == nil {
		return nil, errors.New("booking: submitter not configured")
	}
	w.mu.Lock()
	if w.step != StepDateTime {
		w.mu.Unlock()
		return nil, ErrNotFinalStep
	}
	if err := w.checkStepLocked(StepDateTime); err != nil {
		// the submitter's own checks produce the more specific message
		// for missing customer/service fields
		if verr := w.submitter.Check(w.draft); verr != nil {
			err = verr
		}
		w.mu.Unlock()
		return nil, err
	}
	draft := w.draft
	w.inflight++
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inflight--
		w.mu.Unlock()
	}()
	return w.submitter.Submit(ctx, draft)
}

func (w *Wizard) checkStepLocked(step Step) error {
	switch step {
	case StepServiceStaff:
		if w.draft.ServiceID == "" {
			return invalid(CodeServiceRequired, "Please select a service.")
		}
	case StepCustomer:
		if strings.TrimSpace(w.draft.CustomerName) == "" || strings.TrimSpace(w.draft.Phone) == "" {
			return invalid(CodeCustomerRequired, "Customer name and phone are required.")
		}
	case StepDateTime:
		if w.draft.Time == "" {
			return invalid(CodeTimeRequired, "Please select a time.")
		}
		if !w.availability.Current().IsAvailable(w.draft.Time) {
			return invalid(CodeSlotUnavailable, "The selected time is not available.")
		}
	}
	return nil
}

// slotInputsChangedLocked handles a change of service, staff or date: the
// time is cleared, slots are dropped and, on step 3, a lookup is issued.
func (w *Wizard) slotInputsChangedLocked() (Lookup, bool) {
	w.draft.Time = ""
	if lookup, ok := w.beginLookupLocked(); ok {
		return lookup, true
	}
	w.availability.Invalidate()
	return Lookup{}, false
}

func (w *Wizard) beginLookupLocked() (Lookup, bool) {
	if w.step != StepDateTime || w.draft.ServiceID == "" || w.draft.Date.IsZero() {
		return Lookup{}, false
	}
	w.inflight++
	return w.availability.Begin(bookingapi.AvailabilityQuery{
		OrgID:     w.session.OrgID,
		ServiceID: w.draft.ServiceID,
		Date:      w.draft.DateString(),
		StaffID:   w.draft.StaffMemberID,
	}), true
}

func (w *Wizard) runLookup(ctx context.Context, l Lookup) {
	w.availability.Run(ctx, l)
	w.mu.Lock()
	w.inflight--
	w.mu.Unlock()
}

// clearHiddenServiceLocked drops a selected service the session can no longer
// see, together with everything chosen for it.
func (w *Wizard) clearHiddenServiceLocked() {
	if w.draft.ServiceID == "" {
		return
	}
	if _, ok := findService(w.services, w.draft.ServiceID); ok {
		return
	}
	w.logger.Debug("clearing service no longer offered", "service_id", w.draft.ServiceID)
	w.draft.ServiceID = ""
	w.draft.StaffMemberID = ""
	w.draft.Time = ""
	w.availability.Invalidate()
}

// clearUnqualifiedStaffLocked drops a staff selection that cannot perform the
// selected service. The time and slots were fetched for that staff member, so
// they are dropped with it.
func (w *Wizard) clearUnqualifiedStaffLocked() bool {
	if w.draft.StaffMemberID == "" {
		return false
	}
	if containsUser(QualifiedStaff(w.users, w.draft.ServiceID, w.settings), w.draft.StaffMemberID) {
		return false
	}
	w.logger.Debug("clearing unqualified staff selection", "staff", w.draft.StaffMemberID, "service_id", w.draft.ServiceID)
	w.draft.StaffMemberID = ""
	w.draft.Time = ""
	w.availability.Invalidate()
	return true
}
