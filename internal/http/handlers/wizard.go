package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/observability/metrics"
	"github.com/wolfman30/randevu-desk/internal/push"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// WizardHandlerConfig wires a WizardHandler.
type WizardHandlerConfig struct {
	Backends      BackendFactory
	Store         *WizardStore
	Waiter        booking.ConfirmationWaiter // usually the push hub
	SettleTimeout time.Duration
	Metrics       *metrics.BookingMetrics
	Logger        *logging.Logger
}

// WizardHandler exposes the booking wizard over HTTP. Each wizard lives in the
// store, bound to the session that opened it.
type WizardHandler struct {
	backends      BackendFactory
	store         *WizardStore
	waiter        booking.ConfirmationWaiter
	settleTimeout time.Duration
	metrics       *metrics.BookingMetrics
	customers     *customerCaches
	logger        *logging.Logger
}

func NewWizardHandler(cfg WizardHandlerConfig) *WizardHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewWizardStore()
	}
	return &WizardHandler{
		backends:      cfg.Backends,
		store:         store,
		waiter:        cfg.Waiter,
		settleTimeout: cfg.SettleTimeout,
		metrics:       cfg.Metrics,
		customers:     newCustomerCaches(logger),
		logger:        logger,
	}
}

// Routes mounts the wizard endpoints. Expects SessionAuth upstream.
func (h *WizardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{wizardID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Cancel)
		r.Put("/service", h.SetService)
		r.Put("/staff", h.SetStaff)
		r.Put("/customer", h.SetCustomer)
		r.Put("/date", h.SetDate)
		r.Put("/time", h.SetTime)
		r.Put("/notes", h.SetNotes)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/submit", h.Submit)
	})
	return r
}

type draftView struct {
	AppointmentID string `json:"appointment_id,omitempty"`
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	StaffMemberID string `json:"staff_member_id"`
	Notes         string `json:"notes"`
}

type wizardView struct {
	ID             string               `json:"id"`
	Mode           string               `json:"mode"`
	Step           int                  `json:"step"`
	StepName       string               `json:"step_name"`
	Draft          draftView            `json:"draft"`
	Slots          bookingapi.SlotSet   `json:"slots"`
	Services       []bookingapi.Service `json:"services"`
	QualifiedStaff []bookingapi.User    `json:"qualified_staff"`
	Busy           bool                 `json:"busy"`
}

func viewOf(id string, snap booking.Snapshot) wizardView {
	mode := "create"
	if snap.Draft.IsEdit() {
		mode = "edit"
	}
	services := snap.Services
	if services == nil {
		services = []bookingapi.Service{}
	}
	staff := snap.QualifiedStaff
	if staff == nil {
		staff = []bookingapi.User{}
	}
	return wizardView{
		ID:       id,
		Mode:     mode,
		Step:     int(snap.Step),
		StepName: snap.Step.String(),
		Draft: draftView{
			AppointmentID: snap.Draft.AppointmentID,
			CustomerName:  snap.Draft.CustomerName,
			Phone:         snap.Draft.Phone,
			ServiceID:     snap.Draft.ServiceID,
			Date:          snap.Draft.DateString(),
			Time:          snap.Draft.Time,
			StaffMemberID: snap.Draft.StaffMemberID,
			Notes:         snap.Draft.Notes,
		},
		Slots:          snap.Slots,
		Services:       services,
		QualifiedStaff: staff,
		Busy:           snap.Busy,
	}
}

type createWizardRequest struct {
	// Appointment switches the wizard to edit mode.
	Appointment *bookingapi.Appointment `json:"appointment,omitempty"`
}

// Create handles POST /wizard.
func (h *WizardHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := tenancy.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "missing session", http.StatusUnauthorized)
		return
	}
	var req createWizardRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var draft *booking.Draft
	if req.Appointment != nil {
		d, err := booking.DraftFromAppointment(*req.Appointment)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		draft = &d
	}

	wiz, err := h.newWizard(r.Context(), session, draft)
	if err != nil {
		h.logger.Error("failed to open wizard", "error", err, "org_id", session.OrgID)
		jsonError(w, "failed to open wizard", http.StatusInternalServerError)
		return
	}
	entry := h.store.add(session, wiz)
	h.logger.Info("wizard opened", "wizard_id", entry.id, "org_id", session.OrgID, "edit", draft != nil)
	writeJSON(w, http.StatusCreated, viewOf(entry.id, wiz.Snapshot()))
}

func (h *WizardHandler) newWizard(ctx context.Context, session tenancy.Session, draft *booking.Draft) (*booking.Wizard, error) {
	backend := h.backends(session)
	dir, errs := loadDirectory(ctx, backend)
	for _, err := range errs {
		h.logger.Warn("directory load failed", "error", err, "org_id", session.OrgID)
	}

	var permitted []string
	if me, ok := booking.FindUser(dir.users, session.Username); ok {
		permitted = me.PermittedServiceIDs
	}
	customers := h.customers.forSession(ctx, session, backend)
	logger := h.logger.With("org_id", session.OrgID, "username", session.Username)

	submitter := booking.NewSubmitter(booking.SubmitterConfig{
		Writer:              backend,
		Session:             session,
		PermittedServiceIDs: permitted,
		Customers:           customers,
		Waiter:              h.waiter,
		SettleTimeout:       h.settleTimeout,
		Logger:              logger,
		Metrics:             h.metrics,
	})
	return booking.NewWizard(booking.WizardConfig{
		Session:      session,
		Services:     dir.services,
		Users:        dir.users,
		Settings:     dir.settings,
		Availability: booking.NewAvailability(backend, logger, h.metrics),
		Submitter:    submitter,
		Customers:    customers,
		Draft:        draft,
		Logger:       logger,
	})
}

// entry resolves {wizardID} for the request session, writing 404 on a miss.
func (h *WizardHandler) entry(w http.ResponseWriter, r *http.Request) (*wizardEntry, bool) {
	session, ok := tenancy.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "missing session", http.StatusUnauthorized)
		return nil, false
	}
	e, ok := h.store.get(chi.URLParam(r, "wizardID"), session)
	if !ok {
		jsonError(w, "wizard not found", http.StatusNotFound)
		return nil, false
	}
	return e, true
}

// mutate runs fn against the wizard and answers with the new state.
func (h *WizardHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(*booking.Wizard) error) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if err := fn(e.wizard); err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e.id, e.wizard.Snapshot()))
}

// Get handles GET /wizard/{wizardID}.
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(*booking.Wizard) error { return nil })
}

// Cancel handles DELETE /wizard/{wizardID}.
func (h *WizardHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, ok := tenancy.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "missing session", http.StatusUnauthorized)
		return
	}
	if !h.store.remove(chi.URLParam(r, "wizardID"), session) {
		jsonError(w, "wizard not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetService handles PUT /wizard/{wizardID}/service.
func (h *WizardHandler) SetService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServiceID string `json:"service_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.SelectService(r.Context(), body.ServiceID) })
}

// SetStaff handles PUT /wizard/{wizardID}/staff. An empty id means auto-assign.
func (h *WizardHandler) SetStaff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StaffMemberID string `json:"staff_member_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.SelectStaff(r.Context(), body.StaffMemberID) })
}

// SetCustomer handles PUT /wizard/{wizardID}/customer.
func (h *WizardHandler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error {
		wiz.SetCustomer(body.Name, body.Phone)
		return nil
	})
}

// SetDate handles PUT /wizard/{wizardID}/date with a yyyy-MM-dd date.
func (h *WizardHandler) SetDate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var date time.Time
	if strings.TrimSpace(body.Date) != "" {
		parsed, err := booking.ParseDate(body.Date)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		date = parsed
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.SetDate(r.Context(), date) })
}

// SetTime handles PUT /wizard/{wizardID}/time.
func (h *WizardHandler) SetTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time string `json:"time"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.SelectTime(body.Time) })
}

// SetNotes handles PUT /wizard/{wizardID}/notes.
func (h *WizardHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(wiz *booking.Wizard) error {
		wiz.SetNotes(body.Notes)
		return nil
	})
}

// Next handles POST /wizard/{wizardID}/next.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.Next(r.Context()) })
}

// Back handles POST /wizard/{wizardID}/back.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wiz *booking.Wizard) error { return wiz.Back() })
}

// Submit handles POST /wizard/{wizardID}/submit. A completed wizard is closed.
func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	appt, err := e.wizard.Submit(r.Context())
	if err != nil {
		writeBookingError(w, err)
		return
	}
	session, _ := tenancy.SessionFromContext(r.Context())
	h.store.remove(e.id, session)
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

// HandleInvalidation applies a push event to the open wizards of orgID.
// Customer events reload the customer caches, user and settings events reload
// the staff directory, service events reload the catalog and appointment
// events re-fetch slots on step 3. Reloads go through the backend of the
// session owning each wizard.
func (h *WizardHandler) HandleInvalidation(ctx context.Context, orgID string, ev push.Invalidation) {
	switch ev.Entity {
	case push.EntityCustomer:
		for _, cache := range h.customers.forOrg(orgID) {
			cache.OnInvalidate(ctx, ev.Entity, ev.ID)
		}
	case push.EntityUser, push.EntitySettings:
		for _, group := range groupBySession(h.store.forOrg(orgID)) {
			h.reloadDirectory(ctx, group)
		}
	case push.EntityService:
		for _, group := range groupBySession(h.store.forOrg(orgID)) {
			logger := h.logger.With("org_id", orgID, "username", group.session.Username)
			services, err := h.backends(group.session).ListServices(ctx)
			if err != nil {
				logger.Warn("service catalog reload failed", "error", err)
				continue
			}
			for _, wiz := range group.wizards {
				wiz.UpdateServices(services)
			}
		}
	case push.EntityAppointment:
		for _, e := range h.store.forOrg(orgID) {
			e.wizard.RefreshSlots(ctx)
		}
	}
}

func (h *WizardHandler) reloadDirectory(ctx context.Context, group *sessionGroup) {
	logger := h.logger.With("org_id", group.session.OrgID, "username", group.session.Username)
	backend := h.backends(group.session)
	users, err := backend.ListUsers(ctx)
	if err != nil {
		logger.Warn("staff reload failed", "error", err)
		return
	}
	settings, err := backend.GetSettings(ctx)
	if err != nil || settings == nil {
		logger.Warn("settings reload failed", "error", err)
		return
	}
	for _, wiz := range group.wizards {
		wiz.UpdateDirectory(users, *settings)
	}
}

type sessionGroup struct {
	session  tenancy.Session
	lastUsed time.Time
	wizards  []*booking.Wizard
}

// groupBySession buckets wizards by the user that opened them, keeping the
// most recently used session (and so the newest token) of each user.
func groupBySession(entries []wizardEntry) []*sessionGroup {
	index := map[cacheKey]*sessionGroup{}
	var groups []*sessionGroup
	for _, e := range entries {
		key := cacheKey{orgID: e.session.OrgID, username: e.session.Username}
		g, ok := index[key]
		if !ok {
			g = &sessionGroup{session: e.session, lastUsed: e.lastUsed}
			index[key] = g
			groups = append(groups, g)
		} else if e.lastUsed.After(g.lastUsed) {
			g.session = e.session
			g.lastUsed = e.lastUsed
		}
		g.wizards = append(g.wizards, e.wizard)
	}
	return groups
}

// Watch feeds hub events for orgID into HandleInvalidation until ctx ends.
func (h *WizardHandler) Watch(ctx context.Context, hub *push.Hub, orgID string) {
	events, cancel := hub.Subscribe("", 64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.HandleInvalidation(ctx, orgID, ev)
		}
	}
}

// EvictIdle closes wizards untouched for longer than idle.
func (h *WizardHandler) EvictIdle(idle time.Duration) int {
	return h.store.Evict(idle)
}
