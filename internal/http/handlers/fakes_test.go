package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
)

var (
	ownerSession = tenancy.Session{Token: "tok", OrgID: "org-1", Username: "owner", Role: tenancy.RoleAdmin}
	staffSess    = tenancy.Session{Token: "tok", OrgID: "org-1", Username: "mehmet", Role: tenancy.RoleStaff}
)

// fakeBackend is an in-memory booking API.
type fakeBackend struct {
	mu        sync.Mutex
	users     []bookingapi.User
	settings  bookingapi.Settings
	services  []bookingapi.Service
	customers []bookingapi.Customer
	slots     map[string]bookingapi.SlotSet
	created   []bookingapi.AppointmentRequest
	updated   map[string]bookingapi.AppointmentRequest
	writeErr  error
	usersErr  error

	availabilityCalls int
	userCalls         int
	customerCalls     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: []bookingapi.User{
			{Username: "mehmet", Role: tenancy.RoleStaff, PermittedServiceIDs: []string{"haircut"}},
			{Username: "owner", Role: tenancy.RoleAdmin, PermittedServiceIDs: []string{"haircut", "color"}},
		},
		services: []bookingapi.Service{
			{ID: "haircut", Name: "Haircut", Price: 150, Duration: 30},
			{ID: "color", Name: "Hair color", Price: 400, Duration: 90},
		},
		customers: []bookingapi.Customer{{ID: "c-1", Name: "Ayşe Kaya", Phone: "05551234567"}},
		slots: map[string]bookingapi.SlotSet{
			"2025-03-10": {Available: []string{"10:00", "10:30"}, Busy: []string{"11:00"}, All: []string{"10:00", "10:30", "11:00"}},
		},
		updated: map[string]bookingapi.AppointmentRequest{},
	}
}

func (f *fakeBackend) factory(tenancy.Session) Backend { return f }

func (f *fakeBackend) ListUsers(context.Context) ([]bookingapi.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return append([]bookingapi.User(nil), f.users...), nil
}

func (f *fakeBackend) GetSettings(context.Context) (*bookingapi.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.settings
	return &s, nil
}

func (f *fakeBackend) ListServices(context.Context) ([]bookingapi.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bookingapi.Service(nil), f.services...), nil
}

func (f *fakeBackend) ListCustomers(context.Context) ([]bookingapi.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	return append([]bookingapi.Customer(nil), f.customers...), nil
}

func (f *fakeBackend) GetAvailability(_ context.Context, q bookingapi.AvailabilityQuery) (bookingapi.SlotSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availabilityCalls++
	s, ok := f.slots[q.Date]
	if !ok {
		return bookingapi.SlotSet{}, errors.New("no slots")
	}
	return s, nil
}

func (f *fakeBackend) CreateAppointment(_ context.Context, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.created = append(f.created, req)
	return &bookingapi.Appointment{
		ID:              "appt-1",
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		ServiceID:       req.ServiceID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
	}, nil
}

func (f *fakeBackend) UpdateAppointment(_ context.Context, id string, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.updated[id] = req
	return &bookingapi.Appointment{ID: id, ServiceID: req.ServiceID, AppointmentDate: req.AppointmentDate, AppointmentTime: req.AppointmentTime}, nil
}

// withSession injects s the way SessionAuth does.
func withSession(s tenancy.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenancy.WithSession(r.Context(), s)))
		})
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) wizardView {
	t.Helper()
	var v wizardView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func wizardRouter(h *WizardHandler, s tenancy.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(withSession(s))
	r.Mount("/wizard", h.Routes())
	return r
}
