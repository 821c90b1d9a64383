package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

var (
	testServices = []bookingapi.Service{
		{ID: "haircut", Name: "Haircut", Price: 150, Duration: 30},
		{ID: "color", Name: "Hair color", Price: 400, Duration: 90},
	}
	testUsers = []bookingapi.User{
		{Username: "mehmet", FullName: "Mehmet Yılmaz", Role: tenancy.RoleStaff, PermittedServiceIDs: []string{"haircut"}},
		{Username: "zeynep", FullName: "Zeynep Demir", Role: tenancy.RoleStaff, PermittedServiceIDs: []string{"color"}},
		{Username: "owner", FullName: "Salon Owner", Role: tenancy.RoleAdmin, PermittedServiceIDs: []string{"haircut", "color"}},
	}
	adminSession = tenancy.Session{Token: "tok", OrgID: "org-1", Username: "owner", Role: tenancy.RoleAdmin}

	march10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	march11 = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	march10Slots = bookingapi.SlotSet{
		Available: []string{"10:00", "10:30"},
		Busy:      []string{"11:00"},
		All:       []string{"10:00", "10:30", "11:00"},
	}
	march11Slots = bookingapi.SlotSet{
		Available: []string{"14:00"},
		Busy:      []string{},
		All:       []string{"14:00"},
	}
)

// fakeSource serves availability from memory. Dates listed in hold block until
// their channel is closed; every call start is reported on started if set.
type fakeSource struct {
	mu      sync.Mutex
	calls   []bookingapi.AvailabilityQuery
	byDate  map[string]bookingapi.SlotSet
	err     error
	hold    map[string]chan struct{}
	started chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{byDate: map[string]bookingapi.SlotSet{
		"2025-03-10": march10Slots,
		"2025-03-11": march11Slots,
	}}
}

func (f *fakeSource) GetAvailability(_ context.Context, q bookingapi.AvailabilityQuery) (bookingapi.SlotSet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	hold := f.hold[q.Date]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- q.Date
	}
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return bookingapi.SlotSet{}, f.err
	}
	return f.byDate[q.Date], nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) lastCall() bookingapi.AvailabilityQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// fakeWriter records create/update calls.
type fakeWriter struct {
	mu      sync.Mutex
	creates []bookingapi.AppointmentRequest
	updates map[string]bookingapi.AppointmentRequest
	err     error
}

func (f *fakeWriter) CreateAppointment(_ context.Context, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.err != nil {
		return nil, f.err
	}
	return &bookingapi.Appointment{ID: "appt-new", ServiceID: req.ServiceID, AppointmentTime: req.AppointmentTime}, nil
}

func (f *fakeWriter) UpdateAppointment(_ context.Context, id string, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]bookingapi.AppointmentRequest{}
	}
	f.updates[id] = req
	if f.err != nil {
		return nil, f.err
	}
	return &bookingapi.Appointment{ID: id, ServiceID: req.ServiceID}, nil
}

func (f *fakeWriter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates) + len(f.updates)
}

func staffSession(username string) tenancy.Session {
	return tenancy.Session{Token: "tok", OrgID: "org-1", Username: username, Role: tenancy.RoleStaff}
}

// customerList is a static CustomerLister.
type customerList []bookingapi.Customer

func (c customerList) ListCustomers(context.Context) ([]bookingapi.Customer, error) {
	return append([]bookingapi.Customer(nil), c...), nil
}

type wizardOption func(*WizardConfig)

func withSettings(s bookingapi.Settings) wizardOption {
	return func(c *WizardConfig) { c.Settings = s }
}

func withSubmitter(s *Submitter) wizardOption {
	return func(c *WizardConfig) { c.Submitter = s }
}

func newTestWizard(t *testing.T, src AvailabilitySource, opts ...wizardOption) *Wizard {
	t.Helper()
	logger := logging.New("error")
	cfg := WizardConfig{
		Session:      adminSession,
		Services:     testServices,
		Users:        testUsers,
		Availability: NewAvailability(src, logger, nil),
		Logger:       logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	w, err := NewWizard(cfg)
	require.NoError(t, err)
	return w
}

// toStep3 fills steps 1 and 2 with valid data and advances to step 3.
func toStep3(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.Next(ctx))
	w.SetCustomer("Ayşe Kaya", "05551234567")
	require.NoError(t, w.Next(ctx))
	require.Equal(t, StepDateTime, w.Step())
}
