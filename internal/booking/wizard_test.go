package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
)

func requireValidation(t *testing.T, err error, code string) {
	t.Helper()
	verr, ok := IsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, code, verr.Code)
	assert.NotEmpty(t, verr.Message)
}

func TestWizard_StepGating(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	w := newTestWizard(t, src)

	requireValidation(t, w.Next(ctx), CodeServiceRequired)
	assert.Equal(t, StepServiceStaff, w.Step())

	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepCustomer, w.Step())

	requireValidation(t, w.Next(ctx), CodeCustomerRequired)
	w.SetCustomer("Ayşe Kaya", "   ")
	requireValidation(t, w.Next(ctx), CodeCustomerRequired)
	assert.Equal(t, StepCustomer, w.Step())

	w.SetCustomer("Ayşe Kaya", "05551234567")
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepDateTime, w.Step())

	assert.ErrorIs(t, w.Next(ctx), ErrFinalStep)
	assert.Equal(t, StepDateTime, w.Step())
	assert.Equal(t, 0, src.callCount(), "no date selected yet, nothing to fetch")
}

func TestWizard_Back(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())

	assert.ErrorIs(t, w.Back(), ErrFirstStep)
	toStep3(t, w)
	require.NoError(t, w.Back())
	assert.Equal(t, StepCustomer, w.Step())
	require.NoError(t, w.Back())
	assert.Equal(t, StepServiceStaff, w.Step())
	assert.ErrorIs(t, w.Back(), ErrFirstStep)

	// the draft survives navigation
	assert.Equal(t, "Ayşe Kaya", w.Draft().CustomerName)
	require.NoError(t, w.Next(ctx))
}

func TestWizard_SubmitOnlyFromFinalStep(t *testing.T) {
	ctx := context.Background()
	writer := &fakeWriter{}
	w := newTestWizard(t, newFakeSource(), withSubmitter(NewSubmitter(SubmitterConfig{Writer: writer, Session: adminSession})))
	toStep3(t, w)
	require.NoError(t, w.SetDate(ctx, march10))
	require.NoError(t, w.SelectTime("10:00"))

	require.NoError(t, w.Back())
	_, err := w.Submit(ctx)
	assert.ErrorIs(t, err, ErrNotFinalStep)
	require.NoError(t, w.Back())
	_, err = w.Submit(ctx)
	assert.ErrorIs(t, err, ErrNotFinalStep)
	assert.Equal(t, StepServiceStaff, w.Step())
	assert.Equal(t, 0, writer.total(), "nothing is written before step 3")

	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	_, err = w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.total())
}

func TestWizard_DroppedStaffClearsTimeAndSlots(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())
	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.SelectStaff(ctx, "mehmet"))
	require.NoError(t, w.Next(ctx))
	w.SetCustomer("Ayşe Kaya", "05551234567")
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.SetDate(ctx, march10))
	require.NoError(t, w.SelectTime("10:00"))

	w.UpdateDirectory([]bookingapi.User{
		{Username: "mehmet", Role: "staff", PermittedServiceIDs: []string{"color"}},
	}, bookingapi.Settings{})
	require.NoError(t, w.Back())
	assert.Equal(t, "10:00", w.Draft().Time, "staff is only re-checked on step 1")
	require.NoError(t, w.Back())

	snap := w.Snapshot()
	assert.Empty(t, snap.Draft.StaffMemberID)
	assert.Empty(t, snap.Draft.Time, "the time was picked for the dropped staff member")
	assert.True(t, snap.Slots.Empty())
	assert.True(t, snap.Draft.Date.Equal(march10), "the date is kept")
}

func TestWizard_UnknownService(t *testing.T) {
	w := newTestWizard(t, newFakeSource())
	requireValidation(t, w.SelectService(context.Background(), "massage"), CodeUnknownService)
	requireValidation(t, w.SelectService(context.Background(), " "), CodeServiceRequired)
	assert.Empty(t, w.Draft().ServiceID)
}

func TestWizard_ServiceChangeClearsUnqualifiedStaff(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())

	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.SelectStaff(ctx, "mehmet"))
	assert.Equal(t, "mehmet", w.Draft().StaffMemberID)

	require.NoError(t, w.SelectService(ctx, "color"))
	assert.Empty(t, w.Draft().StaffMemberID)

	require.NoError(t, w.SelectStaff(ctx, "zeynep"))
	require.NoError(t, w.SelectService(ctx, "color"))
	assert.Equal(t, "zeynep", w.Draft().StaffMemberID, "re-selecting the same service keeps staff")
}

func TestWizard_StaffSelectionRules(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())

	requireValidation(t, w.SelectStaff(ctx, "mehmet"), CodeServiceRequired)
	require.NoError(t, w.SelectService(ctx, "haircut"))
	requireValidation(t, w.SelectStaff(ctx, "zeynep"), CodeStaffNotQualified)
	requireValidation(t, w.SelectStaff(ctx, "owner"), CodeStaffNotQualified)

	names := []string{}
	for _, u := range w.Snapshot().QualifiedStaff {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"mehmet"}, names)

	require.NoError(t, w.SelectStaff(ctx, ""))
	assert.Empty(t, w.Draft().StaffMemberID)
}

func TestWizard_AdminPerformsServicesSetting(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource(), withSettings(bookingapi.Settings{AdminPerformsServices: true}))

	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.SelectStaff(ctx, "owner"))
	assert.Equal(t, "owner", w.Draft().StaffMemberID)

	// turning the setting off drops the admin once the user is back on step 1
	require.NoError(t, w.Next(ctx))
	w.UpdateDirectory(testUsers, bookingapi.Settings{AdminPerformsServices: false})
	assert.Equal(t, "owner", w.Draft().StaffMemberID)
	require.NoError(t, w.Back())
	assert.Empty(t, w.Draft().StaffMemberID)
}

func TestWizard_BackToStep1ClearsStaffNoLongerQualified(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())
	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.SelectStaff(ctx, "mehmet"))
	require.NoError(t, w.Next(ctx))

	users := []bookingapi.User{
		{Username: "mehmet", Role: "staff", PermittedServiceIDs: []string{"color"}},
	}
	w.UpdateDirectory(users, bookingapi.Settings{})
	assert.Equal(t, "mehmet", w.Draft().StaffMemberID)

	require.NoError(t, w.Back())
	assert.Empty(t, w.Draft().StaffMemberID)
}

func TestWizard_FetchesOnlyOnStep3(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	w := newTestWizard(t, src)

	require.NoError(t, w.SelectService(ctx, "haircut"))
	require.NoError(t, w.SetDate(ctx, march10))
	require.NoError(t, w.SelectStaff(ctx, "mehmet"))
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, 0, src.callCount())

	w.SetCustomer("Ayşe Kaya", "05551234567")
	require.NoError(t, w.Next(ctx))
	require.Equal(t, 1, src.callCount())
	assert.Equal(t, bookingapi.AvailabilityQuery{OrgID: "org-1", ServiceID: "haircut", Date: "2025-03-10", StaffID: "mehmet"}, src.lastCall())
	assert.Equal(t, march10Slots, w.Snapshot().Slots)

	require.NoError(t, w.SelectStaff(ctx, ""))
	require.Equal(t, 2, src.callCount())
	assert.Empty(t, src.lastCall().StaffID)

	require.NoError(t, w.SelectService(ctx, "color"))
	require.Equal(t, 3, src.callCount())
	assert.Equal(t, "color", src.lastCall().ServiceID)
}

func TestWizard_DateChangeClearsTimeAndSlots(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	w := newTestWizard(t, src)
	toStep3(t, w)

	require.NoError(t, w.SetDate(ctx, march10))
	require.NoError(t, w.SelectTime("10:00"))
	assert.Equal(t, "10:00", w.Draft().Time)

	src.mu.Lock()
	src.err = errors.New("backend down")
	src.mu.Unlock()

	require.NoError(t, w.SetDate(ctx, march11))
	snap := w.Snapshot()
	assert.Empty(t, snap.Draft.Time)
	assert.Empty(t, snap.Slots.Available)
	assert.Empty(t, snap.Slots.Busy)
	assert.Empty(t, snap.Slots.All)
	assert.Equal(t, "2025-03-11", snap.Draft.DateString())
}

func TestWizard_SameDateKeepsTime(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	w := newTestWizard(t, src)
	toStep3(t, w)

	require.NoError(t, w.SetDate(ctx, march10))
	require.NoError(t, w.SelectTime("10:30"))
	require.NoError(t, w.SetDate(ctx, march10.Add(15*time.Hour)))
	assert.Equal(t, "10:30", w.Draft().Time)
	assert.Equal(t, 1, src.callCount())
}

func TestWizard_SelectTimeMustBeAvailable(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newFakeSource())
	toStep3(t, w)

	requireValidation(t, w.SelectTime("10:00"), CodeSlotUnavailable)
	require.NoError(t, w.SetDate(ctx, march10))
	requireValidation(t, w.SelectTime("11:00"), CodeSlotUnavailable)
	requireValidation(t, w.SelectTime(""), CodeTimeRequired)
	require.NoError(t, w.SelectTime("10:30"))
}

func TestWizard_FetchFailureShowsNoSlots(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.err = errors.New("502 bad gateway")
	w := newTestWizard(t, src)
	toStep3(t, w)

	require.NoError(t, w.SetDate(ctx, march10))
	snap := w.Snapshot()
	assert.True(t, snap.Slots.Empty())
	assert.False(t, snap.Busy)

	// no retry happens on its own
	assert.Equal(t, 1, src.callCount())

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	w.RefreshSlots(ctx)
	assert.Equal(t, march10Slots, w.Snapshot().Slots)
}

func TestWizard_StaleResponseIsDiscarded(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	release := make(chan struct{})
	src.hold = map[string]chan struct{}{"2025-03-10": release}
	src.started = make(chan string, 4)
	w := newTestWizard(t, src)
	toStep3(t, w)

	done := make(chan error, 1)
	go func() { done <- w.SetDate(ctx, march10) }()
	require.Equal(t, "2025-03-10", <-src.started)
	assert.True(t, w.Snapshot().Busy)

	require.NoError(t, w.SetDate(ctx, march11))
	require.Equal(t, "2025-03-11", <-src.started)
	assert.Equal(t, march11Slots, w.Snapshot().Slots)

	close(release)
	require.NoError(t, <-done)

	snap := w.Snapshot()
	assert.Equal(t, march11Slots, snap.Slots, "late response for the earlier date must not win")
	assert.Equal(t, "2025-03-11", snap.Draft.DateString())
	assert.False(t, snap.Busy)
}

func TestWizard_SetCustomerFillsKnownName(t *testing.T) {
	cache := NewCustomerCache(customerList{{ID: "c1", Name: "Ayşe Kaya", Phone: "0555 123 45 67"}}, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	w, err := NewWizard(WizardConfig{
		Session:      adminSession,
		Services:     testServices,
		Availability: NewAvailability(newFakeSource(), nil, nil),
		Customers:    cache,
	})
	require.NoError(t, err)

	w.SetCustomer("", "05551234567")
	assert.Equal(t, "Ayşe Kaya", w.Draft().CustomerName)

	w.SetCustomer("Someone Else", "05551234567")
	assert.Equal(t, "Someone Else", w.Draft().CustomerName)
}

func TestWizard_StaffSessionSeesPermittedServicesOnly(t *testing.T) {
	w, err := NewWizard(WizardConfig{
		Session:      staffSession("mehmet"),
		Services:     testServices,
		Users:        testUsers,
		Availability: NewAvailability(newFakeSource(), nil, nil),
	})
	require.NoError(t, err)

	snap := w.Snapshot()
	require.Len(t, snap.Services, 1)
	assert.Equal(t, "haircut", snap.Services[0].ID)
	requireValidation(t, w.SelectService(context.Background(), "color"), CodeUnknownService)
}

func TestWizard_EditDraftPrefill(t *testing.T) {
	draft, err := DraftFromAppointment(bookingapi.Appointment{
		ID: "appt-7", CustomerName: "Ayşe Kaya", Phone: "05551234567", ServiceID: "haircut",
		AppointmentDate: "2025-03-10", AppointmentTime: "10:00", StaffMemberID: "zeynep",
	})
	require.NoError(t, err)

	w := newTestWizard(t, newFakeSource(), func(c *WizardConfig) { c.Draft = &draft })
	got := w.Draft()
	assert.True(t, got.IsEdit())
	assert.Equal(t, "2025-03-10", got.DateString())
	assert.Empty(t, got.StaffMemberID, "zeynep does not perform haircuts")
}

func TestNewWizard_RequiresAvailability(t *testing.T) {
	_, err := NewWizard(WizardConfig{})
	assert.Error(t, err)
}
