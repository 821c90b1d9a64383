package bookingapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	session := tenancy.Session{Token: "tok-1", OrgID: "org-1", Username: "ayse", Role: "admin"}
	return NewClient(ts.URL+"/", session, logging.New("error"))
}

func TestClient_GetAvailability(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/public/availability/org-1", r.URL.Path)
		assert.Equal(t, "haircut", r.URL.Query().Get("service_id"))
		assert.Equal(t, "2025-03-10", r.URL.Query().Get("date"))
		assert.Equal(t, "mehmet", r.URL.Query().Get("staff_id"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"available_slots":["10:00","10:30"],"busy_slots":["11:00"],"all_slots":["10:00","10:30","11:00"]}`))
	})

	slots, err := client.GetAvailability(context.Background(), AvailabilityQuery{
		OrgID: "org-1", ServiceID: "haircut", Date: "2025-03-10", StaffID: "mehmet",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, slots.Available)
	assert.Equal(t, []string{"11:00"}, slots.Busy)
	assert.True(t, slots.Valid())
}

func TestClient_GetAvailability_NoStaffParam(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["staff_id"]
		assert.False(t, present, "staff_id should be omitted when empty")
		_, _ = w.Write([]byte(`{"available_slots":[],"busy_slots":[],"all_slots":[]}`))
	})

	slots, err := client.GetAvailability(context.Background(), AvailabilityQuery{OrgID: "org-1", ServiceID: "s", Date: "2025-03-10"})
	require.NoError(t, err)
	assert.True(t, slots.Empty())
}

func TestClient_GetAvailability_RequiresOrg(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.GetAvailability(context.Background(), AvailabilityQuery{ServiceID: "s", Date: "2025-03-10"})
	assert.Error(t, err)
}

func TestClient_CreateAppointment_OmitsStaff(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/appointments", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		_, hasStaff := body["staff_member_id"]
		assert.False(t, hasStaff)
		assert.Equal(t, "", body["notes"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"appt-1","service_id":"haircut","status":"confirmed"}`))
	})

	appt, err := client.CreateAppointment(context.Background(), AppointmentRequest{
		CustomerName: "Ayşe Kaya", Phone: "05551234567", ServiceID: "haircut",
		AppointmentDate: "2025-03-10", AppointmentTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "appt-1", appt.ID)
}

func TestClient_UpdateAppointment(t *testing.T) {
	staff := "mehmet"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/appointments/appt-7", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mehmet", body["staff_member_id"])
		_, _ = w.Write([]byte(`{"id":"appt-7"}`))
	})

	appt, err := client.UpdateAppointment(context.Background(), "appt-7", AppointmentRequest{StaffMemberID: &staff})
	require.NoError(t, err)
	assert.Equal(t, "appt-7", appt.ID)

	_, err = client.UpdateAppointment(context.Background(), " ", AppointmentRequest{})
	assert.Error(t, err)
}

func TestClient_ServerMessageVerbatim(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Bu saat dolu"}`, "Bu saat dolu"},
		{"message", `{"message":"slot taken"}`, "slot taken"},
		{"error", `{"error":"invalid phone"}`, "invalid phone"},
		{"non-json", `upstream exploded`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.CreateAppointment(context.Background(), AppointmentRequest{})
			require.Error(t, err)
			msg, ok := ServerMessage(err)
			assert.Equal(t, tt.want, msg)
			assert.Equal(t, tt.want != "", ok)
		})
	}
}

func TestClient_ErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	// odd prefix puts byte 300 in the middle of a two-byte rune
	body := "x" + strings.Repeat("ş", 200)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	})
	_, err := client.CreateAppointment(context.Background(), AppointmentRequest{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, utf8.ValidString(apiErr.Body))
	assert.LessOrEqual(t, len(apiErr.Body), 300)
	assert.Equal(t, body[:299], apiErr.Body)
}

func TestClient_ListEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users":
			_, _ = w.Write([]byte(`[{"username":"mehmet","full_name":"Mehmet Y","role":"staff","permitted_service_ids":["haircut"]}]`))
		case "/api/settings":
			_, _ = w.Write([]byte(`{"business_name":"Salon","admin_performs_services":true}`))
		case "/api/customers":
			_, _ = w.Write([]byte(`[{"id":"c1","name":"Ayşe Kaya","phone":"05551234567"}]`))
		case "/api/services":
			_, _ = w.Write([]byte(`[{"id":"haircut","name":"Haircut","price":150,"duration":30}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	users, err := client.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].CanPerform("haircut"))
	assert.False(t, users[0].CanPerform("color"))

	settings, err := client.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.AdminPerformsServices)

	customers, err := client.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "05551234567", customers[0].Phone)

	services, err := client.ListServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, services[0].Duration)
}

func TestClient_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"username":`))
	})
	_, err := client.ListUsers(context.Background())
	assert.Error(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListCustomers(ctx)
	assert.Error(t, err)
}

func TestClient_WithSession(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})
	other := client.WithSession(tenancy.Session{Token: "tok-2", OrgID: "org-2"})
	_, err := other.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-2", gotAuth)
	assert.Equal(t, "org-1", client.Session().OrgID)
}

func TestSlotSetValid(t *testing.T) {
	assert.True(t, SlotSet{}.Valid())
	assert.False(t, SlotSet{Available: []string{"09:00"}, All: []string{"10:00"}}.Valid())
	assert.False(t, SlotSet{Busy: []string{"09:00"}, All: []string{"10:00"}}.Valid())
	s := SlotSet{Available: []string{"10:00"}, Busy: []string{"10:30"}, All: []string{"10:00", "10:30"}}
	assert.True(t, s.Valid())
	assert.True(t, s.IsAvailable("10:00"))
	assert.False(t, s.IsAvailable("10:30"))
}
