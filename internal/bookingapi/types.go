package bookingapi

import (
	"encoding/json"
	"strings"
)

// DateLayout is the wire format for appointment dates.
const DateLayout = "2006-01-02"

// User is a staff member or account holder as returned by /api/users.
type User struct {
	ID                  string   `json:"id,omitempty"`
	Username            string   `json:"username"`
	FullName            string   `json:"full_name"`
	Role                string   `json:"role"`
	PermittedServiceIDs []string `json:"permitted_service_ids"`
}

// CanPerform reports whether serviceID is in the user's permitted set.
func (u User) CanPerform(serviceID string) bool {
	for _, id := range u.PermittedServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Settings is the tenant configuration subset the client reads.
type Settings struct {
	BusinessName          string `json:"business_name,omitempty"`
	Slug                  string `json:"slug,omitempty"`
	AdminPerformsServices bool   `json:"admin_performs_services"`
}

// Service is a bookable catalog entry.
type Service struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Duration int     `json:"duration"` // minutes
}

// Customer is a known customer record.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SlotSet holds the bookable times for one (service, date, staff) query.
type SlotSet struct {
	Available []string `json:"available_slots"`
	Busy      []string `json:"busy_slots"`
	All       []string `json:"all_slots"`
}

// Empty reports whether no slots of any kind are present.
func (s SlotSet) Empty() bool {
	return len(s.Available) == 0 && len(s.Busy) == 0 && len(s.All) == 0
}

// Valid reports whether available and busy are both subsets of all.
// Disjointness of available and busy is not checked.
func (s SlotSet) Valid() bool {
	all := make(map[string]struct{}, len(s.All))
	for _, t := range s.All {
		all[t] = struct{}{}
	}
	for _, list := range [][]string{s.Available, s.Busy} {
		for _, t := range list {
			if _, ok := all[t]; !ok {
				return false
			}
		}
	}
	return true
}

// IsAvailable reports whether t is one of the available slots.
func (s SlotSet) IsAvailable(t string) bool {
	for _, a := range s.Available {
		if a == t {
			return true
		}
	}
	return false
}

// AppointmentRequest is the create/update body. StaffMemberID is a pointer so
// that "not chosen" is omitted from the JSON rather than sent as "".
type AppointmentRequest struct {
	CustomerName    string  `json:"customer_name"`
	Phone           string  `json:"phone"`
	ServiceID       string  `json:"service_id"`
	AppointmentDate string  `json:"appointment_date"`
	AppointmentTime string  `json:"appointment_time"`
	StaffMemberID   *string `json:"staff_member_id,omitempty"`
	Notes           string  `json:"notes"`
}

// Appointment is the server's view of a booked appointment.
type Appointment struct {
	ID              string `json:"id"`
	CustomerName    string `json:"customer_name"`
	Phone           string `json:"phone"`
	ServiceID       string `json:"service_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	StaffMemberID   string `json:"staff_member_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Status          string `json:"status,omitempty"`
}

// AvailabilityQuery identifies one availability lookup.
type AvailabilityQuery struct {
	OrgID     string
	ServiceID string
	Date      string // yyyy-MM-dd
	StaffID   string // optional
}

// errorBody covers the error envelopes the API has been seen to return.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (b errorBody) text() string {
	if len(b.Detail) > 0 {
		var s string
		if err := json.Unmarshal(b.Detail, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if strings.TrimSpace(b.Message) != "" {
		return b.Message
	}
	return strings.TrimSpace(b.Error)
}
