// Package booking holds the appointment-creation wizard: draft state, step
// gating, availability lookups and submission.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
)

// Step is a wizard position. The flow is strictly linear.
type Step int

const (
	StepServiceStaff Step = iota + 1
	StepCustomer
	StepDateTime
)

func (s Step) String() string {
	switch s {
	case StepServiceStaff:
		return "service_staff"
	case StepCustomer:
		return "customer"
	case StepDateTime:
		return "date_time"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Draft is the in-progress appointment form.
type Draft struct {
	// AppointmentID is set when the draft edits an existing appointment.
	AppointmentID string

	CustomerName  string
	Phone         string
	ServiceID     string
	Date          time.Time // date part only, UTC
	Time          string    // "HH:MM", one of the fetched available slots
	StaffMemberID string    // "" means auto-assign
	Notes         string
}

// NewDraft returns an empty draft for a new appointment.
func NewDraft() Draft { return Draft{} }

// DraftFromAppointment pre-fills a draft for editing a.
func DraftFromAppointment(a bookingapi.Appointment) (Draft, error) {
	d := Draft{
		AppointmentID: a.ID,
		CustomerName:  a.CustomerName,
		Phone:         a.Phone,
		ServiceID:     a.ServiceID,
		Time:          a.AppointmentTime,
		StaffMemberID: a.StaffMemberID,
		Notes:         a.Notes,
	}
	if strings.TrimSpace(a.AppointmentDate) != "" {
		date, err := ParseDate(a.AppointmentDate)
		if err != nil {
			return Draft{}, err
		}
		d.Date = date
	}
	return d, nil
}

// IsEdit reports whether the draft came from an existing appointment.
func (d Draft) IsEdit() bool { return d.AppointmentID != "" }

// DateString renders the date as yyyy-MM-dd, or "" when unset.
func (d Draft) DateString() string {
	if d.Date.IsZero() {
		return ""
	}
	return d.Date.Format(bookingapi.DateLayout)
}

// Request shapes the network payload. An unset staff member is omitted.
func (d Draft) Request() bookingapi.AppointmentRequest {
	req := bookingapi.AppointmentRequest{
		CustomerName:    d.CustomerName,
		Phone:           d.Phone,
		ServiceID:       d.ServiceID,
		AppointmentDate: d.DateString(),
		AppointmentTime: d.Time,
		Notes:           d.Notes,
	}
	if d.StaffMemberID != "" {
		staff := d.StaffMemberID
		req.StaffMemberID = &staff
	}
	return req
}

// ParseDate parses a yyyy-MM-dd string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(bookingapi.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("booking: invalid date %q: %w", s, err)
	}
	return t, nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
