package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/observability/metrics"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// AppointmentWriter persists appointments.
type AppointmentWriter interface {
	CreateAppointment(ctx context.Context, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, req bookingapi.AppointmentRequest) (*bookingapi.Appointment, error)
}

// ConfirmationWaiter blocks until the push channel reports entity/id, or ctx ends.
type ConfirmationWaiter interface {
	Await(ctx context.Context, entity, id string) error
}

// SubmitterConfig wires a Submitter.
type SubmitterConfig struct {
	Writer  AppointmentWriter
	Session tenancy.Session
	// PermittedServiceIDs is the acting user's permitted set; only consulted
	// for staff sessions.
	PermittedServiceIDs []string
	Customers           *CustomerCache
	Waiter              ConfirmationWaiter
	SettleTimeout       time.Duration
	// OnComplete receives the appointment as returned by the server.
	OnComplete func(*bookingapi.Appointment)
	Logger     *logging.Logger
	Metrics    *metrics.BookingMetrics
}

// Submitter validates a finished draft and writes it to the backend.
type Submitter struct {
	cfg    SubmitterConfig
	logger *logging.Logger
}

// NewSubmitter builds a Submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{cfg: cfg, logger: logger}
}

// Check runs the client-side preconditions without touching the network.
// The role check is advisory; the server enforces authorization.
func (s *Submitter) Check(d Draft) error {
	if strings.TrimSpace(d.CustomerName) == "" || strings.TrimSpace(d.Phone) == "" {
		return invalid(CodeCustomerRequired, "Customer name and phone are required.")
	}
	if d.ServiceID == "" {
		return invalid(CodeServiceRequired, "Please select a service.")
	}
	if d.Date.IsZero() {
		return invalid(CodeDateRequired, "Please select a date.")
	}
	if d.Time == "" {
		return invalid(CodeTimeRequired, "Please select a time.")
	}
	if s.cfg.Session.IsStaff() && !containsString(s.cfg.PermittedServiceIDs, d.ServiceID) {
		return invalid(CodeServiceNotPermitted, "You are not permitted to book this service.")
	}
	return nil
}

// Submit writes d: POST for new drafts, PUT for edits. On success it reloads
// the customer cache (creates only), waits up to SettleTimeout for the push
// confirmation, then calls OnComplete.
func (s *Submitter) Submit(ctx context.Context, d Draft) (*bookingapi.Appointment, error) {
	mode := "create"
	if d.IsEdit() {
		mode = "update"
	}
	if err := s.Check(d); err != nil {
		s.cfg.Metrics.ObserveSubmission(mode, "refused")
		return nil, err
	}

	req := d.Request()
	var (
		appt *bookingapi.Appointment
		err  error
	)
	if d.IsEdit() {
		appt, err = s.cfg.Writer.UpdateAppointment(ctx, d.AppointmentID, req)
	} else {
		appt, err = s.cfg.Writer.CreateAppointment(ctx, req)
	}
	if err != nil {
		s.cfg.Metrics.ObserveSubmission(mode, "error")
		msg, ok := bookingapi.ServerMessage(err)
		if !ok {
			msg = genericSubmitMessage
		}
		s.logger.Error("appointment submit failed",
			"error", err,
			"mode", mode,
			"service_id", d.ServiceID,
		)
		return nil, &SubmitError{Message: msg, Err: err}
	}
	if appt == nil {
		appt = &bookingapi.Appointment{}
	}
	s.cfg.Metrics.ObserveSubmission(mode, "ok")
	s.logger.Info("appointment submitted",
		"mode", mode,
		"appointment_id", appt.ID,
		"service_id", d.ServiceID,
		"date", req.AppointmentDate,
		"time", req.AppointmentTime,
	)

	if mode == "create" && s.cfg.Customers != nil {
		s.cfg.Customers.RefreshQuietly(ctx)
	}
	s.awaitConfirmation(ctx, appt.ID)

	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(appt)
	}
	return appt, nil
}

func (s *Submitter) awaitConfirmation(ctx context.Context, id string) {
	if s.cfg.Waiter == nil || s.cfg.SettleTimeout <= 0 || id == "" {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.SettleTimeout)
	defer cancel()
	if err := s.cfg.Waiter.Await(waitCtx, "appointment", id); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Debug("no push confirmation before settle timeout", "appointment_id", id, "timeout", s.cfg.SettleTimeout)
			return
		}
		s.logger.Warn("waiting for push confirmation failed", "appointment_id", id, "error", err)
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
