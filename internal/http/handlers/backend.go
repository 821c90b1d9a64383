package handlers

import (
	"context"

	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
)

// Backend is the booking API as seen by one session.
type Backend interface {
	booking.AvailabilitySource
	booking.AppointmentWriter
	booking.CustomerLister
	ListUsers(ctx context.Context) ([]bookingapi.User, error)
	GetSettings(ctx context.Context) (*bookingapi.Settings, error)
	ListServices(ctx context.Context) ([]bookingapi.Service, error)
}

// BackendFactory returns a Backend acting as s.
type BackendFactory func(s tenancy.Session) Backend

// ClientFactory adapts a bookingapi.Client into a BackendFactory.
func ClientFactory(c *bookingapi.Client) BackendFactory {
	return func(s tenancy.Session) Backend { return c.WithSession(s) }
}

// directory is the read side every wizard starts from.
type directory struct {
	users    []bookingapi.User
	settings bookingapi.Settings
	services []bookingapi.Service
}

// loadDirectory fetches users, settings and services. Failures degrade to
// empty values; the caller only logs them.
func loadDirectory(ctx context.Context, b Backend) (directory, []error) {
	var (
		d    directory
		errs []error
	)
	users, err := b.ListUsers(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	d.users = users

	settings, err := b.GetSettings(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if settings != nil {
		d.settings = *settings
	}

	services, err := b.ListServices(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	d.services = services
	return d, errs
}
