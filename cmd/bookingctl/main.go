// Command bookingctl books or edits a single appointment from the command line
// by driving the same three-step wizard the desk API serves.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wolfman30/randevu-desk/internal/app/bootstrap"
	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	appconfig "github.com/wolfman30/randevu-desk/internal/config"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitNoSlots = 3
)

type options struct {
	token     string
	serviceID string
	staff     string
	name      string
	phone     string
	date      string
	time      string
	notes     string
	editID    string
	listSlots bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("bookingctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.token, "token", "", "bearer token (defaults to the configured token sources)")
	fs.StringVar(&o.serviceID, "service", "", "service id")
	fs.StringVar(&o.staff, "staff", "", "staff username; empty lets the server assign")
	fs.StringVar(&o.name, "name", "", "customer name; filled from known customers when empty")
	fs.StringVar(&o.phone, "phone", "", "customer phone")
	fs.StringVar(&o.date, "date", "", "appointment date (yyyy-mm-dd)")
	fs.StringVar(&o.time, "time", "", "appointment time (HH:mm), must be an available slot")
	fs.StringVar(&o.notes, "notes", "", "free-form notes")
	fs.StringVar(&o.editID, "edit-id", "", "replace the appointment with this id instead of creating one")
	fs.BoolVar(&o.listSlots, "list-slots", false, "print the slots for the date and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.serviceID == "" || o.date == "" {
		return options{}, errors.New("--service and --date are required")
	}
	if !o.listSlots && (o.phone == "" || o.time == "") {
		return options{}, errors.New("--phone and --time are required unless --list-slots is set")
	}
	return o, nil
}

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, appconfig.Load(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *appconfig.Config, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "bookingctl:", err)
		}
		return exitUsage
	}

	logger := logging.NewWithOptions(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: stderr,
	})

	session, err := resolveSession(ctx, cfg, opts.token)
	if err != nil {
		fmt.Fprintln(stderr, "bookingctl:", err)
		return exitFailed
	}
	client := bootstrap.BuildBookingClient(cfg, session, logger)

	w, err := newWizard(ctx, client, session, opts, logger)
	if err != nil {
		fmt.Fprintln(stderr, "bookingctl:", err)
		return exitFailed
	}

	appt, slots, err := drive(ctx, w, opts)
	switch {
	case opts.listSlots && err == nil:
		return printJSON(stdout, stderr, slots)
	case err != nil:
		fmt.Fprintln(stderr, "bookingctl:", describe(err))
		if verr, ok := booking.IsValidation(err); ok && verr.Code == booking.CodeSlotUnavailable {
			fmt.Fprintln(stderr, "available:", strings.Join(slots.Available, " "))
			return exitNoSlots
		}
		return exitFailed
	}
	return printJSON(stdout, stderr, appt)
}

func resolveSession(ctx context.Context, cfg *appconfig.Config, token string) (tenancy.Session, error) {
	var (
		session tenancy.Session
		err     error
	)
	if token != "" {
		session, err = tenancy.ParseSession(token)
	} else {
		session, err = bootstrap.ResolveSession(ctx, cfg)
	}
	if err != nil {
		return tenancy.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if session.OrgID == "" {
		return tenancy.Session{}, fmt.Errorf("no token found; pass --token or set %s", cfg.TokenEnvVar)
	}
	return session, nil
}

func newWizard(ctx context.Context, client *bookingapi.Client, session tenancy.Session, opts options, logger *logging.Logger) (*booking.Wizard, error) {
	services, err := client.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	users, err := client.ListUsers(ctx)
	if err != nil {
		logger.Warn("user list unavailable; staff selection disabled", "error", err)
	}
	var settings bookingapi.Settings
	if s, err := client.GetSettings(ctx); err != nil {
		logger.Warn("settings unavailable; using defaults", "error", err)
	} else if s != nil {
		settings = *s
	}

	logger = logger.With("org_id", session.OrgID, "username", session.Username)
	var permitted []string
	if me, ok := booking.FindUser(users, session.Username); ok {
		permitted = me.PermittedServiceIDs
	}
	customers := booking.NewCustomerCache(client, logger)
	customers.RefreshQuietly(ctx)

	var draft *booking.Draft
	if opts.editID != "" {
		draft = &booking.Draft{AppointmentID: opts.editID}
	}
	return booking.NewWizard(booking.WizardConfig{
		Session:      session,
		Services:     services,
		Users:        users,
		Settings:     settings,
		Availability: booking.NewAvailability(client, logger, nil),
		Submitter: booking.NewSubmitter(booking.SubmitterConfig{
			Writer:              client,
			Session:             session,
			PermittedServiceIDs: permitted,
			Customers:           customers,
			Logger:              logger,
		}),
		Customers: customers,
		Draft:     draft,
		Logger:    logger,
	})
}

// drive walks the wizard through its steps. The returned slots are the ones
// fetched for the requested date, even when a later step fails.
func drive(ctx context.Context, w *booking.Wizard, opts options) (*bookingapi.Appointment, bookingapi.SlotSet, error) {
	date, err := booking.ParseDate(opts.date)
	if err != nil {
		return nil, bookingapi.SlotSet{}, err
	}
	if err := w.SelectService(ctx, opts.serviceID); err != nil {
		return nil, bookingapi.SlotSet{}, err
	}
	if err := w.SelectStaff(ctx, opts.staff); err != nil {
		return nil, bookingapi.SlotSet{}, err
	}
	if err := w.Next(ctx); err != nil {
		return nil, bookingapi.SlotSet{}, err
	}

	w.SetCustomer(opts.name, opts.phone)
	w.SetNotes(opts.notes)
	if d := w.Draft(); opts.listSlots && (d.CustomerName == "" || d.Phone == "") {
		// step 2 needs a customer; slots only need the date
		w.SetCustomer("-", "-")
	}
	if err := w.Next(ctx); err != nil {
		return nil, bookingapi.SlotSet{}, err
	}
	if err := w.SetDate(ctx, date); err != nil {
		return nil, bookingapi.SlotSet{}, err
	}
	slots := w.Snapshot().Slots
	if opts.listSlots {
		return nil, slots, nil
	}

	if err := w.SelectTime(opts.time); err != nil {
		return nil, slots, err
	}
	appt, err := w.Submit(ctx)
	return appt, slots, err
}

// describe prefers the server's own message so the user sees it verbatim.
func describe(err error) string {
	var serr *booking.SubmitError
	if errors.As(err, &serr) {
		return serr.Message
	}
	if msg, ok := bookingapi.ServerMessage(err); ok {
		return msg
	}
	if verr, ok := booking.IsValidation(err); ok {
		return verr.Message
	}
	return err.Error()
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, "bookingctl:", err)
		return exitFailed
	}
	return exitOK
}
