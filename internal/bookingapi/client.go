// Package bookingapi is the REST client for the booking backend consumed by
// the desk: users, settings, customers, availability and appointments.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("randevu.internal.bookingapi")

// APIError is a non-2xx response. Message is the server-provided text when
// the body carried one, verbatim.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bookingapi: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bookingapi: status %d", e.StatusCode)
}

// ServerMessage returns the server-provided message carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// Client calls the booking REST API on behalf of one session.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    tenancy.Session
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

// NewClient constructs a client for baseURL acting as session.
func NewClient(baseURL string, session tenancy.Session, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSession returns a copy of c acting as s. The HTTP client is shared.
func (c *Client) WithSession(s tenancy.Session) *Client {
	cp := *c
	cp.session = s
	return &cp
}

// Session returns the session the client acts as.
func (c *Client) Session() tenancy.Session { return c.session }

// ListUsers returns all users of the organization.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetSettings returns the tenant settings.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings", nil, &s); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// ListServices returns the service catalog.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := c.doJSON(ctx, http.MethodGet, "/api/services", nil, &services); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// ListCustomers returns the customer list.
func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	if err := c.doJSON(ctx, http.MethodGet, "/api/customers", nil, &customers); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// GetAvailability returns the slot lists for q.
func (c *Client) GetAvailability(ctx context.Context, q AvailabilityQuery) (SlotSet, error) {
	if strings.TrimSpace(q.OrgID) == "" {
		return SlotSet{}, errors.New("get availability: organization id required")
	}
	v := url.Values{}
	v.Set("service_id", q.ServiceID)
	v.Set("date", q.Date)
	if q.StaffID != "" {
		v.Set("staff_id", q.StaffID)
	}
	path := fmt.Sprintf("/api/public/availability/%s?%s", url.PathEscape(q.OrgID), v.Encode())

	var slots SlotSet
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &slots); err != nil {
		return SlotSet{}, fmt.Errorf("get availability: %w", err)
	}
	return slots, nil
}

// CreateAppointment posts a new appointment.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	var appt Appointment
	if err := c.doJSON(ctx, http.MethodPost, "/api/appointments", req, &appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &appt, nil
}

// UpdateAppointment replaces the appointment with the given id.
func (c *Client) UpdateAppointment(ctx context.Context, id string, req AppointmentRequest) (*Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("update appointment: id required")
	}
	var appt Appointment
	path := "/api/appointments/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodPut, path, req, &appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return &appt, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	ctx, span := tracer.Start(ctx, "bookingapi."+strings.ToLower(method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("randevu.org_id", c.session.OrgID),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)

	err := c.roundTrip(ctx, method, path, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.session.AuthorizationHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncateUTF8(string(respBody), maxErrorBody)
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		c.logger.Warn("booking API non-2xx response", "status", resp.StatusCode, "method", method, "path", path, "body", msg)
		return &APIError{StatusCode: resp.StatusCode, Message: eb.text(), Body: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

const maxErrorBody = 300

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
