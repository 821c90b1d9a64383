package handlers

import (
	"net/http"
	"strings"

	"github.com/wolfman30/randevu-desk/internal/booking"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// CatalogHandler serves the service catalog and staff lists as the session
// is allowed to see them.
type CatalogHandler struct {
	backends BackendFactory
	logger   *logging.Logger
}

func NewCatalogHandler(backends BackendFactory, logger *logging.Logger) *CatalogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{backends: backends, logger: logger}
}

// ListServices handles GET /services.
func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	session, ok := tenancy.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "missing session", http.StatusUnauthorized)
		return
	}
	backend := h.backends(session)
	services, err := backend.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services failed", "error", err, "org_id", session.OrgID)
		jsonError(w, "failed to load services", http.StatusBadGateway)
		return
	}
	var users []bookingapi.User
	if session.IsStaff() {
		users, err = backend.ListUsers(r.Context())
		if err != nil {
			h.logger.Warn("list users failed", "error", err, "org_id", session.OrgID)
		}
	}
	visible := booking.VisibleServices(session, services, users)
	if visible == nil {
		visible = []bookingapi.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": visible})
}

// ListStaff handles GET /staff?service_id=.
func (h *CatalogHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	session, ok := tenancy.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "missing session", http.StatusUnauthorized)
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		jsonError(w, "service_id is required", http.StatusBadRequest)
		return
	}

	backend := h.backends(session)
	users, err := backend.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", "error", err, "org_id", session.OrgID)
		jsonError(w, "failed to load staff", http.StatusBadGateway)
		return
	}
	var settings bookingapi.Settings
	if s, err := backend.GetSettings(r.Context()); err != nil {
		h.logger.Warn("get settings failed", "error", err, "org_id", session.OrgID)
	} else if s != nil {
		settings = *s
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": booking.QualifiedStaff(users, serviceID, settings)})
}
