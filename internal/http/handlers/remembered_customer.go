package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/randevu-desk/internal/remember"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

const deviceHeader = "X-Device-Id"

// RememberedCustomerStore is implemented by remember.Store.
type RememberedCustomerStore interface {
	Get(ctx context.Context, orgID, deviceID string) (*remember.Customer, error)
	Save(ctx context.Context, orgID, deviceID string, c remember.Customer) error
	Forget(ctx context.Context, orgID, deviceID string) error
}

// RememberedCustomerHandler lets the public booking page recall the details a
// device entered last time.
type RememberedCustomerHandler struct {
	store  RememberedCustomerStore
	logger *logging.Logger
}

func NewRememberedCustomerHandler(store RememberedCustomerStore, logger *logging.Logger) *RememberedCustomerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RememberedCustomerHandler{store: store, logger: logger}
}

func (h *RememberedCustomerHandler) keys(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	deviceID := strings.TrimSpace(r.Header.Get(deviceHeader))
	if orgID == "" || deviceID == "" {
		jsonError(w, "organization and X-Device-Id are required", http.StatusBadRequest)
		return "", "", false
	}
	return orgID, deviceID, true
}

// Get handles GET /public/{orgID}/remembered-customer.
func (h *RememberedCustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, deviceID, ok := h.keys(w, r)
	if !ok {
		return
	}
	c, err := h.store.Get(r.Context(), orgID, deviceID)
	if errors.Is(err, remember.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("remembered customer lookup failed", "error", err, "org_id", orgID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Put handles PUT /public/{orgID}/remembered-customer.
func (h *RememberedCustomerHandler) Put(w http.ResponseWriter, r *http.Request) {
	orgID, deviceID, ok := h.keys(w, r)
	if !ok {
		return
	}
	var body struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Phone) == "" {
		jsonError(w, "name and phone are required", http.StatusUnprocessableEntity)
		return
	}
	if err := h.store.Save(r.Context(), orgID, deviceID, remember.Customer{Name: body.Name, Phone: body.Phone}); err != nil {
		h.logger.Error("remembered customer save failed", "error", err, "org_id", orgID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /public/{orgID}/remembered-customer.
func (h *RememberedCustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, deviceID, ok := h.keys(w, r)
	if !ok {
		return
	}
	if err := h.store.Forget(r.Context(), orgID, deviceID); err != nil {
		h.logger.Error("remembered customer delete failed", "error", err, "org_id", orgID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
