package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

func catalogRouter(b *fakeBackend, s tenancy.Session) http.Handler {
	h := NewCatalogHandler(b.factory, logging.New("error"))
	r := chi.NewRouter()
	r.Use(withSession(s))
	r.Get("/services", h.ListServices)
	r.Get("/staff", h.ListStaff)
	return r
}

func TestCatalogHandler_ListServices(t *testing.T) {
	backend := newFakeBackend()

	var out struct {
		Services []bookingapi.Service `json:"services"`
	}
	rec := doJSON(t, catalogRouter(backend, ownerSession), http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Services, 2)

	rec = doJSON(t, catalogRouter(backend, staffSess), http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Services, 1)
	assert.Equal(t, "haircut", out.Services[0].ID)
}

func TestCatalogHandler_ListStaff(t *testing.T) {
	backend := newFakeBackend()
	router := catalogRouter(backend, ownerSession)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/staff", nil).Code)

	var out struct {
		Staff []bookingapi.User `json:"staff"`
	}
	rec := doJSON(t, router, http.MethodGet, "/staff?service_id=haircut", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"mehmet"}, staffNames(out.Staff))

	backend.settings.AdminPerformsServices = true
	rec = doJSON(t, router, http.MethodGet, "/staff?service_id=haircut", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"mehmet", "owner"}, staffNames(out.Staff))

	backend.usersErr = assert.AnError
	assert.Equal(t, http.StatusBadGateway, doJSON(t, router, http.MethodGet, "/staff?service_id=haircut", nil).Code)
}
