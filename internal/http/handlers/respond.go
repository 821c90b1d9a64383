package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/randevu-desk/internal/booking"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// writeBookingError maps wizard and submit errors onto HTTP statuses.
func writeBookingError(w http.ResponseWriter, err error) {
	if verr, ok := booking.IsValidation(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Message, "code": verr.Code})
		return
	}
	var serr *booking.SubmitError
	if errors.As(err, &serr) {
		jsonError(w, serr.Message, http.StatusBadGateway)
		return
	}
	if errors.Is(err, booking.ErrFirstStep) || errors.Is(err, booking.ErrFinalStep) ||
		errors.Is(err, booking.ErrNotFinalStep) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonError(w, "internal error", http.StatusInternalServerError)
}
