package booking

import (
	"errors"
	"fmt"
)

// Validation codes surfaced to the UI.
const (
	CodeServiceRequired     = "service_required"
	CodeUnknownService      = "unknown_service"
	CodeStaffNotQualified   = "staff_not_qualified"
	CodeCustomerRequired    = "customer_required"
	CodeDateRequired        = "date_required"
	CodeTimeRequired        = "time_required"
	CodeSlotUnavailable     = "slot_unavailable"
	CodeServiceNotPermitted = "service_not_permitted"
)

// genericSubmitMessage is shown when a write fails without a server message.
const genericSubmitMessage = "The appointment could not be saved. Please try again."

var (
	ErrFirstStep = errors.New("booking: already on the first step")
	ErrFinalStep = errors.New("booking: already on the final step")
	// ErrNotFinalStep is returned by Submit before the date/time step is reached.
	ErrNotFinalStep = errors.New("booking: submit is only possible on the final step")
)

// ValidationError is a client-side refusal. No request was sent.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: %s: %s", e.Code, e.Message)
}

func invalid(code, msg string) *ValidationError {
	return &ValidationError{Code: code, Message: msg}
}

// SubmitError is a failed create/update. Message is safe to show as is.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return "booking: submit failed: " + e.Message
}

func (e *SubmitError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError, returning it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}
