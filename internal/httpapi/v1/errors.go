package v1

import (
	"errors"
	"net/http"

	"github.com/tinoosan/marketbooks/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }

// writeServiceErr maps domain sentinel errors onto HTTP status codes.
func writeServiceErr(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "not_found")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, msg, "conflict")
	case errors.Is(err, errs.ErrImmutable):
		writeErr(w, http.StatusConflict, msg, "immutable")
	case errors.Is(err, errs.ErrPolicyActive):
		writeErr(w, http.StatusConflict, msg, "policy_active")
	case errors.Is(err, errs.ErrOversold):
		writeErr(w, http.StatusUnprocessableEntity, msg, "oversold")
	case errors.Is(err, errs.ErrExchangeRate):
		writeErr(w, http.StatusUnprocessableEntity, msg, "exchange_rate")
	case errors.Is(err, errs.ErrUnprocessable):
		writeErr(w, http.StatusUnprocessableEntity, msg, "validation_error")
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, msg, "invalid")
	case errors.Is(err, errs.ErrForbidden):
		writeErr(w, http.StatusForbidden, msg, "forbidden")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}
