package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"collecta/internal/entry/models"
	"collecta/internal/validation"
	dErrors "collecta/pkg/domain-errors"
	"collecta/pkg/platform/sentinel"
)

type errorResponse struct {
	Error       string             `json:"error"`
	Description string             `json:"error_description,omitempty"`
	Issues      []validation.Issue `json:"issues,omitempty"`
}

// statusOf maps an error to its HTTP status and public error code.
func statusOf(err error) (int, string) {
	var (
		invalid   *validation.Error
		immutable *models.ImmutableRecordError
		illegal   *models.IllegalTransitionError
		authority *models.AuthorityError
		persist   *models.PersistenceError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.As(err, &immutable):
		return http.StatusConflict, "immutable_record"
	case errors.As(err, &illegal):
		return http.StatusConflict, "illegal_transition"
	case errors.As(err, &authority):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &persist):
		return http.StatusServiceUnavailable, "unavailable"
	}

	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest, "bad_request"
	case dErrors.CodeValidation:
		return http.StatusUnprocessableEntity, "validation_failed"
	case dErrors.CodeNotFound:
		return http.StatusNotFound, "not_found"
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return http.StatusConflict, "conflict"
	case dErrors.CodeForbidden:
		return http.StatusForbidden, "forbidden"
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case dErrors.CodeTimeout:
		return http.StatusServiceUnavailable, "unavailable"
	}

	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates err into the JSON error envelope. Internal errors
// carry no description so storage details never leak.
func writeError(w http.ResponseWriter, err error) int {
	status, code := statusOf(err)
	resp := errorResponse{Error: code}
	if status < http.StatusInternalServerError {
		resp.Description = err.Error()
	}
	var invalid *validation.Error
	if errors.As(err, &invalid) {
		resp.Description = "submission blocked by field errors"
		resp.Issues = invalid.Issues
	}
	writeJSON(w, status, resp)
	return status
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
