package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	var pe *payroll.Error
	hasMessage := errors.As(err, &pe)

	// Request validation errors carry field details
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		message := ""
		if hasMessage {
			message = pe.Message
		}
		ValidationError(w, message, validationErrs.ToMap())
		return
	}

	message := err.Error()
	switch payroll.KindOf(err) {
	case payroll.KindValidation:
		ValidationError(w, message, nil)
	case payroll.KindNotFound:
		NotFound(w, message)
	case payroll.KindConflict:
		Conflict(w, message)
	case payroll.KindInvalidState:
		InvalidState(w, message)
	case payroll.KindConsistency:
		slog.Error("Payroll data inconsistency", "error", err)
		Error(w, http.StatusInternalServerError, "CONSISTENCY_ERROR", message, nil)

	// Default
	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
