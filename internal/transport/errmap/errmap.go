// Package errmap maps domain errors to transport status codes.
package errmap

import (
	"errors"
	"net/http"

	"github.com/wrapshot/agent/internal/domain"
)

// Error codes returned to clients.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeUnknownTool          = "unknown_tool"
	CodeInvalidArguments     = "invalid_tool_arguments"
	CodeToolBlocked          = "tool_blocked"
	CodeCallBudgetExceeded   = "call_budget_exceeded"
	CodeConfirmationNotFound = "confirmation_not_found"
	CodeConfirmationResolved = "confirmation_already_resolved"
	CodeConfirmationExpired  = "confirmation_expired"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeProviderUnavailable  = "provider_unavailable"
	CodeStoreUnavailable     = "store_unavailable"
	CodeInternal             = "internal_error"
)

var table = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
	{domain.ErrUnknownTool, http.StatusBadRequest, CodeUnknownTool},
	{domain.ErrInvalidArguments, http.StatusBadRequest, CodeInvalidArguments},
	{domain.ErrToolBlocked, http.StatusBadRequest, CodeToolBlocked},
	{domain.ErrCallBudgetExceeded, http.StatusUnprocessableEntity, CodeCallBudgetExceeded},
	{domain.ErrConfirmationNotFound, http.StatusNotFound, CodeConfirmationNotFound},
	{domain.ErrConfirmationResolved, http.StatusConflict, CodeConfirmationResolved},
	{domain.ErrConfirmationExpired, http.StatusGone, CodeConfirmationExpired},
	{domain.ErrConfirmationForbidden, http.StatusForbidden, CodeForbidden},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrProviderUnavailable, http.StatusBadGateway, CodeProviderUnavailable},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	for _, row := range table {
		if errors.Is(err, row.err) {
			return row.status, row.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// Response builds the error body for err.
func Response(err error) (int, domain.ErrorResponse) {
	status, code := Classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return status, domain.ErrorResponse{Code: code, Message: msg}
}
