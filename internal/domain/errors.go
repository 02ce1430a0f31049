package domain

import "errors"

var (
	// ErrNotFound is returned by production collaborators when an entity does not exist.
	ErrNotFound = errors.New("not found")

	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolBlocked      = errors.New("tool call blocked by policy")

	// ErrCallBudgetExceeded is returned when the agent loop hits its iteration ceiling.
	ErrCallBudgetExceeded = errors.New("could not complete within call budget")

	// Confirmation protocol errors. Each one means nothing was executed by the request.
	ErrConfirmationNotFound  = errors.New("confirmation not found")
	ErrConfirmationResolved  = errors.New("confirmation already resolved")
	ErrConfirmationExpired   = errors.New("confirmation expired")
	ErrConfirmationForbidden = errors.New("confirmation belongs to another project")

	// Fatal, retryable conditions.
	ErrProviderUnavailable = errors.New("language model provider unavailable")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// IsConfirmationProtocolError reports whether err is one of the confirmation protocol errors.
func IsConfirmationProtocolError(err error) bool {
	return errors.Is(err, ErrConfirmationNotFound) ||
		errors.Is(err, ErrConfirmationResolved) ||
		errors.Is(err, ErrConfirmationExpired) ||
		errors.Is(err, ErrConfirmationForbidden)
}
