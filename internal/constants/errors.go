package constants

import "net/http"

// APIError represents a standardized API error with code, message, and HTTP status.
// Use these predefined errors for consistent API responses across the application.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface so APIError values can travel through
// ordinary error returns.
func (e APIError) Error() string {
	return e.Code + ": " + e.Message
}

// WithMessage returns a copy of the APIError with a custom message.
// Useful for validation errors or other dynamic messages.
func (e APIError) WithMessage(message string) APIError {
	return APIError{
		Code:    e.Code,
		Message: message,
		Status:  e.Status,
	}
}

// Common errors - shared across multiple modules
var (
	ErrInvalidRequestBody = APIError{
		Code:    CodeInvalidRequest,
		Message: MsgInvalidRequestBody,
		Status:  http.StatusBadRequest,
	}
	ErrInternalError = APIError{
		Code:    CodeInternalError,
		Message: MsgInternalError,
		Status:  http.StatusInternalServerError,
	}
)

// Permit and endpoint resolution errors
var (
	ErrPermitNotFound = APIError{
		Code:    CodeNotFound,
		Message: MsgPermitNotFound,
		Status:  http.StatusNotFound,
	}
	ErrPermitBlocked = APIError{
		Code:    CodeNotFound,
		Message: MsgPermitBlocked,
		Status:  http.StatusNotFound,
	}
	ErrPermitNotYetValid = APIError{
		Code:    CodeNotFound,
		Message: MsgPermitNotYetValid,
		Status:  http.StatusNotFound,
	}
	ErrPermitExpired = APIError{
		Code:    CodeNotFound,
		Message: MsgPermitExpired,
		Status:  http.StatusNotFound,
	}
	ErrPermitDisabled = APIError{
		Code:    CodeInvalidState,
		Message: MsgPermitDisabled,
		Status:  http.StatusConflict,
	}
	ErrVersionNotFound = APIError{
		Code:    CodeNotFound,
		Message: MsgVersionNotFound,
		Status:  http.StatusNotFound,
	}
	ErrEndpointDisabled = APIError{
		Code:    CodeInvalidState,
		Message: MsgEndpointDisabled,
		Status:  http.StatusConflict,
	}
)

// Ledger errors
var (
	ErrAccountNotFound = APIError{
		Code:    CodeNotFound,
		Message: MsgAccountNotFound,
		Status:  http.StatusNotFound,
	}
	ErrInsufficientFunds = APIError{
		Code:    CodeInsufficientFunds,
		Message: MsgInsufficientFunds,
		Status:  http.StatusPaymentRequired,
	}
	ErrAmountNotPositive = APIError{
		Code:    CodeInvalidRequest,
		Message: MsgAmountNotPositive,
		Status:  http.StatusBadRequest,
	}
)

// Admission and transport errors
var (
	ErrTooManyRequests = APIError{
		Code:    CodeTooManyRequests,
		Message: MsgTooManyRequests,
		Status:  http.StatusTooManyRequests,
	}
	ErrTransport = APIError{
		Code:    CodeTransportError,
		Message: MsgBackendUnreachable,
		Status:  http.StatusBadGateway,
	}
)

// Auth errors for the ledger-ops surface
var (
	ErrAuthHeaderRequired = APIError{
		Code:    CodeUnauthorized,
		Message: MsgAuthHeaderRequired,
		Status:  http.StatusUnauthorized,
	}
	ErrInvalidToken = APIError{
		Code:    CodeUnauthorized,
		Message: MsgInvalidToken,
		Status:  http.StatusUnauthorized,
	}
	ErrInvalidTokenClaims = APIError{
		Code:    CodeUnauthorized,
		Message: MsgInvalidTokenClaims,
		Status:  http.StatusUnauthorized,
	}
)
