package constants

// Error codes returned in the "error" field of API responses
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeTransportError    = "TRANSPORT_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
)
