package constants

// Error messages
const (
	MsgInvalidRequestBody  = "Invalid request body"
	MsgPermitNotFound      = "Permit not found"
	MsgPermitBlocked       = "Permit is blocked"
	MsgPermitNotYetValid   = "Permit is not yet valid"
	MsgPermitExpired       = "Permit has expired"
	MsgPermitDisabled      = "Permit is disabled"
	MsgVersionNotFound     = "API version not found"
	MsgEndpointDisabled    = "API endpoint is disabled"
	MsgAccountNotFound     = "Account not found"
	MsgInsufficientFunds   = "Insufficient account balance"
	MsgTooManyRequests     = "Rate limit exceeded. Please try again later."
	MsgBackendUnreachable  = "Backend call failed"
	MsgInternalError       = "Internal server error"
	MsgAuthHeaderRequired  = "Authorization header is required"
	MsgInvalidToken        = "Invalid or expired token"
	MsgInvalidTokenClaims  = "Invalid token claims"
	MsgAccountIDRequired   = "Account id is required"
	MsgAmountNotPositive   = "Amount must be greater than zero"
)
