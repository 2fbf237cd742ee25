package b777

import "fmt"

// PaymentError is a payment-specific error with a machine-readable code.
// Every failure the SDK produces carries one of the codes below so callers
// can branch on the cause without parsing messages.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes by failure class.
const (
	// Configuration: missing credential or unsupported token. Fatal,
	// reported before any network call is made.
	ErrCodeMissingPrivateKey  = "missing_private_key"
	ErrCodeUnsupportedToken   = "unsupported_token"
	ErrCodeUnsupportedNetwork = "unsupported_network"
	ErrCodeInvalidAmount      = "invalid_amount"
	ErrCodeInvalidRecipient   = "invalid_recipient"

	// Allowance: recoverable only by approving (or enabling auto-approve).
	ErrCodeInsufficientAllowance = "insufficient_allowance"
	ErrCodeApprovalFailed        = "approval_failed"

	// Signing: malformed key or typed-data failure. Fatal.
	ErrCodeSigningFailed = "signing_failed"

	// Facilitator rejections: the facilitator answered and said no. The
	// same authorization is single-use, so these are never retried.
	ErrCodeVerificationRejected = "verification_rejected"
	ErrCodeSettlementRejected   = "settlement_rejected"

	// Transport: the HTTP exchange itself failed. For settle specifically
	// the on-chain relay may already have been committed, so that case
	// gets its own code and is reported as an unknown outcome, never as a
	// plain failure.
	ErrCodeTransportError    = "transport_error"
	ErrCodeSettlementUnknown = "settlement_unknown"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
