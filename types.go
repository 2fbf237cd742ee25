package b777

// PaymentResult is the terminal, immutable outcome of one payment attempt.
// Exactly one of TxHash or Error is populated depending on Success; every
// failure path sets Error and a machine-readable Code.
type PaymentResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"tx_hash,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Payer     string `json:"payer"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	PaymentID string `json:"payment_id,omitempty"`
}

// PayParams are the inputs to one payment attempt.
type PayParams struct {
	// Amount to send as a decimal string, e.g. "0.01".
	Amount string

	// Token symbol: one of the tokens configured for the active network.
	Token string

	// Recipient address.
	Recipient string

	// TimeoutSeconds bounds the authorization's validity window.
	// Defaults to DefaultTimeoutSeconds.
	TimeoutSeconds int

	// AutoApprove permits the SDK to submit one bounded approval
	// transaction when the relayer's allowance does not cover the payment.
	// When false, an insufficient allowance fails the payment without
	// touching chain state.
	AutoApprove bool

	// PrivateKey is the payer's hex-encoded private key. Used for this
	// attempt only, never persisted.
	PrivateKey string
}
