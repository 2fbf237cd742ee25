// Package types defines the wire shapes exchanged between a B777 payer and
// a facilitator. Field names and encodings are fixed by the protocol: numeric
// values travel as decimal strings, the authorization nonce as a 0x-prefixed
// 64-hex-char string, and the signature as 0x-prefixed hex.
package types

import "encoding/json"

// ProtocolVersion is the x402 protocol version carried in every payload.
const ProtocolVersion = 1

// SchemeExact is the only payment scheme B777 supports.
const SchemeExact = "exact"

// PaymentRequirements describes a single payment a facilitator will relay.
// Constructed once per payment attempt and never mutated.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Network           string `json:"network"`
	RelayerContract   string `json:"relayerContract"`
}

// Authorization is the EIP-3009 TransferWithAuthorization message a payer
// signs. All numeric fields are decimal strings; Nonce is 32 random bytes
// hex-encoded with a 0x prefix.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload bundles a signed authorization with its signature.
type ExactPayload struct {
	Authorization Authorization `json:"authorization"`
	Signature     string        `json:"signature"`
}

// PaymentPayload is the envelope posted to the facilitator's verify and
// settle endpoints alongside the matching PaymentRequirements.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Token       string       `json:"token"`
	Payload     ExactPayload `json:"payload"`
}

// VerifyResponse is the facilitator's answer to POST /verify.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the facilitator's answer to POST /settle.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// ToPaymentPayload unmarshals bytes to a payment payload.
func ToPaymentPayload(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToPaymentRequirements unmarshals bytes to payment requirements.
func ToPaymentRequirements(data []byte) (*PaymentRequirements, error) {
	var requirements PaymentRequirements
	if err := json.Unmarshal(data, &requirements); err != nil {
		return nil, err
	}
	return &requirements, nil
}
