// Package b777 is the client SDK for B777 gasless stablecoin payments on
// BSC. A payer signs an off-chain EIP-712 transfer authorization; the B777
// facilitator verifies it and relays the transfer on-chain, paying the gas.
package b777

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/b777-bsc/b777/chain"
	"github.com/b777-bsc/b777/facilitator"
	"github.com/b777-bsc/b777/signer"
	"github.com/b777-bsc/b777/types"
)

// Client orchestrates a payment: allowance check, optional bounded
// auto-approval, authorization signing, then the facilitator's
// verify-then-settle exchange. The pipeline is straight-line with early exit;
// no step is ever revisited and settle is never retried.
type Client struct {
	config      NetworkConfig
	session     *facilitator.Client
	rpcURL      string
	backend     chain.Backend
	approvalCap *big.Int
	debug       bool
	signerOpts  []signer.Option

	facilitatorURL string
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithFacilitatorURL overrides the facilitator base URL.
func WithFacilitatorURL(url string) Option {
	return func(c *Client) { c.facilitatorURL = url }
}

// WithHTTPClient overrides the HTTP client used for facilitator requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithRPCURL overrides the BSC JSON-RPC endpoint.
func WithRPCURL(url string) Option {
	return func(c *Client) { c.rpcURL = url }
}

// WithBackend injects a chain backend directly, bypassing the RPC dial.
func WithBackend(backend chain.Backend) Option {
	return func(c *Client) { c.backend = backend }
}

// WithApprovalCap overrides the default bounded auto-approval cap.
func WithApprovalCap(cap *big.Int) Option {
	return func(c *Client) { c.approvalCap = cap }
}

// WithDebug enables diagnostic logging via the standard logger.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

// WithSignerOptions forwards options to the authorization signer.
func WithSignerOptions(opts ...signer.Option) Option {
	return func(c *Client) { c.signerOpts = append(c.signerOpts, opts...) }
}

// New creates a client for the named network ("mainnet" or "testnet").
func New(network string, opts ...Option) (*Client, error) {
	config, ok := NamedNetworks[network]
	if !ok {
		return nil, fmt.Errorf("unknown network: %s", network)
	}

	c := &Client{
		config:      config,
		rpcURL:      DefaultRPCURL(config),
		approvalCap: DefaultApprovalCap(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.session = facilitator.NewClient(&facilitator.Config{
		URL:        c.facilitatorURL,
		HTTPClient: c.httpClient,
	})

	return c, nil
}

// Network returns the active network name.
func (c *Client) Network() string {
	return c.config.Name
}

// SupportedTokens lists the token symbols configured for the active network.
func (c *Client) SupportedTokens() []string {
	tokens := make([]string, 0, len(c.config.Tokens))
	for symbol := range c.config.Tokens {
		tokens = append(tokens, symbol)
	}
	sort.Strings(tokens)
	return tokens
}

// TokenAddress returns the contract address for a token symbol on the
// active network.
func (c *Client) TokenAddress(token string) (string, bool) {
	address, ok := c.config.Tokens[token]
	return address, ok
}

// Pay performs one payment attempt end to end and always returns a terminal
// PaymentResult; no error escapes this method. Exactly one authorization is
// minted per call and consumed at most once by verify and at most once by
// settle.
func (c *Client) Pay(ctx context.Context, params PayParams) PaymentResult {
	result := PaymentResult{
		Recipient: params.Recipient,
		Amount:    params.Amount,
		Token:     params.Token,
	}
	fail := func(code, message string) PaymentResult {
		result.Success = false
		result.Code = code
		result.Error = message
		return result
	}

	if params.PrivateKey == "" {
		return fail(ErrCodeMissingPrivateKey, "private key not set: provide PayParams.PrivateKey")
	}

	sgn, err := signer.New(params.PrivateKey, c.signerOpts...)
	if err != nil {
		return fail(ErrCodeSigningFailed, err.Error())
	}
	result.Payer = sgn.Address()

	tokenAddress, ok := c.config.Tokens[params.Token]
	if !ok {
		return fail(ErrCodeUnsupportedToken,
			fmt.Sprintf("token %s not supported on %s (supported: %v)", params.Token, c.config.Name, c.SupportedTokens()))
	}

	// HexToAddress maps anything malformed to the zero address, which would
	// sign the payment away to 0x0. Reject before any chain or HTTP call.
	if !common.IsHexAddress(params.Recipient) {
		return fail(ErrCodeInvalidRecipient,
			fmt.Sprintf("invalid recipient address: %q", params.Recipient))
	}

	amountBase, err := ParseAmount(params.Amount)
	if err != nil {
		return fail(ErrCodeInvalidAmount, err.Error())
	}

	timeout := params.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	backend, err := c.chainBackend()
	if err != nil {
		return fail(ErrCodeTransportError, fmt.Sprintf("chain client: %v", err))
	}

	gate := chain.NewAllowanceGate(backend, chain.GateConfig{
		ChainID:     c.config.ChainID,
		Token:       common.HexToAddress(tokenAddress),
		Spender:     common.HexToAddress(c.config.Relayer),
		Key:         sgn.PrivateKey(),
		ApprovalCap: c.approvalCap,
	})

	// Check against the specific payment amount, never a cached status.
	status, err := gate.CheckAllowance(ctx, amountBase)
	if err != nil {
		return fail(ErrCodeTransportError, fmt.Sprintf("allowance check: %v", err))
	}

	if !status.Approved {
		if !params.AutoApprove {
			return fail(ErrCodeInsufficientAllowance, fmt.Sprintf(
				"insufficient allowance for %s: have %s %s, need %s %s; run Setup(%q) or set AutoApprove",
				gate.Owner().Hex(),
				FormatAmount(status.Allowance), params.Token,
				FormatAmount(amountBase), params.Token,
				params.Token))
		}

		approvalAmount := new(big.Int).Set(c.approvalCap)
		if amountBase.Cmp(approvalAmount) > 0 {
			approvalAmount.Set(amountBase)
		}
		c.logf("insufficient allowance (%s %s), auto-approving %s %s",
			FormatAmount(status.Allowance), params.Token,
			FormatAmount(approvalAmount), params.Token)

		txHash, err := gate.Approve(ctx, approvalAmount)
		if err != nil {
			return fail(ErrCodeApprovalFailed,
				fmt.Sprintf("auto-approval failed: %v; run Setup(%q)", err, params.Token))
		}
		c.logf("approved %s %s, tx %s", FormatAmount(approvalAmount), params.Token, txHash)
	}

	requirements := types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Asset:             tokenAddress,
		PayTo:             params.Recipient,
		MaxAmountRequired: amountBase.String(),
		MaxTimeoutSeconds: timeout,
		Network:           c.config.Network,
		RelayerContract:   c.config.Relayer,
	}

	payload, err := sgn.SignTransfer(requirements)
	if err != nil {
		return fail(ErrCodeSigningFailed, err.Error())
	}

	paymentID := facilitator.NewPaymentID()
	result.PaymentID = paymentID

	verify, err := c.session.Verify(ctx, paymentID, payload, requirements)
	if err != nil {
		return fail(ErrCodeTransportError, err.Error())
	}
	c.logf("verify response: %s", verify.Raw)

	if !verify.Valid {
		reason := verify.InvalidReason
		if reason == "" {
			reason = "invalid signature"
		}
		return fail(ErrCodeVerificationRejected,
			fmt.Sprintf("%s | response: %s", reason, verify.Raw))
	}

	settle, err := c.session.Settle(ctx, paymentID, payload, requirements)
	if err != nil {
		if te, ok := err.(*facilitator.TransportError); ok && te.Ambiguous {
			return fail(ErrCodeSettlementUnknown, fmt.Sprintf(
				"settlement outcome unknown: %v; the transfer may still have been relayed on-chain, check the payer account before retrying", err))
		}
		return fail(ErrCodeTransportError, err.Error())
	}
	c.logf("settle response: %s", settle.Raw)

	if !settle.Success {
		reason := settle.ErrorReason
		if reason == "" {
			reason = "unknown error"
		}
		return fail(ErrCodeSettlementRejected,
			fmt.Sprintf("%s | response: %s", reason, settle.Raw))
	}

	result.Success = true
	result.TxHash = settle.Transaction
	return result
}

// CheckApproval reads the relayer's current allowance for a token without
// touching chain state. With no minimum, any allowance above zero counts as
// approved.
func (c *Client) CheckApproval(ctx context.Context, token, privateKey string) (chain.AllowanceStatus, error) {
	gate, err := c.allowanceGate(token, privateKey)
	if err != nil {
		return chain.AllowanceStatus{}, err
	}
	return gate.CheckAllowance(ctx, nil)
}

// Setup is the explicit one-time approval operation: it checks the relayer's
// allowance for a token and, when autoApprove is set and the allowance is
// zero, submits one approval for the configured cap and waits for
// confirmation.
func (c *Client) Setup(ctx context.Context, token, privateKey string, autoApprove bool) (chain.ApprovalStatus, error) {
	gate, err := c.allowanceGate(token, privateKey)
	if err != nil {
		return chain.ApprovalStatus{}, err
	}
	return gate.EnsureApproval(ctx, nil, autoApprove)
}

func (c *Client) allowanceGate(token, privateKey string) (*chain.AllowanceGate, error) {
	if privateKey == "" {
		return nil, NewPaymentError(ErrCodeMissingPrivateKey, "private key not set", nil)
	}

	tokenAddress, ok := c.config.Tokens[token]
	if !ok {
		return nil, NewPaymentError(ErrCodeUnsupportedToken,
			fmt.Sprintf("token %s not supported on %s", token, c.config.Name), nil)
	}

	sgn, err := signer.New(privateKey)
	if err != nil {
		return nil, NewPaymentError(ErrCodeSigningFailed, err.Error(), nil)
	}

	backend, err := c.chainBackend()
	if err != nil {
		return nil, fmt.Errorf("chain client: %w", err)
	}

	return chain.NewAllowanceGate(backend, chain.GateConfig{
		ChainID:     c.config.ChainID,
		Token:       common.HexToAddress(tokenAddress),
		Spender:     common.HexToAddress(c.config.Relayer),
		Key:         sgn.PrivateKey(),
		ApprovalCap: c.approvalCap,
	}), nil
}

func (c *Client) chainBackend() (chain.Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	return chain.NewBackend(c.rpcURL)
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.debug {
		log.Printf("[b777] "+format, args...)
	}
}

// Pay is the one-line payment convenience: it creates a client for the named
// network and performs a single payment attempt.
func Pay(ctx context.Context, network string, params PayParams, opts ...Option) PaymentResult {
	client, err := New(network, opts...)
	if err != nil {
		return PaymentResult{
			Success:   false,
			Code:      ErrCodeUnsupportedNetwork,
			Error:     err.Error(),
			Recipient: params.Recipient,
			Amount:    params.Amount,
			Token:     params.Token,
		}
	}
	return client.Pay(ctx, params)
}
