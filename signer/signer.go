// Package signer produces B777 payment authorizations: EIP-712 signatures
// over EIP-3009 TransferWithAuthorization messages. It performs no network
// or chain I/O, only cryptography plus a clock read.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/b777-bsc/b777/types"
)

// EIP-712 domain constants for the B777 relayer contract.
const (
	DomainName    = "B777"
	DomainVersion = "1"
)

// networkChainIDs maps the protocol's network discriminators to the chain
// IDs used in the signing domain.
var networkChainIDs = map[string]*big.Int{
	"bsc":         big.NewInt(56),
	"bsc-testnet": big.NewInt(97),
}

// ChainID returns the chain ID for a network discriminator.
func ChainID(network string) (*big.Int, error) {
	if id, ok := networkChainIDs[network]; ok {
		return id, nil
	}
	return nil, fmt.Errorf("unsupported network: %s", network)
}

// Signer holds the payer's private key and signs transfer authorizations.
// The key is read-only input; it is never persisted or mutated.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
	entropy io.Reader
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the wall clock used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithEntropy overrides the randomness source used for nonces. Anything
// other than a cryptographically secure source makes authorizations
// guessable; only tests should use this.
func WithEntropy(r io.Reader) Option {
	return func(s *Signer) { s.entropy = r }
}

// New creates a signer from a hex-encoded private key, with or without the
// 0x prefix.
func New(privateKeyHex string, opts ...Option) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	s := &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address returns the checksummed address of the payer.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// PrivateKey exposes the underlying key for signing approval transactions.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

// SignTransfer builds and signs the authorization bound to the given
// requirements. Every call mints a fresh 32-byte random nonce; the validity
// window runs from 0 (immediately valid) to now plus the requirements'
// timeout.
func (s *Signer) SignTransfer(requirements types.PaymentRequirements) (*types.PaymentPayload, error) {
	chainID, err := ChainID(requirements.Network)
	if err != nil {
		return nil, err
	}

	value, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", requirements.MaxAmountRequired)
	}

	if requirements.MaxTimeoutSeconds < 1 {
		return nil, fmt.Errorf("timeout must be at least 1 second, got %d", requirements.MaxTimeoutSeconds)
	}

	if !common.IsHexAddress(requirements.PayTo) {
		return nil, fmt.Errorf("invalid recipient address: %q", requirements.PayTo)
	}

	nonce, err := s.createNonce()
	if err != nil {
		return nil, err
	}

	validBefore := s.now().Unix() + int64(requirements.MaxTimeoutSeconds)

	authorization := types.Authorization{
		From:        s.address.Hex(),
		To:          common.HexToAddress(requirements.PayTo).Hex(),
		Value:       value.String(),
		ValidAfter:  "0",
		ValidBefore: strconv.FormatInt(validBefore, 10),
		Nonce:       nonce,
	}

	signature, err := s.signAuthorization(authorization, chainID, requirements.RelayerContract)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return &types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      requirements.Scheme,
		Network:     requirements.Network,
		Token:       requirements.Asset,
		Payload: types.ExactPayload{
			Authorization: authorization,
			Signature:     hexutil.Encode(signature),
		},
	}, nil
}

// createNonce generates a fresh 32-byte nonce as a 0x-prefixed hex string.
func (s *Signer) createNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(s.entropy, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(nonce), nil
}

// signAuthorization signs the EIP-3009 authorization using EIP-712.
func (s *Signer) signAuthorization(
	authorization types.Authorization,
	chainID *big.Int,
	verifyingContract string,
) ([]byte, error) {
	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, err := hexutil.Decode(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: common.HexToAddress(verifyingContract).Hex(),
		},
		Message: map[string]interface{}{
			"from":        authorization.From,
			"to":          authorization.To,
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonceBytes,
		},
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// EIP-712 digest: 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	digest := crypto.Keccak256(rawData)

	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery ID 0/1 becomes Ethereum's 27/28.
	signature[64] += 27

	return signature, nil
}
