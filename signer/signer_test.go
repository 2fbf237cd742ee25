package signer

import (
	"math/big"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b777-bsc/b777/types"
)

// Well-known test key; never fund this account.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testRequirements() types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Asset:             "0x55d398326f99059fF775485246999027B3197955",
		PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		MaxAmountRequired: "10000000000000000",
		MaxTimeoutSeconds: 3600,
		Network:           "bsc",
		RelayerContract:   "0xE1C2830d5DDd6B49E9c46EbE03a98Cb44CD8eA5a",
	}
}

func TestNew(t *testing.T) {
	t.Run("derives address", func(t *testing.T) {
		s, err := New(testKey)
		require.NoError(t, err)
		assert.Equal(t, testAddress, s.Address())
	})

	t.Run("accepts 0x prefix", func(t *testing.T) {
		s, err := New("0x" + testKey)
		require.NoError(t, err)
		assert.Equal(t, testAddress, s.Address())
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := New("not-a-key")
		assert.Error(t, err)
	})
}

func TestChainID(t *testing.T) {
	tests := []struct {
		network string
		want    int64
		wantErr bool
	}{
		{"bsc", 56, false},
		{"bsc-testnet", 97, false},
		{"ethereum", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			id, err := ChainID(tt.network)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Int64())
		})
	}
}

func TestSignTransferEnvelope(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := New(testKey, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	req := testRequirements()
	payload, err := s.SignTransfer(req)
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolVersion, payload.X402Version)
	assert.Equal(t, types.SchemeExact, payload.Scheme)
	assert.Equal(t, "bsc", payload.Network)
	assert.Equal(t, req.Asset, payload.Token)

	auth := payload.Payload.Authorization
	assert.Equal(t, testAddress, auth.From)
	assert.Equal(t, req.PayTo, auth.To)
	assert.Equal(t, req.MaxAmountRequired, auth.Value)
	assert.Equal(t, "0", auth.ValidAfter)
	assert.Equal(t, strconv.FormatInt(now.Unix()+3600, 10), auth.ValidBefore)

	assert.Regexp(t, regexp.MustCompile(`^0x[0-9a-f]{64}$`), auth.Nonce)
	assert.Regexp(t, regexp.MustCompile(`^0x[0-9a-f]{130}$`), payload.Payload.Signature)

	sig, err := hexutil.Decode(payload.Payload.Signature)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

// The validity window length equals the requested timeout exactly.
func TestSignTransferValidityWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := New(testKey, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for _, timeout := range []int{1, 60, 3600, 86400} {
		req := testRequirements()
		req.MaxTimeoutSeconds = timeout

		payload, err := s.SignTransfer(req)
		require.NoError(t, err)

		auth := payload.Payload.Authorization
		validAfter, _ := strconv.ParseInt(auth.ValidAfter, 10, 64)
		validBefore, _ := strconv.ParseInt(auth.ValidBefore, 10, 64)

		assert.Equal(t, int64(timeout), validBefore-validAfter, "timeout %d", timeout)
		assert.Greater(t, validBefore, validAfter)
	}
}

// A recipient that HexToAddress would coerce to the zero address is rejected
// before anything is signed.
func TestSignTransferRejectsInvalidRecipient(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	for _, payTo := range []string{
		"",
		"not-an-address",
		"0x1234",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8ff",
	} {
		req := testRequirements()
		req.PayTo = payTo

		_, err := s.SignTransfer(req)
		assert.Error(t, err, "PayTo %q", payTo)
		assert.ErrorContains(t, err, "recipient", "PayTo %q", payTo)
	}
}

func TestSignTransferRejectsZeroTimeout(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	req := testRequirements()
	req.MaxTimeoutSeconds = 0

	_, err = s.SignTransfer(req)
	assert.Error(t, err)
}

// Authorizations minted within the same wall-clock second still get distinct
// nonces: freshness comes from the entropy source, not the clock.
func TestSignTransferNonceUniqueness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := New(testKey, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	req := testRequirements()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		payload, err := s.SignTransfer(req)
		require.NoError(t, err)

		nonce := payload.Payload.Authorization.Nonce
		require.False(t, seen[nonce], "duplicate nonce %s", nonce)
		seen[nonce] = true
	}
}

// The signature must recover to the payer's address under the exact EIP-712
// domain the relayer contract verifies against.
func TestSignTransferSignatureRecovers(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	req := testRequirements()
	payload, err := s.SignTransfer(req)
	require.NoError(t, err)

	auth := payload.Payload.Authorization
	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	nonceBytes, err := hexutil.Decode(auth.Nonce)
	require.NoError(t, err)

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
			ChainId:           math.NewHexOrDecimal256(56),
			VerifyingContract: req.RelayerContract,
		},
		Message: map[string]interface{}{
			"from":        auth.From,
			"to":          auth.To,
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonceBytes,
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)

	sig, err := hexutil.Decode(payload.Payload.Signature)
	require.NoError(t, err)
	sig[64] -= 27

	pubkey, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pubkey).Hex())
}
