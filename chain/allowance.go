package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// erc20JSON is the minimal ERC-20 ABI the gate needs: one read, one write.
const erc20JSON = `[
	{
		"type": "function",
		"name": "allowance",
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "approve",
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// receiptPollInterval is how often a pending approval is checked for
// inclusion. BSC produces a block roughly every 3 seconds.
const receiptPollInterval = 2 * time.Second

// AllowanceStatus is the result of a live allowance read, compared against a
// caller-supplied minimum. Never cached; recomputed on every payment attempt.
type AllowanceStatus struct {
	Approved  bool
	Allowance *big.Int
}

// ApprovalStatus is the result of EnsureApproval. TxHash is set only when an
// approval transaction was actually submitted.
type ApprovalStatus struct {
	Approved  bool
	Allowance *big.Int
	TxHash    string
}

// GateConfig configures an AllowanceGate for one (token, spender) pair.
type GateConfig struct {
	ChainID *big.Int
	Token   common.Address
	Spender common.Address

	// Key signs approval transactions. The owner address is derived from it.
	Key *ecdsa.PrivateKey

	// ApprovalCap bounds auto-approvals. EnsureApproval grants
	// max(minAmount, ApprovalCap), never an unlimited allowance.
	ApprovalCap *big.Int
}

// AllowanceGate checks and maintains the ERC-20 allowance the relayer needs
// to move a payer's tokens. At most one chain mutation happens per call.
type AllowanceGate struct {
	backend Backend
	cfg     GateConfig
	owner   common.Address
}

// NewAllowanceGate creates a gate for one token/spender pair.
func NewAllowanceGate(backend Backend, cfg GateConfig) *AllowanceGate {
	return &AllowanceGate{
		backend: backend,
		cfg:     cfg,
		owner:   crypto.PubkeyToAddress(cfg.Key.PublicKey),
	}
}

// Owner returns the checksummed address whose allowance the gate manages.
func (g *AllowanceGate) Owner() common.Address {
	return g.owner
}

// CheckAllowance reads the live on-chain allowance and compares it against
// minAmount. With a nil or zero minimum, any allowance above zero counts as
// approved.
func (g *AllowanceGate) CheckAllowance(ctx context.Context, minAmount *big.Int) (AllowanceStatus, error) {
	data, err := erc20ABI.Pack("allowance", g.owner, g.cfg.Spender)
	if err != nil {
		return AllowanceStatus{}, fmt.Errorf("pack allowance call: %w", err)
	}

	result, err := g.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &g.cfg.Token,
		Data: data,
	}, nil)
	if err != nil {
		return AllowanceStatus{}, fmt.Errorf("allowance call failed: %w", err)
	}

	outputs, err := erc20ABI.Unpack("allowance", result)
	if err != nil {
		return AllowanceStatus{}, fmt.Errorf("unpack allowance result: %w", err)
	}
	allowance, ok := outputs[0].(*big.Int)
	if !ok {
		return AllowanceStatus{}, fmt.Errorf("unexpected allowance type %T", outputs[0])
	}

	approved := allowance.Sign() > 0
	if minAmount != nil && minAmount.Sign() > 0 {
		approved = allowance.Cmp(minAmount) >= 0
	}
	return AllowanceStatus{Approved: approved, Allowance: allowance}, nil
}

// Approve submits an approve(spender, amount) transaction and blocks until
// it is mined. Returns the transaction hash on success; an error if the
// transaction cannot be built, is rejected, or reverts.
func (g *AllowanceGate) Approve(ctx context.Context, amount *big.Int) (string, error) {
	data, err := erc20ABI.Pack("approve", g.cfg.Spender, amount)
	if err != nil {
		return "", fmt.Errorf("pack approve call: %w", err)
	}

	txNonce, err := g.backend.PendingNonceAt(ctx, g.owner)
	if err != nil {
		return "", fmt.Errorf("get pending nonce: %w", err)
	}

	gasTipCap, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas tip cap: %w", err)
	}

	blockHeader, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("get block header: %w", err)
	}
	if blockHeader.BaseFee == nil {
		return "", fmt.Errorf("block header missing base fee: network may not support EIP-1559")
	}

	// 2x base fee plus tip absorbs base-fee movement between estimate and
	// inclusion.
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(blockHeader.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	gasLimit, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: g.owner,
		To:   &g.cfg.Token,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 120 / 100

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   g.cfg.ChainID,
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &g.cfg.Token,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewLondonSigner(g.cfg.ChainID), g.cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign approval transaction: %w", err)
	}

	if err := g.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send approval transaction: %w", err)
	}

	receipt, err := g.waitMined(ctx, signedTx.Hash())
	if err != nil {
		return "", err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("approval transaction %s reverted", signedTx.Hash().Hex())
	}

	return signedTx.Hash().Hex(), nil
}

// EnsureApproval composes CheckAllowance and Approve: if the allowance
// already covers minAmount nothing is submitted; otherwise, when autoApprove
// is set, the gate approves max(minAmount, ApprovalCap) and reports the
// resulting allowance together with the transaction hash.
func (g *AllowanceGate) EnsureApproval(ctx context.Context, minAmount *big.Int, autoApprove bool) (ApprovalStatus, error) {
	status, err := g.CheckAllowance(ctx, minAmount)
	if err != nil {
		return ApprovalStatus{}, err
	}
	if status.Approved {
		return ApprovalStatus{Approved: true, Allowance: status.Allowance}, nil
	}
	if !autoApprove {
		return ApprovalStatus{Approved: false, Allowance: status.Allowance}, nil
	}

	amount := g.cfg.ApprovalCap
	if amount == nil || (minAmount != nil && minAmount.Cmp(amount) > 0) {
		amount = minAmount
	}

	txHash, err := g.Approve(ctx, amount)
	if err != nil {
		return ApprovalStatus{}, fmt.Errorf("approval failed: %w", err)
	}

	// approve replaces the prior allowance, so the approved amount is the
	// new allowance.
	return ApprovalStatus{Approved: true, Allowance: amount, TxHash: txHash}, nil
}

func (g *AllowanceGate) waitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get transaction receipt: %w", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for approval confirmation: %w", ctx.Err())
		}
	}
}
