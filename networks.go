package b777

import "math/big"

// NetworkConfig is the immutable per-network configuration: the chain ID used
// in the EIP-712 domain, the network discriminator sent to the facilitator,
// the supported token contracts, and the relayer contract granted allowance.
type NetworkConfig struct {
	Name    string
	Network string
	ChainID *big.Int
	Tokens  map[string]string
	Relayer string
}

// MainnetConfig is the BSC mainnet configuration.
var MainnetConfig = NetworkConfig{
	Name:    "mainnet",
	Network: "bsc",
	ChainID: big.NewInt(56),
	Tokens: map[string]string{
		"USD1": "0x8d0d000ee44948fc98c9b98a4fa4921476f08b0d",
		"USDT": "0x55d398326f99059fF775485246999027B3197955",
		"USDC": "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
	},
	Relayer: "0xE1C2830d5DDd6B49E9c46EbE03a98Cb44CD8eA5a",
}

// TestnetConfig is the BSC testnet configuration. There is no USD1 or USDC
// deployment on testnet.
var TestnetConfig = NetworkConfig{
	Name:    "testnet",
	Network: "bsc-testnet",
	ChainID: big.NewInt(97),
	Tokens: map[string]string{
		"USDT": "0x337610d27c682E347C9cD60BD4b3b107C9d34dDd",
	},
	Relayer: "0x62150F2c3A29fDA8bCf22c0F22Eb17270FCBb78A",
}

// NamedNetworks maps network names to their configuration.
var NamedNetworks map[string]NetworkConfig

func init() {
	NamedNetworks = make(map[string]NetworkConfig, 2)
	for _, nc := range []NetworkConfig{MainnetConfig, TestnetConfig} {
		NamedNetworks[nc.Name] = nc
	}
}

const (
	// DefaultRPCURLMainnet and DefaultRPCURLTestnet are the public BSC
	// JSON-RPC endpoints used when no custom endpoint is configured.
	DefaultRPCURLMainnet = "https://bsc-dataseed1.binance.org"
	DefaultRPCURLTestnet = "https://data-seed-prebsc-1-s1.binance.org:8545"

	// DefaultTimeoutSeconds is the authorization validity window applied
	// when a payment does not specify one.
	DefaultTimeoutSeconds = 3600
)

// DefaultApprovalCap bounds auto-approvals: 10,000 tokens in base units at
// 18 decimals. Bounded rather than unlimited so a compromised relayer can
// only drain up to the cap.
func DefaultApprovalCap() *big.Int {
	return new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))
}

// DefaultRPCURL returns the public RPC endpoint for a network config.
func DefaultRPCURL(nc NetworkConfig) string {
	if nc.Name == "testnet" {
		return DefaultRPCURLTestnet
	}
	return DefaultRPCURLMainnet
}
