// Package evm reads transactions from Ethereum-compatible chains and checks
// their call data against a txgate payment requirement.
package evm

import (
	"time"
)

const (
	// FunctionTransfer is the ERC-20 method a payment must invoke.
	FunctionTransfer = "transfer"

	// DefaultCallTimeout bounds every JSON-RPC call made by Reader.
	DefaultCallTimeout = 10 * time.Second

	// Verifier policies
	PolicySubstring = "substring"
	PolicyStrict    = "strict"
)

// Network chain IDs
const (
	ChainIDEthereum    uint64 = 1
	ChainIDSepolia     uint64 = 11155111
	ChainIDBase        uint64 = 8453
	ChainIDBaseSepolia uint64 = 84532
)

// AssetInfo describes a network's default payment token.
type AssetInfo struct {
	Address  string
	Symbol   string
	Decimals int
}

// NetworkConfig describes a supported network.
type NetworkConfig struct {
	Name         string
	DefaultAsset AssetInfo
}

var (
	// NetworkConfigs lists networks with a known default asset. Routes on
	// these networks may omit the token section of their configuration.
	NetworkConfigs = map[uint64]NetworkConfig{
		ChainIDSepolia: {
			Name: "sepolia",
			DefaultAsset: AssetInfo{
				Address:  "0x940A4894a2c72231c9AD70E6D32B7edadC8F76e3",
				Symbol:   "USD Coin",
				Decimals: 18,
			},
		},
		ChainIDBase: {
			Name: "base",
			DefaultAsset: AssetInfo{
				Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
				Symbol:   "USD Coin",
				Decimals: 6,
			},
		},
		ChainIDBaseSepolia: {
			Name: "base-sepolia",
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e", // USDC on Base Sepolia
				Symbol:   "USDC",
				Decimals: 6,
			},
		},
	}

	// ERC20TransferABI for encoding and decoding token transfers
	ERC20TransferABI = []byte(`[
		{
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "transfer",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
)

// DefaultAsset returns the default token for a chain id.
func DefaultAsset(chainID uint64) (AssetInfo, bool) {
	cfg, ok := NetworkConfigs[chainID]
	if !ok {
		return AssetInfo{}, false
	}
	return cfg.DefaultAsset, true
}
