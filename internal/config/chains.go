package config

import "fmt"

// Supported chain IDs.
const (
	ChainBase        = 8453
	ChainBaseSepolia = 84532
)

// Permit2 and Multicall3 are deployed at the same address on every chain.
const (
	defaultPermit2   = "0x000000000022D473030F116dDEE9F6B43aC78BA3"
	defaultMulticall = "0xcA11bde05977b3631167028862bE2a173976CA11"
	defaultWETH      = "0x4200000000000000000000000000000000000006"
)

var baseContracts = ContractsCfg{
	UniversalRouter: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
	QuoterV2:        "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
	Permit2:         defaultPermit2,
	AeroRouter:      "0xcF77a3Ba9A5CA399B7c97c74d54e5b1Beb874E43",
	AeroFactory:     "0x25CbdDb98b35ab1FF77413456B31EC81A6B6B746",
	Multicall:       defaultMulticall,
	WETH:            defaultWETH,
}

// Aerodrome has no testnet deployment, so the Sepolia book leaves it out
// and quoting runs against Uniswap only.
var baseSepoliaContracts = ContractsCfg{
	UniversalRouter: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
	QuoterV2:        "0xC5290058841028F1614F3A6F0F5816cAd0df5E27",
	Permit2:         defaultPermit2,
	Multicall:       defaultMulticall,
	WETH:            defaultWETH,
}

// ContractsFor returns the contract address book for a supported chain.
func ContractsFor(chainID int64) (ContractsCfg, error) {
	switch chainID {
	case ChainBase:
		return baseContracts, nil
	case ChainBaseSepolia:
		return baseSepoliaContracts, nil
	default:
		return ContractsCfg{}, fmt.Errorf("unsupported chain id: %d", chainID)
	}
}

// DefaultTokensFor returns the built-in token list for a supported chain.
func DefaultTokensFor(chainID int64) []TokenCfg {
	switch chainID {
	case ChainBase:
		return []TokenCfg{
			{Address: defaultWETH, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
			{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
		}
	case ChainBaseSepolia:
		return []TokenCfg{
			{Address: defaultWETH, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
			{Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		}
	default:
		return nil
	}
}
