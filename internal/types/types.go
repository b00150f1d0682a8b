package types

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExchangeID tags the venue a quote or route came from.
type ExchangeID string

const (
	ExchangeUniswapV3 ExchangeID = "uniswap_v3"
	ExchangeAerodrome ExchangeID = "aerodrome"
)

// NativeETH is the pseudo-address the UI uses for the chain's native coin.
var NativeETH = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token identity is the address, compared case-insensitively.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals int            `json:"decimals"`
	Balance  *big.Int       `json:"balance,omitempty"` // cached, may be nil
}

func (t Token) Is(addr common.Address) bool {
	return strings.EqualFold(t.Address.Hex(), addr.Hex())
}

// QuoteParams describes one quote request. Built fresh per request, never mutated.
type QuoteParams struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    string // human-readable decimal string
	DecimalsIn  int
	DecimalsOut int
}

// Quote is one venue's answer for a QuoteParams.
type Quote struct {
	Exchange         ExchangeID `json:"exchange"`
	AmountOut        *big.Int   `json:"-"`
	AmountOutRaw     string     `json:"amountOut"`
	AmountOutPretty  string     `json:"amountOutFormatted"`
	FeeTier          uint32     `json:"feeTier,omitempty"`   // univ3 only
	StablePool       bool       `json:"stable,omitempty"`    // aerodrome only
	GasEstimate      *big.Int   `json:"-"`
	PriceImpactPct   float64    `json:"priceImpact"` // -1 when unknown
	ExchangeRate     float64    `json:"exchangeRate"`
}

// SwapRoute is a candidate execution path through one venue.
type SwapRoute struct {
	Exchange     ExchangeID
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	AmountOut    *big.Int
	MinAmountOut *big.Int
	PriceImpact  float64
	FeeTier      uint32 // univ3
	StablePool   bool   // aerodrome
}

// SwapExecutionParams is built once per swap attempt.
type SwapExecutionParams struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    string
	DecimalsIn  int
	DecimalsOut int
	Quote       *Quote
	SlippageBps int // used as given; callers resolve their own default
	UsePermit   bool
	Deadline    *big.Int // optional explicit unix deadline

	// TokenInPriceUSD feeds fee accounting; zero means no price available.
	TokenInPriceUSD float64
}

// ActivityKind distinguishes entries in the activity log.
type ActivityKind string

const (
	ActivitySwap    ActivityKind = "swap"
	ActivityApprove ActivityKind = "approve"
)

type ActivityEntry struct {
	Kind      ActivityKind `json:"kind"`
	TokenIn   string       `json:"tokenIn"`
	TokenOut  string       `json:"tokenOut"`
	AmountIn  string       `json:"amountIn"`
	AmountOut string       `json:"amountOut"`
	Exchange  ExchangeID   `json:"exchange,omitempty"`
	TxHash    string       `json:"txHash,omitempty"`
	Status    string       `json:"status"`
	Ts        time.Time    `json:"ts"`
}
