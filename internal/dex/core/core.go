// Package core defines the venue contract both exchanges implement. Callers
// select an implementation by its ExchangeID tag, never by type assertion.
package core

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/volodeveth/defio/internal/types"
)

// Backend is the read-only slice of the RPC client the quoters need.
// *ethclient.Client satisfies it; tests supply fakes.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SwapIntent is the finalized input to a venue's transaction builder.
// Amounts are raw integers; the fee skim happens inside the built call.
type SwapIntent struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int // full amount pulled from the user
	NetAmountIn  *big.Int // post-fee amount actually swapped
	MinAmountOut *big.Int
	Recipient    common.Address
	Deadline     *big.Int
	FeeBps       int
	FeeRecipient common.Address

	// Venue routing data from the winning quote.
	FeeTier    uint32 // uniswap_v3
	StablePool bool   // aerodrome
}

// SwapCall is encoded calldata ready for gas estimation, simulation, or
// submission. Builders never submit.
type SwapCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

type Exchange interface {
	ID() types.ExchangeID
	// GetQuote issues the venue's read-only quoting calls and returns the best
	// pool variant, or a NoRouteFound error when no pool can serve the pair.
	GetQuote(ctx context.Context, p types.QuoteParams) (*types.Quote, error)
	// BuildSwapCall assembles the venue's swap transaction calldata.
	BuildSwapCall(intent SwapIntent) (*SwapCall, error)
}

// Registry holds the enabled venues in fixed order; the selector's tie-break
// prefers the earlier entry.
type Registry struct {
	exchanges []Exchange
}

func NewRegistry(exchanges ...Exchange) *Registry {
	return &Registry{exchanges: exchanges}
}

func (r *Registry) All() []Exchange { return r.exchanges }

func (r *Registry) ByID(id types.ExchangeID) (Exchange, bool) {
	for _, ex := range r.exchanges {
		if ex.ID() == id {
			return ex, true
		}
	}
	return nil, false
}
