// Package aerodrome implements the constant-product venue. Quoting probes the
// volatile and stable pool variants of a pair; swaps go through the venue's
// native router entry point with the platform fee already deducted from
// amount-in.
package aerodrome

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/dex/core"
	"github.com/volodeveth/defio/internal/types"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"components":[{"internalType":"address","name":"from","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"bool","name":"stable","type":"bool"},{"internalType":"address","name":"factory","type":"address"}],"internalType":"struct IRouter.Route[]","name":"routes","type":"tuple[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"components":[{"internalType":"address","name":"from","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"bool","name":"stable","type":"bool"},{"internalType":"address","name":"factory","type":"address"}],"internalType":"struct IRouter.Route[]","name":"routes","type":"tuple[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// Route mirrors the router's route tuple.
type Route struct {
	From    common.Address
	To      common.Address
	Stable  bool
	Factory common.Address
}

type Exchange struct {
	log     *zap.Logger
	ec      core.Backend
	abi     abi.ABI
	router  common.Address
	factory common.Address
}

func New(log *zap.Logger, ec core.Backend, routerAddr, factoryAddr common.Address) (*Exchange, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse aerodrome router abi: %w", err)
	}
	if routerAddr == (common.Address{}) {
		return nil, fmt.Errorf("aerodrome router address is not configured")
	}
	return &Exchange{log: log, ec: ec, abi: parsed, router: routerAddr, factory: factoryAddr}, nil
}

func (e *Exchange) ID() types.ExchangeID { return types.ExchangeAerodrome }

// GetQuote fires the volatile and stable variants concurrently. Either may
// fail alone (pool absent); both failing means no route.
func (e *Exchange) GetQuote(ctx context.Context, p types.QuoteParams) (*types.Quote, error) {
	amountIn, err := amount.ParseUnits(p.AmountIn, p.DecimalsIn)
	if err != nil {
		return nil, fmt.Errorf("parse amount in: %w", err)
	}
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	type variant struct {
		stable bool
		out    *big.Int
	}
	results := make([]variant, 2)
	var wg sync.WaitGroup
	for i, stable := range []bool{false, true} {
		wg.Add(1)
		go func(i int, stable bool) {
			defer wg.Done()
			out, err := e.amountsOut(ctx, amountIn, p.TokenIn, p.TokenOut, stable)
			if err != nil {
				e.log.Debug("aerodrome variant failed",
					zap.Bool("stable", stable), zap.Error(err))
				return
			}
			results[i] = variant{stable: stable, out: out}
		}(i, stable)
	}
	wg.Wait()

	var best *variant
	for i := range results {
		if results[i].out == nil || results[i].out.Sign() <= 0 {
			continue
		}
		if best == nil || results[i].out.Cmp(best.out) > 0 {
			best = &results[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no aerodrome pool for pair", types.ErrNoRoute)
	}

	return &types.Quote{
		Exchange:        types.ExchangeAerodrome,
		AmountOut:       best.out,
		AmountOutRaw:    best.out.String(),
		AmountOutPretty: amount.FormatUnits(best.out, p.DecimalsOut),
		StablePool:      best.stable,
		PriceImpactPct:  -1,
		ExchangeRate:    amount.ExchangeRate(amountIn, best.out, p.DecimalsIn, p.DecimalsOut),
	}, nil
}

func (e *Exchange) amountsOut(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address, stable bool) (*big.Int, error) {
	routes := []Route{{From: tokenIn, To: tokenOut, Stable: stable, Factory: e.factory}}
	data, err := e.abi.Pack("getAmountsOut", amountIn, routes)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := e.ec.CallContract(ctx, ethereum.CallMsg{To: &e.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	outs, err := e.abi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("bad amounts length")
	}
	return amounts[len(amounts)-1], nil
}

// BuildSwapCall encodes the native swap. The platform fee has already been
// taken off NetAmountIn; the router only ever sees the post-fee amount.
func (e *Exchange) BuildSwapCall(intent core.SwapIntent) (*core.SwapCall, error) {
	if intent.TokenIn == intent.TokenOut {
		return nil, types.ErrSameTokens
	}
	routes := []Route{{From: intent.TokenIn, To: intent.TokenOut, Stable: intent.StablePool, Factory: e.factory}}
	data, err := e.abi.Pack("swapExactTokensForTokens",
		intent.NetAmountIn, intent.MinAmountOut, routes, intent.Recipient, intent.Deadline)
	if err != nil {
		return nil, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	return &core.SwapCall{To: e.router, Data: data, Value: big.NewInt(0)}, nil
}
