// Package univ3 implements the concentrated-liquidity venue: quoting via the
// QuoterV2 contract across fee tiers, swapping via the Universal Router.
package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/dex/core"
	"github.com/volodeveth/defio/internal/multicall"
	"github.com/volodeveth/defio/internal/router"
	"github.com/volodeveth/defio/internal/types"
)

const quoterV2ABI = `[
 {"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// DefaultFeeTiers are the pool tiers probed per quote, in bps-of-a-percent
// units (100 = 0.01%).
var DefaultFeeTiers = []uint32{100, 500, 3000, 10000}

type Exchange struct {
	log      *zap.Logger
	mc       multicall.IClient
	builder  *router.Builder
	q2abi    abi.ABI
	quoter   common.Address
	feeTiers []uint32
}

func New(log *zap.Logger, mc multicall.IClient, builder *router.Builder, quoterAddr common.Address, feeTiers []uint32) (*Exchange, error) {
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	if quoterAddr == (common.Address{}) {
		return nil, fmt.Errorf("quoter v2 address is not configured")
	}
	if len(feeTiers) == 0 {
		feeTiers = DefaultFeeTiers
	}
	return &Exchange{
		log:      log,
		mc:       mc,
		builder:  builder,
		q2abi:    q2abi,
		quoter:   quoterAddr,
		feeTiers: feeTiers,
	}, nil
}

func (e *Exchange) ID() types.ExchangeID { return types.ExchangeUniswapV3 }

// GetQuote probes every fee tier in one multicall batch. A tier whose pool
// does not exist simply fails its sub-call; the highest output among the
// survivors wins. All tiers failing means no route.
func (e *Exchange) GetQuote(ctx context.Context, p types.QuoteParams) (*types.Quote, error) {
	amountIn, err := amount.ParseUnits(p.AmountIn, p.DecimalsIn)
	if err != nil {
		return nil, fmt.Errorf("parse amount in: %w", err)
	}
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	calls := make([]multicall.Call, 0, len(e.feeTiers))
	tiers := make([]uint32, 0, len(e.feeTiers))
	for _, fee := range e.feeTiers {
		callData, err := e.q2abi.Pack("quoteExactInputSingle", quoteParams(p.TokenIn, p.TokenOut, amountIn, fee))
		if err != nil {
			e.log.Warn("pack quote call failed", zap.Uint32("fee_tier", fee), zap.Error(err))
			continue
		}
		calls = append(calls, multicall.Call{Target: e.quoter, CallData: callData})
		tiers = append(tiers, fee)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("no quote calls could be constructed")
	}

	results, err := e.mc.TryAggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("quoter multicall: %w", err)
	}

	var (
		bestOut  *big.Int
		bestGas  *big.Int
		bestTier uint32
	)
	for i, res := range results {
		if !res.Success {
			continue
		}
		unpacked, err := e.q2abi.Methods["quoteExactInputSingle"].Outputs.Unpack(res.Data)
		if err != nil || len(unpacked) < 4 {
			continue
		}
		out, ok := unpacked[0].(*big.Int)
		if !ok || out.Sign() <= 0 {
			continue
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 {
			bestOut = out
			bestTier = tiers[i]
			bestGas, _ = unpacked[3].(*big.Int)
		}
	}
	if bestOut == nil {
		return nil, fmt.Errorf("%w: no v3 pool for any fee tier", types.ErrNoRoute)
	}

	return &types.Quote{
		Exchange:        types.ExchangeUniswapV3,
		AmountOut:       bestOut,
		AmountOutRaw:    bestOut.String(),
		AmountOutPretty: amount.FormatUnits(bestOut, p.DecimalsOut),
		FeeTier:         bestTier,
		GasEstimate:     bestGas,
		PriceImpactPct:  -1, // filled by the selector when prices are known
		ExchangeRate:    amount.ExchangeRate(amountIn, bestOut, p.DecimalsIn, p.DecimalsOut),
	}, nil
}

// BuildSwapCall goes through the Universal Router: permit pull, fee skim,
// v3 swap, sweep.
func (e *Exchange) BuildSwapCall(intent core.SwapIntent) (*core.SwapCall, error) {
	if intent.TokenIn == intent.TokenOut {
		return nil, types.ErrSameTokens
	}
	plan, err := e.builder.PlanV3Swap(intent)
	if err != nil {
		return nil, err
	}
	return e.builder.BuildExecute(plan, intent.Deadline)
}

func quoteParams(tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) interface{} {
	return struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
}
