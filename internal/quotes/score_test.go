package quotes

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/volodeveth/defio/internal/types"
)

func TestScorePenalizesImpactAndGas(t *testing.T) {
	clean := q(types.ExchangeUniswapV3, 1_000_000_000, 0, -1)   // 1000 USDC, no impact, no gas
	impacted := q(types.ExchangeAerodrome, 1_000_000_000, 2, -1) // 2% impact

	sClean := Score(clean, 6, 0, 0, 1)
	sImpacted := Score(impacted, 6, 0, 0, 1)
	assert.InDelta(t, 1000.0, sClean, 1e-9)
	assert.InDelta(t, 980.0, sImpacted, 1e-9)
	assert.Greater(t, sClean, sImpacted)

	// 200k gas at 1 gwei, ETH at $2000 -> $0.40 off the score
	gassy := q(types.ExchangeUniswapV3, 1_000_000_000, 0, 200_000)
	sGassy := Score(gassy, 6, 1e9, 2000, 1)
	assert.InDelta(t, 999.6, sGassy, 1e-9)
}

func TestScoreUnknownImpactNotPenalized(t *testing.T) {
	unknown := q(types.ExchangeUniswapV3, 1_000_000_000, -1, -1)
	assert.InDelta(t, 1000.0, Score(unknown, 6, 0, 0, 1), 1e-9)
}

func TestViable(t *testing.T) {
	good := q(types.ExchangeUniswapV3, 1_000_000_000, 1, -1)
	assert.True(t, Viable(good, 6, 1))

	tooMuchImpact := q(types.ExchangeUniswapV3, 1_000_000_000, 5, -1)
	assert.False(t, Viable(tooMuchImpact, 6, 1), "5% impact is the exclusive ceiling")

	dust := &types.Quote{Exchange: types.ExchangeAerodrome, AmountOut: big.NewInt(500), PriceImpactPct: 0}
	assert.False(t, Viable(dust, 6, 1))
}
