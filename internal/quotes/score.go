package quotes

import (
	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/types"
)

// maxViableImpactPct is the price-impact ceiling above which a route is not
// offered regardless of output.
const maxViableImpactPct = 5.0

// Score ranks a quote for display: output value minus the impact penalty
// minus the gas cost, all in the output token's units.
func Score(q *types.Quote, outDecimals int, gasPriceWei, ethPriceUSD, outPriceUSD float64) float64 {
	out := amount.ToFloat(q.AmountOut, outDecimals)
	impact := q.PriceImpactPct
	if impact < 0 {
		impact = 0
	}
	gasUSD := 0.0
	if q.GasEstimate != nil && gasPriceWei > 0 && ethPriceUSD > 0 {
		gasUSD = amount.ToFloat(q.GasEstimate, 0) * gasPriceWei / 1e18 * ethPriceUSD
	}
	gasOut := 0.0
	if outPriceUSD > 0 {
		gasOut = gasUSD / outPriceUSD
	}
	return out - impact*out/100 - gasOut
}

// Viable reports whether a quote is worth offering: impact below the
// ceiling and output above the floor (in output token units). Unknown
// impact counts as zero here; the comparison order already deprioritizes it.
func Viable(q *types.Quote, outDecimals int, minOutput float64) bool {
	out := amount.ToFloat(q.AmountOut, outDecimals)
	impact := q.PriceImpactPct
	if impact < 0 {
		impact = 0
	}
	return impact < maxViableImpactPct && out > minOutput
}
