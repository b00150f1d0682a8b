// Package fees computes the platform fee breakdown for a swap. All math is
// integer bps on raw amounts; USD values are derived for display only.
package fees

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/config"
)

const bpsDenominator = 10000

// Discount conditions recognised by Apply.
type Discount string

const (
	DiscountNone       Discount = ""
	DiscountVIP        Discount = "vip"
	DiscountHighVolume Discount = "high_volume"
	DiscountFirstTime  Discount = "first_time"
)

// Calculation is derived per request and never persisted.
type Calculation struct {
	OriginalAmount *big.Int
	PlatformFee    *big.Int // platform share after the referral split
	ReferralFee    *big.Int
	TotalFee       *big.Int
	NetAmount      *big.Int
	FeeUSD         float64
}

type Structure struct {
	PlatformFeeBps    int
	ReferralFeeBps    int
	TotalFeeBps       int
	FeeRecipient      common.Address
	ReferralRecipient common.Address
}

// Calculator is a pure function object: identical inputs yield identical
// outputs, no hidden state.
type Calculator struct {
	feeBps        int
	referralShare float64
	minFeeUSD     float64
	recipient     common.Address
}

func NewCalculator(cfg *config.Config) (*Calculator, error) {
	if cfg.Fees.PlatformBps < 0 || cfg.Fees.PlatformBps > 100 {
		return nil, fmt.Errorf("platform fee must be within [0, 100] bps, got %d", cfg.Fees.PlatformBps)
	}
	return &Calculator{
		feeBps:        cfg.Fees.PlatformBps,
		referralShare: cfg.Fees.ReferralShare,
		minFeeUSD:     cfg.Fees.MinFeeUSD,
		recipient:     common.HexToAddress(cfg.Fees.Recipient),
	}, nil
}

func (c *Calculator) PlatformFeeBps() int { return c.feeBps }

func (c *Calculator) Recipient() common.Address { return c.recipient }

// Calculate splits amountIn into fee and net portions. referral toggles the
// referrer's share of the platform fee.
func (c *Calculator) Calculate(amountIn *big.Int, decimals int, tokenPriceUSD float64, referral bool) Calculation {
	total := new(big.Int).Mul(amountIn, big.NewInt(int64(c.feeBps)))
	total.Div(total, big.NewInt(bpsDenominator))

	referralFee := big.NewInt(0)
	if referral && c.referralShare > 0 {
		shareBps := int64(c.referralShare * 100)
		referralFee = new(big.Int).Mul(total, big.NewInt(shareBps))
		referralFee.Div(referralFee, big.NewInt(100))
	}
	platformFee := new(big.Int).Sub(total, referralFee)

	return Calculation{
		OriginalAmount: new(big.Int).Set(amountIn),
		PlatformFee:    platformFee,
		ReferralFee:    referralFee,
		TotalFee:       total,
		NetAmount:      new(big.Int).Sub(amountIn, total),
		FeeUSD:         amount.ToFloat(total, decimals) * tokenPriceUSD,
	}
}

// Structure reports the bps split for display.
func (c *Calculator) Structure(referral bool, referralRecipient common.Address) Structure {
	refBps := 0
	if referral {
		refBps = int(float64(c.feeBps) * c.referralShare)
	}
	return Structure{
		PlatformFeeBps:    c.feeBps - refBps,
		ReferralFeeBps:    refBps,
		TotalFeeBps:       c.feeBps,
		FeeRecipient:      c.recipient,
		ReferralRecipient: referralRecipient,
	}
}

// Apply returns a copy of s with the discount applied.
func Apply(s Structure, d Discount) Structure {
	mult := 1.0
	switch d {
	case DiscountVIP:
		mult = 0
	case DiscountHighVolume, DiscountFirstTime:
		mult = 0.5
	}
	s.PlatformFeeBps = int(float64(s.PlatformFeeBps) * mult)
	s.ReferralFeeBps = int(float64(s.ReferralFeeBps) * mult)
	s.TotalFeeBps = int(float64(s.TotalFeeBps) * mult)
	return s
}

// IsViableFee reports whether a fee clears the dust floor.
func (c *Calculator) IsViableFee(feeUSD float64) bool {
	return feeUSD >= c.minFeeUSD
}

// MinimumViableAmount is the smallest swap (in token units) whose fee clears
// the dust floor, with a 10% buffer against price moves.
func (c *Calculator) MinimumViableAmount(tokenPriceUSD float64) float64 {
	if c.feeBps == 0 || tokenPriceUSD == 0 {
		return 0
	}
	minUSD := c.minFeeUSD / (float64(c.feeBps) / bpsDenominator)
	return minUSD / tokenPriceUSD * 1.1
}

// MinAmountOut applies the slippage tolerance to a quoted output:
// floor(out * (10000 - slippageBps) / 10000).
func MinAmountOut(out *big.Int, slippageBps int) *big.Int {
	min := new(big.Int).Mul(out, big.NewInt(int64(bpsDenominator-slippageBps)))
	return min.Div(min, big.NewInt(bpsDenominator))
}

// ValidateStructure rejects fee setups that must never reach submission.
func ValidateStructure(s Structure) error {
	if s.TotalFeeBps < 0 || s.TotalFeeBps > 100 {
		return fmt.Errorf("total fee %d bps outside [0, 100]", s.TotalFeeBps)
	}
	if s.TotalFeeBps > 0 && s.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("fee recipient not configured")
	}
	return nil
}
