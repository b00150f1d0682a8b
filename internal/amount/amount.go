// Package amount converts between human decimal strings and raw integer
// token amounts, and formats values for display. Raw amounts are *big.Int
// scaled by the token's decimals; float64 is only used at the display edge.
package amount

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string like "1.5" into the integer amount at
// the given precision. Fractional digits beyond the precision are truncated.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatUnits renders a raw integer amount as a decimal string at the given
// precision, with trailing fractional zeros trimmed.
func FormatUnits(x *big.Int, decimals int) string {
	if x == nil {
		return "0"
	}
	neg := x.Sign() < 0
	abs := new(big.Int).Abs(x)
	s := abs.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// ToFloat converts a raw amount to a float for display or USD math.
func ToFloat(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	f.Quo(f, big.NewFloat(math.Pow10(decimals)))
	val, _ := f.Float64()
	return val
}

// FormatToken renders an amount for the UI: "<0.0001" for dust, thousands
// separators, at most displayDecimals fractional digits.
func FormatToken(x *big.Int, decimals, displayDecimals int) string {
	v := ToFloat(x, decimals)
	if v == 0 {
		return "0"
	}
	if v > 0 && v < 0.0001 {
		return "<0.0001"
	}
	s := fmt.Sprintf("%.*f", displayDecimals, v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if i := strings.IndexByte(s, '.'); i > 3 || (i < 0 && len(s) > 3) {
		s = groupThousands(s)
	}
	return s
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// FormatUSD renders a USD value: "$0.00", "<$0.01", "$1,234.56".
func FormatUSD(v float64) string {
	if v == 0 {
		return "$0.00"
	}
	if v > 0 && v < 0.01 {
		return "<$0.01"
	}
	return "$" + groupThousands(fmt.Sprintf("%.2f", v))
}

// FormatPercent renders a percentage with two decimals: "0.15%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// FormatBps renders basis points as a percentage: 15 -> "0.15%".
func FormatBps(bps int) string {
	return FormatPercent(float64(bps) / 100)
}

// ShortAddress abbreviates a hex address for display: 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// ExchangeRate returns out/in at display precision; 0 when in is zero.
func ExchangeRate(in, out *big.Int, decIn, decOut int) float64 {
	i := ToFloat(in, decIn)
	if i == 0 {
		return 0
	}
	return ToFloat(out, decOut) / i
}
