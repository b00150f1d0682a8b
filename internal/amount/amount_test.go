package amount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"200", 6, "200000000"},
		{"0.000001", 6, "1"},
		{"0.0000001", 6, "0"}, // truncated past precision
		{"998.5", 18, "998500000000000000000"},
		{".5", 6, "500000"},
		{"-2.5", 6, "-2500000"},
	}
	for _, c := range cases {
		got, err := ParseUnits(c.in, c.decimals)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got.String(), "ParseUnits(%q, %d)", c.in, c.decimals)
	}
}

func TestParseUnitsRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3", "1e18"} {
		_, err := ParseUnits(s, 18)
		assert.Error(t, err, s)
	}
}

func TestFormatUnitsRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "1.5", "200", "0.000001", "998.5", "123456.789"} {
		x, err := ParseUnits(s, 6)
		require.NoError(t, err)
		assert.Equal(t, s, FormatUnits(x, 6), s)
	}
}

func TestFormatUnitsSmall(t *testing.T) {
	assert.Equal(t, "0.000000000000000001", FormatUnits(big.NewInt(1), 18))
	assert.Equal(t, "0", FormatUnits(big.NewInt(0), 18))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestFormatToken(t *testing.T) {
	x, _ := ParseUnits("1234.5678", 18)
	assert.Equal(t, "1,234.5678", FormatToken(x, 18, 4))

	dust, _ := ParseUnits("0.00005", 18)
	assert.Equal(t, "<0.0001", FormatToken(dust, 18, 4))

	assert.Equal(t, "0", FormatToken(big.NewInt(0), 18, 4))
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "<$0.01", FormatUSD(0.004))
	assert.Equal(t, "$1,234.56", FormatUSD(1234.56))
}

func TestFormatBps(t *testing.T) {
	assert.Equal(t, "0.15%", FormatBps(15))
	assert.Equal(t, "2.00%", FormatBps(200))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x4200…0006", ShortAddress("0x4200000000000000000000000000000000000006"))
	assert.Equal(t, "0xabc", ShortAddress("0xabc"))
}

func TestExchangeRate(t *testing.T) {
	in, _ := ParseUnits("200", 6)
	out, _ := ParseUnits("0.0667", 18)
	assert.InDelta(t, 0.0003335, ExchangeRate(in, out, 6, 18), 1e-9)
	assert.Zero(t, ExchangeRate(big.NewInt(0), out, 6, 18))
}
