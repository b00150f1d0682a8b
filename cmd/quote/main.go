// One-shot quote comparison: asks every venue and prints the winner.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"

	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/app"
	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/quotes"
	"github.com/volodeveth/defio/internal/types"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	tokenIn := flag.String("in", "WETH", "input token symbol or address")
	tokenOut := flag.String("out", "USDC", "output token symbol or address")
	amt := flag.String("amount", "1", "input amount, human units")
	flag.Parse()

	logger := zap.NewNop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	a, err := app.Build(cfg, logger)
	if err != nil {
		fatal("startup: %v", err)
	}

	in, ok := a.Tokens.Lookup(*tokenIn)
	if !ok {
		fatal("unknown token %q", *tokenIn)
	}
	out, ok := a.Tokens.Lookup(*tokenOut)
	if !ok {
		fatal("unknown token %q", *tokenOut)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QuoteTimeout())
	defer cancel()
	res, err := a.Selector.GetBestQuote(ctx, types.QuoteParams{
		TokenIn:     in.Address,
		TokenOut:    out.Address,
		AmountIn:    *amt,
		DecimalsIn:  in.Decimals,
		DecimalsOut: out.Decimals,
	})
	if err != nil {
		fatal("quote: %v", err)
	}

	// Best effort: scores need the gas price and USD quotes, and the
	// comparison output is still useful without them.
	gasPrice := 0.0
	if gp, err := a.EC.SuggestGasPrice(ctx); err == nil {
		gasPrice, _ = new(big.Float).SetInt(gp).Float64()
	}
	ethUSD, _ := a.Prices.PriceUSD(ctx, "ETH")
	outUSD, _ := a.Prices.PriceUSD(ctx, out.Symbol)

	fmt.Printf("%s %s -> %s\n\n", *amt, in.Symbol, out.Symbol)
	for _, q := range res.All {
		if q == nil {
			continue
		}
		marker := " "
		if q == res.Best {
			marker = "*"
		}
		detail := ""
		switch q.Exchange {
		case types.ExchangeUniswapV3:
			detail = fmt.Sprintf("fee tier %d", q.FeeTier)
		case types.ExchangeAerodrome:
			if q.StablePool {
				detail = "stable pool"
			} else {
				detail = "volatile pool"
			}
		}
		impact := "n/a"
		if q.PriceImpactPct >= 0 {
			impact = amount.FormatPercent(q.PriceImpactPct)
		}
		score := ""
		if outUSD > 0 {
			score = fmt.Sprintf("  score %.4f", quotes.Score(q, out.Decimals, gasPrice, ethUSD, outUSD))
			if !quotes.Viable(q, out.Decimals, 0) {
				score += " (not viable)"
			}
		}
		fmt.Printf("%s %-12s %s %s  impact %s%s  (%s)\n",
			marker, q.Exchange,
			amount.FormatToken(q.AmountOut, out.Decimals, 6), out.Symbol,
			impact, score, detail,
		)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
