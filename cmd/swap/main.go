// CLI swap executor: quotes, checks readiness, and runs the swap with the
// configured wallet key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/app"
	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/types"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	tokenIn := flag.String("in", "", "input token symbol or address")
	tokenOut := flag.String("out", "", "output token symbol or address")
	amt := flag.String("amount", "", "input amount, human units")
	slippage := flag.Int("slippage", -1, "slippage tolerance in bps (-1 = config default, 0 = none)")
	usePermit := flag.Bool("permit", false, "sign a Permit2 transfer instead of relying on allowance alone")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	if *tokenIn == "" || *tokenOut == "" || *amt == "" {
		fatal("-in, -out and -amount are required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("config: %v", err)
	}
	if cfg.Chain.WalletPK == "" {
		fatal("chain.wallet_pk must be set to execute swaps")
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

	ctx := context.Background()
	qctx, cancel := context.WithTimeout(ctx, cfg.QuoteTimeout())
	res, err := a.Selector.GetBestQuote(qctx, types.QuoteParams{
		TokenIn:     in.Address,
		TokenOut:    out.Address,
		AmountIn:    *amt,
		DecimalsIn:  in.Decimals,
		DecimalsOut: out.Decimals,
	})
	cancel()
	if err != nil {
		fatal("quote: %v", err)
	}

	slip := *slippage
	if slip < 0 {
		slip = cfg.Fees.DefaultSlipBps
	}
	inPrice, _ := a.Prices.PriceUSD(ctx, in.Symbol)

	params := types.SwapExecutionParams{
		TokenIn:         in.Address,
		TokenOut:        out.Address,
		AmountIn:        *amt,
		DecimalsIn:      in.Decimals,
		DecimalsOut:     out.Decimals,
		Quote:           res.Best,
		SlippageBps:     slip,
		UsePermit:       *usePermit,
		TokenInPriceUSD: inPrice,
	}
	if issues := a.Executor.Readiness(params); len(issues) > 0 {
		for _, is := range issues {
			fmt.Fprintln(os.Stderr, "not ready:", is)
		}
		os.Exit(1)
	}

	fmt.Printf("swap %s %s -> %s %s via %s\n",
		*amt, in.Symbol, res.Best.AmountOutPretty, out.Symbol, res.Best.Exchange)
	if !*yes {
		fmt.Print("proceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return
		}
	}

	result, err := a.Executor.ExecuteSwap(ctx, params)
	if err != nil {
		fatal("swap failed: %v", err)
	}
	if result.Pending {
		fmt.Printf("submitted, still confirming: %s\n", result.TxHash.Hex())
		return
	}
	fmt.Printf("confirmed: %s (id %s)\n", result.TxHash.Hex(), result.ID)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
