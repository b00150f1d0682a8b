package quotes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/types"
)

// Run re-quotes the watched pairs on the configured interval and pushes
// fresh results to out. Stale and failed rounds are skipped, never sent.
// The channel is not closed; the caller owns its lifetime.
func Run(ctx context.Context, cfg *config.Config, sel *Selector, pairs []types.QuoteParams, out chan<- *Result, log *zap.Logger) {
	t := time.NewTicker(cfg.QuoteInterval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, p := range pairs {
				qctx, cancel := context.WithTimeout(ctx, cfg.QuoteTimeout())
				res, err := sel.GetBestQuote(qctx, p)
				cancel()
				if err != nil {
					log.Warn("watched pair quote failed",
						zap.String("token_in", p.TokenIn.Hex()),
						zap.String("token_out", p.TokenOut.Hex()),
						zap.Error(err),
					)
					continue
				}
				if res.Stale {
					continue
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				default:
					log.Debug("quote consumer slow, dropping update")
				}
			}
		}
	}
}
