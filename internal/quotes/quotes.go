// Package quotes fans a quote request out to every registered venue and
// applies the total order that picks the winner: higher output first, then
// lower price impact, then lower gas, then registry position.
package quotes

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/dex/core"
	imetrics "github.com/volodeveth/defio/internal/metrics"
	"github.com/volodeveth/defio/internal/prices"
	"github.com/volodeveth/defio/internal/types"
)

// Result is one completed comparison. All holds every venue's quote in
// registry order (nil where a venue failed); Best points into All.
type Result struct {
	Seq    uint64
	Params types.QuoteParams
	Best   *types.Quote
	All    []*types.Quote
	Stale  bool // a newer request was issued while this one was in flight
	Ts     time.Time
}

type Selector struct {
	log  *zap.Logger
	reg  *core.Registry
	feed prices.Feed

	seq atomic.Uint64

	mu      sync.RWMutex
	symbols map[string]string // lowercase hex address -> symbol
}

func NewSelector(log *zap.Logger, reg *core.Registry, feed prices.Feed) *Selector {
	return &Selector{
		log:     log,
		reg:     reg,
		feed:    feed,
		symbols: make(map[string]string),
	}
}

// RegisterToken teaches the selector a token's symbol so price impact can be
// computed against the USD feed. Unknown tokens get impact -1.
func (s *Selector) RegisterToken(t types.Token) {
	s.mu.Lock()
	s.symbols[strings.ToLower(t.Address.Hex())] = t.Symbol
	s.mu.Unlock()
}

func (s *Selector) symbolOf(addr string) (string, bool) {
	s.mu.RLock()
	sym, ok := s.symbols[strings.ToLower(addr)]
	s.mu.RUnlock()
	return sym, ok
}

// Better reports whether a should win over b. The comparison is strict, so
// iterating venues in registry order and replacing only on a win gives the
// registry tie-break for free.
func Better(a, b *types.Quote) bool {
	if b == nil {
		return a != nil
	}
	if a == nil {
		return false
	}
	if c := a.AmountOut.Cmp(b.AmountOut); c != 0 {
		return c > 0
	}
	if ia, ib := impactRank(a), impactRank(b); ia != ib {
		return ia < ib
	}
	return cmpGas(a.GasEstimate, b.GasEstimate) < 0
}

// Unknown impact (-1) ranks below any known impact.
func impactRank(q *types.Quote) float64 {
	if q.PriceImpactPct < 0 {
		return 1e18
	}
	return q.PriceImpactPct
}

// nil gas ranks above any known estimate.
func cmpGas(a, b *big.Int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Cmp(b)
	}
}

// GetBestQuote queries every venue concurrently and returns the winner.
// Venue failures are tolerated; only when every venue fails is the first
// error returned. Result.Stale is set when a newer request was issued
// before this one finished, so the caller can drop the answer.
func (s *Selector) GetBestQuote(ctx context.Context, p types.QuoteParams) (*Result, error) {
	seq := s.seq.Add(1)
	venues := s.reg.All()
	all := make([]*types.Quote, len(venues))
	errs := make([]error, len(venues))

	var wg sync.WaitGroup
	for i, ex := range venues {
		i, ex := i, ex
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			q, err := ex.GetQuote(ctx, p)
			imetrics.QuoteLatency.WithLabelValues(string(ex.ID())).Observe(time.Since(started).Seconds())
			if err != nil {
				imetrics.QuoterErrors.WithLabelValues(string(ex.ID())).Inc()
				errs[i] = err
				s.log.Debug("venue quote failed",
					zap.String("exchange", string(ex.ID())),
					zap.Error(err),
				)
				return
			}
			all[i] = q
		}()
	}
	wg.Wait()

	var best *types.Quote
	for _, q := range all {
		if q == nil {
			continue
		}
		s.fillImpact(ctx, p, q)
		if Better(q, best) {
			best = q
		}
	}
	if best == nil {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return nil, types.ErrNoRoute
	}
	imetrics.BestRouteWins.WithLabelValues(string(best.Exchange)).Inc()

	return &Result{
		Seq:    seq,
		Params: p,
		Best:   best,
		All:    all,
		Stale:  s.seq.Load() != seq,
		Ts:     time.Now(),
	}, nil
}

// fillImpact replaces an unknown price impact with the deviation from the
// USD-feed implied output: (expected - actual) / expected * 100. Quotes
// whose venue already supplied an impact keep it.
func (s *Selector) fillImpact(ctx context.Context, p types.QuoteParams, q *types.Quote) {
	if q.PriceImpactPct >= 0 || s.feed == nil {
		return
	}
	symIn, okIn := s.symbolOf(p.TokenIn.Hex())
	symOut, okOut := s.symbolOf(p.TokenOut.Hex())
	if !okIn || !okOut {
		return
	}
	pxIn, errIn := s.feed.PriceUSD(ctx, symIn)
	pxOut, errOut := s.feed.PriceUSD(ctx, symOut)
	if errIn != nil || errOut != nil || pxIn <= 0 || pxOut <= 0 {
		return
	}
	in, err := amount.ParseUnits(p.AmountIn, p.DecimalsIn)
	if err != nil {
		return
	}
	expected := amount.ToFloat(in, p.DecimalsIn) * pxIn / pxOut
	if expected <= 0 {
		return
	}
	actual := amount.ToFloat(q.AmountOut, p.DecimalsOut)
	impact := (expected - actual) / expected * 100
	if impact < 0 {
		impact = 0
	}
	q.PriceImpactPct = impact
}
