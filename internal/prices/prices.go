// Package prices supplies token USD prices: an HTTP market-data source
// backed by a Redis cache, with static config values as the last resort.
// These prices feed price-impact math and fee USD display; they are never
// used to compute swap amounts.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
)

// Feed answers "what is one unit of this token worth in USD".
type Feed interface {
	PriceUSD(ctx context.Context, symbol string) (float64, error)
}

// HTTPSource queries a coingecko-style simple-price endpoint:
// GET {base}/simple/price?ids=<id>&vs_currencies=usd
type HTTPSource struct {
	base string
	cli  *http.Client
	ids  map[string]string // symbol -> upstream id
}

var defaultIDs = map[string]string{
	"WETH": "ethereum",
	"ETH":  "ethereum",
	"USDC": "usd-coin",
	"DAI":  "dai",
}

func NewHTTPSource(base string) *HTTPSource {
	return &HTTPSource{
		base: strings.TrimRight(base, "/"),
		cli:  &http.Client{Timeout: 10 * time.Second},
		ids:  defaultIDs,
	}
}

func (s *HTTPSource) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	id, ok := s.ids[strings.ToUpper(symbol)]
	if !ok {
		id = strings.ToLower(symbol)
	}
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.base, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.cli.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("price feed http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}
	p, ok := out[id]["usd"]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("no usd price for %s", symbol)
	}
	return p, nil
}

// Static serves fixed prices from config; used offline and in tests.
type Static map[string]float64

func (s Static) PriceUSD(_ context.Context, symbol string) (float64, error) {
	if p, ok := s[strings.ToUpper(symbol)]; ok && p > 0 {
		return p, nil
	}
	return 0, fmt.Errorf("no static price for %s", symbol)
}

// Service layers the cache over the source: Redis hit first, then the
// upstream source (writing back with a TTL), then the static fallback.
type Service struct {
	log    *zap.Logger
	rdb    *redis.Client
	src    Feed
	static Static
	ns     string
	ttl    time.Duration
}

func NewService(cfg *config.Config, log *zap.Logger, rdb *redis.Client, src Feed) *Service {
	static := Static{}
	for k, v := range cfg.Prices.Static {
		static[strings.ToUpper(k)] = v
	}
	return &Service{
		log:    log,
		rdb:    rdb,
		src:    src,
		static: static,
		ns:     cfg.Redis.PriceNS,
		ttl:    cfg.PriceTTL(),
	}
}

func (s *Service) key(symbol string) string {
	return s.ns + ":" + strings.ToUpper(symbol)
}

func (s *Service) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	if s.rdb != nil {
		if v, err := s.rdb.Get(ctx, s.key(symbol)).Float64(); err == nil && v > 0 {
			return v, nil
		}
	}
	if s.src != nil {
		v, err := s.src.PriceUSD(ctx, symbol)
		if err == nil {
			s.store(ctx, symbol, v)
			return v, nil
		}
		s.log.Debug("price source miss", zap.String("symbol", symbol), zap.Error(err))
	}
	return s.static.PriceUSD(ctx, symbol)
}

func (s *Service) store(ctx context.Context, symbol string, v float64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, s.key(symbol), v, s.ttl).Err(); err != nil {
		s.log.Warn("price cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Refresh fetches and caches every symbol once. The pricewatch tool calls
// this on a ticker so daemon lookups stay cache-hot.
func (s *Service) Refresh(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		if s.src == nil {
			return
		}
		v, err := s.src.PriceUSD(ctx, sym)
		if err != nil {
			s.log.Warn("price refresh failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		s.store(ctx, sym, v)
	}
}

// Run refreshes on an interval until the context ends.
func (s *Service) Run(ctx context.Context, symbols []string, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	s.Refresh(ctx, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx, symbols)
		}
	}
}
