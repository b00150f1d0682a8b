// Package app wires the components into the running daemon: RPC client,
// venues, selector, executor, feeds, and the HTTP surfaces.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/activity"
	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/dex/aerodrome"
	"github.com/volodeveth/defio/internal/dex/core"
	"github.com/volodeveth/defio/internal/dex/univ3"
	"github.com/volodeveth/defio/internal/fees"
	"github.com/volodeveth/defio/internal/metrics"
	"github.com/volodeveth/defio/internal/multicall"
	"github.com/volodeveth/defio/internal/permit"
	"github.com/volodeveth/defio/internal/prices"
	"github.com/volodeveth/defio/internal/quotes"
	"github.com/volodeveth/defio/internal/router"
	"github.com/volodeveth/defio/internal/server"
	"github.com/volodeveth/defio/internal/swap"
	"github.com/volodeveth/defio/internal/tokens"
	"github.com/volodeveth/defio/internal/types"
	"github.com/volodeveth/defio/internal/wallet"
)

// App owns the component graph. Build constructs it; Run drives it.
type App struct {
	cfg *config.Config
	log *zap.Logger

	EC       *ethclient.Client
	Registry *core.Registry
	Tokens   *tokens.Registry
	Selector *quotes.Selector
	Prices   *prices.Service
	Executor *swap.Executor
	Activity *activity.Log
	Server   *server.Server
}

// Build dials the RPC endpoint and assembles every component. Redis is
// optional: with no address configured the activity log and price cache
// degrade to in-process behavior.
func Build(cfg *config.Config, log *zap.Logger) (*App, error) {
	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.Chain.RPCHTTP, err)
	}

	mc, err := multicall.New(ec, common.HexToAddress(cfg.Contracts.Multicall))
	if err != nil {
		return nil, err
	}
	builder, err := router.NewBuilder(common.HexToAddress(cfg.Contracts.UniversalRouter))
	if err != nil {
		return nil, err
	}
	uni, err := univ3.New(log, mc, builder, common.HexToAddress(cfg.Contracts.QuoterV2), nil)
	if err != nil {
		return nil, err
	}
	venues := []core.Exchange{uni}
	if cfg.Contracts.AeroRouter != "" {
		// Aerodrome is mainnet-only; testnet books leave the router blank.
		aero, err := aerodrome.New(log, ec,
			common.HexToAddress(cfg.Contracts.AeroRouter),
			common.HexToAddress(cfg.Contracts.AeroFactory),
		)
		if err != nil {
			return nil, err
		}
		venues = append(venues, aero)
	}
	registry := core.NewRegistry(venues...)

	var rdb *redis.Client
	var act *activity.Log
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
		act = activity.NewLogWithClient(cfg, log, rdb)
	}

	var src prices.Feed
	if cfg.Prices.URL != "" {
		src = prices.NewHTTPSource(cfg.Prices.URL)
	}
	priceSvc := prices.NewService(cfg, log, rdb, src)

	sel := quotes.NewSelector(log, registry, priceSvc)

	tokenReg, err := tokens.NewRegistry(cfg, log, mc, ec)
	if err != nil {
		return nil, err
	}
	for _, t := range tokenReg.List() {
		sel.RegisterToken(t)
	}

	fc, err := fees.NewCalculator(cfg)
	if err != nil {
		return nil, err
	}
	pm, err := permit.NewManager(log, ec, common.HexToAddress(cfg.Contracts.Permit2), cfg.Chain.ID)
	if err != nil {
		return nil, err
	}
	exec := swap.NewExecutor(log, cfg, registry, fc, pm, ec, act)
	if pk := cfg.Chain.WalletPK; pk != "" {
		w, err := wallet.NewPrivateKey(pk, cfg.Chain.ID, ec)
		if err != nil {
			return nil, fmt.Errorf("wallet: %w", err)
		}
		exec.Connect(w)
		log.Info("wallet connected", zap.String("address", w.Address().Hex()))
	}

	srv := server.New(cfg, log, sel, tokenReg, act)

	return &App{
		cfg:      cfg,
		log:      log,
		EC:       ec,
		Registry: registry,
		Tokens:   tokenReg,
		Selector: sel,
		Prices:   priceSvc,
		Executor: exec,
		Activity: act,
		Server:   srv,
	}, nil
}

// WatchedPairs derives the refresher's pair list: every whitelist token
// against every other, one direction each.
func (a *App) WatchedPairs() []types.QuoteParams {
	list := a.Tokens.List()
	var out []types.QuoteParams
	for i, in := range list {
		for j, outTok := range list {
			if i >= j {
				continue
			}
			out = append(out, types.QuoteParams{
				TokenIn:     in.Address,
				TokenOut:    outTok.Address,
				AmountIn:    "1",
				DecimalsIn:  in.Decimals,
				DecimalsOut: outTok.Decimals,
			})
		}
	}
	return out
}

// Run starts the servers and background loops, blocking until a signal or
// ctx cancellation.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			a.log.Warn("received signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics.Serve(ctx, a.cfg.Server.MetricsAddr, a.log)

	symbols := make([]string, 0)
	for _, t := range a.Tokens.List() {
		symbols = append(symbols, t.Symbol)
	}
	go a.Prices.Run(ctx, symbols, a.cfg.PriceRefresh())

	updates := make(chan *quotes.Result, 16)
	go quotes.Run(ctx, a.cfg, a.Selector, a.WatchedPairs(), updates, a.log)
	go a.Server.Pump(ctx, updates)

	a.Server.Start(ctx)
	a.log.Info("stopped")
}
