// Price poller: keeps the Redis price cache warm so daemon lookups never
// wait on the upstream feed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/prices"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("redis.addr must be set for pricewatch")
	}
	if cfg.Prices.URL == "" {
		logger.Fatal("prices.url must be set for pricewatch")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	svc := prices.NewService(cfg, logger, rdb, prices.NewHTTPSource(cfg.Prices.URL))

	symbols := make([]string, 0, len(cfg.Tokens)+1)
	for _, t := range cfg.Tokens {
		symbols = append(symbols, t.Symbol)
	}
	symbols = append(symbols, "ETH")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	logger.Info("pricewatch started",
		zap.Strings("symbols", symbols),
		zap.Duration("refresh", cfg.PriceRefresh()),
	)
	svc.Run(ctx, symbols, cfg.PriceRefresh())
}
