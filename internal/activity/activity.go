// Package activity persists swap and approval events to a Redis stream so
// the UI and tools can show a recent-activity feed across restarts.
package activity

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/types"
)

const maxStreamLen = 1000

type Log struct {
	log    *zap.Logger
	rdb    *redis.Client
	stream string
}

func NewLog(cfg *config.Config, log *zap.Logger) *Log {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Log{log: log, rdb: rdb, stream: cfg.Redis.ActivityStream}
}

// NewLogWithClient wires an existing client; used by tests and the app
// wiring that shares one connection pool.
func NewLogWithClient(cfg *config.Config, log *zap.Logger, rdb *redis.Client) *Log {
	return &Log{log: log, rdb: rdb, stream: cfg.Redis.ActivityStream}
}

// Record appends one entry. Failures are logged, never propagated; the
// activity feed must not block or fail a swap.
func (l *Log) Record(ctx context.Context, e types.ActivityEntry) {
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":       string(e.Kind),
			"token_in":   e.TokenIn,
			"token_out":  e.TokenOut,
			"amount_in":  e.AmountIn,
			"amount_out": e.AmountOut,
			"exchange":   string(e.Exchange),
			"tx_hash":    e.TxHash,
			"status":     e.Status,
			"ts_ms":      e.Ts.UnixMilli(),
		},
	}).Err()
	if err != nil {
		l.log.Warn("activity record failed", zap.Error(err))
	}
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int64) ([]types.ActivityEntry, error) {
	msgs, err := l.rdb.XRevRangeN(ctx, l.stream, "+", "-", limit).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.ActivityEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fromValues(m.Values))
	}
	return out, nil
}

func fromValues(v map[string]interface{}) types.ActivityEntry {
	get := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	e := types.ActivityEntry{
		Kind:      types.ActivityKind(get("kind")),
		TokenIn:   get("token_in"),
		TokenOut:  get("token_out"),
		AmountIn:  get("amount_in"),
		AmountOut: get("amount_out"),
		Exchange:  types.ExchangeID(get("exchange")),
		TxHash:    get("tx_hash"),
		Status:    get("status"),
	}
	if ms, err := strconv.ParseInt(get("ts_ms"), 10, 64); err == nil {
		e.Ts = time.UnixMilli(ms)
	}
	return e
}
