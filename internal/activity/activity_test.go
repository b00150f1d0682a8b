package activity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/types"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLogWithClient(config.Default(), zap.NewNop(), rdb)
}

func TestRecordAndRecent(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	l.Record(ctx, types.ActivityEntry{
		Kind:      types.ActivitySwap,
		TokenIn:   "0x4200000000000000000000000000000000000006",
		TokenOut:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		AmountIn:  "1.5",
		AmountOut: "3000000000",
		Exchange:  types.ExchangeUniswapV3,
		TxHash:    "0xbeef",
		Status:    "confirmed",
		Ts:        time.UnixMilli(1_700_000_000_000),
	})
	l.Record(ctx, types.ActivityEntry{
		Kind:   types.ActivityApprove,
		Status: "confirmed",
	})

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// newest first
	assert.Equal(t, types.ActivityApprove, got[0].Kind)
	swap := got[1]
	assert.Equal(t, types.ActivitySwap, swap.Kind)
	assert.Equal(t, "1.5", swap.AmountIn)
	assert.Equal(t, types.ExchangeUniswapV3, swap.Exchange)
	assert.Equal(t, "confirmed", swap.Status)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), swap.Ts)
}

func TestRecentLimit(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.Record(ctx, types.ActivityEntry{Kind: types.ActivitySwap, Status: "confirmed"})
	}
	got, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRecordToleratesRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	l := NewLogWithClient(config.Default(), zap.NewNop(), rdb)

	// must not panic or block
	l.Record(context.Background(), types.ActivityEntry{Kind: types.ActivitySwap})
}
