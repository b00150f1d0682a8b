package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
)

func testService(t *testing.T, src Feed) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.Default()
	cfg.Prices.Static = map[string]float64{"DAI": 1.0}
	return NewService(cfg, zap.NewNop(), rdb, src), mr
}

func TestHTTPSourceSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		json.NewEncoder(w).Encode(map[string]map[string]float64{"ethereum": {"usd": 2500.5}})
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	p, err := src.PriceUSD(context.Background(), "WETH")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, p)
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL).PriceUSD(context.Background(), "WETH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestServiceCacheHitSkipsSource(t *testing.T) {
	svc, mr := testService(t, failingFeed{})
	require.NoError(t, mr.Set("defio:price:WETH", "3000"))

	p, err := svc.PriceUSD(context.Background(), "weth")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p)
}

func TestServiceSourceMissFallsBackToStatic(t *testing.T) {
	svc, _ := testService(t, failingFeed{})

	p, err := svc.PriceUSD(context.Background(), "DAI")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	_, err = svc.PriceUSD(context.Background(), "USDC")
	require.Error(t, err)
}

func TestServiceStoresSourceResult(t *testing.T) {
	svc, mr := testService(t, Static{"USDC": 0.999})

	p, err := svc.PriceUSD(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 0.999, p)

	got, err := mr.Get("defio:price:USDC")
	require.NoError(t, err)
	assert.Equal(t, "0.999", got)
}

func TestRefreshPopulatesCache(t *testing.T) {
	svc, mr := testService(t, Static{"WETH": 2000, "USDC": 1})

	svc.Refresh(context.Background(), []string{"WETH", "USDC", "MISSING"})

	assert.True(t, mr.Exists("defio:price:WETH"))
	assert.True(t, mr.Exists("defio:price:USDC"))
	assert.False(t, mr.Exists("defio:price:MISSING"))
}

type failingFeed struct{}

func (failingFeed) PriceUSD(context.Context, string) (float64, error) {
	return 0, fmt.Errorf("feed down")
}
