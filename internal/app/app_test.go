package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/tokens"
)

func TestWatchedPairs(t *testing.T) {
	reg, err := tokens.NewRegistry(config.Default(), zap.NewNop(), nil, nil)
	require.NoError(t, err)
	a := &App{cfg: config.Default(), log: zap.NewNop(), Tokens: reg}

	pairs := a.WatchedPairs()
	// three whitelist tokens, one direction per pair
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.NotEqual(t, p.TokenIn, p.TokenOut)
		assert.Equal(t, "1", p.AmountIn)
	}
}

func TestBuildRejectsBadRPC(t *testing.T) {
	cfg := config.Default()
	cfg.Chain.RPCHTTP = "://not-a-url"

	_, err := Build(cfg, zap.NewNop())
	require.Error(t, err)
}
