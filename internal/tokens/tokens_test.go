package tokens

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/multicall"
	"github.com/volodeveth/defio/internal/types"
)

type fakeMulticall struct {
	results []multicall.Result
	err     error
}

func (f *fakeMulticall) TryAggregate(_ context.Context, calls []multicall.Call) ([]multicall.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeNative struct {
	bal *big.Int
}

func (f *fakeNative) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.bal == nil {
		return nil, fmt.Errorf("rpc down")
	}
	return f.bal, nil
}

func packBalance(t *testing.T, r *Registry, v *big.Int) []byte {
	t.Helper()
	out, err := r.erc20.Methods["balanceOf"].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

func newRegistry(t *testing.T, mc multicall.IClient, native NativeBalancer) *Registry {
	t.Helper()
	r, err := NewRegistry(config.Default(), zap.NewNop(), mc, native)
	require.NoError(t, err)
	return r
}

func TestLookupByAddressAndSymbol(t *testing.T) {
	r := newRegistry(t, nil, nil)

	weth, ok := r.Lookup("0x4200000000000000000000000000000000000006")
	require.True(t, ok)
	assert.Equal(t, "WETH", weth.Symbol)

	usdc, ok := r.Lookup("usdc")
	require.True(t, ok)
	assert.Equal(t, 6, usdc.Decimals)

	eth, ok := r.Lookup("ETH")
	require.True(t, ok)
	assert.Equal(t, types.NativeETH, eth.Address)

	_, ok = r.Lookup("0x0000000000000000000000000000000000000001")
	assert.False(t, ok)
}

func TestBalancesBatch(t *testing.T) {
	mc := &fakeMulticall{}
	native := &fakeNative{bal: big.NewInt(7e15)}
	r := newRegistry(t, mc, native)

	// default whitelist has WETH, USDC, DAI; fail DAI
	mc.results = []multicall.Result{
		{Success: true, Data: packBalance(t, r, big.NewInt(100))},
		{Success: true, Data: packBalance(t, r, big.NewInt(200))},
		{Success: false},
	}

	got, err := r.Balances(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	require.Len(t, got, 4, "whitelist plus native ETH")

	assert.Equal(t, big.NewInt(100), got[0].Balance)
	assert.Equal(t, big.NewInt(200), got[1].Balance)
	assert.Nil(t, got[2].Balance, "failed call leaves balance unset")

	eth := got[3]
	assert.Equal(t, "ETH", eth.Symbol)
	assert.Equal(t, big.NewInt(7e15), eth.Balance)
}

func TestBalancesNativeFailureTolerated(t *testing.T) {
	mc := &fakeMulticall{}
	r := newRegistry(t, mc, &fakeNative{})
	mc.results = []multicall.Result{
		{Success: true, Data: packBalance(t, r, big.NewInt(1))},
		{Success: true, Data: packBalance(t, r, big.NewInt(2))},
		{Success: true, Data: packBalance(t, r, big.NewInt(3))},
	}

	got, err := r.Balances(context.Background(), common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	eth := got[len(got)-1]
	assert.Equal(t, "ETH", eth.Symbol)
	assert.Nil(t, eth.Balance)
}
