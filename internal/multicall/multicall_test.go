package multicall

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	resp []byte
	err  error
	got  ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.got = msg
	return f.resp, f.err
}

func TestTryAggregatePartialFailure(t *testing.T) {
	mcAddr := common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	target := common.HexToAddress("0x2222222222222222222222222222222222222222")

	fc := &fakeCaller{}
	mc, err := New(fc, mcAddr)
	require.NoError(t, err)

	// Two results: one success with data, one revert.
	type callResult struct {
		Success    bool
		ReturnData []byte
	}
	resp, err := mc.abi.Methods["tryAggregate"].Outputs.Pack([]callResult{
		{Success: true, ReturnData: common.LeftPadBytes(big.NewInt(42).Bytes(), 32)},
		{Success: false, ReturnData: nil},
	})
	require.NoError(t, err)
	fc.resp = resp

	calls := []Call{
		{Target: target, CallData: []byte{0x01}},
		{Target: target, CallData: []byte{0x02}},
	}
	results, err := mc.TryAggregate(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, big.NewInt(42), new(big.Int).SetBytes(results[0].Data))
	assert.False(t, results[1].Success)
	assert.Equal(t, &mcAddr, fc.got.To)
}

func TestTryAggregateCountMismatch(t *testing.T) {
	mcAddr := common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	fc := &fakeCaller{}
	mc, err := New(fc, mcAddr)
	require.NoError(t, err)

	type callResult struct {
		Success    bool
		ReturnData []byte
	}
	resp, err := mc.abi.Methods["tryAggregate"].Outputs.Pack([]callResult{{Success: true, ReturnData: []byte{0x01}}})
	require.NoError(t, err)
	fc.resp = resp

	_, err = mc.TryAggregate(context.Background(), []Call{{}, {}})
	assert.Error(t, err)
}
