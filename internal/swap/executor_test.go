package swap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/dex/core"
	"github.com/volodeveth/defio/internal/fees"
	imetrics "github.com/volodeveth/defio/internal/metrics"
	"github.com/volodeveth/defio/internal/permit"
	"github.com/volodeveth/defio/internal/types"
	"github.com/volodeveth/defio/internal/wallet"
)

var (
	permit2Addr = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	routerAddr  = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	wethAddr    = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdcAddr    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	ownerAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeExchange struct {
	intent core.SwapIntent
	err    error
}

func (f *fakeExchange) ID() types.ExchangeID { return types.ExchangeUniswapV3 }

func (f *fakeExchange) GetQuote(context.Context, types.QuoteParams) (*types.Quote, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeExchange) BuildSwapCall(intent core.SwapIntent) (*core.SwapCall, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.intent = intent
	return &core.SwapCall{To: routerAddr, Data: []byte{0x24, 0x56}, Value: big.NewInt(0)}, nil
}

// packWords abi-encodes each value as one 32-byte word, matching how the
// allowance views return their static outputs.
func packWords(vals ...*big.Int) []byte {
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	args := make(abi.Arguments, len(vals))
	anys := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = abi.Argument{Type: uint256Ty}
		anys[i] = v
	}
	out, _ := args.Pack(anys...)
	return out
}

type fakeBackend struct {
	erc20Allowance *big.Int
	estimateErr    error
	simulateErr    error
	receipt        *gethtypes.Receipt
	receiptAfter   int // polls before the receipt appears
	polls          int
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	switch *msg.To {
	case permit2Addr:
		// amount, expiration, nonce
		return packWords(big.NewInt(0), big.NewInt(0), big.NewInt(1)), nil
	case routerAddr:
		return nil, f.simulateErr
	default:
		return packWords(f.erc20Allowance), nil
	}
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 200_000, nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*gethtypes.Receipt, error) {
	f.polls++
	if f.receipt == nil || f.polls <= f.receiptAfter {
		return nil, fmt.Errorf("not found")
	}
	return f.receipt, nil
}

type fakeWallet struct {
	sent []common.Address // destinations in order
}

func (f *fakeWallet) Address() common.Address { return ownerAddr }
func (f *fakeWallet) ChainID() *big.Int       { return big.NewInt(8453) }

func (f *fakeWallet) SignTypedData(apitypes.TypedData) ([]byte, error) {
	return bytes.Repeat([]byte{0xab}, 65), nil
}

func (f *fakeWallet) SendTransaction(_ context.Context, to common.Address, _ []byte, _ *big.Int, _ uint64) (common.Hash, error) {
	f.sent = append(f.sent, to)
	return common.HexToHash("0xbeef"), nil
}

var _ wallet.Wallet = (*fakeWallet)(nil)

type memRecorder struct {
	entries []types.ActivityEntry
}

func (m *memRecorder) Record(_ context.Context, e types.ActivityEntry) {
	m.entries = append(m.entries, e)
}

func testExecutor(t *testing.T, be *fakeBackend, ex core.Exchange) (*Executor, *fakeWallet, *memRecorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Fees.Recipient = "0x2222222222222222222222222222222222222222"
	cfg.Timings.ConfirmTimeoutMs = 200

	fc, err := fees.NewCalculator(cfg)
	require.NoError(t, err)
	pm, err := permit.NewManager(zap.NewNop(), be, permit2Addr, 8453)
	require.NoError(t, err)

	rec := &memRecorder{}
	e := NewExecutor(zap.NewNop(), cfg, core.NewRegistry(ex), fc, pm, be, rec)
	e.poll = time.Millisecond
	pm.SetPollInterval(time.Millisecond)

	w := &fakeWallet{}
	e.Connect(w)
	return e, w, rec
}

func validParams() types.SwapExecutionParams {
	return types.SwapExecutionParams{
		TokenIn:     wethAddr,
		TokenOut:    usdcAddr,
		AmountIn:    "1.5",
		DecimalsIn:  18,
		DecimalsOut: 6,
		Quote: &types.Quote{
			Exchange:     types.ExchangeUniswapV3,
			AmountOut:    big.NewInt(3_000_000_000),
			AmountOutRaw: "3000000000",
			FeeTier:      500,
		},
		SlippageBps: 50,
	}
}

func TestReadinessCollectsAllIssues(t *testing.T) {
	e, _, _ := testExecutor(t, &fakeBackend{}, &fakeExchange{})
	e.Connect(nil)

	issues := e.Readiness(types.SwapExecutionParams{AmountIn: "abc", SlippageBps: 500})
	assert.ElementsMatch(t, []string{IssueNoWallet, IssueNoQuote, IssueBadAmount, IssueSlippageHigh}, issues)
}

func TestReadinessSlippageBoundary(t *testing.T) {
	e, _, _ := testExecutor(t, &fakeBackend{}, &fakeExchange{})

	p := validParams()
	p.SlippageBps = 200
	assert.Empty(t, e.Readiness(p), "200 bps is the inclusive maximum")

	p.SlippageBps = 250
	issues := e.Readiness(p)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueSlippageHigh, issues[0])
}

func TestExecuteSwapHappyPath(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		receipt:        &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful},
	}
	e, w, rec := testExecutor(t, be, ex)

	res, err := e.ExecuteSwap(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.State)
	assert.Equal(t, StateConfirmed, e.State())
	assert.Regexp(t, `^defio_\d+_[0-9a-f]{8}$`, res.ID)
	assert.Equal(t, common.HexToHash("0xbeef"), res.TxHash)

	// only the swap tx went out, no approval needed
	require.Len(t, w.sent, 1)
	assert.Equal(t, routerAddr, w.sent[0])

	// fee skim: 15 bps of 1.5 WETH
	wantNet, _ := new(big.Int).SetString("1497750000000000000", 10)
	assert.Equal(t, wantNet, ex.intent.NetAmountIn)
	// min out: 50 bps under the quote
	assert.Equal(t, big.NewInt(2_985_000_000), ex.intent.MinAmountOut)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "confirmed", rec.entries[0].Status)
	assert.Equal(t, types.ActivitySwap, rec.entries[0].Kind)
}

func TestExecuteSwapZeroSlippage(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		receipt:        &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful},
	}
	e, _, _ := testExecutor(t, be, ex)

	p := validParams()
	p.SlippageBps = 0
	_, err := e.ExecuteSwap(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.Quote.AmountOut, ex.intent.MinAmountOut,
		"zero tolerance means the full quoted output is the floor")
}

func TestEstimateGasDoesNotSubmit(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{erc20Allowance: big.NewInt(0)}
	e, w, rec := testExecutor(t, be, ex)

	gas, err := e.EstimateGas(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), gas)
	assert.Empty(t, w.sent)
	assert.Empty(t, rec.entries)
	assert.Equal(t, StateIdle, e.State())

	e.Connect(nil)
	_, err = e.EstimateGas(context.Background(), validParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), IssueNoWallet)
}

func TestSimulateDecodesRevert(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{erc20Allowance: big.NewInt(0)}
	e, w, _ := testExecutor(t, be, ex)

	require.NoError(t, e.Simulate(context.Background(), validParams()))

	be.simulateErr = fmt.Errorf("execution reverted: Too little received")
	err := e.Simulate(context.Background(), validParams())
	require.Error(t, err)
	assert.Equal(t, types.ErrSlippageExceeded, types.KindOf(err))
	assert.Empty(t, w.sent)
	assert.Equal(t, StateIdle, e.State(), "simulation never advances the lifecycle")
}

func TestExecuteSwapApprovesWhenAllowanceShort(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: big.NewInt(0),
		receipt:        &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful},
	}
	e, w, rec := testExecutor(t, be, ex)

	res, err := e.ExecuteSwap(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.State)

	// approval to the token first, then the swap to the router
	require.Len(t, w.sent, 2)
	assert.Equal(t, wethAddr, w.sent[0])
	assert.Equal(t, routerAddr, w.sent[1])

	require.Len(t, rec.entries, 2)
	assert.Equal(t, types.ActivityApprove, rec.entries[0].Kind)
}

func TestExecuteSwapCountsFeeUSD(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		receipt:        &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful},
	}
	e, _, _ := testExecutor(t, be, ex)

	before := testutil.ToFloat64(imetrics.FeesCollectedUSD)
	p := validParams()
	p.TokenInPriceUSD = 2000
	_, err := e.ExecuteSwap(context.Background(), p)
	require.NoError(t, err)

	// 15 bps of 1.5 WETH at $2000
	assert.InDelta(t, 4.5, testutil.ToFloat64(imetrics.FeesCollectedUSD)-before, 1e-9)
}

func TestExecuteSwapPermitSignature(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		receipt:        &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful},
	}
	e, _, _ := testExecutor(t, be, ex)

	p := validParams()
	p.UsePermit = true
	res, err := e.ExecuteSwap(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, res.Permit)
	assert.Len(t, res.Permit.Signature, 65)
	assert.Equal(t, big.NewInt(1), res.Permit.Nonce)
}

func TestExecuteSwapPreflightRevertFails(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		estimateErr:    fmt.Errorf("execution reverted: Too little received"),
	}
	e, w, _ := testExecutor(t, be, ex)

	_, err := e.ExecuteSwap(context.Background(), validParams())
	require.Error(t, err)
	assert.Equal(t, types.ErrSlippageExceeded, types.KindOf(err))
	assert.Equal(t, StateFailed, e.State())
	assert.Empty(t, w.sent, "nothing submitted after a failed preflight")

	e.Reset()
	assert.Equal(t, StateIdle, e.State())
}

func TestExecuteSwapPendingOnSlowConfirmation(t *testing.T) {
	ex := &fakeExchange{}
	be := &fakeBackend{
		erc20Allowance: new(big.Int).Lsh(big.NewInt(1), 128),
		// no receipt ever
	}
	e, _, rec := testExecutor(t, be, ex)

	res, err := e.ExecuteSwap(context.Background(), validParams())
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, common.HexToHash("0xbeef"), res.TxHash)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "pending", rec.entries[0].Status)
}

func TestExecuteSwapRefusesWhenNotReady(t *testing.T) {
	e, _, _ := testExecutor(t, &fakeBackend{}, &fakeExchange{})
	e.Connect(nil)

	_, err := e.ExecuteSwap(context.Background(), validParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), IssueNoWallet)
	assert.Equal(t, StateIdle, e.State(), "readiness failures never leave idle")
}
