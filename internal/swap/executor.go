// Package swap drives a swap end to end: readiness checks, fee math,
// approval or permit, preflight, submission, and confirmation tracking.
package swap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/dex/core"
	"github.com/volodeveth/defio/internal/fees"
	imetrics "github.com/volodeveth/defio/internal/metrics"
	"github.com/volodeveth/defio/internal/permit"
	"github.com/volodeveth/defio/internal/types"
	"github.com/volodeveth/defio/internal/wallet"
)

// State is the executor's position in the swap lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateApproving State = "approving"
	StateSwapping  State = "swapping"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Readiness issue strings surfaced to the UI.
const (
	IssueNoWallet     = "Wallet not connected"
	IssueNoQuote      = "No valid quote available"
	IssueBadAmount    = "Invalid input amount"
	IssueSlippageHigh = "Slippage tolerance too high"
)

// Backend is the RPC surface the executor needs beyond the wallet.
type Backend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Recorder receives activity entries; nil disables recording.
type Recorder interface {
	Record(ctx context.Context, e types.ActivityEntry)
}

// Result is the terminal report of one ExecuteSwap call.
type Result struct {
	ID      string
	State   State
	TxHash  common.Hash
	Pending bool // confirmation window elapsed with the tx still in flight
	Permit  *permit.Signature
	Receipt *gethtypes.Receipt
}

type Executor struct {
	log     *zap.Logger
	cfg     *config.Config
	reg     *core.Registry
	fees    *fees.Calculator
	permits *permit.Manager
	be      Backend
	rec     Recorder

	mu    sync.Mutex
	state State
	w     wallet.Wallet

	poll time.Duration
}

func NewExecutor(log *zap.Logger, cfg *config.Config, reg *core.Registry, fc *fees.Calculator, pm *permit.Manager, be Backend, rec Recorder) *Executor {
	return &Executor{
		log:     log,
		cfg:     cfg,
		reg:     reg,
		fees:    fc,
		permits: pm,
		be:      be,
		rec:     rec,
		state:   StateIdle,
		poll:    2 * time.Second,
	}
}

// Connect attaches the signing wallet. A nil wallet disconnects.
func (e *Executor) Connect(w wallet.Wallet) {
	e.mu.Lock()
	e.w = w
	e.mu.Unlock()
}

func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reset returns a terminal executor to idle for the next swap.
func (e *Executor) Reset() {
	e.setState(StateIdle)
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		e.log.Debug("swap state", zap.String("from", string(prev)), zap.String("to", string(s)))
	}
}

func (e *Executor) walletOrNil() wallet.Wallet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w
}

// Readiness collects every blocking issue at once so the UI can show them
// all, rather than failing on the first.
func (e *Executor) Readiness(p types.SwapExecutionParams) []string {
	var issues []string
	if e.walletOrNil() == nil {
		issues = append(issues, IssueNoWallet)
	}
	if p.Quote == nil || p.Quote.AmountOut == nil || p.Quote.AmountOut.Sign() <= 0 {
		issues = append(issues, IssueNoQuote)
	}
	if in, err := amount.ParseUnits(p.AmountIn, p.DecimalsIn); err != nil || in.Sign() <= 0 {
		issues = append(issues, IssueBadAmount)
	}
	if p.SlippageBps < 0 || p.SlippageBps > e.cfg.Fees.MaxSlippageBps {
		issues = append(issues, IssueSlippageHigh)
	}
	return issues
}

func (e *Executor) IsSwapReady(p types.SwapExecutionParams) bool {
	return len(e.Readiness(p)) == 0
}

// prepared carries one swap attempt's assembled transaction and fee math.
type prepared struct {
	in       *big.Int
	calc     fees.Calculation
	deadline *big.Int
	call     *core.SwapCall
	msg      ethereum.CallMsg
}

// prepare parses the amount, skims the fee, and builds the venue call.
// EstimateGas, Simulate, and ExecuteSwap all go through here so the
// preflight operations see the exact transaction that would be sent.
func (e *Executor) prepare(p types.SwapExecutionParams, w wallet.Wallet) (*prepared, error) {
	if p.Quote == nil {
		return nil, types.NewSwapError(types.ErrUnknownSwapFailure, IssueNoQuote)
	}
	in, err := amount.ParseUnits(p.AmountIn, p.DecimalsIn)
	if err != nil {
		return nil, types.NewSwapError(types.ErrUnknownSwapFailure, IssueBadAmount)
	}
	calc := e.fees.Calculate(in, p.DecimalsIn, p.TokenInPriceUSD, false)
	deadline := p.Deadline
	if deadline == nil {
		deadline = big.NewInt(time.Now().Add(e.cfg.SwapDeadline()).Unix())
	}

	ex, ok := e.reg.ByID(p.Quote.Exchange)
	if !ok {
		return nil, types.ErrNoRoute
	}
	call, err := ex.BuildSwapCall(core.SwapIntent{
		TokenIn:      p.TokenIn,
		TokenOut:     p.TokenOut,
		AmountIn:     in,
		NetAmountIn:  calc.NetAmount,
		MinAmountOut: fees.MinAmountOut(p.Quote.AmountOut, p.SlippageBps),
		Recipient:    w.Address(),
		Deadline:     deadline,
		FeeBps:       e.fees.PlatformFeeBps(),
		FeeRecipient: e.fees.Recipient(),
		FeeTier:      p.Quote.FeeTier,
		StablePool:   p.Quote.StablePool,
	})
	if err != nil {
		return nil, err
	}
	return &prepared{
		in:       in,
		calc:     calc,
		deadline: deadline,
		call:     call,
		msg:      ethereum.CallMsg{From: w.Address(), To: &call.To, Data: call.Data, Value: call.Value},
	}, nil
}

// EstimateGas builds the swap transaction and asks the node for a gas
// estimate without submitting anything or touching executor state.
func (e *Executor) EstimateGas(ctx context.Context, p types.SwapExecutionParams) (uint64, error) {
	w := e.walletOrNil()
	if w == nil {
		return 0, types.NewSwapError(types.ErrUnknownSwapFailure, IssueNoWallet)
	}
	pr, err := e.prepare(p, w)
	if err != nil {
		return 0, err
	}
	gas, err := e.be.EstimateGas(ctx, pr.msg)
	if err != nil {
		return 0, types.DecodeSwapError(err)
	}
	return gas, nil
}

// Simulate dry-runs the swap transaction against latest state. A revert
// comes back as a decoded swap error; nothing is sent on-chain.
func (e *Executor) Simulate(ctx context.Context, p types.SwapExecutionParams) error {
	w := e.walletOrNil()
	if w == nil {
		return types.NewSwapError(types.ErrUnknownSwapFailure, IssueNoWallet)
	}
	pr, err := e.prepare(p, w)
	if err != nil {
		return err
	}
	if _, err := e.be.CallContract(ctx, pr.msg, nil); err != nil {
		return types.DecodeSwapError(err)
	}
	return nil
}

// ExecuteSwap runs the full lifecycle for one swap attempt. Each call gets
// a fresh tracking ID. On failure the state lands on failed and the error
// carries the decoded classification; Reset readies the next attempt.
func (e *Executor) ExecuteSwap(ctx context.Context, p types.SwapExecutionParams) (*Result, error) {
	if issues := e.Readiness(p); len(issues) > 0 {
		return nil, types.NewSwapError(types.ErrUnknownSwapFailure, strings.Join(issues, "; "))
	}
	w := e.walletOrNil()
	res := &Result{ID: trackingID()}
	log := e.log.With(zap.String("swap_id", res.ID))

	pr, err := e.prepare(p, w)
	if err != nil {
		return nil, e.fail(ctx, res, p, err)
	}

	// approval phase
	e.setState(StateApproving)
	st, err := e.permits.CheckAllowance(ctx, w.Address(), p.TokenIn, pr.in)
	if err != nil {
		return nil, e.fail(ctx, res, p, err)
	}
	if st.NeedsApproval {
		hash, err := e.permits.ApproveOnChain(ctx, w, p.TokenIn)
		if err != nil {
			return nil, e.fail(ctx, res, p, err)
		}
		log.Info("erc20 approval mined", zap.String("tx", hash.Hex()))
		e.record(ctx, p, types.ActivityApprove, hash.Hex(), "confirmed")
	}
	if p.UsePermit {
		sig, err := e.permits.CreatePermit(ctx, w, p.TokenIn, pr.in, pr.call.To, pr.deadline)
		if err != nil {
			return nil, e.fail(ctx, res, p, err)
		}
		res.Permit = sig
	}

	// preflight: estimate then simulate against latest state
	gas, err := e.be.EstimateGas(ctx, pr.msg)
	if err != nil {
		return nil, e.fail(ctx, res, p, err)
	}
	if _, err := e.be.CallContract(ctx, pr.msg, nil); err != nil {
		return nil, e.fail(ctx, res, p, err)
	}
	gas = gas + gas/5
	if limit := e.cfg.Chain.GasLimitSwap; gas > limit {
		gas = limit
	}

	e.setState(StateSwapping)
	txHash, err := w.SendTransaction(ctx, pr.call.To, pr.call.Data, pr.call.Value, gas)
	if err != nil {
		return nil, e.fail(ctx, res, p, err)
	}
	res.TxHash = txHash
	log.Info("swap submitted",
		zap.String("tx", txHash.Hex()),
		zap.String("exchange", string(p.Quote.Exchange)),
		zap.Uint64("gas", gas),
	)

	rcpt, pending, err := e.waitMined(ctx, txHash)
	if err != nil {
		return nil, e.fail(ctx, res, p, err)
	}
	if pending {
		res.Pending = true
		res.State = StateSwapping
		e.record(ctx, p, types.ActivitySwap, txHash.Hex(), "pending")
		imetrics.SwapsExecuted.WithLabelValues("pending").Inc()
		return res, nil
	}
	res.Receipt = rcpt

	e.setState(StateConfirmed)
	res.State = StateConfirmed
	e.record(ctx, p, types.ActivitySwap, txHash.Hex(), "confirmed")
	imetrics.SwapsExecuted.WithLabelValues("confirmed").Inc()
	if pr.calc.FeeUSD > 0 {
		imetrics.FeesCollectedUSD.Add(pr.calc.FeeUSD)
	}
	return res, nil
}

// waitMined polls for the receipt within the confirmation window. Returning
// pending=true means the window elapsed without the tx landing.
func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, bool, error) {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout())
	defer cancel()

	t := time.NewTicker(e.poll)
	defer t.Stop()
	for {
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, true, nil
		case <-t.C:
			rcpt, err := e.be.TransactionReceipt(wctx, hash)
			if err != nil {
				continue
			}
			if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, false, fmt.Errorf("swap tx %s reverted", hash.Hex())
			}
			return rcpt, false, nil
		}
	}
}

func (e *Executor) fail(ctx context.Context, res *Result, p types.SwapExecutionParams, err error) error {
	e.setState(StateFailed)
	res.State = StateFailed
	decoded := types.DecodeSwapError(err)
	e.log.Warn("swap failed",
		zap.String("swap_id", res.ID),
		zap.String("kind", string(decoded.Kind)),
		zap.Error(err),
	)
	tx := ""
	if res.TxHash != (common.Hash{}) {
		tx = res.TxHash.Hex()
	}
	e.record(ctx, p, types.ActivitySwap, tx, "failed")
	imetrics.SwapsExecuted.WithLabelValues("failed").Inc()
	return decoded
}

func (e *Executor) record(ctx context.Context, p types.SwapExecutionParams, kind types.ActivityKind, tx, status string) {
	if e.rec == nil {
		return
	}
	entry := types.ActivityEntry{
		Kind:     kind,
		TokenIn:  p.TokenIn.Hex(),
		TokenOut: p.TokenOut.Hex(),
		AmountIn: p.AmountIn,
		TxHash:   tx,
		Status:   status,
		Ts:       time.Now(),
	}
	if p.Quote != nil {
		entry.Exchange = p.Quote.Exchange
		entry.AmountOut = p.Quote.AmountOutRaw
	}
	e.rec.Record(ctx, entry)
}

func trackingID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("defio_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
