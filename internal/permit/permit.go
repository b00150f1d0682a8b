// Package permit manages Permit2 gasless approvals: the one-time ERC20
// approval that delegates to the Permit2 contract, and the per-swap EIP-712
// PermitTransferFrom signatures the router consumes.
package permit

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/types"
	"github.com/volodeveth/defio/internal/wallet"
)

const erc20ABIJSON = `[
 {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"type":"uint256"}]},
 {"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}
]`

const permit2ABIJSON = `[
 {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"address"},{"name":"","type":"address"}],"outputs":[{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"},{"name":"nonce","type":"uint48"}]}
]`

// MaxUint256 is the infinite-approval amount for the one-time ERC20 step.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Backend is the read slice of the RPC client plus receipt lookup.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// AllowanceStatus reports whether a swap can proceed by signature alone.
type AllowanceStatus struct {
	ERC20Allowance *big.Int // owner -> Permit2
	NeedsApproval  bool     // ERC20 allowance below the requested amount
}

// Signature is a signed PermitTransferFrom ready for the router.
type Signature struct {
	Token     common.Address
	Amount    *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
	Signature []byte
}

type Manager struct {
	log     *zap.Logger
	be      Backend
	permit2 common.Address
	chainID int64

	erc20 abi.ABI
	p2    abi.ABI

	poll time.Duration // receipt poll interval
}

func NewManager(log *zap.Logger, be Backend, permit2 common.Address, chainID int64) (*Manager, error) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	p2, err := abi.JSON(strings.NewReader(permit2ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse permit2 abi: %w", err)
	}
	return &Manager{log: log, be: be, permit2: permit2, chainID: chainID, erc20: erc20, p2: p2, poll: 2 * time.Second}, nil
}

// SetPollInterval overrides how often ApproveOnChain polls for the receipt.
func (m *Manager) SetPollInterval(d time.Duration) { m.poll = d }

// CheckAllowance reads the owner's ERC20 allowance toward Permit2 and
// decides whether an on-chain approval is still required for amount.
func (m *Manager) CheckAllowance(ctx context.Context, owner, token common.Address, amount *big.Int) (*AllowanceStatus, error) {
	data, err := m.erc20.Pack("allowance", owner, m.permit2)
	if err != nil {
		return nil, err
	}
	out, err := m.be.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("read erc20 allowance: %w", err)
	}
	vals, err := m.erc20.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("decode erc20 allowance: %w", err)
	}
	allow := vals[0].(*big.Int)
	return &AllowanceStatus{
		ERC20Allowance: allow,
		NeedsApproval:  allow.Cmp(amount) < 0,
	}, nil
}

// Nonce reads the current Permit2 nonce for (owner, token, spender). It is
// read fresh before every signature; reusing a consumed nonce makes the
// router revert with InvalidNonce.
func (m *Manager) Nonce(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	data, err := m.p2.Pack("allowance", owner, token, spender)
	if err != nil {
		return nil, err
	}
	out, err := m.be.CallContract(ctx, ethereum.CallMsg{To: &m.permit2, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("read permit2 nonce: %w", err)
	}
	vals, err := m.p2.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("decode permit2 allowance: %w", err)
	}
	return vals[2].(*big.Int), nil
}

// SigValidity is how long a signed permit stays usable when the caller
// does not pass an explicit deadline.
const SigValidity = time.Hour

// CreatePermit reads a fresh nonce, builds the PermitTransferFrom typed
// data, and has the wallet sign it. A nil deadline defaults to SigValidity
// from now. A rejected signature maps onto the signature_rejected error
// kind.
func (m *Manager) CreatePermit(ctx context.Context, w wallet.Wallet, token common.Address, amount *big.Int, spender common.Address, deadline *big.Int) (*Signature, error) {
	if deadline == nil {
		deadline = big.NewInt(time.Now().Add(SigValidity).Unix())
	}
	nonce, err := m.Nonce(ctx, w.Address(), token, spender)
	if err != nil {
		return nil, err
	}

	td := m.typedData(token, amount, spender, nonce, deadline)
	sig, err := w.SignTypedData(td)
	if err != nil {
		return nil, &types.SwapError{
			Kind:    types.ErrSignatureRejected,
			Message: "Signature request was rejected",
		}
	}
	m.log.Debug("permit signed",
		zap.String("token", token.Hex()),
		zap.String("nonce", nonce.String()),
	)
	return &Signature{
		Token:     token,
		Amount:    amount,
		Nonce:     nonce,
		Deadline:  deadline,
		Signature: sig,
	}, nil
}

func (m *Manager) typedData(token common.Address, amount *big.Int, spender common.Address, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitTransferFrom": {
				{Name: "permitted", Type: "TokenPermissions"},
				{Name: "spender", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
			"TokenPermissions": {
				{Name: "token", Type: "address"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "PermitTransferFrom",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			ChainId:           math.NewHexOrDecimal256(m.chainID),
			VerifyingContract: m.permit2.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": map[string]interface{}{
				"token":  token.Hex(),
				"amount": (*math.HexOrDecimal256)(amount),
			},
			"spender":  spender.Hex(),
			"nonce":    (*math.HexOrDecimal256)(nonce),
			"deadline": (*math.HexOrDecimal256)(deadline),
		},
	}
}

// ApproveOnChain performs the fallback ERC20 approve of Permit2 for
// MaxUint256 and waits until the transaction is mined or ctx ends.
func (m *Manager) ApproveOnChain(ctx context.Context, w wallet.Wallet, token common.Address) (common.Hash, error) {
	data, err := m.erc20.Pack("approve", m.permit2, MaxUint256)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := w.SendTransaction(ctx, token, data, nil, 80_000)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send approve: %w", err)
	}
	m.log.Info("approval submitted", zap.String("tx", hash.Hex()))

	t := time.NewTicker(m.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return hash, ctx.Err()
		case <-t.C:
			rcpt, err := m.be.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
				return hash, fmt.Errorf("approve tx %s reverted", hash.Hex())
			}
			return hash, nil
		}
	}
}
