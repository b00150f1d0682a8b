package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/volodeveth/defio/internal/dex/core"
)

const universalRouterABI = `[
 {"inputs":[{"internalType":"bytes","name":"commands","type":"bytes"},{"internalType":"bytes[]","name":"inputs","type":"bytes[]"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"}
]`

// Builder turns a finalized SwapIntent into Universal Router calldata.
type Builder struct {
	abi    abi.ABI
	router common.Address
}

func NewBuilder(routerAddr common.Address) (*Builder, error) {
	parsed, err := abi.JSON(strings.NewReader(universalRouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse universal router abi: %w", err)
	}
	return &Builder{abi: parsed, router: routerAddr}, nil
}

func (b *Builder) Address() common.Address { return b.router }

// PlanV3Swap lays out the fixed four-step shape: pull input via permit,
// skim the platform fee, swap the remainder, sweep residual output.
func (b *Builder) PlanV3Swap(intent core.SwapIntent) (*Plan, error) {
	path, err := EncodePath([]common.Address{intent.TokenIn, intent.TokenOut}, []uint32{intent.FeeTier})
	if err != nil {
		return nil, err
	}

	p := &Plan{}
	p.Add(Permit2TransferFrom{Token: intent.TokenIn, Amount: intent.AmountIn})
	if intent.FeeBps > 0 {
		p.Add(PayPortion{
			Token:     intent.TokenIn,
			Recipient: intent.FeeRecipient,
			Bips:      big.NewInt(int64(intent.FeeBps)),
		})
	}
	p.Add(V3SwapExactIn{
		Recipient:    intent.Recipient,
		AmountIn:     intent.NetAmountIn,
		MinAmountOut: intent.MinAmountOut,
		Path:         path,
		PayerIsUser:  false, // router already holds the funds after the pull
	})
	p.Add(Sweep{Token: intent.TokenOut, Recipient: intent.Recipient, AmountMin: big.NewInt(0)})
	return p, nil
}

// BuildExecute encodes a plan into the execute(commands, inputs, deadline)
// calldata for the router.
func (b *Builder) BuildExecute(p *Plan, deadline *big.Int) (*core.SwapCall, error) {
	commands, inputs, err := p.Encode()
	if err != nil {
		return nil, err
	}
	data, err := b.abi.Pack("execute", commands, inputs, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack execute: %w", err)
	}
	return &core.SwapCall{To: b.router, Data: data, Value: big.NewInt(0)}, nil
}
