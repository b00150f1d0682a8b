// Package router assembles Universal Router transactions as an ordered list
// of typed instructions, encoded in a single pass. Builders produce calldata
// only; submission belongs to the swap executor.
package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Command is the router's one-byte instruction opcode.
type Command byte

const (
	CmdV3SwapExactIn       Command = 0x00
	CmdPermit2TransferFrom Command = 0x06
	CmdSweep               Command = 0x09
	CmdPayPortion          Command = 0x0b
)

// ErrInvalidPath is returned when the token list and fee list of a v3 path
// cannot interleave.
var ErrInvalidPath = fmt.Errorf("invalid path: tokens and fees length mismatch")

// Instruction is one strongly-typed router step. The concrete types below are
// the only implementations; encode switches over them exhaustively.
type Instruction interface {
	Command() Command
	encode() ([]byte, error)
}

// Permit2TransferFrom pulls the input token from the user into the router.
type Permit2TransferFrom struct {
	Token  common.Address
	Amount *big.Int
}

func (Permit2TransferFrom) Command() Command { return CmdPermit2TransferFrom }

func (in Permit2TransferFrom) encode() ([]byte, error) {
	return argsAddressUint.Pack(in.Token, in.Amount)
}

// PayPortion skims a bps share of the router's token balance to a recipient.
type PayPortion struct {
	Token     common.Address
	Recipient common.Address
	Bips      *big.Int
}

func (PayPortion) Command() Command { return CmdPayPortion }

func (in PayPortion) encode() ([]byte, error) {
	return argsAddressAddressUint.Pack(in.Token, in.Recipient, in.Bips)
}

// V3SwapExactIn executes the swap along an encoded v3 path.
type V3SwapExactIn struct {
	Recipient    common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []byte
	PayerIsUser  bool
}

func (V3SwapExactIn) Command() Command { return CmdV3SwapExactIn }

func (in V3SwapExactIn) encode() ([]byte, error) {
	return argsV3Swap.Pack(in.Recipient, in.AmountIn, in.MinAmountOut, in.Path, in.PayerIsUser)
}

// Sweep returns any residual token balance in the router to the recipient.
type Sweep struct {
	Token     common.Address
	Recipient common.Address
	AmountMin *big.Int
}

func (Sweep) Command() Command { return CmdSweep }

func (in Sweep) encode() ([]byte, error) {
	return argsAddressAddressUint.Pack(in.Token, in.Recipient, in.AmountMin)
}

// Plan is the ordered instruction list for one execute() call.
type Plan struct {
	instructions []Instruction
}

func (p *Plan) Add(in Instruction) *Plan {
	p.instructions = append(p.instructions, in)
	return p
}

func (p *Plan) Len() int { return len(p.instructions) }

func (p *Plan) Commands() []Command {
	out := make([]Command, len(p.instructions))
	for i, in := range p.instructions {
		out[i] = in.Command()
	}
	return out
}

// Encode renders the command byte string and the per-instruction ABI inputs.
func (p *Plan) Encode() (commands []byte, inputs [][]byte, err error) {
	commands = make([]byte, len(p.instructions))
	inputs = make([][]byte, len(p.instructions))
	for i, in := range p.instructions {
		commands[i] = byte(in.Command())
		inputs[i], err = in.encode()
		if err != nil {
			return nil, nil, fmt.Errorf("encode instruction %d (0x%02x): %w", i, byte(in.Command()), err)
		}
	}
	return commands, inputs, nil
}

// EncodePath interleaves token addresses with 3-byte fee identifiers, the v3
// path wire format: token|fee|token[|fee|token...].
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) != len(fees)+1 || len(fees) == 0 {
		return nil, ErrInvalidPath
	}
	path := make([]byte, 0, len(tokens)*20+len(fees)*3)
	for i, fee := range fees {
		path = append(path, tokens[i].Bytes()...)
		path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	path = append(path, tokens[len(tokens)-1].Bytes()...)
	return path, nil
}

var (
	argsAddressUint        abi.Arguments
	argsAddressAddressUint abi.Arguments
	argsV3Swap             abi.Arguments
)

func init() {
	addr := mustType("address")
	u256 := mustType("uint256")
	bys := mustType("bytes")
	boolean := mustType("bool")

	argsAddressUint = abi.Arguments{{Type: addr}, {Type: u256}}
	argsAddressAddressUint = abi.Arguments{{Type: addr}, {Type: addr}, {Type: u256}}
	argsV3Swap = abi.Arguments{{Type: addr}, {Type: u256}, {Type: u256}, {Type: bys}, {Type: boolean}}
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
