// Package tokens holds the tradeable-token whitelist and batched balance
// lookups, including the native-ETH pseudo token.
package tokens

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/multicall"
	"github.com/volodeveth/defio/internal/types"
)

const balanceOfABIJSON = `[
 {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"type":"uint256"}]}
]`

// NativeBalancer reads the chain-native balance; *ethclient.Client satisfies it.
type NativeBalancer interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Registry struct {
	log    *zap.Logger
	mc     multicall.IClient
	native NativeBalancer
	erc20  abi.ABI

	list  []types.Token
	byKey map[string]types.Token // lowercase address, plus upper symbol
}

func NewRegistry(cfg *config.Config, log *zap.Logger, mc multicall.IClient, native NativeBalancer) (*Registry, error) {
	erc20, err := abi.JSON(strings.NewReader(balanceOfABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	r := &Registry{
		log:    log,
		mc:     mc,
		native: native,
		erc20:  erc20,
		byKey:  make(map[string]types.Token),
	}
	for _, tc := range cfg.Tokens {
		t := types.Token{
			Address:  common.HexToAddress(tc.Address),
			Symbol:   tc.Symbol,
			Name:     tc.Name,
			Decimals: tc.Decimals,
		}
		r.list = append(r.list, t)
		r.byKey[strings.ToLower(t.Address.Hex())] = t
		r.byKey[strings.ToUpper(t.Symbol)] = t
	}
	eth := types.Token{Address: types.NativeETH, Symbol: "ETH", Name: "Ether", Decimals: 18}
	r.byKey[strings.ToLower(eth.Address.Hex())] = eth
	r.byKey["ETH"] = eth
	return r, nil
}

// List returns the whitelist without the native pseudo token.
func (r *Registry) List() []types.Token {
	out := make([]types.Token, len(r.list))
	copy(out, r.list)
	return out
}

// Lookup resolves a token by hex address or symbol.
func (r *Registry) Lookup(key string) (types.Token, bool) {
	if strings.HasPrefix(key, "0x") || strings.HasPrefix(key, "0X") {
		t, ok := r.byKey[strings.ToLower(common.HexToAddress(key).Hex())]
		return t, ok
	}
	t, ok := r.byKey[strings.ToUpper(key)]
	return t, ok
}

// Balances fetches every whitelist balance in one multicall batch plus the
// native balance, and returns tokens with Balance set. A failed individual
// call leaves that token's balance nil.
func (r *Registry) Balances(ctx context.Context, owner common.Address) ([]types.Token, error) {
	data, err := r.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	calls := make([]multicall.Call, len(r.list))
	for i, t := range r.list {
		calls[i] = multicall.Call{Target: t.Address, CallData: data}
	}
	results, err := r.mc.TryAggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("balance batch: %w", err)
	}

	out := make([]types.Token, len(r.list))
	copy(out, r.list)
	for i, res := range results {
		if !res.Success {
			r.log.Debug("balanceOf failed", zap.String("token", out[i].Symbol))
			continue
		}
		vals, err := r.erc20.Unpack("balanceOf", res.Data)
		if err != nil {
			continue
		}
		out[i].Balance = vals[0].(*big.Int)
	}

	if r.native != nil {
		eth := types.Token{Address: types.NativeETH, Symbol: "ETH", Name: "Ether", Decimals: 18}
		if bal, err := r.native.BalanceAt(ctx, owner, nil); err == nil {
			eth.Balance = bal
		} else {
			r.log.Debug("native balance failed", zap.Error(err))
		}
		out = append(out, eth)
	}
	return out, nil
}
