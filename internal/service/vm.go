package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/infra/rpc"
)

// balanceOfSelector is the ERC-20 balanceOf(address) selector.
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// ErrNoEngine is returned when no execution engine is configured.
var ErrNoEngine = errors.New("execution engine not configured")

// Engine executes state queries.
type Engine interface {
	Balance(ctx context.Context, address common.Address, blockHash string) (*big.Int, error)
	CallContract(ctx context.Context, msg rpc.CallMsg, blockHash string) (hexutil.Bytes, error)
}

// VMService runs state queries against the most recent block known to the
// recent-blocks store, or the engine's latest state when the store is cold.
type VMService struct {
	engine Engine
	blocks *recent.Store[*domain.Block]
}

// NewVMService creates a VMService. engine may be nil.
func NewVMService(engine Engine, blocks *recent.Store[*domain.Block]) *VMService {
	return &VMService{engine: engine, blocks: blocks}
}

func (s *VMService) pinned() string {
	if b, ok := s.blocks.First(); ok {
		return b.Hash
	}
	return ""
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalid(field + " is not a hex address")
	}
	return common.HexToAddress(value), nil
}

// Balance returns the balance of address in wei.
func (s *VMService) Balance(ctx context.Context, address string) (*hexutil.Big, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	addr, err := parseAddress("address", address)
	if err != nil {
		return nil, err
	}
	bal, err := s.engine.Balance(ctx, addr, s.pinned())
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return (*hexutil.Big)(bal), nil
}

// TokenBalance returns holder's balance of the ERC-20 token at contract.
func (s *VMService) TokenBalance(ctx context.Context, contract, holder string) (*hexutil.Big, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	to, err := parseAddress("contract", contract)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("address", holder)
	if err != nil {
		return nil, err
	}

	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(owner.Bytes(), 32)...)
	out, err := s.engine.CallContract(ctx, rpc.CallMsg{To: to, Data: data}, s.pinned())
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return (*hexutil.Big)(new(big.Int).SetBytes(out)), nil
}

// Call executes a read-only contract call.
func (s *VMService) Call(ctx context.Context, to string, data hexutil.Bytes) (hexutil.Bytes, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	addr, err := parseAddress("to", to)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.CallContract(ctx, rpc.CallMsg{To: addr, Data: data}, s.pinned())
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}
	return out, nil
}
