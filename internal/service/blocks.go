package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/infra/storage"
)

// BlockService answers block queries.
type BlockService struct {
	repo  storage.BlockRepository
	txs   storage.TransactionRepository
	store *recent.Store[*domain.Block]
	pages *pager
}

// Get returns the block with the given hash.
func (s *BlockService) Get(ctx context.Context, hash string) (*domain.Block, error) {
	if b, ok := s.store.Get(hash); ok {
		return b, nil
	}
	b, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("block", hash)
	}
	return b, nil
}

// GetByNumber returns the block at the given height.
func (s *BlockService) GetByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	for _, b := range s.store.Snapshot() {
		if b.Number == number {
			return b, nil
		}
	}
	b, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("block", strconv.FormatUint(number, 10))
	}
	return b, nil
}

// Past returns a page of blocks, newest first.
func (s *BlockService) Past(ctx context.Context, page, limit int) ([]*domain.Block, error) {
	return listPage(ctx, s.pages, "blocks", s.store, page, limit, s.repo.List)
}

// Transactions returns the transactions of a block in block order.
func (s *BlockService) Transactions(ctx context.Context, hash string) ([]*domain.Transaction, error) {
	block, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if len(block.Transactions) > 0 {
		return block.Transactions, nil
	}
	if len(block.TxHashes) == 0 {
		return s.txs.GetByBlock(ctx, hash)
	}

	found, err := s.txs.GetByHashes(ctx, block.TxHashes)
	if err != nil {
		return nil, fmt.Errorf("failed to load block transactions: %w", err)
	}
	byHash := make(map[string]*domain.Transaction, len(found))
	for _, tx := range found {
		byHash[tx.Hash] = tx
	}
	out := make([]*domain.Transaction, 0, len(block.TxHashes))
	for _, h := range block.TxHashes {
		if tx, ok := byHash[h]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}
