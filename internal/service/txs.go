package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/infra/storage"
)

// TxService answers mined transaction queries.
type TxService struct {
	repo    storage.TransactionRepository
	pending storage.PendingTxRepository
	store   *recent.Store[*domain.Transaction]
	pages   *pager
}

// Get returns a transaction by hash, mined or still pending.
func (s *TxService) Get(ctx context.Context, hash string) (*domain.Transaction, error) {
	if tx, ok := s.store.Get(hash); ok {
		return tx, nil
	}
	tx, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return tx, nil
	}

	tx, err = s.pending.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, notFound("transaction", hash)
	}
	return tx, nil
}

// Past returns a page of mined transactions, newest first.
func (s *TxService) Past(ctx context.Context, page, limit int) ([]*domain.Transaction, error) {
	return listPage(ctx, s.pages, "txs", s.store, page, limit, s.repo.List)
}

// ByAddress returns a page of transactions sent from or to address.
func (s *TxService) ByAddress(ctx context.Context, address string, page, limit int) ([]*domain.Transaction, error) {
	address = strings.ToLower(address)
	return listPage(ctx, s.pages, "address:"+address, nil, page, limit,
		func(ctx context.Context, offset, limit int) ([]*domain.Transaction, error) {
			return s.repo.ListByAddress(ctx, address, offset, limit)
		})
}

// Total returns the number of mined transactions.
func (s *TxService) Total(ctx context.Context) (int64, error) {
	return cached(ctx, s.pages, "txs", "count:txs", func(ctx context.Context) (int64, error) {
		n, err := s.repo.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count transactions: %w", err)
		}
		return n, nil
	})
}

// PendingService answers pending transaction queries.
type PendingService struct {
	repo  storage.PendingTxRepository
	store *recent.Store[*domain.Transaction]
	pages *pager
}

// Past returns a page of pending transactions, latest arrival first.
func (s *PendingService) Past(ctx context.Context, page, limit int) ([]*domain.Transaction, error) {
	return listPage(ctx, s.pages, "pending", s.store, page, limit, s.repo.List)
}

// UncleService answers uncle queries.
type UncleService struct {
	repo  storage.UncleRepository
	store *recent.Store[*domain.Uncle]
	pages *pager
}

// Get returns an uncle by hash.
func (s *UncleService) Get(ctx context.Context, hash string) (*domain.Uncle, error) {
	if u, ok := s.store.Get(hash); ok {
		return u, nil
	}
	u, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, notFound("uncle", hash)
	}
	return u, nil
}

// Past returns a page of uncles, newest first.
func (s *UncleService) Past(ctx context.Context, page, limit int) ([]*domain.Uncle, error) {
	return listPage(ctx, s.pages, "uncles", s.store, page, limit, s.repo.List)
}

// AccountService answers account queries.
type AccountService struct {
	repo storage.AccountRepository
}

// Get returns the stored account state.
func (s *AccountService) Get(ctx context.Context, address string) (*domain.Account, error) {
	acc, err := s.repo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, notFound("account", address)
	}
	return acc, nil
}
