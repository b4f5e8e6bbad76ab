package storage

import (
	"context"

	"github.com/vietddude/explorer/internal/core/domain"
)

// Listings are most-recent-first; offset and limit are in items. Getters
// return (nil, nil) when the record does not exist.

// BlockRepository handles block storage operations
type BlockRepository interface {
	// Save upserts a block
	Save(ctx context.Context, block *domain.Block) error

	// GetByHash retrieves a block by hash
	GetByHash(ctx context.Context, hash string) (*domain.Block, error)

	// GetByNumber retrieves the canonical block at a height
	GetByNumber(ctx context.Context, number uint64) (*domain.Block, error)

	// List retrieves blocks by descending number
	List(ctx context.Context, offset, limit int) ([]*domain.Block, error)

	// Delete removes a block (e.g. when re-orged out)
	Delete(ctx context.Context, hash string) error
}

// TransactionRepository handles mined transaction storage operations
type TransactionRepository interface {
	// Save upserts a transaction
	Save(ctx context.Context, tx *domain.Transaction) error

	// GetByHash retrieves a transaction by hash
	GetByHash(ctx context.Context, hash string) (*domain.Transaction, error)

	// GetByHashes retrieves the transactions among hashes that exist, in no particular order
	GetByHashes(ctx context.Context, hashes []string) ([]*domain.Transaction, error)

	// GetByBlock retrieves a block's transactions by index
	GetByBlock(ctx context.Context, blockHash string) ([]*domain.Transaction, error)

	// List retrieves transactions by descending block number and index
	List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error)

	// ListByAddress retrieves transactions sent from or to address
	ListByAddress(ctx context.Context, address string, offset, limit int) ([]*domain.Transaction, error)

	// Count returns the number of stored transactions
	Count(ctx context.Context) (int64, error)
}

// PendingTxRepository handles pending transaction storage operations
type PendingTxRepository interface {
	// Save upserts a pending transaction
	Save(ctx context.Context, tx *domain.Transaction) error

	// GetByHash retrieves a pending transaction by hash
	GetByHash(ctx context.Context, hash string) (*domain.Transaction, error)

	// List retrieves pending transactions by descending arrival
	List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error)

	// Delete removes a pending transaction once mined or dropped
	Delete(ctx context.Context, hash string) error
}

// UncleRepository handles uncle storage operations
type UncleRepository interface {
	// Save upserts an uncle
	Save(ctx context.Context, uncle *domain.Uncle) error

	// GetByHash retrieves an uncle by hash
	GetByHash(ctx context.Context, hash string) (*domain.Uncle, error)

	// List retrieves uncles by descending number
	List(ctx context.Context, offset, limit int) ([]*domain.Uncle, error)
}

// AccountRepository handles account storage operations
type AccountRepository interface {
	// Save upserts an account
	Save(ctx context.Context, account *domain.Account) error

	// GetByAddress retrieves an account
	GetByAddress(ctx context.Context, address string) (*domain.Account, error)
}

// Repositories groups every repository the services read from.
type Repositories struct {
	Blocks   BlockRepository
	Txs      TransactionRepository
	Pending  PendingTxRepository
	Uncles   UncleRepository
	Accounts AccountRepository
}
