package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/explorer/internal/core/domain"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// Save upserts a transaction document.
func (r *TxRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	query := `
		INSERT INTO transactions (hash, block_hash, block_number, tx_index, from_address, to_address, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			block_number = EXCLUDED.block_number,
			tx_index = EXCLUDED.tx_index,
			doc = EXCLUDED.doc
	`
	_, err = r.db.ExecContext(ctx, query,
		tx.Hash, tx.BlockHash, tx.BlockNumber, tx.Index,
		strings.ToLower(tx.From), strings.ToLower(tx.To), doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves a transaction by hash.
func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	tx, err := getDoc[domain.Transaction](ctx, r.db, `SELECT doc FROM transactions WHERE hash = $1`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// GetByHashes retrieves every stored transaction among hashes.
func (r *TxRepo) GetByHashes(ctx context.Context, hashes []string) ([]*domain.Transaction, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	query := `SELECT doc FROM transactions WHERE hash = ANY($1)`
	txs, err := selectDocs[domain.Transaction](ctx, r.db, query, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by hashes: %w", err)
	}
	return txs, nil
}

// GetByBlock retrieves the transactions of a block in index order.
func (r *TxRepo) GetByBlock(ctx context.Context, blockHash string) ([]*domain.Transaction, error) {
	query := `SELECT doc FROM transactions WHERE block_hash = $1 ORDER BY tx_index`
	txs, err := selectDocs[domain.Transaction](ctx, r.db, query, blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by block: %w", err)
	}
	return txs, nil
}

// List retrieves transactions newest first.
func (r *TxRepo) List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error) {
	query := `SELECT doc FROM transactions ORDER BY block_number DESC, tx_index DESC LIMIT $1 OFFSET $2`
	txs, err := selectDocs[domain.Transaction](ctx, r.db, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// ListByAddress retrieves transactions sent from or to address, newest first.
func (r *TxRepo) ListByAddress(
	ctx context.Context,
	address string,
	offset, limit int,
) ([]*domain.Transaction, error) {
	query := `
		SELECT doc FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_number DESC, tx_index DESC
		LIMIT $2 OFFSET $3
	`
	txs, err := selectDocs[domain.Transaction](ctx, r.db, query, strings.ToLower(address), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by address: %w", err)
	}
	return txs, nil
}

// Count returns the number of stored transactions.
func (r *TxRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions`); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
