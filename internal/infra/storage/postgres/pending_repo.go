package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/explorer/internal/core/domain"
)

// PendingRepo implements storage.PendingTxRepository using PostgreSQL.
type PendingRepo struct {
	db *DB
}

// NewPendingRepo creates a new PostgreSQL pending transaction repository.
func NewPendingRepo(db *DB) *PendingRepo {
	return &PendingRepo{db: db}
}

// Save upserts a pending transaction; the first arrival time is kept.
func (r *PendingRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode pending transaction: %w", err)
	}

	query := `
		INSERT INTO pending_transactions (hash, doc) VALUES ($1, $2)
		ON CONFLICT (hash) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := r.db.ExecContext(ctx, query, tx.Hash, doc); err != nil {
		return fmt.Errorf("failed to save pending transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves a pending transaction by hash.
func (r *PendingRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	query := `SELECT doc FROM pending_transactions WHERE hash = $1`
	tx, err := getDoc[domain.Transaction](ctx, r.db, query, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transaction: %w", err)
	}
	return tx, nil
}

// List retrieves pending transactions, latest arrival first.
func (r *PendingRepo) List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error) {
	query := `SELECT doc FROM pending_transactions ORDER BY seen_at DESC LIMIT $1 OFFSET $2`
	txs, err := selectDocs[domain.Transaction](ctx, r.db, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

// Delete removes a pending transaction.
func (r *PendingRepo) Delete(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_transactions WHERE hash = $1`, hash); err != nil {
		return fmt.Errorf("failed to delete pending transaction: %w", err)
	}
	return nil
}
