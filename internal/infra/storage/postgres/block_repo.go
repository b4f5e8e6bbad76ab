package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/explorer/internal/core/domain"
)

// BlockRepo implements storage.BlockRepository using PostgreSQL.
type BlockRepo struct {
	db *DB
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Save upserts a block document.
func (r *BlockRepo) Save(ctx context.Context, block *domain.Block) error {
	doc, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}

	query := `
		INSERT INTO blocks (hash, number, doc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (hash) DO UPDATE SET
			number = EXCLUDED.number,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, block.Hash, block.Number, doc); err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

// GetByHash retrieves a block by hash.
func (r *BlockRepo) GetByHash(ctx context.Context, hash string) (*domain.Block, error) {
	block, err := getDoc[domain.Block](ctx, r.db, `SELECT doc FROM blocks WHERE hash = $1`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

// GetByNumber retrieves the most recently written block at a height.
func (r *BlockRepo) GetByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	query := `SELECT doc FROM blocks WHERE number = $1 ORDER BY updated_at DESC LIMIT 1`
	block, err := getDoc[domain.Block](ctx, r.db, query, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get block by number: %w", err)
	}
	return block, nil
}

// List retrieves blocks by descending number.
func (r *BlockRepo) List(ctx context.Context, offset, limit int) ([]*domain.Block, error) {
	query := `SELECT doc FROM blocks ORDER BY number DESC LIMIT $1 OFFSET $2`
	blocks, err := selectDocs[domain.Block](ctx, r.db, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

// Delete removes a block.
func (r *BlockRepo) Delete(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE hash = $1`, hash); err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}
