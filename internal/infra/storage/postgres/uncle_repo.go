package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/explorer/internal/core/domain"
)

// UncleRepo implements storage.UncleRepository using PostgreSQL.
type UncleRepo struct {
	db *DB
}

// NewUncleRepo creates a new PostgreSQL uncle repository.
func NewUncleRepo(db *DB) *UncleRepo {
	return &UncleRepo{db: db}
}

// Save upserts an uncle document.
func (r *UncleRepo) Save(ctx context.Context, uncle *domain.Uncle) error {
	doc, err := json.Marshal(uncle)
	if err != nil {
		return fmt.Errorf("failed to encode uncle: %w", err)
	}

	query := `
		INSERT INTO uncles (hash, number, doc) VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO UPDATE SET number = EXCLUDED.number, doc = EXCLUDED.doc
	`
	if _, err := r.db.ExecContext(ctx, query, uncle.Hash, uncle.Number, doc); err != nil {
		return fmt.Errorf("failed to save uncle: %w", err)
	}
	return nil
}

// GetByHash retrieves an uncle by hash.
func (r *UncleRepo) GetByHash(ctx context.Context, hash string) (*domain.Uncle, error) {
	uncle, err := getDoc[domain.Uncle](ctx, r.db, `SELECT doc FROM uncles WHERE hash = $1`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get uncle: %w", err)
	}
	return uncle, nil
}

// List retrieves uncles by descending number.
func (r *UncleRepo) List(ctx context.Context, offset, limit int) ([]*domain.Uncle, error) {
	query := `SELECT doc FROM uncles ORDER BY number DESC, hash LIMIT $1 OFFSET $2`
	uncles, err := selectDocs[domain.Uncle](ctx, r.db, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncles: %w", err)
	}
	return uncles, nil
}
