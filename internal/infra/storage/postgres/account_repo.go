package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vietddude/explorer/internal/core/domain"
)

// AccountRepo implements storage.AccountRepository using PostgreSQL.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new PostgreSQL account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Save upserts an account document keyed by lower-cased address.
func (r *AccountRepo) Save(ctx context.Context, account *domain.Account) error {
	doc, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}

	query := `
		INSERT INTO accounts (address, doc, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, strings.ToLower(account.Address), doc); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetByAddress retrieves an account.
func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	query := `SELECT doc FROM accounts WHERE address = $1`
	account, err := getDoc[domain.Account](ctx, r.db, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
