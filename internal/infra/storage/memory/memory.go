package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/infra/storage"
)

// MemoryStorage keeps every collection in maps and records each mutation
// in a change log that ChangeLog serves as a feed.
type MemoryStorage struct {
	blocks   map[string]*domain.Block
	txs      map[string]*domain.Transaction
	pending  map[string]*domain.Transaction
	arrivals map[string]int64
	arrival  int64
	uncles   map[string]*domain.Uncle
	accounts map[string]*domain.Account
	mu       sync.RWMutex

	changes *ChangeLog
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blocks:   make(map[string]*domain.Block),
		txs:      make(map[string]*domain.Transaction),
		pending:  make(map[string]*domain.Transaction),
		arrivals: make(map[string]int64),
		uncles:   make(map[string]*domain.Uncle),
		accounts: make(map[string]*domain.Account),
		changes:  NewChangeLog(),
	}
}

// Changes returns the change log fed by every write.
func (s *MemoryStorage) Changes() *ChangeLog { return s.changes }

// Repositories returns all repositories backed by s.
func (s *MemoryStorage) Repositories() storage.Repositories {
	return storage.Repositories{
		Blocks:   NewBlockRepo(s),
		Txs:      NewTxRepo(s),
		Pending:  NewPendingRepo(s),
		Uncles:   NewUncleRepo(s),
		Accounts: NewAccountRepo(s),
	}
}

func (s *MemoryStorage) record(collection, op, key string, doc any) error {
	var raw json.RawMessage
	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode %s document: %w", collection, err)
		}
		raw = data
	}
	s.changes.Append(collection, op, key, raw)
	return nil
}

func upsertOp(exists bool) string {
	if exists {
		return "update"
	}
	return "insert"
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 || offset >= len(items) || limit <= 0 {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// -----------------------------------------------------------------------------
// Block Repository
// -----------------------------------------------------------------------------

type BlockRepo struct {
	store *MemoryStorage
}

func NewBlockRepo(store *MemoryStorage) *BlockRepo {
	return &BlockRepo{store: store}
}

func (r *BlockRepo) Save(ctx context.Context, block *domain.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, exists := r.store.blocks[block.Hash]
	r.store.blocks[block.Hash] = block
	return r.store.record(storage.CollectionBlocks, upsertOp(exists), block.Hash, block)
}

func (r *BlockRepo) GetByHash(ctx context.Context, hash string) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.blocks[hash], nil
}

func (r *BlockRepo) GetByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, b := range r.store.blocks {
		if b.Number == number {
			return b, nil
		}
	}
	return nil, nil
}

func (r *BlockRepo) List(ctx context.Context, offset, limit int) ([]*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := make([]*domain.Block, 0, len(r.store.blocks))
	for _, b := range r.store.blocks {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })
	return window(all, offset, limit), nil
}

func (r *BlockRepo) Delete(ctx context.Context, hash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.blocks[hash]; !ok {
		return nil
	}
	delete(r.store.blocks, hash)
	return r.store.record(storage.CollectionBlocks, "delete", hash, nil)
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, exists := r.store.txs[tx.Hash]
	r.store.txs[tx.Hash] = tx
	return r.store.record(storage.CollectionTxs, upsertOp(exists), tx.Hash, tx)
}

func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.txs[hash], nil
}

func (r *TxRepo) GetByHashes(ctx context.Context, hashes []string) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Transaction, 0, len(hashes))
	for _, h := range hashes {
		if tx, ok := r.store.txs[h]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *TxRepo) GetByBlock(ctx context.Context, blockHash string) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range r.store.txs {
		if tx.BlockHash == blockHash {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *TxRepo) sorted(match func(*domain.Transaction) bool) []*domain.Transaction {
	var all []*domain.Transaction
	for _, tx := range r.store.txs {
		if match(tx) {
			all = append(all, tx)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber > all[j].BlockNumber
		}
		return all[i].Index > all[j].Index
	})
	return all
}

func (r *TxRepo) List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return window(r.sorted(func(*domain.Transaction) bool { return true }), offset, limit), nil
}

func (r *TxRepo) ListByAddress(
	ctx context.Context,
	address string,
	offset, limit int,
) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := r.sorted(func(tx *domain.Transaction) bool {
		return strings.EqualFold(tx.From, address) || strings.EqualFold(tx.To, address)
	})
	return window(all, offset, limit), nil
}

func (r *TxRepo) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.txs)), nil
}

// -----------------------------------------------------------------------------
// Pending Transaction Repository
// -----------------------------------------------------------------------------

type PendingRepo struct {
	store *MemoryStorage
}

func NewPendingRepo(store *MemoryStorage) *PendingRepo {
	return &PendingRepo{store: store}
}

func (r *PendingRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, exists := r.store.pending[tx.Hash]
	r.store.pending[tx.Hash] = tx
	if !exists {
		r.store.arrival++
		r.store.arrivals[tx.Hash] = r.store.arrival
	}
	return r.store.record(storage.CollectionPending, upsertOp(exists), tx.Hash, tx)
}

func (r *PendingRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.pending[hash], nil
}

func (r *PendingRepo) List(ctx context.Context, offset, limit int) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := make([]*domain.Transaction, 0, len(r.store.pending))
	for _, tx := range r.store.pending {
		all = append(all, tx)
	}
	arrivals := r.store.arrivals
	sort.Slice(all, func(i, j int) bool { return arrivals[all[i].Hash] > arrivals[all[j].Hash] })
	return window(all, offset, limit), nil
}

func (r *PendingRepo) Delete(ctx context.Context, hash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.pending[hash]; !ok {
		return nil
	}
	delete(r.store.pending, hash)
	delete(r.store.arrivals, hash)
	return r.store.record(storage.CollectionPending, "delete", hash, nil)
}

// -----------------------------------------------------------------------------
// Uncle Repository
// -----------------------------------------------------------------------------

type UncleRepo struct {
	store *MemoryStorage
}

func NewUncleRepo(store *MemoryStorage) *UncleRepo {
	return &UncleRepo{store: store}
}

func (r *UncleRepo) Save(ctx context.Context, uncle *domain.Uncle) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, exists := r.store.uncles[uncle.Hash]
	r.store.uncles[uncle.Hash] = uncle
	return r.store.record(storage.CollectionUncles, upsertOp(exists), uncle.Hash, uncle)
}

func (r *UncleRepo) GetByHash(ctx context.Context, hash string) (*domain.Uncle, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.uncles[hash], nil
}

func (r *UncleRepo) List(ctx context.Context, offset, limit int) ([]*domain.Uncle, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := make([]*domain.Uncle, 0, len(r.store.uncles))
	for _, u := range r.store.uncles {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Number != all[j].Number {
			return all[i].Number > all[j].Number
		}
		return all[i].Hash < all[j].Hash
	})
	return window(all, offset, limit), nil
}

// -----------------------------------------------------------------------------
// Account Repository
// -----------------------------------------------------------------------------

type AccountRepo struct {
	store *MemoryStorage
}

func NewAccountRepo(store *MemoryStorage) *AccountRepo {
	return &AccountRepo{store: store}
}

func (r *AccountRepo) Save(ctx context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := strings.ToLower(account.Address)
	_, exists := r.store.accounts[key]
	r.store.accounts[key] = account
	return r.store.record(storage.CollectionAccounts, upsertOp(exists), key, account)
}

func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.accounts[strings.ToLower(address)], nil
}
