// Package service answers client queries from the recent-item stores, the
// cache store, the durable store and the execution engine, in that order of
// preference.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/indexing/metrics"
	"github.com/vietddude/explorer/internal/indexing/processor"
	"github.com/vietddude/explorer/internal/infra/cache"
	"github.com/vietddude/explorer/internal/infra/storage"
)

// Deps are the collaborators shared by all services.
type Deps struct {
	Repos    storage.Repositories
	Stores   *processor.Stores
	Cache    cache.Store
	PageTTL  time.Duration
	Engine   Engine // nil when no engine is configured
	Exchange ExchangeConfig
}

// Services bundles every query service.
type Services struct {
	Blocks   *BlockService
	Txs      *TxService
	Pending  *PendingService
	Uncles   *UncleService
	Accounts *AccountService
	VM       *VMService
	Exchange *ExchangeService
}

// New wires the services.
func New(d Deps) *Services {
	pages := &pager{cache: d.Cache, ttl: d.PageTTL, log: slog.Default().With("component", "service")}
	vm := NewVMService(d.Engine, d.Stores.Blocks)

	return &Services{
		Blocks:   &BlockService{repo: d.Repos.Blocks, txs: d.Repos.Txs, store: d.Stores.Blocks, pages: pages},
		Txs:      &TxService{repo: d.Repos.Txs, pending: d.Repos.Pending, store: d.Stores.Txs, pages: pages},
		Pending:  &PendingService{repo: d.Repos.Pending, store: d.Stores.Pending, pages: pages},
		Uncles:   &UncleService{repo: d.Repos.Uncles, store: d.Stores.Uncles, pages: pages},
		Accounts: &AccountService{repo: d.Repos.Accounts},
		VM:       vm,
		Exchange: NewExchangeService(d.Cache, d.Exchange),
	}
}

// Stop releases background resources.
func (s *Services) Stop() {
	s.Exchange.Stop()
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %s: %w", kind, key, domain.ErrNotFound)
}

func invalid(detail string) error {
	return &domain.ValidationError{Details: []string{detail}}
}

// pager serves paged listings from a recent store window, then the cache
// store, then the durable store.
type pager struct {
	cache cache.Store
	ttl   time.Duration
	log   *slog.Logger
}

func listPage[T any](
	ctx context.Context,
	p *pager,
	kind string,
	store *recent.Store[T],
	page, limit int,
	durable func(ctx context.Context, offset, limit int) ([]T, error),
) ([]T, error) {
	if page < 0 || limit <= 0 {
		return nil, invalid("page must be >= 0 and limit > 0")
	}
	if page > (math.MaxInt-limit)/limit {
		return nil, invalid(fmt.Sprintf("page %d out of range", page))
	}
	offset := page * limit

	if store != nil {
		if items, ok := store.Page(offset, limit); ok {
			metrics.CacheLookupsTotal.WithLabelValues(kind, "recent").Inc()
			return items, nil
		}
	}

	key := fmt.Sprintf("page:%s:%d:%d", kind, page, limit)
	return cached(ctx, p, kind, key, func(ctx context.Context) ([]T, error) {
		return durable(ctx, offset, limit)
	})
}

// cached reads key from the cache store, falling back to load and writing
// the loaded value back. Cache failures only cost a durable read.
func cached[T any](
	ctx context.Context,
	p *pager,
	kind, key string,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	if p.cache != nil {
		found, err := p.cache.GetJSON(ctx, key, &out)
		if err != nil {
			p.log.Warn("Cache read failed", "key", key, "error", err)
		} else if found {
			metrics.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
			return out, nil
		}
	}
	metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()

	out, err := load(ctx)
	if err != nil {
		return out, err
	}

	if p.cache != nil {
		if err := p.cache.SetJSON(ctx, key, out, p.ttl); err != nil {
			p.log.Warn("Cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}
