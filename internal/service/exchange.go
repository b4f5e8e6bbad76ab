package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/infra/cache"
)

// ExchangeConfig configures rate lookups.
type ExchangeConfig struct {
	MemoTTL  time.Duration
	RateTTL  time.Duration
	Fallback map[string]float64 // "SYMBOL:CURRENCY" -> price
}

// ExchangeService serves exchange rates from a short local memo, then the
// cache store, then configured fallback rates.
type ExchangeService struct {
	cache cache.Store
	cfg   ExchangeConfig
	memo  *ttlcache.Cache[string, *domain.Quote]
	now   func() time.Time
	log   *slog.Logger
}

// NewExchangeService creates an ExchangeService and starts its memo expiry loop.
func NewExchangeService(store cache.Store, cfg ExchangeConfig) *ExchangeService {
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = 30 * time.Second
	}
	memo := ttlcache.New(ttlcache.WithTTL[string, *domain.Quote](cfg.MemoTTL))
	go memo.Start()

	return &ExchangeService{
		cache: store,
		cfg:   cfg,
		memo:  memo,
		now:   time.Now,
		log:   slog.Default().With("component", "exchange"),
	}
}

// Stop ends the memo expiry loop.
func (s *ExchangeService) Stop() { s.memo.Stop() }

func rateKey(symbol, currency string) string {
	return strings.ToUpper(symbol) + ":" + strings.ToUpper(currency)
}

// Ticker returns the rate of symbol in currency.
func (s *ExchangeService) Ticker(ctx context.Context, symbol, currency string) (*domain.Quote, error) {
	key := rateKey(symbol, currency)
	if item := s.memo.Get(key); item != nil {
		return item.Value(), nil
	}

	if s.cache != nil {
		var q domain.Quote
		found, err := s.cache.GetJSON(ctx, "rate:"+key, &q)
		if err != nil {
			s.log.Warn("Rate cache read failed", "key", key, "error", err)
		} else if found {
			s.memo.Set(key, &q, ttlcache.DefaultTTL)
			return &q, nil
		}
	}

	price, ok := s.cfg.Fallback[key]
	if !ok {
		return nil, fmt.Errorf("rate %s: %w", key, domain.ErrNotFound)
	}
	q := &domain.Quote{
		Symbol:    strings.ToUpper(symbol),
		Currency:  strings.ToUpper(currency),
		Price:     price,
		UpdatedAt: s.now().Unix(),
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, "rate:"+key, q, s.cfg.RateTTL); err != nil {
			s.log.Warn("Rate cache write failed", "key", key, "error", err)
		}
	}
	s.memo.Set(key, q, ttlcache.DefaultTTL)
	return q, nil
}
