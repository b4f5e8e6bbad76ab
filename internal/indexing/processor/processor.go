// Package processor keeps the recent-item stores current from bus events
// and attaches block statistics on the way in.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/indexing/bus"
	"github.com/vietddude/explorer/internal/indexing/metrics"
	"github.com/vietddude/explorer/internal/indexing/stats"
)

// Stores groups the recent-item store of every cached entity type.
type Stores struct {
	Blocks  *recent.Store[*domain.Block]
	Txs     *recent.Store[*domain.Transaction]
	Pending *recent.Store[*domain.Transaction]
	Uncles  *recent.Store[*domain.Uncle]
}

// NewStores creates empty stores with the given capacities.
func NewStores(blocks, txs, pending, uncles int) *Stores {
	return &Stores{
		Blocks:  recent.New(blocks, (*domain.Block).Key),
		Txs:     recent.New(txs, (*domain.Transaction).Key),
		Pending: recent.New(pending, (*domain.Transaction).Key),
		Uncles:  recent.New(uncles, (*domain.Uncle).Key),
	}
}

// Sizes reports the number of items each store holds, keyed by entity type.
func (s *Stores) Sizes() map[domain.EntityType]int {
	return map[domain.EntityType]int{
		domain.EntityBlock:     s.Blocks.Len(),
		domain.EntityTx:        s.Txs.Len(),
		domain.EntityPendingTx: s.Pending.Len(),
		domain.EntityUncle:     s.Uncles.Len(),
	}
}

// Processor admits inserted and updated records into the stores. Deletes
// are ignored; stores only ever gain items.
type Processor struct {
	stores *Stores
	agg    *stats.Aggregator
	log    *slog.Logger
}

// New creates a Processor.
func New(stores *Stores, agg *stats.Aggregator) *Processor {
	return &Processor{
		stores: stores,
		agg:    agg,
		log:    slog.Default().With("component", "processor"),
	}
}

// Register subscribes the processor to b. It must be registered before any
// consumer that reads the stores for the same event.
func (p *Processor) Register(b *bus.Bus) []*bus.Subscription {
	return []*bus.Subscription{
		b.Subscribe(domain.EntityBlock, "processor.blocks", p.handleBlock),
		b.Subscribe(domain.EntityTx, "processor.txs", p.handleTx),
		b.Subscribe(domain.EntityPendingTx, "processor.pending", p.handlePending),
		b.Subscribe(domain.EntityUncle, "processor.uncles", p.handleUncle),
	}
}

func (p *Processor) handleBlock(ctx context.Context, ev *domain.Event) error {
	if ev.Op == domain.OpDelete {
		return nil
	}

	var block domain.Block
	if err := decode(ev, &block); err != nil {
		p.skip(ev, "decode", err)
		return nil
	}
	if block.Hash == "" {
		block.Hash = ev.Key
	}

	if block.Stats == nil {
		st, err := p.agg.Compute(&block, block.Receipts, block.Summaries)
		if err != nil {
			p.skip(ev, "stats", err)
			return nil
		}
		block.Stats = st
	}
	// Inputs of the aggregation are not served to clients.
	block.Receipts, block.Summaries = nil, nil
	block.Seq = ev.Seq

	p.stores.Blocks.Admit(&block)
	for _, tx := range block.Transactions {
		if tx != nil && tx.Hash != "" {
			p.stores.Txs.Admit(tx)
		}
	}

	p.observe()
	return nil
}

func (p *Processor) handleTx(ctx context.Context, ev *domain.Event) error {
	if ev.Op == domain.OpDelete {
		return nil
	}
	var tx domain.Transaction
	if err := decode(ev, &tx); err != nil {
		p.skip(ev, "decode", err)
		return nil
	}
	if tx.Hash == "" {
		tx.Hash = ev.Key
	}
	p.stores.Txs.Admit(&tx)
	p.observe()
	return nil
}

func (p *Processor) handlePending(ctx context.Context, ev *domain.Event) error {
	if ev.Op == domain.OpDelete {
		return nil
	}
	var tx domain.Transaction
	if err := decode(ev, &tx); err != nil {
		p.skip(ev, "decode", err)
		return nil
	}
	if tx.Hash == "" {
		tx.Hash = ev.Key
	}
	p.stores.Pending.Admit(&tx)
	p.observe()
	return nil
}

func (p *Processor) handleUncle(ctx context.Context, ev *domain.Event) error {
	if ev.Op == domain.OpDelete {
		return nil
	}
	var uncle domain.Uncle
	if err := decode(ev, &uncle); err != nil {
		p.skip(ev, "decode", err)
		return nil
	}
	if uncle.Hash == "" {
		uncle.Hash = ev.Key
	}
	p.stores.Uncles.Admit(&uncle)
	p.observe()
	return nil
}

func decode(ev *domain.Event, dst any) error {
	if len(ev.Payload) == 0 {
		return domain.NewIntegrityError(ev.Entity, ev.Key, "empty payload")
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return domain.NewIntegrityError(ev.Entity, ev.Key, "undecodable payload: %v", err)
	}
	return nil
}

func (p *Processor) skip(ev *domain.Event, step string, err error) {
	metrics.IntegrityErrorsTotal.WithLabelValues(string(ev.Entity), step).Inc()

	var ie *domain.IntegrityError
	if errors.As(err, &ie) {
		p.log.Error("Skipping malformed record",
			"entity", ie.Entity, "key", ie.Key, "seq", ev.Seq, "step", step, "reason", ie.Reason)
		return
	}
	p.log.Error("Skipping record", "entity", ev.Entity, "key", ev.Key, "seq", ev.Seq, "step", step, "error", err)
}

func (p *Processor) observe() {
	for entity, n := range p.stores.Sizes() {
		metrics.RecentStoreSize.WithLabelValues(string(entity)).Set(float64(n))
	}
}
