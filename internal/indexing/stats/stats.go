// Package stats derives per-block metrics from receipts and execution summaries.
package stats

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/explorer/internal/core/domain"
)

// Aggregator computes BlockStats. The zero value is not usable; use New.
type Aggregator struct {
	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock used for block time.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute aggregates one block. Block time is the wall-clock time elapsed
// since the block timestamp at the moment of the call, so it is a snapshot
// value and differs between runs; every other field depends on inputs only.
//
// A receipt without gas fields yields an IntegrityError.
func (a *Aggregator) Compute(
	block *domain.Block,
	receipts []*domain.Receipt,
	summaries []*domain.ExecutionSummary,
) (*domain.BlockStats, error) {
	internalByTx := make(map[string]int, len(summaries))
	for _, s := range summaries {
		if s == nil {
			continue
		}
		internalByTx[s.TxHash] = s.InternalTransactions
	}

	var (
		successful, failed, internal int
		totalGasPrice                = new(big.Int)
		totalFees                    = new(big.Int)
	)

	for i, r := range receipts {
		if r == nil {
			return nil, domain.NewIntegrityError(domain.EntityBlock, block.Hash, "receipt %d is null", i)
		}
		if r.GasUsed == nil || r.GasPrice == nil {
			return nil, domain.NewIntegrityError(
				domain.EntityBlock, block.Hash,
				"receipt %d (%s) is missing gas fields", i, r.TxHash,
			)
		}

		if r.Succeeded() {
			successful++
		} else {
			failed++
		}

		price := r.GasPrice.ToInt()
		totalGasPrice.Add(totalGasPrice, price)
		totalFees.Add(totalFees, new(big.Int).Mul(r.GasUsed.ToInt(), price))

		// No summary for the tx means it made no internal calls.
		internal += internalByTx[r.TxHash]
	}

	total := len(receipts)
	avgGasPrice := new(big.Int)
	avgFees := new(big.Int)
	if total > 0 {
		n := big.NewInt(int64(total))
		avgGasPrice.Quo(totalGasPrice, n)
		avgFees.Quo(totalFees, n)
	}

	blockTime := a.now().Sub(time.Unix(int64(block.Timestamp), 0))

	return &domain.BlockStats{
		BlockTimeMs:      blockTime.Milliseconds(),
		SuccessfulTxs:    successful,
		FailedTxs:        failed,
		TotalTxs:         total,
		TotalInternalTxs: internal,
		TotalGasPrice:    (*hexutil.Big)(totalGasPrice),
		AvgGasPrice:      (*hexutil.Big)(avgGasPrice),
		TotalTxFees:      (*hexutil.Big)(totalFees),
		AvgTxFees:        (*hexutil.Big)(avgFees),
	}, nil
}
