package stats

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/explorer/internal/core/domain"
)

func hb(v int64) *hexutil.Big { return (*hexutil.Big)(big.NewInt(v)) }

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestCompute(t *testing.T) {
	block := &domain.Block{Hash: "0xb1", Timestamp: 1_700_000_000}
	receipts := []*domain.Receipt{
		{TxHash: "0x1", Status: 1, GasUsed: hb(21000), GasPrice: hb(10)},
		{TxHash: "0x2", Status: 0, GasUsed: hb(50000), GasPrice: hb(20)},
		{TxHash: "0x3", Status: 1, GasUsed: hb(30000), GasPrice: hb(30)},
	}
	summaries := []*domain.ExecutionSummary{
		{TxHash: "0x1", InternalTransactions: 2},
		{TxHash: "0x3", InternalTransactions: 5},
		{TxHash: "0xunrelated", InternalTransactions: 100},
	}

	agg := New(fixedClock(time.Unix(1_700_000_015, 0)))
	got, err := agg.Compute(block, receipts, summaries)
	require.NoError(t, err)

	assert.Equal(t, int64(15000), got.BlockTimeMs)
	assert.Equal(t, 2, got.SuccessfulTxs)
	assert.Equal(t, 1, got.FailedTxs)
	assert.Equal(t, 3, got.TotalTxs)
	assert.Equal(t, 7, got.TotalInternalTxs)
	assert.Equal(t, "60", got.TotalGasPrice.ToInt().String())
	assert.Equal(t, "20", got.AvgGasPrice.ToInt().String())
	// 21000*10 + 50000*20 + 30000*30 = 2_110_000
	assert.Equal(t, "2110000", got.TotalTxFees.ToInt().String())
	assert.Equal(t, "703333", got.AvgTxFees.ToInt().String())
}

func TestCompute_NoTransactions(t *testing.T) {
	agg := New(fixedClock(time.Unix(100, 0)))
	got, err := agg.Compute(&domain.Block{Hash: "0xempty", Timestamp: 90}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, got.TotalTxs)
	assert.Equal(t, 0, got.AvgGasPrice.ToInt().Sign())
	assert.Equal(t, 0, got.AvgTxFees.ToInt().Sign())
	assert.Equal(t, int64(10000), got.BlockTimeMs)
}

func TestCompute_MissingGasIsIntegrityError(t *testing.T) {
	tests := []struct {
		name    string
		receipt *domain.Receipt
	}{
		{"missing gas used", &domain.Receipt{TxHash: "0x1", Status: 1, GasPrice: hb(1)}},
		{"missing gas price", &domain.Receipt{TxHash: "0x1", Status: 1, GasUsed: hb(1)}},
		{"null receipt", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Compute(&domain.Block{Hash: "0xbad"}, []*domain.Receipt{tt.receipt}, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrDataIntegrity))

			var ie *domain.IntegrityError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "0xbad", ie.Key)
		})
	}
}

func TestCompute_Idempotent(t *testing.T) {
	block := &domain.Block{Hash: "0xb2", Timestamp: 1}
	receipts := []*domain.Receipt{
		{TxHash: "0xa", Status: 1, GasUsed: hb(7), GasPrice: hb(3)},
		{TxHash: "0xb", Status: 0, GasUsed: hb(11), GasPrice: hb(5)},
	}
	summaries := []*domain.ExecutionSummary{{TxHash: "0xb", InternalTransactions: 1}}

	first, err := New().Compute(block, receipts, summaries)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := New().Compute(block, receipts, summaries)
	require.NoError(t, err)

	// Block time is wall-clock derived and excluded.
	first.BlockTimeMs, second.BlockTimeMs = 0, 0
	assert.Equal(t, first, second)
}
