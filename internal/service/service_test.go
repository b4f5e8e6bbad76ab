package service

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/processor"
	"github.com/vietddude/explorer/internal/infra/cache"
	"github.com/vietddude/explorer/internal/infra/rpc"
	"github.com/vietddude/explorer/internal/infra/storage"
	"github.com/vietddude/explorer/internal/infra/storage/memory"
)

type fakeEngine struct {
	balance   *big.Int
	callOut   hexutil.Bytes
	lastBlock string
	lastMsg   rpc.CallMsg
}

func (f *fakeEngine) Balance(_ context.Context, _ common.Address, blockHash string) (*big.Int, error) {
	f.lastBlock = blockHash
	return f.balance, nil
}

func (f *fakeEngine) CallContract(_ context.Context, msg rpc.CallMsg, blockHash string) (hexutil.Bytes, error) {
	f.lastBlock = blockHash
	f.lastMsg = msg
	return f.callOut, nil
}

type fixture struct {
	svc    *Services
	repos  storage.Repositories
	stores *processor.Stores
	cache  *cache.Local
	engine *fakeEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewMemoryStorage().Repositories()
	stores := processor.NewStores(3, 3, 3, 3)
	local := cache.NewLocal(0)
	engine := &fakeEngine{balance: big.NewInt(42)}

	svc := New(Deps{
		Repos:   repos,
		Stores:  stores,
		Cache:   local,
		PageTTL: time.Minute,
		Engine:  engine,
		Exchange: ExchangeConfig{
			MemoTTL:  time.Minute,
			RateTTL:  time.Minute,
			Fallback: map[string]float64{"ETH:USD": 2000},
		},
	})
	t.Cleanup(func() {
		svc.Stop()
		local.Stop()
	})
	return &fixture{svc: svc, repos: repos, stores: stores, cache: local, engine: engine}
}

func TestBlocks_GetPrefersRecentStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stores.Blocks.Admit(&domain.Block{Hash: "0xa", Number: 1, Miner: "recent"})
	require.NoError(t, f.repos.Blocks.Save(ctx, &domain.Block{Hash: "0xa", Number: 1, Miner: "durable"}))
	require.NoError(t, f.repos.Blocks.Save(ctx, &domain.Block{Hash: "0xb", Number: 2, Miner: "durable"}))

	b, err := f.svc.Blocks.Get(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, "recent", b.Miner)

	b, err = f.svc.Blocks.Get(ctx, "0xb")
	require.NoError(t, err)
	assert.Equal(t, "durable", b.Miner)

	b, err = f.svc.Blocks.GetByNumber(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "0xb", b.Hash)

	_, err = f.svc.Blocks.Get(ctx, "0xmissing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBlocks_PastFallsBackAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := uint64(1); i <= 6; i++ {
		b := &domain.Block{Hash: common.BigToHash(new(big.Int).SetUint64(i)).Hex(), Number: i}
		require.NoError(t, f.repos.Blocks.Save(ctx, b))
		if i > 3 {
			f.stores.Blocks.Admit(b)
		}
	}

	page, err := f.svc.Blocks.Past(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(6), page[0].Number)

	page, err = f.svc.Blocks.Past(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(3), page[0].Number)

	// Second read is served by the cache store even when durable data changes.
	require.NoError(t, f.repos.Blocks.Delete(ctx, page[0].Hash))
	again, err := f.svc.Blocks.Past(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), again[0].Number)

	_, err = f.svc.Blocks.Past(ctx, -1, 3)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.Blocks.Past(ctx, math.MaxInt/100, 100)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.svc.Txs.Past(ctx, 92233720368547758, 100)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestBlocks_TransactionsInBlockOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, h := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, f.repos.Txs.Save(ctx, &domain.Transaction{Hash: h, BlockHash: "0xb"}))
	}
	require.NoError(t, f.repos.Blocks.Save(ctx, &domain.Block{Hash: "0xb", TxHashes: []string{"0x3", "0x1", "0x2"}}))

	txs, err := f.svc.Blocks.Transactions(ctx, "0xb")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "0x3", txs[0].Hash)
	assert.Equal(t, "0x1", txs[1].Hash)
	assert.Equal(t, "0x2", txs[2].Hash)
}

func TestTxs_GetFallsBackToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repos.Pending.Save(ctx, &domain.Transaction{Hash: "0xp"}))

	tx, err := f.svc.Txs.Get(ctx, "0xp")
	require.NoError(t, err)
	assert.True(t, tx.Pending())

	_, err = f.svc.Txs.Get(ctx, "0xnone")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTxs_TotalAndByAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repos.Txs.Save(ctx, &domain.Transaction{Hash: "0x1", BlockNumber: 1, From: "0xAB"}))
	require.NoError(t, f.repos.Txs.Save(ctx, &domain.Transaction{Hash: "0x2", BlockNumber: 2, To: "0xab"}))

	total, err := f.svc.Txs.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	txs, err := f.svc.Txs.ByAddress(ctx, "0xAB", 0, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestVM_PinsMostRecentBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addr := "0x00000000000000000000000000000000000000aa"

	_, err := f.svc.VM.Balance(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "", f.engine.lastBlock)

	f.stores.Blocks.Admit(&domain.Block{Hash: "0xhead"})
	bal, err := f.svc.VM.Balance(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "0xhead", f.engine.lastBlock)
	assert.Equal(t, int64(42), bal.ToInt().Int64())

	_, err = f.svc.VM.Balance(ctx, "not-an-address")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestVM_TokenBalanceEncodesBalanceOf(t *testing.T) {
	f := newFixture(t)
	f.engine.callOut = common.LeftPadBytes(big.NewInt(1000).Bytes(), 32)

	token := "0x00000000000000000000000000000000000000cc"
	holder := "0x00000000000000000000000000000000000000aa"
	bal, err := f.svc.VM.TokenBalance(context.Background(), token, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.ToInt().Int64())

	data := f.engine.lastMsg.Data
	require.Len(t, data, 36)
	assert.Equal(t, "0x70a08231", hexutil.Encode(data[:4]))
	assert.Equal(t, common.HexToAddress(holder).Bytes(), []byte(data[16:]))
	assert.Equal(t, common.HexToAddress(token), f.engine.lastMsg.To)
}

func TestVM_NoEngine(t *testing.T) {
	vm := NewVMService(nil, processor.NewStores(1, 1, 1, 1).Blocks)
	_, err := vm.Balance(context.Background(), "0x00000000000000000000000000000000000000aa")
	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestExchange_FallbackThenCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Exchange.Ticker(ctx, "eth", "usd")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, q.Price)

	var stored domain.Quote
	found, err := f.cache.GetJSON(ctx, "rate:ETH:USD", &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2000.0, stored.Price)

	_, err = f.svc.Exchange.Ticker(ctx, "BTC", "USD")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExchange_PrefersCacheStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.SetJSON(ctx, "rate:ETH:EUR", domain.Quote{Symbol: "ETH", Currency: "EUR", Price: 1800}, 0))

	q, err := f.svc.Exchange.Ticker(ctx, "ETH", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 1800.0, q.Price)
}
