package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/feed"
	"github.com/vietddude/explorer/internal/infra/storage"
)

func TestBlockRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewBlockRepo(NewMemoryStorage())

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, &domain.Block{Number: i, Hash: hashOf(i)}))
	}

	page, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(4), page[0].Number)
	assert.Equal(t, uint64(3), page[1].Number)

	page, err = repo.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	missing, err := repo.GetByHash(ctx, "0xnope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTxRepo_ListByAddress(t *testing.T) {
	ctx := context.Background()
	repo := NewTxRepo(NewMemoryStorage())

	require.NoError(t, repo.Save(ctx, &domain.Transaction{Hash: "0x1", BlockNumber: 1, From: "0xAA", To: "0xbb"}))
	require.NoError(t, repo.Save(ctx, &domain.Transaction{Hash: "0x2", BlockNumber: 2, From: "0xcc", To: "0xaa"}))
	require.NoError(t, repo.Save(ctx, &domain.Transaction{Hash: "0x3", BlockNumber: 3, From: "0xcc", To: "0xdd"}))

	txs, err := repo.ListByAddress(ctx, "0xaa", 0, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "0x2", txs[0].Hash)
	assert.Equal(t, "0x1", txs[1].Hash)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	found, err := repo.GetByHashes(ctx, []string{"0x3", "0xmissing", "0x1"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestChangeLog_RecordsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repos := store.Repositories()

	stream, err := store.Changes().Open(ctx, storage.CollectionPending, feed.Latest)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, repos.Pending.Save(ctx, &domain.Transaction{Hash: "0xp"}))
	require.NoError(t, repos.Pending.Save(ctx, &domain.Transaction{Hash: "0xp", Nonce: 1}))
	require.NoError(t, repos.Pending.Delete(ctx, "0xp"))
	// Writes to other collections never show up on this stream.
	require.NoError(t, repos.Blocks.Save(ctx, &domain.Block{Hash: "0xb"}))

	var ops []string
	for i := 0; i < 3; i++ {
		c, err := stream.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "0xp", c.Key)
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"insert", "update", "delete"}, ops)
}

func TestChangeStream_CloseUnblocksNext(t *testing.T) {
	store := NewMemoryStorage()
	stream, err := store.Changes().Open(context.Background(), storage.CollectionBlocks, feed.Latest)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, feed.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestChangeStream_ResumesAfterPosition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewUncleRepo(store)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, repo.Save(ctx, &domain.Uncle{Hash: hashOf(i), Number: i}))
	}

	stream, err := store.Changes().Open(ctx, storage.CollectionUncles, 1)
	require.NoError(t, err)
	defer stream.Close()

	c, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Seq)
	assert.Equal(t, int64(2), stream.Position())
}

func hashOf(i uint64) string {
	return "0x" + string(rune('a'+i))
}
