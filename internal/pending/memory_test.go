package pending

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perun-network/auction-claim/internal/message"
)

var (
	accountA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	accountB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testEntry(auctionID uint64, account common.Address, tx byte) Entry {
	return Entry{
		AuctionID: auctionID,
		Account:   account,
		ChainID:   message.ChainIDFromUint64(100),
		TxHash:    common.BytesToHash([]byte{tx}),
		Summary:   ClaimSummary(auctionID),
	}
}

func TestMemoryStore_RecordAndHas(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	has, err := store.Has(ctx, 7, accountA)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 1)))

	has, err = store.Has(ctx, 7, accountA)
	require.NoError(t, err)
	assert.True(t, has)

	// keyed by (auction, account)
	has, err = store.Has(ctx, 7, accountB)
	require.NoError(t, err)
	assert.False(t, has)
	has, err = store.Has(ctx, 8, accountA)
	require.NoError(t, err)
	assert.False(t, has)

	e, err := store.Get(ctx, 7, accountA)
	require.NoError(t, err)
	assert.Equal(t, "Claiming tokens auction-7", e.Summary)
	assert.False(t, e.RecordedAt.IsZero())
}

func TestMemoryStore_RecordReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 1)))
	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 2)))

	e, err := store.Get(ctx, 7, accountA)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash([]byte{2}), e.TxHash)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 1)))
	require.NoError(t, store.Clear(ctx, 7, accountA))
	require.NoError(t, store.Clear(ctx, 7, accountA))

	_, err := store.Get(ctx, 7, accountA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ClearTx(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	old := testEntry(7, accountA, 1)
	require.NoError(t, store.Record(ctx, old))
	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 2)))

	cleared, err := store.ClearTx(ctx, old)
	require.NoError(t, err)
	assert.False(t, cleared)
	has, err := store.Has(ctx, 7, accountA)
	require.NoError(t, err)
	assert.True(t, has)

	cleared, err = store.ClearTx(ctx, testEntry(7, accountA, 2))
	require.NoError(t, err)
	assert.True(t, cleared)
	has, err = store.Has(ctx, 7, accountA)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(10*time.Minute, WithClock(clock.Now))

	require.NoError(t, store.Record(ctx, testEntry(7, accountA, 1)))
	clock.Advance(5 * time.Minute)
	require.NoError(t, store.Record(ctx, testEntry(8, accountA, 2)))

	clock.Advance(6 * time.Minute)

	has, err := store.Has(ctx, 7, accountA)
	require.NoError(t, err)
	assert.False(t, has, "entry older than ttl must be absent")

	has, err = store.Has(ctx, 8, accountA)
	require.NoError(t, err)
	assert.True(t, has)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, uint64(8), all[0].AuctionID)
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, store.Record(ctx, testEntry(10-i, accountA, byte(i))))
		clock.Advance(time.Second)
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{9, 8, 7}, []uint64{all[0].AuctionID, all[1].AuctionID, all[2].AuctionID})
}

func TestMemoryStore_RejectsIncompleteEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	assert.ErrorIs(t, store.Record(ctx, Entry{Account: accountA, TxHash: common.HexToHash("0x01")}), ErrInvalidInput)
	assert.ErrorIs(t, store.Record(ctx, Entry{AuctionID: 1, TxHash: common.HexToHash("0x01")}), ErrInvalidInput)
	assert.ErrorIs(t, store.Record(ctx, Entry{AuctionID: 1, Account: accountA}), ErrInvalidInput)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Record(ctx, testEntry(uint64(i+1), accountA, byte(i+1))))
		}(i)
		go func(i int) {
			defer wg.Done()
			e, err := store.Get(ctx, uint64(i+1), accountA)
			if err == nil {
				// never a partially written entry
				assert.Equal(t, common.BytesToHash([]byte{byte(i + 1)}), e.TxHash)
			} else {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 16)
}
