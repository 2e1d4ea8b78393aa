package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/core"
)

func reconciliation() billing.Reconciliation {
	return billing.Reconciliation{
		BookingID:     "b1",
		TotalBill:     core.NewAmountFromDecimal(decimal.RequireFromString("32000.50"), "THB"),
		PaidTotal:     core.NewAmountFromDecimal(decimal.NewFromInt(15000), "THB"),
		Outstanding:   core.NewAmountFromDecimal(decimal.RequireFromString("17000.50"), "THB"),
		PaymentStatus: core.PaymentPartPaid,
	}
}

func newMiniCache(t *testing.T) (*cache.BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger, _ := logtest.NewNullLogger()
	return cache.NewBalanceCache(rdb, time.Minute, logger), mr
}

func TestNilCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*cache.BalanceCache{
		"nil":        nil,
		"nil client": cache.NewBalanceCache(nil, 0, nil),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.Enabled())
			_, cacheable := c.Generation(ctx, "acme", "b1")
			assert.False(t, cacheable)
			c.Set(ctx, "acme", 0, reconciliation())
			_, ok := c.Get(ctx, "acme", "b1")
			assert.False(t, ok)
			c.Invalidate(ctx, "acme", "b1")
		})
	}
}

func TestUnreachableRedisIsAMiss(t *testing.T) {
	// GIVEN: A client pointed at a closed port
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	logger, _ := logtest.NewNullLogger()
	c := cache.NewBalanceCache(rdb, time.Minute, logger)

	// WHEN/THEN: Writes are swallowed and reads miss
	ctx := context.Background()
	_, cacheable := c.Generation(ctx, "acme", "b1")
	assert.False(t, cacheable)
	c.Set(ctx, "acme", 0, reconciliation())
	_, ok := c.Get(ctx, "acme", "b1")
	assert.False(t, ok)
	c.Invalidate(ctx, "acme", "b1")
}

func TestNewClientFailsFast(t *testing.T) {
	_, err := cache.NewClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestEntryKeepsAmountsAndStatus(t *testing.T) {
	want := reconciliation()
	bs, err := cache.Encode(want)
	require.NoError(t, err)

	got, err := cache.Decode(bs)
	require.NoError(t, err)
	assert.Equal(t, want.BookingID, got.BookingID)
	assert.True(t, want.TotalBill.Value.Equal(got.TotalBill.Value))
	assert.True(t, want.Outstanding.Value.Equal(got.Outstanding.Value))
	assert.Equal(t, "THB", got.PaidTotal.Currency)
	assert.Equal(t, core.PaymentPartPaid, got.PaymentStatus)

	assert.Equal(t, "stay:balance:acme:b1", cache.Key("acme", "b1"))
}

func TestReadThroughAndInvalidate(t *testing.T) {
	c, mr := newMiniCache(t)
	ctx := context.Background()

	// GIVEN: An empty cache
	_, ok := c.Get(ctx, "acme", "b1")
	require.False(t, ok)

	// WHEN: Filled at the current generation
	gen, cacheable := c.Generation(ctx, "acme", "b1")
	require.True(t, cacheable)
	c.Set(ctx, "acme", gen, reconciliation())

	// THEN: Hit with the TTL applied
	got, ok := c.Get(ctx, "acme", "b1")
	require.True(t, ok)
	assert.Equal(t, core.PaymentPartPaid, got.PaymentStatus)
	assert.Equal(t, time.Minute, mr.TTL(cache.Key("acme", "b1")))

	// AND: Invalidation drops it and another tenant never saw it
	_, ok = c.Get(ctx, "globex", "b1")
	assert.False(t, ok)
	c.Invalidate(ctx, "acme", "b1")
	_, ok = c.Get(ctx, "acme", "b1")
	assert.False(t, ok)
}

func TestSetAfterInvalidateIsDropped(t *testing.T) {
	c, _ := newMiniCache(t)
	ctx := context.Background()

	// GIVEN: A reader takes the generation and computes a balance
	gen, cacheable := c.Generation(ctx, "acme", "b1")
	require.True(t, cacheable)
	stale := reconciliation()
	stale.PaymentStatus = core.PaymentUnpaid

	// WHEN: A write invalidates before the reader stores its result
	c.Invalidate(ctx, "acme", "b1")
	c.Set(ctx, "acme", gen, stale)

	// THEN: The pre-write balance is not cached
	_, ok := c.Get(ctx, "acme", "b1")
	assert.False(t, ok)

	// AND: A reader starting after the write caches normally
	gen, _ = c.Generation(ctx, "acme", "b1")
	assert.Equal(t, int64(1), gen)
	c.Set(ctx, "acme", gen, reconciliation())
	got, ok := c.Get(ctx, "acme", "b1")
	require.True(t, ok)
	assert.Equal(t, core.PaymentPartPaid, got.PaymentStatus)
}
