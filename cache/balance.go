/*
Package cache keeps reconciliation summaries in Redis.

PURPOSE:
  GET /api/bookings/{id}/balance is the hottest read of the front desk.
  BalanceCache stores the last computed billing.Reconciliation per booking
  for a short TTL. Every write path in the API invalidates the entry of
  the booking it touched; the TTL only bounds staleness from writers
  outside this process.

GENERATIONS:
  Invalidate bumps a per-booking generation counter as well as deleting
  the entry. A reader takes the generation before computing and Set only
  stores the result if the counter hasn't moved (WATCH/MULTI), so a
  reconciliation computed before a write can't be cached after that
  write's invalidation.

  gen, ok := c.Generation(ctx, tenant, id)
  rec := compute()
  if ok { c.Set(ctx, tenant, gen, rec) }

NIL SAFETY:
  A nil *BalanceCache, or one built with a nil client, is a valid cache
  that never hits. Redis being down degrades to always computing.

KEYS:
  stay:balance:<tenant>:<booking>
  stay:balance:gen:<tenant>:<booking>

SEE ALSO:
  - billing/ledger.go: Reconciliation
  - api/handlers.go: Read-through and invalidation
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
)

const DefaultTTL = 5 * time.Minute

// generationTTL keeps idle counters from piling up. It only needs to
// outlive any single read-compute-set.
const generationTTL = 24 * time.Hour

type BalanceCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewClient connects to Redis and pings it with a short timeout.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func NewBalanceCache(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BalanceCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Enabled reports whether the cache talks to Redis at all.
func (c *BalanceCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func Key(tenantID core.TenantID, bookingID core.BookingID) string {
	return fmt.Sprintf("stay:balance:%s:%s", tenantID, bookingID)
}

func generationKey(tenantID core.TenantID, bookingID core.BookingID) string {
	return fmt.Sprintf("stay:balance:gen:%s:%s", tenantID, bookingID)
}

// entry is the cached form of a Reconciliation.
type entry struct {
	BookingID     core.BookingID     `json:"booking_id"`
	Currency      string             `json:"currency"`
	TotalBill     decimal.Decimal    `json:"total_bill"`
	PaidTotal     decimal.Decimal    `json:"paid_total"`
	Outstanding   decimal.Decimal    `json:"outstanding"`
	PaymentStatus core.PaymentStatus `json:"payment_status"`
}

func Encode(r billing.Reconciliation) ([]byte, error) {
	return json.Marshal(entry{
		BookingID:     r.BookingID,
		Currency:      r.TotalBill.Currency,
		TotalBill:     r.TotalBill.Value,
		PaidTotal:     r.PaidTotal.Value,
		Outstanding:   r.Outstanding.Value,
		PaymentStatus: r.PaymentStatus,
	})
}

func Decode(bs []byte) (billing.Reconciliation, error) {
	var e entry
	if err := json.Unmarshal(bs, &e); err != nil {
		return billing.Reconciliation{}, err
	}
	return billing.Reconciliation{
		BookingID:     e.BookingID,
		TotalBill:     core.NewAmountFromDecimal(e.TotalBill, e.Currency),
		PaidTotal:     core.NewAmountFromDecimal(e.PaidTotal, e.Currency),
		Outstanding:   core.NewAmountFromDecimal(e.Outstanding, e.Currency),
		PaymentStatus: e.PaymentStatus,
	}, nil
}

// Get returns the cached reconciliation. Any Redis error is a miss.
func (c *BalanceCache) Get(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) (billing.Reconciliation, bool) {
	if !c.Enabled() {
		return billing.Reconciliation{}, false
	}
	bs, err := c.rdb.Get(ctx, Key(tenantID, bookingID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("booking_id", bookingID).Debug("balance cache read failed")
		}
		return billing.Reconciliation{}, false
	}
	r, err := Decode(bs)
	if err != nil {
		c.logger.WithError(err).WithField("booking_id", bookingID).Warn("corrupt balance cache entry")
		return billing.Reconciliation{}, false
	}
	return r, true
}

// Generation returns the booking's current cache generation. ok is false
// when the cache is disabled or Redis can't be read, and the caller should
// not Set.
func (c *BalanceCache) Generation(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) (gen int64, ok bool) {
	if !c.Enabled() {
		return 0, false
	}
	gen, err := c.rdb.Get(ctx, generationKey(tenantID, bookingID)).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		c.logger.WithError(err).WithField("booking_id", bookingID).Debug("balance cache generation read failed")
		return 0, false
	}
	return gen, true
}

// Set stores r if the booking is still at generation gen. A concurrent
// Invalidate makes it a no-op.
func (c *BalanceCache) Set(ctx context.Context, tenantID core.TenantID, gen int64, r billing.Reconciliation) {
	if !c.Enabled() {
		return
	}
	bs, err := Encode(r)
	if err != nil {
		return
	}

	gk := generationKey(tenantID, r.BookingID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(tenantID, r.BookingID), bs, c.ttl)
			return nil
		})
		return err
	}, gk)

	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.logger.WithField("booking_id", r.BookingID).Debug("balance changed while computing, not cached")
	default:
		c.logger.WithError(err).WithField("booking_id", r.BookingID).Debug("balance cache write failed")
	}
}

var errStale = errors.New("stale generation")

// Invalidate drops the entry and bumps the generation so in-flight readers
// don't write back what they computed before.
func (c *BalanceCache) Invalidate(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) {
	if !c.Enabled() {
		return
	}
	gk := generationKey(tenantID, bookingID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, Key(tenantID, bookingID))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("booking_id", bookingID).Warn("balance cache invalidation failed")
	}
}
