package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/booking"
	"github.com/warp/stay-engine/core"
	"github.com/warp/stay-engine/notify"
)

type message struct {
	key         string
	body        []byte
	hasDeadline bool
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []message
	calls int
	err   error
}

func (p *fakePublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, ok := ctx.Deadline()
	p.sent = append(p.sent, message{key: key, body: body, hasDeadline: ok})
	return nil
}

func created() booking.BookingCreated {
	return booking.BookingCreated{
		TenantID:    "acme",
		BookingID:   "b1",
		UnitID:      "u1",
		GuestName:   "Ana Lima",
		CheckIn:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
		TotalAmount: decimal.NewFromInt(30000),
		Currency:    "THB",
	}
}

func TestDispatcher_RoutesEvents(t *testing.T) {
	pub := &fakePublisher{}
	logger, _ := logtest.NewNullLogger()
	d := notify.NewDispatcher(pub, time.Second, logger)
	ctx := context.Background()

	require.NoError(t, d.BookingCreated(ctx, created()))
	require.NoError(t, d.PaymentAcknowledged(ctx, booking.PaymentAcknowledged{
		TenantID: "acme", BookingID: "b1", PaymentID: "p1",
		Amount: decimal.NewFromInt(10000), Currency: "THB", PaymentStatus: core.PaymentPartPaid,
	}))

	require.Len(t, pub.sent, 2)
	assert.Equal(t, notify.KeyBookingCreated, pub.sent[0].key)
	assert.Equal(t, notify.KeyPaymentAcknowledged, pub.sent[1].key)
	assert.True(t, pub.sent[0].hasDeadline)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pub.sent[0].body, &payload))
	assert.Equal(t, "b1", payload["booking_id"])
	assert.Equal(t, "30000", payload["total_amount"])
}

func TestDispatcher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	// GIVEN: A broker that always fails
	pub := &fakePublisher{err: errors.New("connection reset")}
	logger, hook := logtest.NewNullLogger()
	d := notify.NewDispatcher(pub, time.Second, logger)
	ctx := context.Background()

	// WHEN: Three failures in a row
	for i := 0; i < 3; i++ {
		err := d.BookingCreated(ctx, created())
		require.Error(t, err)
		assert.NotErrorIs(t, err, notify.ErrUnavailable)
	}

	// THEN: The breaker is open and the broker is no longer called
	assert.Equal(t, "open", d.State())
	err := d.BookingCreated(ctx, created())
	assert.ErrorIs(t, err, notify.ErrUnavailable)
	assert.Equal(t, 3, pub.calls)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDispatcher_DefaultTimeout(t *testing.T) {
	pub := &fakePublisher{}
	d := notify.NewDispatcher(pub, 0, nil)

	require.NoError(t, d.BookingCreated(context.Background(), created()))
	require.Len(t, pub.sent, 1)
	assert.True(t, pub.sent[0].hasDeadline)
}

func TestLogNotifier(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	n := notify.LogNotifier{Logger: logger}

	require.NoError(t, n.BookingCreated(context.Background(), created()))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, notify.KeyBookingCreated, entry.Data["event"])
	assert.Equal(t, core.BookingID("b1"), entry.Data["booking_id"])
	assert.Equal(t, "30000.00 THB", entry.Data["total"])
}
