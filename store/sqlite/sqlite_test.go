package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/core"
	"github.com/warp/stay-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var created = time.Date(2025, time.January, 1, 9, 30, 15, 123456789, time.UTC)

func testBooking(id core.BookingID, unit core.UnitID, stay core.Interval) core.Booking {
	return core.Booking{
		ID:            id,
		UnitID:        unit,
		GuestID:       "g1",
		Guest:         core.GuestDetails{FullName: "Ana Lima", Email: "ana@example.com"},
		Stay:          stay,
		TotalAmount:   decimal.RequireFromString("30000.50"),
		Currency:      "THB",
		Status:        core.StatusPending,
		PaymentStatus: core.PaymentUnpaid,
		GuestCount:    2,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func jan(from, to int) core.Interval { return core.Days(2025, time.January, from, to) }

func TestBooking_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// GIVEN: A booking with decimals, a guest snapshot and optional times
	b := testBooking("b1", "u1", jan(1, 4))
	confirmed := created.Add(time.Hour)
	b.ConfirmedAt = &confirmed
	b.Notes = "late arrival"
	require.NoError(t, s.InsertBooking(ctx, "acme", b))

	// WHEN: Read back
	got, err := s.GetBooking(ctx, "acme", "b1")

	// THEN: Every field survives
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.TenantID("acme"), got.TenantID)
	assert.True(t, b.TotalAmount.Equal(got.TotalAmount))
	assert.Equal(t, b.Guest, got.Guest)
	assert.True(t, b.Stay.CheckIn.Equal(got.Stay.CheckIn))
	assert.True(t, b.Stay.CheckOut.Equal(got.Stay.CheckOut))
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, confirmed.Equal(*got.ConfirmedAt))
	assert.Nil(t, got.CheckedInAt)
	assert.Equal(t, 2, got.GuestCount)
	assert.Equal(t, "late arrival", got.Notes)
}

func TestTenantIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4))))

	// Same id in another tenant is a different row
	got, err := s.GetBooking(ctx, "globex", "b1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Same unit id and interval in another tenant doesn't overlap
	require.NoError(t, s.InsertBooking(ctx, "globex", testBooking("b1", "u1", jan(1, 4))))

	list, err := s.ListBookings(ctx, "acme", core.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Updating a row of another tenant is NotFound
	other := testBooking("b2", "u1", jan(10, 12))
	err = s.UpdateBooking(ctx, "globex", other)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Both tenants own bookings, neither has settings
	owners, err := s.ListBookingTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.TenantID{"acme", "globex"}, owners)
}

func TestFindOverlapping(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4))))
	cancelled := testBooking("b2", "u1", jan(4, 8))
	cancelled.Status = core.StatusCancelled
	require.NoError(t, s.InsertBooking(ctx, "acme", cancelled))
	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b3", "u2", jan(1, 4))))

	tests := []struct {
		name    string
		stay    core.Interval
		exclude core.BookingID
		want    []core.BookingID
	}{
		{"overlapping tail", jan(3, 5), "", []core.BookingID{"b1"}},
		{"contained", jan(2, 3), "", []core.BookingID{"b1"}},
		{"back-to-back after", jan(4, 6), "", nil},
		{"back-to-back before", core.Interval{CheckIn: jan(1, 1).CheckIn.AddDate(0, 0, -3), CheckOut: jan(1, 1).CheckIn}, "", nil},
		{"excluded self", jan(2, 3), "b1", nil},
		{"cancelled ignored", jan(5, 7), "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindOverlapping(ctx, "acme", "u1", tt.stay, tt.exclude)
			require.NoError(t, err)
			var ids []core.BookingID
			for _, b := range got {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestOverlapTrigger(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4))))

	// WHEN: A writer bypasses the allocator
	err := s.InsertBooking(ctx, "acme", testBooking("b2", "u1", jan(3, 5)))

	// THEN: The schema still refuses
	require.Error(t, err)
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, core.CodeUnitNotAvailable, conflict.Reason)

	// Moving a booking onto another is refused too
	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b3", "u1", jan(5, 7))))
	moved := testBooking("b3", "u1", jan(2, 7))
	assert.ErrorIs(t, s.UpdateBooking(ctx, "acme", moved), core.ErrConflict)

	// Cancelling frees the interval
	cancelled := testBooking("b1", "u1", jan(1, 4))
	cancelled.Status = core.StatusCancelled
	require.NoError(t, s.UpdateBooking(ctx, "acme", cancelled))
	assert.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b4", "u1", jan(2, 4))))
}

func TestFindCheckedIn(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	in := testBooking("b1", "u1", jan(1, 4))
	in.Status = core.StatusCheckedIn
	require.NoError(t, s.InsertBooking(ctx, "acme", in))
	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b2", "u1", jan(4, 6))))

	got, err := s.FindCheckedIn(ctx, "acme", "u1", "b2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.BookingID("b1"), got[0].ID)

	got, err = s.FindCheckedIn(ctx, "acme", "u1", "b1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// WHEN: fn writes then fails
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx core.Store) error {
		if err := tx.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4))); err != nil {
			return err
		}
		return boom
	})

	// THEN: Nothing was written
	assert.ErrorIs(t, err, boom)
	got, err := s.GetBooking(ctx, "acme", "b1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// AND: A successful tx commits
	require.NoError(t, s.WithTx(ctx, func(tx core.Store) error {
		return tx.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4)))
	}))
	got, err = s.GetBooking(ctx, "acme", "b1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestLedgers(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBooking(ctx, "acme", testBooking("b1", "u1", jan(1, 4))))

	require.NoError(t, s.InsertCharge(ctx, "acme", core.Charge{
		ID: "c1", BookingID: "b1", Type: core.ChargeRoom, Amount: decimal.RequireFromString("30000.50"),
		Currency: "THB", Status: core.ChargeOpen, CreatedAt: created,
	}))
	require.NoError(t, s.InsertPayment(ctx, "acme", core.Payment{
		ID: "p1", BookingID: "b1", Amount: decimal.RequireFromString("100.25"), Currency: "THB",
		Method: core.MethodCard, Status: core.PaymentPending, CreatedAt: created,
	}))
	require.NoError(t, s.InsertPayment(ctx, "acme", core.Payment{
		ID: "p2", BookingID: "b1", Amount: decimal.RequireFromString("5"), Currency: "THB",
		Method: core.MethodCash, Status: core.PaymentConfirmed, CreatedAt: created.Add(time.Minute),
	}))

	charges, err := s.ListCharges(ctx, "acme", "b1")
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, "30000.5", charges[0].Amount.String())

	p, err := s.GetPayment(ctx, "acme", "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, core.MethodCard, p.Method)

	// Deleting by state keeps the confirmed payment
	require.NoError(t, s.DeletePayments(ctx, "acme", "b1", core.PaymentPending, core.PaymentFailed))
	payments, err := s.ListPayments(ctx, "acme", "b1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, core.PaymentID("p2"), payments[0].ID)

	// Updates of missing rows are NotFound
	err = s.UpdateCharge(ctx, "acme", core.Charge{ID: "missing", Amount: decimal.Zero, CreatedAt: created})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCheckEvents(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCheckEvent(ctx, "acme", core.CheckEvent{
		ID: "e1", BookingID: "b1", Type: core.EventCheckIn, Actor: "frontdesk", At: created,
		Artifacts: []string{"passports/ana.jpg"},
	}))
	require.NoError(t, s.AppendCheckEvent(ctx, "acme", core.CheckEvent{
		ID: "e2", BookingID: "b1", Type: core.EventCheckOut, At: created.Add(72 * time.Hour),
	}))

	events, err := s.ListCheckEvents(ctx, "acme", "b1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventCheckIn, events[0].Type)
	assert.Equal(t, []string{"passports/ana.jpg"}, events[0].Artifacts)
	assert.Equal(t, core.EventCheckOut, events[1].Type)

	require.NoError(t, s.DeleteCheckEvents(ctx, "acme", "b1"))
	events, err = s.ListCheckEvents(ctx, "acme", "b1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCatalogAndReset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	pct := decimal.NewFromInt(30)
	require.NoError(t, s.SaveTenant(ctx, core.Tenant{ID: "acme", Currency: "THB", MinDepositPercent: &pct}))
	require.NoError(t, s.SaveUnit(ctx, "acme", core.Unit{
		ID: "u1", BasePrice: decimal.NewFromInt(1000), Currency: "THB", CreatedAt: created, UpdatedAt: created,
		Discount: &core.DiscountRule{Type: core.DiscountPercent, Value: decimal.NewFromInt(10), Start: jan(1, 5).CheckIn, End: jan(1, 5).CheckOut},
	}))

	tenant, err := s.GetTenant(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, tenant.MinDepositPercent)
	assert.True(t, pct.Equal(*tenant.MinDepositPercent))

	unit, err := s.GetUnit(ctx, "acme", "u1")
	require.NoError(t, err)
	require.NotNil(t, unit.Discount)
	assert.Equal(t, core.DiscountPercent, unit.Discount.Type)

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Reset(ctx))
	tenants, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
