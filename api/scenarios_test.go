/*
scenarios_test.go - Tests for demo scenarios and the drift scheduler

Tests for:
- Every scenario loads on SQLite and on the in-memory store
- Loaded data obeys the booking rules (deposit gate, tenant isolation)
- Drift repair via the scheduler
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/core"
	"github.com/warp/stay-engine/core/store"
	"github.com/warp/stay-engine/store/sqlite"
)

func sqliteStore(t *testing.T) core.TxStore {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScenariosLoad(t *testing.T) {
	for _, sc := range scenarios {
		for name, newStore := range map[string]func(*testing.T) core.TxStore{
			"memory": func(*testing.T) core.TxStore { return store.NewMemory() },
			"sqlite": sqliteStore,
		} {
			t.Run(sc.ID+"/"+name, func(t *testing.T) {
				s := newTestServer(t, newStore(t))

				rec := s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": sc.ID})
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

				current := decodeBody[ScenarioDTO](t, s.do("GET", "/api/scenarios/current", "", nil))
				assert.Equal(t, sc.ID, current.ID)
			})
		}
	}
}

func TestFrontDeskScenario(t *testing.T) {
	// GIVEN: The front-desk scenario
	s := newTestServer(t, sqliteStore(t))
	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": "front-desk"}).Code)

	// THEN: The seed tenants from the test server are gone
	assert.Empty(t, decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "acme", nil)))

	bookings := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "demo-hotel", nil))
	require.Len(t, bookings, 4)

	byUnit := map[string]BookingDTO{}
	for _, b := range bookings {
		if b.Status == "CONFIRMED" {
			byUnit[b.UnitID] = b
		}
	}
	require.Len(t, byUnit, 3)

	// AND: The discounted room was quoted with the discount
	assert.Equal(t, "5440.00", byUnit["r102"].TotalAmount)

	// AND: The part-paid suite is held at the deposit gate
	rec := s.do("POST", "/api/bookings/"+byUnit["r103"].ID+"/check-in", "demo-hotel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// AND: Confirming its pending top-up opens the gate
	payments := decodeBody[[]PaymentDTO](t, s.do("GET", "/api/bookings/"+byUnit["r103"].ID+"/payments", "demo-hotel", nil))
	require.Len(t, payments, 2)
	for _, p := range payments {
		if p.Status == "PENDING" {
			require.Equal(t, http.StatusOK, s.do("POST", "/api/payments/"+p.ID+"/confirm", "demo-hotel", nil).Code)
		}
	}
	rec = s.do("POST", "/api/bookings/"+byUnit["r103"].ID+"/check-in", "demo-hotel", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// AND: Full and exact deposits check in directly
	for _, unit := range []string{"r101", "r102"} {
		rec = s.do("POST", "/api/bookings/"+byUnit[unit].ID+"/check-in", "demo-hotel", nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestMultiTenantScenarioIsolation(t *testing.T) {
	s := newTestServer(t, sqliteStore(t))
	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": "multi-tenant"}).Code)

	sea := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "seaside", nil))
	mtn := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "mountain", nil))
	require.Len(t, sea, 1)
	require.Len(t, mtn, 1)

	assert.Equal(t, "u1", sea[0].UnitID)
	assert.Equal(t, "u1", mtn[0].UnitID)
	assert.Equal(t, sea[0].CheckIn, mtn[0].CheckIn)
	assert.Equal(t, "EUR", sea[0].Currency)
	assert.Equal(t, "USD", mtn[0].Currency)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/bookings/"+sea[0].ID, "mountain", nil).Code)
}

func TestCheckedInScenario(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": "checked-in"}).Code)

	count := func(status string) int {
		return len(decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings?status="+status, "demo-hotel", nil)))
	}
	assert.Equal(t, 1, count("CHECKED_IN"))
	assert.Equal(t, 1, count("CHECKED_OUT"))
	assert.Equal(t, 1, count("NO_SHOW"))

	left := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings?status=CHECKED_OUT", "demo-hotel", nil))[0]
	assert.Equal(t, "PARTPAID", left.PaymentStatus)
	events := decodeBody[[]CheckEventDTO](t, s.do("GET", "/api/bookings/"+left.ID+"/events", "demo-hotel", nil))
	assert.Len(t, events, 2)
}

func TestScenarioErrorsAndReset(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	rec := s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do("POST", "/api/scenarios/load", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "scenario_id", decodeBody[ErrorResponse](t, rec).Details["field"])

	list := decodeBody[[]ScenarioDTO](t, s.do("GET", "/api/scenarios", "", nil))
	assert.Len(t, list, len(scenarios))

	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/load", "", map[string]any{"scenario_id": "front-desk"}).Code)
	require.Equal(t, http.StatusOK, s.do("POST", "/api/scenarios/reset", "", nil).Code)
	assert.Empty(t, decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "demo-hotel", nil)))
	assert.Equal(t, "null", strings.TrimSpace(s.do("GET", "/api/scenarios/current", "", nil).Body.String()))
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestSchedulerRepairsDrift(t *testing.T) {
	// GIVEN: A paid booking whose stored status was overwritten
	s := newTestServer(t, sqliteStore(t))
	b := s.createBooking("2025-03-10", "2025-03-11")
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings/"+b.ID+"/payments", "acme", map[string]any{"amount": "10000", "confirmed": true}).Code)

	ctx := context.Background()
	stored, err := s.store.GetBooking(ctx, "acme", core.BookingID(b.ID))
	require.NoError(t, err)
	require.Equal(t, core.PaymentPaid, stored.PaymentStatus)
	stored.PaymentStatus = core.PaymentUnpaid
	require.NoError(t, s.store.UpdateBooking(ctx, "acme", *stored))

	// WHEN: The scheduler runs
	rs := NewReconciliationScheduler(s.h.Service, s.h.Logger)
	repaired := rs.RunNow(ctx)

	// THEN: The status is re-derived from the ledgers
	assert.Equal(t, 1, repaired)
	got := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/"+b.ID, "acme", nil))
	assert.Equal(t, "PAID", got.PaymentStatus)

	// AND: A second pass has nothing to do
	assert.Equal(t, 0, rs.RunNow(ctx))
}

func TestSchedulerRepairsTenantWithoutSettings(t *testing.T) {
	// GIVEN: A tenant with no settings row, running on defaults, and a
	// paid booking whose stored status was overwritten
	s := newTestServer(t, sqliteStore(t))
	ctx := context.Background()
	require.NoError(t, s.h.Service.PutUnit(ctx, "initech", core.Unit{ID: "u9", BasePrice: decimal.NewFromInt(2000), Currency: "USD"}))
	require.NoError(t, s.h.Service.PutGuest(ctx, "initech", core.Guest{ID: "g9", Details: core.GuestDetails{FullName: "Bo Chen"}}))

	rec := s.do("POST", "/api/bookings", "initech", map[string]any{
		"unit_id": "u9", "guest_id": "g9", "check_in": "2025-03-10", "check_out": "2025-03-11",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decodeBody[BookingDTO](t, rec)
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings/"+b.ID+"/payments", "initech", map[string]any{"amount": "2000", "confirmed": true}).Code)

	stored, err := s.store.GetBooking(ctx, "initech", core.BookingID(b.ID))
	require.NoError(t, err)
	stored.PaymentStatus = core.PaymentUnpaid
	require.NoError(t, s.store.UpdateBooking(ctx, "initech", *stored))

	// WHEN: The scheduler runs
	repaired := NewReconciliationScheduler(s.h.Service, s.h.Logger).RunNow(ctx)

	// THEN: The tenant is visited and its booking repaired
	assert.Equal(t, 1, repaired)
	got := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/"+b.ID, "initech", nil))
	assert.Equal(t, "PAID", got.PaymentStatus)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	rs := NewReconciliationScheduler(s.h.Service, s.h.Logger)
	rs.CheckInterval = 10 * time.Millisecond

	rs.Start()
	rs.Start() // no second goroutine
	time.Sleep(30 * time.Millisecond)
	rs.Stop()
	rs.Stop()

	disabled := NewReconciliationScheduler(s.h.Service, s.h.Logger)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}
