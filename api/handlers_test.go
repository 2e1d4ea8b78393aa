/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Tenant header enforcement
- Error body shape and status mapping per error kind
- Booking create/overlap, deposit gate, payment confirmation
- Charges, availability, quotes, health
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/booking"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/core"
	"github.com/warp/stay-engine/core/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	h      *Handler
	router http.Handler
	store  core.TxStore
	hook   *logtest.Hook
}

func newTestServer(t *testing.T, st core.TxStore) *testServer {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	svc := booking.NewService(st, nil, logger, nil)
	var seq int64
	svc.NewID = func() string { return fmt.Sprintf("id-%03d", atomic.AddInt64(&seq, 1)) }
	svc.Clock = func() time.Time { return testNow }

	ctx := context.Background()
	fifty := decimal.NewFromInt(50)
	require.NoError(t, svc.PutTenant(ctx, core.Tenant{ID: "acme", Name: "Acme Stays", Currency: "THB", MinDepositPercent: &fifty}))
	require.NoError(t, svc.PutUnit(ctx, "acme", core.Unit{ID: "u1", Name: "Sea View", BasePrice: decimal.NewFromInt(10000)}))
	require.NoError(t, svc.PutGuest(ctx, "acme", core.Guest{ID: "g1", Details: core.GuestDetails{FullName: "Ana Lima", Email: "ana@example.com"}}))
	require.NoError(t, svc.PutTenant(ctx, core.Tenant{ID: "globex", Currency: "EUR"}))

	h := NewHandler(svc, st, nil, logger)
	return &testServer{t: t, h: h, router: NewRouter(h, nil), store: st, hook: hook}
}

func (s *testServer) do(method, path, tenant string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf io.Reader = http.NoBody
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(s.t, err)
		buf = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createBooking(checkIn, checkOut string) BookingDTO {
	s.t.Helper()
	rec := s.do("POST", "/api/bookings", "acme", map[string]any{
		"unit_id": "u1", "guest_id": "g1", "check_in": checkIn, "check_out": checkOut,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[BookingDTO](s.t, rec)
}

// =============================================================================
// TENANT SCOPE & ERROR MAPPING
// =============================================================================

func TestMissingTenantHeaderIsRejected(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	rec := s.do("GET", "/api/bookings", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, core.CodeValidation, body.Code)
	assert.Equal(t, TenantHeader, body.Details["field"])
}

func TestCreateBooking_CreatedThenOverlapConflicts(t *testing.T) {
	// GIVEN: A booking for nights 10-12 March
	s := newTestServer(t, store.NewMemory())
	first := s.createBooking("2025-03-10", "2025-03-13")
	assert.Equal(t, "PENDING", first.Status)
	assert.Equal(t, "30000.00", first.TotalAmount)
	assert.Equal(t, "THB", first.Currency)
	assert.Equal(t, 3, first.Nights)
	assert.Equal(t, "Ana Lima", first.Guest.FullName)

	// WHEN: Another booking overlaps the last night
	rec := s.do("POST", "/api/bookings", "acme", map[string]any{
		"unit_id": "u1", "guest_id": "g1", "check_in": "2025-03-12", "check_out": "2025-03-14",
	})

	// THEN: 409 names the blocking booking
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, core.CodeUnitNotAvailable, body.Code)
	assert.Equal(t, first.ID, body.Details["conflicts_with"])
	assert.Equal(t, "u1", body.Details["unit_id"])

	// AND: Back-to-back is fine
	s.createBooking("2025-03-13", "2025-03-15")
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing unit", map[string]any{"guest_id": "g1", "check_in": "2025-03-10", "check_out": "2025-03-11"}, "unit_id"},
		{"bad date", map[string]any{"unit_id": "u1", "guest_id": "g1", "check_in": "10/03/2025", "check_out": "2025-03-11"}, "check_in"},
		{"reversed stay", map[string]any{"unit_id": "u1", "guest_id": "g1", "check_in": "2025-03-11", "check_out": "2025-03-10"}, "stay"},
		{"lowercase currency", map[string]any{"unit_id": "u1", "guest_id": "g1", "check_in": "2025-03-10", "check_out": "2025-03-11", "currency": "thb"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("POST", "/api/bookings", "acme", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, core.CodeValidation, body.Code)
			assert.Equal(t, tt.field, body.Details["field"])
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/bookings", bytes.NewBufferString("{"))
		req.Header.Set(TenantHeader, "acme")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNotFoundAcrossTenants(t *testing.T) {
	// GIVEN: A booking owned by acme
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-12")

	// WHEN: globex asks for it
	rec := s.do("GET", "/api/bookings/"+b.ID, "globex", nil)

	// THEN: It doesn't exist for globex
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.CodeNotFound, decodeBody[ErrorResponse](t, rec).Code)

	assert.Equal(t, http.StatusOK, s.do("GET", "/api/bookings/"+b.ID, "acme", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", "/api/payments/nope/confirm", "acme", nil).Code)
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) GetBooking(context.Context, core.TenantID, core.BookingID) (*core.Booking, error) {
	return nil, errors.New("disk on fire")
}

func TestInternalErrorsAreLoggedNotLeaked(t *testing.T) {
	s := newTestServer(t, brokenStore{store.NewMemory()})

	rec := s.do("GET", "/api/bookings/b1", "acme", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, core.CodeInternal, body.Code)
	assert.NotContains(t, body.Error, "disk on fire")

	entry := s.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Contains(t, fmt.Sprint(entry.Data[logrus.ErrorKey]), "disk on fire")
	assert.Equal(t, core.TenantID("acme"), entry.Data["tenant_id"])
}

// =============================================================================
// LIFECYCLE & LEDGERS
// =============================================================================

func TestDepositGateAndPaymentConfirmation(t *testing.T) {
	// GIVEN: A 30000 THB booking under a 50% deposit rule
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-13")

	// WHEN: Checking in with nothing paid
	rec := s.do("POST", "/api/bookings/"+b.ID+"/check-in", "acme", map[string]any{"actor": "desk"})

	// THEN: Policy rejection with the shortfall
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, core.CodeDepositRequired, body.Code)
	assert.Equal(t, "15000.00", body.Details["required"])
	assert.Equal(t, "0.00", body.Details["paid"])
	assert.Equal(t, "15000.00", body.Details["shortfall"])

	// WHEN: A pending payment is recorded
	rec = s.do("POST", "/api/bookings/"+b.ID+"/payments", "acme", map[string]any{"amount": "15000", "method": "CARD"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pending := decodeBody[PaymentResultDTO](t, rec)
	assert.Equal(t, "PENDING", pending.Payment.Status)
	require.NotNil(t, pending.Balance)
	assert.Equal(t, "0.00", pending.Balance.PaidTotal)
	assert.Equal(t, "UNPAID", pending.Balance.PaymentStatus)

	// AND: Still can't check in
	assert.Equal(t, http.StatusUnprocessableEntity, s.do("POST", "/api/bookings/"+b.ID+"/check-in", "acme", nil).Code)

	// WHEN: The payment is confirmed (twice)
	for i := 0; i < 2; i++ {
		rec = s.do("POST", "/api/payments/"+pending.Payment.ID+"/confirm", "acme", map[string]any{"actor": "desk"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		confirmed := decodeBody[PaymentResultDTO](t, rec)
		assert.Equal(t, "CONFIRMED", confirmed.Payment.Status)
		assert.Equal(t, "15000.00", confirmed.Balance.PaidTotal)
		assert.Equal(t, "15000.00", confirmed.Balance.Outstanding)
		assert.Equal(t, "PARTPAID", confirmed.Balance.PaymentStatus)
	}

	got := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/"+b.ID, "acme", nil))
	assert.Equal(t, "CONFIRMED", got.Status)

	// THEN: Check-in succeeds and is audited
	rec = s.do("POST", "/api/bookings/"+b.ID+"/check-in", "acme", map[string]any{
		"actor": "desk",
		"guest": map[string]any{"document_type": "passport", "document_number": "X123"},
		"notes": "early arrival",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	in := decodeBody[BookingDTO](t, rec)
	assert.Equal(t, "CHECKED_IN", in.Status)
	assert.Equal(t, "X123", in.Guest.DocumentNumber)
	assert.Equal(t, "Ana Lima", in.Guest.FullName)

	rec = s.do("POST", "/api/bookings/"+b.ID+"/check-in", "acme", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeAlreadyCheckedIn, decodeBody[ErrorResponse](t, rec).Code)

	events := decodeBody[[]CheckEventDTO](t, s.do("GET", "/api/bookings/"+b.ID+"/events", "acme", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "CHECK_IN", events[0].Type)
	assert.Equal(t, "desk", events[0].Actor)

	// AND: Check-out closes the stay
	rec = s.do("POST", "/api/bookings/"+b.ID+"/check-out", "acme", map[string]any{"actor": "desk"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CHECKED_OUT", decodeBody[BookingDTO](t, rec).Status)
}

func TestPaymentRejections(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-11")
	path := "/api/bookings/" + b.ID + "/payments"

	rec := s.do("POST", path, "acme", map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", path, "acme", map[string]any{"amount": "100", "currency": "EUR"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "currency", decodeBody[ErrorResponse](t, rec).Details["field"])

	rec = s.do("POST", path, "acme", map[string]any{"amount": "100", "method": "BITCOIN"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "method", decodeBody[ErrorResponse](t, rec).Details["field"])

	// A failed payment can't be confirmed later.
	p := decodeBody[PaymentResultDTO](t, s.do("POST", path, "acme", map[string]any{"amount": "100"}))
	rec = s.do("POST", "/api/payments/"+p.Payment.ID+"/fail", "acme", map[string]any{"reason": "card declined"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "card declined", decodeBody[PaymentResultDTO](t, rec).Payment.FailureReason)

	rec = s.do("POST", "/api/payments/"+p.Payment.ID+"/confirm", "acme", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeInvalidState, decodeBody[ErrorResponse](t, rec).Code)
}

func TestCancelAndDeleteBlockedByConfirmedPayment(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-11")
	s.do("POST", "/api/bookings/"+b.ID+"/payments", "acme", map[string]any{"amount": "500", "confirmed": true})

	rec := s.do("POST", "/api/bookings/"+b.ID+"/cancel", "acme", map[string]any{"reason": "changed plans"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeConfirmedPayment, decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do("DELETE", "/api/bookings/"+b.ID, "acme", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// An unpaid booking cancels and then deletes.
	other := s.createBooking("2025-03-20", "2025-03-22")
	rec = s.do("POST", "/api/bookings/"+other.ID+"/cancel", "acme", map[string]any{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeBody[BookingDTO](t, rec)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, "changed plans", cancelled.CancelReason)

	assert.Equal(t, http.StatusNoContent, s.do("DELETE", "/api/bookings/"+other.ID, "acme", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/bookings/"+other.ID, "acme", nil).Code)
}

func TestChargesAndVoid(t *testing.T) {
	// GIVEN: A one-night booking
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-11")

	// WHEN: A damage charge is added
	rec := s.do("POST", "/api/bookings/"+b.ID+"/charges", "acme", map[string]any{
		"type": "DAMAGE", "amount": 750, "description": "broken lamp",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[ChargeResultDTO](t, rec)

	// THEN: It is on the bill
	assert.Equal(t, "OPEN", added.Charge.Status)
	assert.Equal(t, "10750.00", added.Balance.TotalBill)

	charges := decodeBody[[]ChargeDTO](t, s.do("GET", "/api/bookings/"+b.ID+"/charges", "acme", nil))
	assert.Len(t, charges, 2) // ROOM + DAMAGE

	// WHEN: It is voided
	rec = s.do("POST", "/api/charges/"+added.Charge.ID+"/void", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	voided := decodeBody[ChargeResultDTO](t, rec)
	assert.Equal(t, "VOIDED", voided.Charge.Status)
	assert.NotNil(t, voided.Charge.VoidedAt)
	assert.Equal(t, "10000.00", voided.Balance.TotalBill)

	// AND: ROOM charges are not client-managed
	rec = s.do("POST", "/api/bookings/"+b.ID+"/charges", "acme", map[string]any{"type": "ROOM", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateBookingRequotes(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-11")

	rec := s.do("PUT", "/api/bookings/"+b.ID, "acme", map[string]any{"check_out": "2025-03-13", "notes": "extended"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[BookingDTO](t, rec)
	assert.Equal(t, "30000.00", got.TotalAmount)
	assert.Equal(t, "extended", got.Notes)

	balance := decodeBody[BalanceDTO](t, s.do("GET", "/api/bookings/"+b.ID+"/balance", "acme", nil))
	assert.Equal(t, "30000.00", balance.TotalBill)
}

func TestBalanceCacheReadThroughAndInvalidation(t *testing.T) {
	// GIVEN: A server backed by Redis and an unpaid booking
	s := newTestServer(t, store.NewMemory())
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s.h.Cache = cache.NewBalanceCache(rdb, time.Minute, s.h.Logger)
	b := s.createBooking("2025-03-10", "2025-03-11")
	path := "/api/bookings/" + b.ID + "/balance"

	// WHEN: Read twice
	first := s.do("GET", path, "acme", nil)
	second := s.do("GET", path, "acme", nil)

	// THEN: Computed once, then served from cache
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "UNPAID", decodeBody[BalanceDTO](t, second).PaymentStatus)

	// WHEN: A confirmed payment lands
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings/"+b.ID+"/payments", "acme", map[string]any{"amount": "4000", "confirmed": true}).Code)

	// THEN: The next read recomputes and sees it
	after := s.do("GET", path, "acme", nil)
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	balance := decodeBody[BalanceDTO](t, after)
	assert.Equal(t, "PARTPAID", balance.PaymentStatus)
	assert.Equal(t, "6000.00", balance.Outstanding)
	assert.Equal(t, "HIT", s.do("GET", path, "acme", nil).Header().Get("X-Cache"))
}

func TestListBookingsFilters(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	a := s.createBooking("2025-03-10", "2025-03-11")
	s.createBooking("2025-04-01", "2025-04-03")
	s.do("POST", "/api/bookings/"+a.ID+"/payments", "acme", map[string]any{"amount": "100", "confirmed": true})

	all := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "acme", nil))
	assert.Len(t, all, 2)

	confirmed := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings?status=confirmed", "acme", nil))
	require.Len(t, confirmed, 1)
	assert.Equal(t, a.ID, confirmed[0].ID)

	april := decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings?from=2025-03-20", "acme", nil))
	assert.Len(t, april, 1)

	assert.Empty(t, decodeBody[[]BookingDTO](t, s.do("GET", "/api/bookings", "globex", nil)))
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/bookings?limit=ten", "acme", nil).Code)
}

// =============================================================================
// UNITS, ADMIN, HEALTH
// =============================================================================

func TestAvailabilityAndQuote(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	b := s.createBooking("2025-03-10", "2025-03-12")

	rec := s.do("GET", "/api/units/u1/availability?check_in=2025-03-11&check_out=2025-03-14", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decodeBody[AvailabilityDTO](t, rec)
	assert.False(t, a.Available)
	assert.Equal(t, []string{b.ID}, a.Conflicts)

	a = decodeBody[AvailabilityDTO](t, s.do("GET", "/api/units/u1/availability?check_in=2025-03-11&check_out=2025-03-14&exclude="+b.ID, "acme", nil))
	assert.True(t, a.Available)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/units/u1/availability?check_in=2025-03-11", "acme", nil).Code)

	q := decodeBody[QuoteDTO](t, s.do("GET", "/api/units/u1/quote?check_in=2025-03-10&check_out=2025-03-12", "acme", nil))
	assert.Equal(t, "20000.00", q.Total)
	assert.Equal(t, "THB", q.Currency)
	require.Len(t, q.Nights, 2)
	assert.Equal(t, "2025-03-10", q.Nights[0].Night)
}

func TestAdminSeeding(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	rec := s.do("PUT", "/api/admin/units/u9", "globex", map[string]any{
		"name": "Loft", "base_price": "120", "currency": "EUR",
		"discount": map[string]any{"type": "PERCENT", "value": "50", "start": "2025-05-02", "end": "2025-05-02"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusNoContent, s.do("PUT", "/api/admin/guests/g7", "globex", map[string]any{"full_name": "Cleo Park"}).Code)

	q := decodeBody[QuoteDTO](t, s.do("GET", "/api/units/u9/quote?check_in=2025-05-01&check_out=2025-05-03", "globex", nil))
	assert.Equal(t, "180.00", q.Total)
	assert.True(t, q.Nights[1].Discounted)

	rec = s.do("PUT", "/api/admin/tenant", "globex", map[string]any{"currency": "EUR", "min_deposit_percent": "150"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do("PUT", "/api/admin/guests/g8", "globex", map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeBody[ErrorResponse](t, rec).Details["field"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	rec := s.do("GET", "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	h := decodeBody[HealthDTO](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "disabled", h.Cache)
}
