/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Every row goes through booking.Service, so scenarios
	obey the same guards as API traffic.

AVAILABLE SCENARIOS:

	front-desk:   One hotel, today's arrivals in every deposit state
	multi-tenant: Two properties sharing unit IDs, isolated ledgers
	checked-in:   In-house guests, overstay and damage charges, a no-show

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed tenants, units, guests
 3. Create bookings relative to today
 4. Record/confirm payments and drive lifecycle transitions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "front-desk"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - booking/service.go: Operations used by the loaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/booking"
	"github.com/warp/stay-engine/core"
)

// Resetter is implemented by stores that can drop all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "front-desk",
		Name:        "Front Desk",
		Description: "Hotel with a 50% deposit rule: paid, part-paid and unpaid arrivals for today",
	},
	{
		ID:          "multi-tenant",
		Name:        "Multi-Tenant",
		Description: "Two properties with the same unit IDs and different currencies",
	},
	{
		ID:          "checked-in",
		Name:        "Checked In",
		Description: "In-house guests, overstay and damage charges, a checkout and a no-show",
	},
}

func (h *Handler) loaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"front-desk":   h.loadFrontDeskScenario,
		"multi-tenant": h.loadMultiTenantScenario,
		"checked-in":   h.loadCheckedInScenario,
	}
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := h.loaders()[req.ScenarioID]
	if !ok {
		h.fail(w, r, core.Invalid("scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(Resetter)
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}
	if err := rs.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seeder threads a tenant and the first error through a loader.
type seeder struct {
	ctx    context.Context
	svc    *booking.Service
	tenant core.TenantID
	today  time.Time
	err    error
}

func (h *Handler) seeder(ctx context.Context, tenant core.TenantID) *seeder {
	return &seeder{ctx: ctx, svc: h.Service, tenant: tenant, today: h.Service.Clock().UTC().Truncate(24 * time.Hour)}
}

func (s *seeder) tenantSettings(name, currency string, deposit int64) {
	if s.err != nil {
		return
	}
	pct := decimal.NewFromInt(deposit)
	s.err = s.svc.PutTenant(s.ctx, core.Tenant{ID: s.tenant, Name: name, Currency: currency, MinDepositPercent: &pct})
}

func (s *seeder) unit(id, name string, rate int64, discount *core.DiscountRule) {
	if s.err != nil {
		return
	}
	s.err = s.svc.PutUnit(s.ctx, s.tenant, core.Unit{ID: core.UnitID(id), Name: name, BasePrice: decimal.NewFromInt(rate), Discount: discount})
}

func (s *seeder) guest(id, name, email, nationality string) {
	if s.err != nil {
		return
	}
	s.err = s.svc.PutGuest(s.ctx, s.tenant, core.Guest{
		ID:      core.GuestID(id),
		Details: core.GuestDetails{FullName: name, Email: email, Nationality: nationality},
	})
}

// book quotes the stay from the unit rate. from and to are day offsets
// from today.
func (s *seeder) book(unit, guest string, from, to, guests int) core.BookingID {
	if s.err != nil {
		return ""
	}
	b, err := s.svc.Create(s.ctx, s.tenant, booking.CreateInput{
		UnitID:     core.UnitID(unit),
		GuestID:    core.GuestID(guest),
		Stay:       core.NewInterval(s.today.AddDate(0, 0, from), s.today.AddDate(0, 0, to)),
		GuestCount: guests,
		Actor:      "scenario",
	})
	if err != nil {
		s.err = err
		return ""
	}
	return b.ID
}

// pay records a payment of pct percent of the booking total.
func (s *seeder) pay(id core.BookingID, pct int64, method core.PaymentMethod, confirmed bool) core.PaymentID {
	if s.err != nil {
		return ""
	}
	b, err := s.svc.Get(s.ctx, s.tenant, id)
	if err != nil {
		s.err = err
		return ""
	}
	amount := b.TotalAmount.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Round(2)
	p, _, err := s.svc.RecordPayment(s.ctx, s.tenant, id, booking.PaymentInput{
		Amount:    amount,
		Method:    method,
		Confirmed: confirmed,
		Actor:     "scenario",
	})
	if err != nil {
		s.err = err
		return ""
	}
	return p.ID
}

func (s *seeder) checkIn(id core.BookingID) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.CheckIn(s.ctx, s.tenant, id, booking.CheckInInput{Actor: "front-desk"})
}

func (s *seeder) checkOut(id core.BookingID, notes string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.CheckOut(s.ctx, s.tenant, id, booking.CheckOutInput{Actor: "front-desk", Notes: notes})
}

func (s *seeder) charge(id core.BookingID, typ core.ChargeType, amount int64, description string) {
	if s.err != nil {
		return
	}
	_, _, s.err = s.svc.AddCharge(s.ctx, s.tenant, id, booking.ChargeInput{
		Type:        typ,
		Amount:      decimal.NewFromInt(amount),
		Description: description,
		Actor:       "front-desk",
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFrontDeskScenario(ctx context.Context) error {
	s := h.seeder(ctx, "demo-hotel")
	s.tenantSettings("Demo Hotel", "THB", 50)
	s.unit("r101", "Garden Room", 2500, nil)
	s.unit("r102", "Deluxe Room", 3200, &core.DiscountRule{
		Type:  core.DiscountPercent,
		Value: decimal.NewFromInt(15),
		Start: s.today,
		End:   s.today.AddDate(0, 0, 6),
	})
	s.unit("r103", "Family Suite", 5400, nil)
	s.unit("r201", "Staff Room", 0, nil)
	s.guest("g-ana", "Ana Lima", "ana@example.com", "BR")
	s.guest("g-ben", "Ben Ito", "ben@example.com", "JP")
	s.guest("g-cho", "Cho Min", "cho@example.com", "KR")
	s.guest("g-dee", "Dee Patel", "", "IN")

	// Fully paid, ready to check in.
	paid := s.book("r101", "g-ana", 0, 3, 2)
	s.pay(paid, 100, core.MethodCard, true)

	// Deposit met exactly.
	half := s.book("r102", "g-ben", 0, 2, 1)
	s.pay(half, 50, core.MethodBankTransfer, true)

	// Below the deposit with a pending top-up: check-in is refused until
	// the top-up is confirmed.
	short := s.book("r103", "g-cho", 0, 4, 4)
	s.pay(short, 20, core.MethodCash, true)
	s.pay(short, 30, core.MethodOnline, false)

	// Future booking with no payment stays PENDING.
	s.book("r101", "g-dee", 7, 10, 1)
	return s.err
}

func (h *Handler) loadMultiTenantScenario(ctx context.Context) error {
	sea := h.seeder(ctx, "seaside")
	sea.tenantSettings("Seaside Inn", "EUR", 30)
	sea.unit("u1", "Sea View", 140, nil)
	sea.unit("u2", "Garden View", 95, nil)
	sea.guest("g1", "Ana Lima", "ana@example.com", "BR")
	b := sea.book("u1", "g1", 1, 4, 2)
	sea.pay(b, 30, core.MethodCard, true)
	if sea.err != nil {
		return sea.err
	}

	// Same unit IDs and dates on another tenant never conflict.
	mtn := h.seeder(ctx, "mountain")
	mtn.tenantSettings("Mountain Lodge", "USD", 100)
	mtn.unit("u1", "Cabin", 210, nil)
	mtn.guest("g1", "Ben Ito", "ben@example.com", "JP")
	b = mtn.book("u1", "g1", 1, 4, 3)
	mtn.pay(b, 40, core.MethodBankTransfer, true)
	return mtn.err
}

func (h *Handler) loadCheckedInScenario(ctx context.Context) error {
	s := h.seeder(ctx, "demo-hotel")
	s.tenantSettings("Demo Hotel", "THB", 50)
	s.unit("r101", "Garden Room", 2500, nil)
	s.unit("r102", "Deluxe Room", 3200, nil)
	s.unit("r103", "Family Suite", 5400, nil)
	s.guest("g-ana", "Ana Lima", "ana@example.com", "BR")
	s.guest("g-ben", "Ben Ito", "ben@example.com", "JP")
	s.guest("g-cho", "Cho Min", "cho@example.com", "KR")

	// In house since yesterday, stayed past checkout time.
	inHouse := s.book("r101", "g-ana", -1, 2, 2)
	s.pay(inHouse, 50, core.MethodCard, true)
	s.checkIn(inHouse)
	s.charge(inHouse, core.ChargeOverstay, 800, "late checkout 15:00")

	// Left with a damage charge still outstanding.
	left := s.book("r102", "g-ben", -3, 0, 1)
	s.pay(left, 100, core.MethodCash, true)
	s.checkIn(left)
	s.charge(left, core.ChargeDamage, 1500, "broken lamp")
	s.checkOut(left, "minibar restocked")

	// Confirmed but never arrived.
	gone := s.book("r103", "g-cho", -2, 1, 2)
	s.pay(gone, 50, core.MethodOnline, true)
	if s.err == nil {
		_, s.err = s.svc.MarkNoShow(ctx, s.tenant, gone, "front-desk")
	}
	return s.err
}
