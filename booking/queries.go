package booking

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
)

// =============================================================================
// READS - Tenant-scoped, no transaction
// =============================================================================

func (s *Service) Get(ctx context.Context, tenantID core.TenantID, id core.BookingID) (*core.Booking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return loadBooking(ctx, s.store, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID core.TenantID, filter core.BookingFilter) ([]core.Booking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if filter.Limit < 0 {
		return nil, core.Invalid("limit", "must not be negative")
	}
	bookings, err := s.store.ListBookings(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (s *Service) Payments(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) ([]core.Payment, error) {
	if _, err := s.Get(ctx, tenantID, bookingID); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, tenantID, bookingID)
}

func (s *Service) Charges(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) ([]core.Charge, error) {
	if _, err := s.Get(ctx, tenantID, bookingID); err != nil {
		return nil, err
	}
	return s.store.ListCharges(ctx, tenantID, bookingID)
}

func (s *Service) CheckEvents(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) ([]core.CheckEvent, error) {
	if _, err := s.Get(ctx, tenantID, bookingID); err != nil {
		return nil, err
	}
	return s.store.ListCheckEvents(ctx, tenantID, bookingID)
}

// Availability is the allocator's answer for a unit and interval.
type Availability struct {
	UnitID    core.UnitID
	Stay      core.Interval
	Available bool
	Conflicts []core.BookingID
}

// CheckAvailability reports whether stay is free on the unit, ignoring the
// booking exclude (pass "" for a new booking).
func (s *Service) CheckAvailability(ctx context.Context, tenantID core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) (_ *Availability, err error) {
	ctx, span := s.startSpan(ctx, "CheckAvailability", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	stay = core.NewInterval(stay.CheckIn, stay.CheckOut)
	if err := validateStay(stay); err != nil {
		return nil, err
	}
	if _, err := loadUnit(ctx, s.store, tenantID, unitID); err != nil {
		return nil, err
	}
	conflicts, err := Conflicts(ctx, s.store, tenantID, unitID, stay, exclude)
	if err != nil {
		return nil, err
	}
	a := &Availability{UnitID: unitID, Stay: stay, Available: len(conflicts) == 0}
	for _, b := range conflicts {
		a.Conflicts = append(a.Conflicts, b.ID)
	}
	return a, nil
}

// Quote prices a stay on a unit from its rate and discount rule.
func (s *Service) Quote(ctx context.Context, tenantID core.TenantID, unitID core.UnitID, stay core.Interval) (*billing.Quote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	stay = core.NewInterval(stay.CheckIn, stay.CheckOut)
	if err := validateStay(stay); err != nil {
		return nil, err
	}
	u, err := loadUnit(ctx, s.store, tenantID, unitID)
	if err != nil {
		return nil, err
	}
	q := billing.QuoteStay(*u, stay)
	return &q, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile returns the booking's bill, paid total, outstanding amount and
// derived payment status.
func (s *Service) Reconcile(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID) (billing.Reconciliation, error) {
	b, err := s.Get(ctx, tenantID, bookingID)
	if err != nil {
		return billing.Reconciliation{}, err
	}
	charges, payments, err := loadLedger(ctx, s.store, tenantID, b.ID)
	if err != nil {
		return billing.Reconciliation{}, err
	}
	return billing.Reconcile(*b, charges, payments), nil
}

// RepairDrift re-derives the payment status of every booking of the tenant
// and persists it where the stored value disagrees with the ledgers. It
// returns the number of bookings repaired.
func (s *Service) RepairDrift(ctx context.Context, tenantID core.TenantID) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "RepairDrift", tenantID)
	defer func() { finish(span, err) }()

	bookings, err := s.List(ctx, tenantID, core.BookingFilter{})
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, candidate := range bookings {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		rec, err := s.Reconcile(ctx, tenantID, candidate.ID)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return repaired, err
		}
		if rec.PaymentStatus == candidate.PaymentStatus {
			continue
		}

		var from, to core.PaymentStatus
		err = s.store.WithTx(ctx, func(tx core.Store) error {
			b, err := tx.GetBooking(ctx, tenantID, candidate.ID)
			if err != nil || b == nil {
				return err
			}
			from = b.PaymentStatus
			if _, err := rederive(ctx, tx, tenantID, b); err != nil {
				return err
			}
			to = b.PaymentStatus
			if from == to {
				return nil
			}
			b.UpdatedAt = s.Clock()
			return tx.UpdateBooking(ctx, tenantID, *b)
		})
		if err != nil {
			return repaired, fmt.Errorf("failed to repair booking %s: %w", candidate.ID, err)
		}
		if from != to {
			repaired++
			s.log(tenantID, candidate.ID).WithFields(logrus.Fields{"from": from, "to": to}).Warn("payment status drift repaired")
		}
	}
	return repaired, nil
}

// =============================================================================
// CATALOG - Seeding entry points for externally owned records
// =============================================================================

// PutTenant stores tenant settings.
func (s *Service) PutTenant(ctx context.Context, t core.Tenant) error {
	if err := requireTenant(t.ID); err != nil {
		return err
	}
	if p := t.MinDepositPercent; p != nil && (p.IsNegative() || p.GreaterThan(core.DefaultMinDepositPercent)) {
		return core.Invalid("min_deposit_percent", "must be between 0 and 100")
	}
	return s.store.SaveTenant(ctx, t)
}

// PutUnit stores a unit of the tenant.
func (s *Service) PutUnit(ctx context.Context, tenantID core.TenantID, u core.Unit) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if u.ID == "" {
		return core.Invalid("unit_id", "is required")
	}
	if u.BasePrice.IsNegative() {
		return core.Invalid("base_price", "must not be negative")
	}
	if d := u.Discount; d != nil {
		if d.Type != core.DiscountPercent && d.Type != core.DiscountFixedPrice {
			return core.Invalid("discount.type", "unknown discount type %q", d.Type)
		}
		if !d.Start.IsZero() && !d.End.IsZero() && d.End.Before(d.Start) {
			return core.Invalid("discount", "end must not be before start")
		}
	}
	now := s.Clock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.TenantID = tenantID
	return s.store.SaveUnit(ctx, tenantID, u)
}

// PutGuest stores a guest record. Bookings keep their own snapshot; edits
// here don't flow into them.
func (s *Service) PutGuest(ctx context.Context, tenantID core.TenantID, g core.Guest) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if g.ID == "" {
		return core.Invalid("guest_id", "is required")
	}
	now := s.Clock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	g.TenantID = tenantID
	return s.store.SaveGuest(ctx, tenantID, g)
}

// TenantIDs lists every tenant known to the engine: those with settings on
// record and those running on defaults that already own bookings.
func (s *Service) TenantIDs(ctx context.Context) ([]core.TenantID, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := s.store.ListBookingTenants(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[core.TenantID]bool, len(tenants)+len(owners))
	var ids []core.TenantID
	add := func(id core.TenantID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, t := range tenants {
		add(t.ID)
	}
	for _, id := range owners {
		add(id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
