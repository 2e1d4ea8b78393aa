package booking

import (
	"context"
	"fmt"

	"github.com/warp/stay-engine/core"
)

// =============================================================================
// ALLOCATOR - Unit/interval conflict checks
// =============================================================================
//
// Two bookings conflict when they are on the same unit, both are active
// (PENDING, CONFIRMED, CHECKED_IN) and their half-open intervals overlap:
//
//	a.CheckIn < b.CheckOut && b.CheckIn < a.CheckOut
//
// A checkout on the same instant as the next check-in is not a conflict.
//
// These checks only hold when called with the Store handed to WithTx: the
// insert or update that follows must see the same rows.

// Conflicts returns the active bookings on the unit that overlap stay,
// excluding the booking with id exclude. The store result is re-filtered
// here so the overlap rule above is the only one that counts.
func Conflicts(ctx context.Context, st core.BookingStore, tenantID core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) ([]core.Booking, error) {
	candidates, err := st.FindOverlapping(ctx, tenantID, unitID, stay, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping bookings: %w", err)
	}
	var out []core.Booking
	for _, b := range candidates {
		if b.ID == exclude || b.UnitID != unitID || !b.Status.IsActive() {
			continue
		}
		if b.Stay.Overlaps(stay) {
			out = append(out, b)
		}
	}
	return out, nil
}

// EnsureAvailable fails with a unit_not_available ConflictError if any
// active booking on the unit overlaps stay.
func EnsureAvailable(ctx context.Context, st core.BookingStore, tenantID core.TenantID, unitID core.UnitID, stay core.Interval, self core.BookingID) error {
	conflicts, err := Conflicts(ctx, st, tenantID, unitID, stay, self)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &core.ConflictError{
			Reason:        core.CodeUnitNotAvailable,
			UnitID:        unitID,
			BookingID:     self,
			ConflictsWith: conflicts[0].ID,
		}
	}
	return nil
}

// EnsureUnoccupied fails with a unit_occupied ConflictError if another
// booking is currently CHECKED_IN on the unit.
func EnsureUnoccupied(ctx context.Context, st core.BookingStore, tenantID core.TenantID, unitID core.UnitID, self core.BookingID) error {
	occupants, err := st.FindCheckedIn(ctx, tenantID, unitID, self)
	if err != nil {
		return fmt.Errorf("failed to query occupants: %w", err)
	}
	for _, b := range occupants {
		if b.ID != self && b.Status == core.StatusCheckedIn {
			return &core.ConflictError{
				Reason:        core.CodeUnitOccupied,
				UnitID:        unitID,
				BookingID:     self,
				ConflictsWith: b.ID,
			}
		}
	}
	return nil
}
