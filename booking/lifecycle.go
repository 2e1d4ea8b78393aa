package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
)

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

type CheckInInput struct {
	Actor string
	At    time.Time // zero means now

	// Guest overrides are merged into the booking's snapshot. With
	// PropagateToGuest they are also written to the guest record.
	Guest            core.GuestDetails
	PropagateToGuest bool

	Notes     string
	Artifacts []string
}

type CheckOutInput struct {
	Actor     string
	At        time.Time
	Notes     string
	Artifacts []string
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.Clock()
	}
	return t.UTC()
}

// CheckIn moves a CONFIRMED booking to CHECKED_IN.
func (s *Service) CheckIn(ctx context.Context, tenantID core.TenantID, id core.BookingID, in CheckInInput) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "CheckIn", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var out core.Booking
	var rec billing.Reconciliation
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if b.CheckedInAt != nil || b.Status == core.StatusCheckedIn {
			return &core.ConflictError{Reason: core.CodeAlreadyCheckedIn, UnitID: b.UnitID, BookingID: b.ID}
		}
		if !CanTransition(b.Status, core.StatusCheckedIn) {
			return core.InvalidTransition(*b, "check in")
		}
		if err := EnsureUnoccupied(ctx, tx, tenantID, b.UnitID, b.ID); err != nil {
			return err
		}

		tenant, err := loadTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		charges, payments, err := loadLedger(ctx, tx, tenantID, b.ID)
		if err != nil {
			return err
		}
		rec = billing.Reconcile(*b, charges, payments)
		if err := billing.CheckDeposit(*tenant, rec); err != nil {
			return err
		}

		at := s.at(in.At)
		if !in.Guest.IsEmpty() {
			b.Guest = b.Guest.Merge(in.Guest)
			if in.PropagateToGuest {
				g, err := loadGuest(ctx, tx, tenantID, b.GuestID)
				if err != nil {
					return err
				}
				g.Details = g.Details.Merge(in.Guest)
				g.UpdatedAt = at
				if err := tx.SaveGuest(ctx, tenantID, *g); err != nil {
					return fmt.Errorf("failed to update guest: %w", err)
				}
			}
		}

		b.Status = core.StatusCheckedIn
		b.CheckedInAt = &at
		b.PaymentStatus = rec.PaymentStatus
		b.UpdatedAt = s.Clock()
		if err := tx.UpdateBooking(ctx, tenantID, *b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, tenantID, b.ID, core.EventCheckIn, in.Actor, at, in.Notes, in.Artifacts); err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, id).WithFields(logrus.Fields{
		"actor":      in.Actor,
		"unit_id":    out.UnitID,
		"paid_total": rec.PaidTotal.String(),
	}).Info("guest checked in")
	return &out, nil
}

// CheckOut moves a CHECKED_IN booking to CHECKED_OUT.
func (s *Service) CheckOut(ctx context.Context, tenantID core.TenantID, id core.BookingID, in CheckOutInput) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "CheckOut", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var out core.Booking
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, core.StatusCheckedOut) {
			return core.InvalidTransition(*b, "check out")
		}
		if _, err := rederive(ctx, tx, tenantID, b); err != nil {
			return err
		}

		at := s.at(in.At)
		b.Status = core.StatusCheckedOut
		b.CheckedOutAt = &at
		b.UpdatedAt = s.Clock()
		if err := tx.UpdateBooking(ctx, tenantID, *b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, tenantID, b.ID, core.EventCheckOut, in.Actor, at, in.Notes, in.Artifacts); err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, id).WithFields(logrus.Fields{
		"actor":          in.Actor,
		"payment_status": out.PaymentStatus,
	}).Info("guest checked out")
	return &out, nil
}

func (s *Service) appendEvent(ctx context.Context, tx core.Store, tenantID core.TenantID, bookingID core.BookingID, typ core.CheckEventType, actor string, at time.Time, notes string, artifacts []string) error {
	e := core.CheckEvent{
		ID:        core.CheckEventID(s.NewID()),
		TenantID:  tenantID,
		BookingID: bookingID,
		Type:      typ,
		Actor:     actor,
		At:        at,
		Notes:     notes,
		Artifacts: append([]string(nil), artifacts...),
	}
	if err := tx.AppendCheckEvent(ctx, tenantID, e); err != nil {
		return fmt.Errorf("failed to append %s event: %w", typ, err)
	}
	return nil
}

// =============================================================================
// CANCEL / NO-SHOW / DELETE
// =============================================================================

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED. Any CONFIRMED
// payment blocks it: money already received is refunded out of band first.
func (s *Service) Cancel(ctx context.Context, tenantID core.TenantID, id core.BookingID, actor, reason string) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var out core.Booking
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, core.StatusCancelled) {
			return core.InvalidTransition(*b, "cancel")
		}
		if err := ensureNoConfirmedPayment(ctx, tx, tenantID, b.ID, "cancel"); err != nil {
			return err
		}

		now := s.Clock()
		b.Status = core.StatusCancelled
		b.CancelledAt = &now
		b.CancelReason = reason
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, tenantID, *b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, id).WithFields(logrus.Fields{"actor": actor, "reason": reason}).Info("booking cancelled")
	return &out, nil
}

// MarkNoShow moves a CONFIRMED booking whose guest never arrived to NO_SHOW.
func (s *Service) MarkNoShow(ctx context.Context, tenantID core.TenantID, id core.BookingID, actor string) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "MarkNoShow", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var out core.Booking
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, core.StatusNoShow) {
			return core.InvalidTransition(*b, "mark no-show")
		}
		b.Status = core.StatusNoShow
		b.UpdatedAt = s.Clock()
		if err := tx.UpdateBooking(ctx, tenantID, *b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, id).WithField("actor", actor).Info("booking marked no-show")
	return &out, nil
}

// Delete removes a PENDING or CONFIRMED booking that has no CONFIRMED
// payment, together with its pending/failed payments, charges and check
// events.
func (s *Service) Delete(ctx context.Context, tenantID core.TenantID, id core.BookingID) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !Editable(b.Status) {
			return core.InvalidTransition(*b, "delete")
		}
		if err := ensureNoConfirmedPayment(ctx, tx, tenantID, b.ID, "delete"); err != nil {
			return err
		}

		if err := tx.DeletePayments(ctx, tenantID, b.ID, core.PaymentPending, core.PaymentFailed); err != nil {
			return fmt.Errorf("failed to delete payments: %w", err)
		}
		if err := tx.DeleteCharges(ctx, tenantID, b.ID); err != nil {
			return fmt.Errorf("failed to delete charges: %w", err)
		}
		if err := tx.DeleteCheckEvents(ctx, tenantID, b.ID); err != nil {
			return fmt.Errorf("failed to delete check events: %w", err)
		}
		if err := tx.DeleteBooking(ctx, tenantID, b.ID); err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log(tenantID, id).Info("booking deleted")
	return nil
}

func ensureNoConfirmedPayment(ctx context.Context, tx core.Store, tenantID core.TenantID, id core.BookingID, action string) error {
	payments, err := tx.ListPayments(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to list payments: %w", err)
	}
	if billing.HasConfirmedPayment(payments) {
		return &core.IntegrityError{
			BookingID: id,
			Reason:    fmt.Sprintf("cannot %s: booking has confirmed payments", action),
		}
	}
	return nil
}
