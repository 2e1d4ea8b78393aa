package booking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
)

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentInput struct {
	Amount    decimal.Decimal
	Currency  string // defaults to the booking currency
	Method    core.PaymentMethod
	Reference string

	// Confirmed records the payment as already received and runs the
	// confirmation path in the same transaction.
	Confirmed bool
	Actor     string
}

var paymentMethods = map[core.PaymentMethod]bool{
	core.MethodCash:         true,
	core.MethodCard:         true,
	core.MethodBankTransfer: true,
	core.MethodOnline:       true,
	core.MethodOther:        true,
}

// RecordPayment adds a payment to a booking.
func (s *Service) RecordPayment(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID, in PaymentInput) (_ *core.Payment, _ billing.Reconciliation, err error) {
	ctx, span := s.startSpan(ctx, "RecordPayment", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, billing.Reconciliation{}, err
	}
	if !in.Amount.IsPositive() {
		return nil, billing.Reconciliation{}, core.Invalid("amount", "must be positive")
	}
	method := in.Method
	if method == "" {
		method = core.MethodOther
	}
	if !paymentMethods[method] {
		return nil, billing.Reconciliation{}, core.Invalid("method", "unknown payment method %q", in.Method)
	}

	var out core.Payment
	var rec billing.Reconciliation
	ob := &outbox{}
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, bookingID)
		if err != nil {
			return err
		}
		if !AcceptsPayments(b.Status) {
			return core.InvalidTransition(*b, "record payment for")
		}
		currency := firstNonEmpty(in.Currency, b.Currency)
		if currency != b.Currency {
			return core.Invalid("currency", "must match booking currency %s", b.Currency)
		}

		p := core.Payment{
			ID:        core.PaymentID(s.NewID()),
			TenantID:  tenantID,
			BookingID: b.ID,
			Amount:    in.Amount.Round(2),
			Currency:  currency,
			Method:    method,
			Status:    core.PaymentPending,
			Reference: in.Reference,
			CreatedBy: in.Actor,
			CreatedAt: s.Clock(),
		}
		if err := tx.InsertPayment(ctx, tenantID, p); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		if in.Confirmed {
			if rec, err = s.confirm(ctx, tx, tenantID, b, &p, in.Actor, ob); err != nil {
				return err
			}
		} else if rec, err = s.persistDerived(ctx, tx, tenantID, b); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, billing.Reconciliation{}, err
	}

	s.log(tenantID, bookingID).WithFields(logrus.Fields{
		"payment_id":     out.ID,
		"amount":         out.Amount.StringFixed(2),
		"status":         out.Status,
		"payment_status": rec.PaymentStatus,
	}).Info("payment recorded")
	s.flush(ctx, ob)
	return &out, rec, nil
}

// ConfirmPayment moves a PENDING payment to CONFIRMED. Confirming an already
// CONFIRMED payment changes nothing and returns the current state.
func (s *Service) ConfirmPayment(ctx context.Context, tenantID core.TenantID, paymentID core.PaymentID, actor string) (_ *core.Payment, _ billing.Reconciliation, err error) {
	ctx, span := s.startSpan(ctx, "ConfirmPayment", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, billing.Reconciliation{}, err
	}

	var out core.Payment
	var rec billing.Reconciliation
	ob := &outbox{}
	noop := false
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		p, err := loadPayment(ctx, tx, tenantID, paymentID)
		if err != nil {
			return err
		}
		b, err := loadBooking(ctx, tx, tenantID, p.BookingID)
		if err != nil {
			return err
		}

		switch p.Status {
		case core.PaymentConfirmed:
			noop = true
			out = *p
			rec, err = rederive(ctx, tx, tenantID, b)
			return err
		case core.PaymentFailed:
			return &core.StateError{Resource: "payment", ID: string(p.ID), Status: string(p.Status), Action: "confirm"}
		}
		if !AcceptsPayments(b.Status) {
			return core.InvalidTransition(*b, "confirm payment for")
		}

		if rec, err = s.confirm(ctx, tx, tenantID, b, p, actor, ob); err != nil {
			return err
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, billing.Reconciliation{}, err
	}

	if !noop {
		s.log(tenantID, out.BookingID).WithFields(logrus.Fields{
			"payment_id":     out.ID,
			"actor":          actor,
			"paid_total":     rec.PaidTotal.String(),
			"payment_status": rec.PaymentStatus,
		}).Info("payment confirmed")
	}
	s.flush(ctx, ob)
	return &out, rec, nil
}

// confirm flips p to CONFIRMED, confirms a PENDING booking and re-derives
// the booking's payment status. The first non-zero confirmation queues an
// acknowledgement.
func (s *Service) confirm(ctx context.Context, tx core.Store, tenantID core.TenantID, b *core.Booking, p *core.Payment, actor string, ob *outbox) (billing.Reconciliation, error) {
	before, err := tx.ListPayments(ctx, tenantID, b.ID)
	if err != nil {
		return billing.Reconciliation{}, fmt.Errorf("failed to list payments: %w", err)
	}
	first := p.Amount.IsPositive() && billing.CountConfirmedNonZero(before) == 0

	now := s.Clock()
	p.Status = core.PaymentConfirmed
	p.ConfirmedAt = &now
	p.ConfirmedBy = actor
	if err := tx.UpdatePayment(ctx, tenantID, *p); err != nil {
		return billing.Reconciliation{}, fmt.Errorf("failed to update payment: %w", err)
	}

	if b.Status == core.StatusPending && p.Amount.IsPositive() {
		b.Status = core.StatusConfirmed
		b.ConfirmedAt = &now
	}
	rec, err := s.persistDerived(ctx, tx, tenantID, b)
	if err != nil {
		return billing.Reconciliation{}, err
	}

	if first {
		ob.acks = append(ob.acks, PaymentAcknowledged{
			TenantID:      tenantID,
			BookingID:     b.ID,
			PaymentID:     p.ID,
			GuestName:     b.Guest.FullName,
			GuestEmail:    b.Guest.Email,
			Amount:        p.Amount,
			Currency:      p.Currency,
			PaidTotal:     rec.PaidTotal.Value,
			Outstanding:   rec.Outstanding.Value,
			PaymentStatus: rec.PaymentStatus,
			ConfirmedAt:   now,
		})
	}
	return rec, nil
}

// FailPayment marks a PENDING payment as FAILED. A FAILED payment is
// returned unchanged; a CONFIRMED one cannot fail.
func (s *Service) FailPayment(ctx context.Context, tenantID core.TenantID, paymentID core.PaymentID, reason string) (_ *core.Payment, err error) {
	ctx, span := s.startSpan(ctx, "FailPayment", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var out core.Payment
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		p, err := loadPayment(ctx, tx, tenantID, paymentID)
		if err != nil {
			return err
		}
		switch p.Status {
		case core.PaymentFailed:
			out = *p
			return nil
		case core.PaymentConfirmed:
			return &core.StateError{Resource: "payment", ID: string(p.ID), Status: string(p.Status), Action: "fail"}
		}
		p.Status = core.PaymentFailed
		p.FailureReason = reason
		if err := tx.UpdatePayment(ctx, tenantID, *p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, out.BookingID).WithFields(logrus.Fields{"payment_id": out.ID, "reason": reason}).Info("payment failed")
	return &out, nil
}

func loadPayment(ctx context.Context, st core.Store, tenantID core.TenantID, id core.PaymentID) (*core.Payment, error) {
	p, err := st.GetPayment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if p == nil {
		return nil, core.NotFound("payment", id)
	}
	return p, nil
}

// persistDerived re-derives b's payment status and writes b.
func (s *Service) persistDerived(ctx context.Context, tx core.Store, tenantID core.TenantID, b *core.Booking) (billing.Reconciliation, error) {
	rec, err := rederive(ctx, tx, tenantID, b)
	if err != nil {
		return billing.Reconciliation{}, err
	}
	b.UpdatedAt = s.Clock()
	if err := tx.UpdateBooking(ctx, tenantID, *b); err != nil {
		return billing.Reconciliation{}, fmt.Errorf("failed to update booking: %w", err)
	}
	return rec, nil
}

// =============================================================================
// CHARGES
// =============================================================================

type ChargeInput struct {
	Type        core.ChargeType
	Amount      decimal.Decimal
	Description string
	Actor       string
}

var staffChargeTypes = map[core.ChargeType]bool{
	core.ChargeDamage:   true,
	core.ChargeExtra:    true,
	core.ChargeOverstay: true,
	core.ChargeOther:    true,
}

// AddCharge posts an ad hoc OPEN charge (damage, extras, overstay) to a
// booking. ROOM charges are owned by Create and Update.
func (s *Service) AddCharge(ctx context.Context, tenantID core.TenantID, bookingID core.BookingID, in ChargeInput) (_ *core.Charge, _ billing.Reconciliation, err error) {
	ctx, span := s.startSpan(ctx, "AddCharge", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, billing.Reconciliation{}, err
	}
	if in.Type == core.ChargeRoom {
		return nil, billing.Reconciliation{}, core.Invalid("type", "ROOM charges are managed by the booking")
	}
	if !staffChargeTypes[in.Type] {
		return nil, billing.Reconciliation{}, core.Invalid("type", "unknown charge type %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return nil, billing.Reconciliation{}, core.Invalid("amount", "must be positive")
	}

	var out core.Charge
	var rec billing.Reconciliation
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, bookingID)
		if err != nil {
			return err
		}
		if !AcceptsCharges(b.Status) {
			return core.InvalidTransition(*b, "add charge to")
		}
		c := core.Charge{
			ID:          core.ChargeID(s.NewID()),
			TenantID:    tenantID,
			BookingID:   b.ID,
			Type:        in.Type,
			Amount:      in.Amount.Round(2),
			Currency:    b.Currency,
			Description: in.Description,
			Status:      core.ChargeOpen,
			CreatedBy:   in.Actor,
			CreatedAt:   s.Clock(),
		}
		if err := tx.InsertCharge(ctx, tenantID, c); err != nil {
			return fmt.Errorf("failed to insert charge: %w", err)
		}
		if rec, err = s.persistDerived(ctx, tx, tenantID, b); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, billing.Reconciliation{}, err
	}

	s.log(tenantID, bookingID).WithFields(logrus.Fields{
		"charge_id":      out.ID,
		"type":           out.Type,
		"amount":         out.Amount.StringFixed(2),
		"payment_status": rec.PaymentStatus,
	}).Info("charge added")
	return &out, rec, nil
}

// VoidCharge takes an OPEN charge off the bill. Voiding a VOIDED charge is a
// no-op.
func (s *Service) VoidCharge(ctx context.Context, tenantID core.TenantID, chargeID core.ChargeID) (_ *core.Charge, _ billing.Reconciliation, err error) {
	ctx, span := s.startSpan(ctx, "VoidCharge", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, billing.Reconciliation{}, err
	}

	var out core.Charge
	var rec billing.Reconciliation
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		c, err := tx.GetCharge(ctx, tenantID, chargeID)
		if err != nil {
			return fmt.Errorf("failed to load charge: %w", err)
		}
		if c == nil {
			return core.NotFound("charge", chargeID)
		}
		b, err := loadBooking(ctx, tx, tenantID, c.BookingID)
		if err != nil {
			return err
		}
		if c.Type == core.ChargeRoom {
			return core.Invalid("type", "ROOM charges are managed by the booking")
		}
		switch c.Status {
		case core.ChargeVoided:
			out = *c
			rec, err = rederive(ctx, tx, tenantID, b)
			return err
		case core.ChargeSettled:
			return &core.StateError{Resource: "charge", ID: string(c.ID), Status: string(c.Status), Action: "void"}
		}
		if !AcceptsCharges(b.Status) {
			return core.InvalidTransition(*b, "void charge on")
		}

		now := s.Clock()
		c.Status = core.ChargeVoided
		c.VoidedAt = &now
		if err := tx.UpdateCharge(ctx, tenantID, *c); err != nil {
			return fmt.Errorf("failed to update charge: %w", err)
		}
		if rec, err = s.persistDerived(ctx, tx, tenantID, b); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, billing.Reconciliation{}, err
	}

	s.log(tenantID, out.BookingID).WithFields(logrus.Fields{
		"charge_id":      out.ID,
		"payment_status": rec.PaymentStatus,
	}).Info("charge voided")
	return &out, rec, nil
}
