/*
Package booking is the stay engine: the booking lifecycle, the ledgers and
the allocator, all behind one Service.

PURPOSE:
  Service is the only writer of bookings, charges, payments and check
  events. Every mutation runs in a single store transaction that re-reads
  the rows it depends on, enforces the guards, writes, and re-derives the
  booking's payment status before commit. Notifications are sent after
  commit and never roll anything back.

LIFECYCLE:
  Create ──▶ PENDING/UNPAID + OPEN ROOM charge
  ConfirmPayment (first non-zero) ──▶ CONFIRMED
  CheckIn  ──▶ CHECKED_IN   (guards: duplicate, state, occupancy, deposit)
  CheckOut ──▶ CHECKED_OUT
  Cancel   ──▶ CANCELLED    (blocked by any CONFIRMED payment)
  MarkNoShow ──▶ NO_SHOW

GUARD ORDER ON CHECK-IN:
  1. already_checked_in  (CheckedInAt set or status CHECKED_IN)
  2. invalid_state       (status must be CONFIRMED)
  3. unit_occupied       (another booking CHECKED_IN on the unit)
  4. deposit_required    (paid < minDepositPercent of the bill)

TENANCY:
  Every method takes a TenantID and every store call is scoped by it.
  Rows of another tenant surface as NotFoundError.

EXAMPLE:
  svc := booking.NewService(store, notifier, logger, nil)

  b, err := svc.Create(ctx, "acme", booking.CreateInput{
      UnitID: "u-101", GuestID: "g-7", Stay: core.Days(2025, time.January, 1, 4),
  })
  _, rec, err := svc.RecordPayment(ctx, "acme", b.ID, booking.PaymentInput{
      Amount: decimal.NewFromInt(30000), Method: core.MethodCash, Confirmed: true,
  })
  b, err = svc.CheckIn(ctx, "acme", b.ID, booking.CheckInInput{Actor: "frontdesk"})

SEE ALSO:
  - allocator.go: Overlap and occupancy checks
  - ledger.go: Payments and charges
  - billing/: Pure reconciliation math
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans started by the booking service.
const TracerName = "github.com/warp/stay-engine/booking"

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    core.TxStore
	notifier Notifier
	logger   *logrus.Logger
	tracer   trace.Tracer

	// Clock and NewID are replaceable in tests.
	Clock core.Clock
	NewID func() string
}

// NewService wires a Service. A nil notifier drops events, a nil logger uses
// the logrus standard logger and a nil tracer uses the global provider.
func NewService(store core.TxStore, notifier Notifier, logger *logrus.Logger, tracer trace.Tracer) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		Clock:    core.SystemClock,
		NewID:    uuid.NewString,
	}
}

func (s *Service) startSpan(ctx context.Context, name string, tenantID core.TenantID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "BookingService."+name)
	span.SetAttributes(attribute.String("tenant.id", string(tenantID)))
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) log(tenantID core.TenantID, id core.BookingID) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{"tenant_id": tenantID, "booking_id": id})
}

// flush delivers events raised by a committed transaction.
func (s *Service) flush(ctx context.Context, ob *outbox) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range ob.created {
		if err := s.notifier.BookingCreated(ctx, e); err != nil {
			s.log(e.TenantID, e.BookingID).WithError(err).Warn("booking created notification failed")
		}
	}
	for _, e := range ob.acks {
		if err := s.notifier.PaymentAcknowledged(ctx, e); err != nil {
			s.log(e.TenantID, e.BookingID).WithError(err).Warn("payment acknowledgement failed")
		}
	}
}

// =============================================================================
// LOADERS - Missing rows become NotFoundError
// =============================================================================

func requireTenant(tenantID core.TenantID) error {
	if tenantID == "" {
		return core.Invalid("tenant_id", "is required")
	}
	return nil
}

// loadTenant returns the tenant settings, or defaults when the tenant has
// none on record.
func loadTenant(ctx context.Context, st core.Store, tenantID core.TenantID) (*core.Tenant, error) {
	t, err := st.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if t == nil {
		return &core.Tenant{ID: tenantID}, nil
	}
	return t, nil
}

func loadUnit(ctx context.Context, st core.Store, tenantID core.TenantID, id core.UnitID) (*core.Unit, error) {
	u, err := st.GetUnit(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if u == nil {
		return nil, core.NotFound("unit", id)
	}
	return u, nil
}

func loadGuest(ctx context.Context, st core.Store, tenantID core.TenantID, id core.GuestID) (*core.Guest, error) {
	g, err := st.GetGuest(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest: %w", err)
	}
	if g == nil {
		return nil, core.NotFound("guest", id)
	}
	return g, nil
}

func loadBooking(ctx context.Context, st core.Store, tenantID core.TenantID, id core.BookingID) (*core.Booking, error) {
	b, err := st.GetBooking(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if b == nil {
		return nil, core.NotFound("booking", id)
	}
	return b, nil
}

func loadLedger(ctx context.Context, st core.Store, tenantID core.TenantID, id core.BookingID) ([]core.Charge, []core.Payment, error) {
	charges, err := st.ListCharges(ctx, tenantID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list charges: %w", err)
	}
	payments, err := st.ListPayments(ctx, tenantID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return charges, payments, nil
}

// rederive recomputes the reconciliation from the rows visible to st and
// sets the derived payment status on b. The caller persists b.
func rederive(ctx context.Context, st core.Store, tenantID core.TenantID, b *core.Booking) (billing.Reconciliation, error) {
	charges, payments, err := loadLedger(ctx, st, tenantID, b.ID)
	if err != nil {
		return billing.Reconciliation{}, err
	}
	r := billing.Reconcile(*b, charges, payments)
	b.PaymentStatus = r.PaymentStatus
	return r, nil
}

func validateStay(stay core.Interval) error {
	if stay.CheckIn.IsZero() || stay.CheckOut.IsZero() {
		return core.Invalid("stay", "check-in and check-out are required")
	}
	if !stay.Valid() {
		return core.Invalid("stay", "check-out must be after check-in")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	UnitID  core.UnitID
	GuestID core.GuestID
	Stay    core.Interval

	// Amount is the total for the stay. Nil quotes it from the unit rate.
	Amount   *decimal.Decimal
	Currency string

	GuestCount int
	Notes      string
	Actor      string
}

// Create reserves a unit for a guest. The booking starts PENDING/UNPAID with
// an OPEN ROOM charge mirroring its total.
func (s *Service) Create(ctx context.Context, tenantID core.TenantID, in CreateInput) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "Create", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if in.UnitID == "" {
		return nil, core.Invalid("unit_id", "is required")
	}
	if in.GuestID == "" {
		return nil, core.Invalid("guest_id", "is required")
	}
	stay := core.NewInterval(in.Stay.CheckIn, in.Stay.CheckOut)
	if err := validateStay(stay); err != nil {
		return nil, err
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, core.Invalid("amount", "must be positive")
	}
	if in.GuestCount < 0 {
		return nil, core.Invalid("guest_count", "must not be negative")
	}
	guestCount := in.GuestCount
	if guestCount == 0 {
		guestCount = 1
	}

	var created core.Booking
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		tenant, err := loadTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		unit, err := loadUnit(ctx, tx, tenantID, in.UnitID)
		if err != nil {
			return err
		}
		guest, err := loadGuest(ctx, tx, tenantID, in.GuestID)
		if err != nil {
			return err
		}
		if err := EnsureAvailable(ctx, tx, tenantID, unit.ID, stay, ""); err != nil {
			return err
		}

		total := decimal.Zero
		if in.Amount != nil {
			total = *in.Amount
		} else {
			q := billing.QuoteStay(*unit, stay)
			if !q.Usable() {
				return core.Invalid("amount", "is required: unit %s has no usable rate", unit.ID)
			}
			total = q.Total.Value
		}

		now := s.Clock()
		b := core.Booking{
			ID:            core.BookingID(s.NewID()),
			TenantID:      tenantID,
			UnitID:        unit.ID,
			GuestID:       guest.ID,
			Guest:         guest.Details,
			Stay:          stay,
			TotalAmount:   total,
			Currency:      firstNonEmpty(in.Currency, unit.Currency, tenant.Currency, core.DefaultCurrency),
			Status:        core.StatusPending,
			PaymentStatus: core.PaymentUnpaid,
			GuestCount:    guestCount,
			Notes:         in.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertBooking(ctx, tenantID, b); err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		room := core.Charge{
			ID:          core.ChargeID(s.NewID()),
			TenantID:    tenantID,
			BookingID:   b.ID,
			Type:        core.ChargeRoom,
			Amount:      total,
			Currency:    b.Currency,
			Description: fmt.Sprintf("%s, %d night(s)", firstNonEmpty(unit.Name, string(unit.ID)), stay.Nights()),
			Status:      core.ChargeOpen,
			CreatedBy:   in.Actor,
			CreatedAt:   now,
		}
		if err := tx.InsertCharge(ctx, tenantID, room); err != nil {
			return fmt.Errorf("failed to insert room charge: %w", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("booking.id", string(created.ID)))
	s.log(tenantID, created.ID).WithFields(logrus.Fields{
		"unit_id": created.UnitID,
		"stay":    created.Stay.String(),
		"total":   created.Total().String(),
	}).Info("booking created")
	s.flush(ctx, &outbox{created: []BookingCreated{newBookingCreated(created)}})
	return &created, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateInput carries the fields to change. Nil fields are left alone.
type UpdateInput struct {
	UnitID     *core.UnitID
	GuestID    *core.GuestID
	CheckIn    *time.Time
	CheckOut   *time.Time
	Amount     *decimal.Decimal
	Currency   *string
	GuestCount *int
	Notes      *string
}

// ensureCurrencyChangeable rejects a currency edit once ledger entries exist
// in the old currency. FAILED payments, VOIDED charges and the ROOM charge
// (re-labelled with the booking) don't count.
func ensureCurrencyChangeable(ctx context.Context, tx core.Store, tenantID core.TenantID, id core.BookingID) error {
	payments, err := tx.ListPayments(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to list payments: %w", err)
	}
	for _, p := range payments {
		if p.Status != core.PaymentFailed {
			return core.Invalid("currency", "cannot change while payment %s is on record", p.ID)
		}
	}

	charges, err := tx.ListCharges(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to list charges: %w", err)
	}
	for _, c := range charges {
		if c.Type != core.ChargeRoom && c.Status != core.ChargeVoided {
			return core.Invalid("currency", "cannot change while charge %s is on record", c.ID)
		}
	}
	return nil
}

// Update edits a PENDING or CONFIRMED booking. A new unit or interval is
// re-checked for conflicts excluding the booking itself. When the unit or
// dates change without an explicit amount, the amount is re-quoted from the
// unit rate if the rate is usable. The ROOM charge follows the amount.
func (s *Service) Update(ctx context.Context, tenantID core.TenantID, id core.BookingID, in UpdateInput) (_ *core.Booking, err error) {
	ctx, span := s.startSpan(ctx, "Update", tenantID)
	defer func() { finish(span, err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, core.Invalid("amount", "must be positive")
	}
	if in.GuestCount != nil && *in.GuestCount < 1 {
		return nil, core.Invalid("guest_count", "must be at least 1")
	}
	if in.UnitID != nil && *in.UnitID == "" {
		return nil, core.Invalid("unit_id", "must not be empty")
	}
	if in.GuestID != nil && *in.GuestID == "" {
		return nil, core.Invalid("guest_id", "must not be empty")
	}

	var updated core.Booking
	err = s.store.WithTx(ctx, func(tx core.Store) error {
		b, err := loadBooking(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !Editable(b.Status) {
			return core.InvalidTransition(*b, "edit")
		}
		next := *b

		var unit *core.Unit
		unitChanged := in.UnitID != nil && *in.UnitID != b.UnitID
		if unitChanged {
			if unit, err = loadUnit(ctx, tx, tenantID, *in.UnitID); err != nil {
				return err
			}
			next.UnitID = unit.ID
		}

		if in.GuestID != nil && *in.GuestID != b.GuestID {
			guest, err := loadGuest(ctx, tx, tenantID, *in.GuestID)
			if err != nil {
				return err
			}
			next.GuestID = guest.ID
			next.Guest = guest.Details
		}

		checkIn, checkOut := b.Stay.CheckIn, b.Stay.CheckOut
		if in.CheckIn != nil {
			checkIn = *in.CheckIn
		}
		if in.CheckOut != nil {
			checkOut = *in.CheckOut
		}
		next.Stay = core.NewInterval(checkIn, checkOut)
		if err := validateStay(next.Stay); err != nil {
			return err
		}
		stayChanged := next.Stay != b.Stay

		if err := EnsureAvailable(ctx, tx, tenantID, next.UnitID, next.Stay, b.ID); err != nil {
			return err
		}

		switch {
		case in.Amount != nil:
			next.TotalAmount = *in.Amount
		case unitChanged || stayChanged:
			if unit == nil {
				if unit, err = loadUnit(ctx, tx, tenantID, next.UnitID); err != nil {
					return err
				}
			}
			if q := billing.QuoteStay(*unit, next.Stay); q.Usable() {
				next.TotalAmount = q.Total.Value
			}
		}
		if in.Currency != nil && *in.Currency != "" && *in.Currency != b.Currency {
			if err := ensureCurrencyChangeable(ctx, tx, tenantID, b.ID); err != nil {
				return err
			}
			next.Currency = *in.Currency
		}
		if in.GuestCount != nil {
			next.GuestCount = *in.GuestCount
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}

		charges, err := tx.ListCharges(ctx, tenantID, b.ID)
		if err != nil {
			return fmt.Errorf("failed to list charges: %w", err)
		}
		if room := billing.RoomCharge(charges); room != nil {
			if !room.Amount.Equal(next.TotalAmount) || room.Currency != next.Currency {
				room.Amount = next.TotalAmount
				room.Currency = next.Currency
				if err := tx.UpdateCharge(ctx, tenantID, *room); err != nil {
					return fmt.Errorf("failed to sync room charge: %w", err)
				}
			}
		}

		if _, err := rederive(ctx, tx, tenantID, &next); err != nil {
			return err
		}
		next.UpdatedAt = s.Clock()
		if err := tx.UpdateBooking(ctx, tenantID, next); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(tenantID, id).WithField("payment_status", updated.PaymentStatus).Info("booking updated")
	return &updated, nil
}
