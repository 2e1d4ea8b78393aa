/*
Package core provides the domain primitives of the stay engine.

PURPOSE:
  This package holds the types every other package speaks: money amounts,
  tenant-scoped identifiers, bookings, charges, payments and audit events.
  It has no behavior beyond small value helpers; the rules live in billing
  (ledgers, pricing, deposit gate) and booking (allocator, state machine).

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A money value with a currency (decimal, never float)
  - TenantID: The isolation boundary, passed explicitly to every store call
  - Booking / Charge / Payment / CheckEvent: The persisted entities

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Distinct ID types so a unit ID can't be passed as a booking ID
  3. Tenancy: There is no store method without a TenantID parameter
  4. Auditability: Check events are append-only

SEE ALSO:
  - errors.go: Error taxonomy with stable codes
  - store.go: Persistence interfaces
  - interval.go: Half-open stay intervals
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money value with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency string
}

func NewAmount(value float64, currency string) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromInt(value int64, currency string) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: currency}
}

func NewAmountFromDecimal(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Round() Amount                { return Amount{Value: a.Value.Round(2), Currency: a.Currency} }
func (a Amount) String() string               { return a.Value.StringFixed(2) + " " + a.Currency }

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// FloorZero clamps negative amounts to zero.
func (a Amount) FloorZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// TenantID identifies the organization that owns a row. Every store method
// takes one; there is no "all tenants" read path for bookings.
type TenantID string

type UnitID string
type GuestID string
type BookingID string
type ChargeID string
type PaymentID string
type CheckEventID string

// =============================================================================
// TENANT & CATALOG - Owned by external collaborators, read by the engine
// =============================================================================

// DefaultMinDepositPercent applies when a tenant has not configured a policy.
var DefaultMinDepositPercent = decimal.NewFromInt(100)

// DefaultCurrency is used when neither the request, the unit nor the tenant
// names one.
const DefaultCurrency = "USD"

type Tenant struct {
	ID       TenantID
	Name     string
	Currency string

	// MinDepositPercent is the share of the total bill that must be
	// confirmed-paid before check-in. Nil means DefaultMinDepositPercent.
	MinDepositPercent *decimal.Decimal
}

// DepositPercent returns the effective minimum deposit percentage.
func (t Tenant) DepositPercent() decimal.Decimal {
	if t.MinDepositPercent == nil {
		return DefaultMinDepositPercent
	}
	return *t.MinDepositPercent
}

type DiscountType string

const (
	DiscountPercent    DiscountType = "PERCENT"
	DiscountFixedPrice DiscountType = "FIXED_PRICE"
)

// DiscountRule is a time-bounded rate adjustment. Start and End are
// inclusive calendar days.
type DiscountRule struct {
	Type  DiscountType
	Value decimal.Decimal
	Start time.Time
	End   time.Time
}

type Unit struct {
	ID        UnitID
	TenantID  TenantID
	Name      string
	BasePrice decimal.Decimal
	Currency  string
	Discount  *DiscountRule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GuestDetails is the set of guest fields a booking snapshots.
type GuestDetails struct {
	FullName       string
	Email          string
	Phone          string
	Nationality    string
	DocumentType   string
	DocumentNumber string
	Address        string
}

// Merge returns d with every non-empty field of o applied on top.
func (d GuestDetails) Merge(o GuestDetails) GuestDetails {
	pick := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	return GuestDetails{
		FullName:       pick(d.FullName, o.FullName),
		Email:          pick(d.Email, o.Email),
		Phone:          pick(d.Phone, o.Phone),
		Nationality:    pick(d.Nationality, o.Nationality),
		DocumentType:   pick(d.DocumentType, o.DocumentType),
		DocumentNumber: pick(d.DocumentNumber, o.DocumentNumber),
		Address:        pick(d.Address, o.Address),
	}
}

// IsEmpty reports whether no field is set.
func (d GuestDetails) IsEmpty() bool {
	return d == GuestDetails{}
}

type Guest struct {
	ID        GuestID
	TenantID  TenantID
	Details   GuestDetails
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BOOKING - The central entity
// =============================================================================

type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusCheckedIn  BookingStatus = "CHECKED_IN"
	StatusCheckedOut BookingStatus = "CHECKED_OUT"
	StatusCancelled  BookingStatus = "CANCELLED"
	StatusNoShow     BookingStatus = "NO_SHOW"
)

// ActiveStatuses are the statuses that reserve a unit.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

// IsActive reports whether the status reserves its unit.
func (s BookingStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

// IsTerminal reports whether the status accepts no further status change.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusNoShow || s == StatusCheckedOut
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartPaid PaymentStatus = "PARTPAID"
	PaymentPaid     PaymentStatus = "PAID"
)

// Booking is a reservation of one unit over a half-open interval.
//
// Guest is a snapshot copied from the guest record at creation and refreshed
// only at check-in or when the guest reference changes. It is owned by the
// booking; edits to the guest record do not flow into it.
type Booking struct {
	ID            BookingID
	TenantID      TenantID
	UnitID        UnitID
	GuestID       GuestID
	Guest         GuestDetails
	Stay          Interval
	TotalAmount   decimal.Decimal
	Currency      string
	Status        BookingStatus
	PaymentStatus PaymentStatus
	GuestCount    int
	Notes         string
	CancelReason  string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ConfirmedAt  *time.Time
	CheckedInAt  *time.Time
	CheckedOutAt *time.Time
	CancelledAt  *time.Time
}

// Total returns the stored base amount as an Amount.
func (b Booking) Total() Amount {
	return Amount{Value: b.TotalAmount, Currency: b.Currency}
}

// BookingFilter narrows List queries. Zero values match everything.
type BookingFilter struct {
	UnitID   UnitID
	GuestID  GuestID
	Statuses []BookingStatus
	From     *time.Time // stays ending after From
	To       *time.Time // stays starting before To
	Limit    int
}

// =============================================================================
// CHARGE - Line item against a booking
// =============================================================================

type ChargeType string

const (
	ChargeRoom     ChargeType = "ROOM"
	ChargeDamage   ChargeType = "DAMAGE"
	ChargeExtra    ChargeType = "EXTRA"
	ChargeOverstay ChargeType = "OVERSTAY"
	ChargeOther    ChargeType = "OTHER"
)

type ChargeStatus string

const (
	ChargeOpen    ChargeStatus = "OPEN"
	ChargeVoided  ChargeStatus = "VOIDED"
	ChargeSettled ChargeStatus = "SETTLED"
)

type Charge struct {
	ID          ChargeID
	TenantID    TenantID
	BookingID   BookingID
	Type        ChargeType
	Amount      decimal.Decimal
	Currency    string
	Description string
	Status      ChargeStatus
	CreatedBy   string
	CreatedAt   time.Time
	VoidedAt    *time.Time
}

// IsOpen reports whether the charge contributes to the bill.
func (c Charge) IsOpen() bool { return c.Status == ChargeOpen }

// =============================================================================
// PAYMENT - Money movement against a booking
// =============================================================================

type PaymentState string

const (
	PaymentPending   PaymentState = "PENDING"
	PaymentConfirmed PaymentState = "CONFIRMED"
	PaymentFailed    PaymentState = "FAILED"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodOnline       PaymentMethod = "ONLINE"
	MethodOther        PaymentMethod = "OTHER"
)

// Payment is a record of money received for a booking. Once CONFIRMED it is
// never mutated; corrections are new records.
type Payment struct {
	ID            PaymentID
	TenantID      TenantID
	BookingID     BookingID
	Amount        decimal.Decimal
	Currency      string
	Method        PaymentMethod
	Status        PaymentState
	Reference     string
	FailureReason string
	CreatedBy     string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	ConfirmedBy   string
}

// IsConfirmed reports whether the payment counts toward the ledger.
func (p Payment) IsConfirmed() bool { return p.Status == PaymentConfirmed }

// =============================================================================
// CHECK EVENT - Append-only audit of check-in/check-out
// =============================================================================

type CheckEventType string

const (
	EventCheckIn  CheckEventType = "CHECK_IN"
	EventCheckOut CheckEventType = "CHECK_OUT"
)

type CheckEvent struct {
	ID        CheckEventID
	TenantID  TenantID
	BookingID BookingID
	Type      CheckEventType
	Actor     string
	At        time.Time
	Notes     string
	Artifacts []string // object-storage keys of verification documents
}
