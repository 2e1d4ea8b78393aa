/*
store.go - Persistence interfaces for the stay engine

PURPOSE:
  Defines the boundary between the booking engine and the database.
  Every method takes the TenantID explicitly; implementations must filter
  every read and write by it. A row of another tenant is indistinguishable
  from a missing row.

KEY INTERFACES:
  CatalogStore: Tenants, units and guests (owned by external services;
                the engine reads them and may write the guest record only
                when a check-in explicitly asks to propagate details)
  BookingStore: Bookings and the overlap queries of the allocator
  LedgerStore:  Charges and payments
  AuditStore:   Append-only check events
  TxStore:      Store + WithTx for atomic units of work

MISSING ROWS:
  Get* methods return (nil, nil) when the row doesn't exist. The caller
  decides whether that is a NotFoundError.

TRANSACTIONS:
  Every mutation in booking.Service runs inside WithTx and re-reads the rows
  it depends on through the Store handed to fn. If fn returns an error,
  nothing is persisted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - core/store/memory.go: In-memory for tests and local runs

SEE ALSO:
  - booking/service.go: The only writer
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG & SETTINGS
// =============================================================================

type CatalogStore interface {
	GetTenant(ctx context.Context, tenantID TenantID) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	SaveTenant(ctx context.Context, t Tenant) error

	GetUnit(ctx context.Context, tenantID TenantID, id UnitID) (*Unit, error)
	SaveUnit(ctx context.Context, tenantID TenantID, u Unit) error

	GetGuest(ctx context.Context, tenantID TenantID, id GuestID) (*Guest, error)
	SaveGuest(ctx context.Context, tenantID TenantID, g Guest) error
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingStore interface {
	GetBooking(ctx context.Context, tenantID TenantID, id BookingID) (*Booking, error)
	ListBookings(ctx context.Context, tenantID TenantID, filter BookingFilter) ([]Booking, error)

	// ListBookingTenants returns every tenant that owns at least one
	// booking, whether or not it has settings on record.
	ListBookingTenants(ctx context.Context) ([]TenantID, error)

	// FindOverlapping returns active bookings on the unit whose interval
	// overlaps the given one, excluding the booking with id exclude.
	FindOverlapping(ctx context.Context, tenantID TenantID, unitID UnitID, stay Interval, exclude BookingID) ([]Booking, error)

	// FindCheckedIn returns CHECKED_IN bookings on the unit, excluding exclude.
	FindCheckedIn(ctx context.Context, tenantID TenantID, unitID UnitID, exclude BookingID) ([]Booking, error)

	InsertBooking(ctx context.Context, tenantID TenantID, b Booking) error
	UpdateBooking(ctx context.Context, tenantID TenantID, b Booking) error
	DeleteBooking(ctx context.Context, tenantID TenantID, id BookingID) error
}

// =============================================================================
// LEDGER - Charges and payments
// =============================================================================

type LedgerStore interface {
	ListCharges(ctx context.Context, tenantID TenantID, bookingID BookingID) ([]Charge, error)
	GetCharge(ctx context.Context, tenantID TenantID, id ChargeID) (*Charge, error)
	InsertCharge(ctx context.Context, tenantID TenantID, c Charge) error
	UpdateCharge(ctx context.Context, tenantID TenantID, c Charge) error
	DeleteCharges(ctx context.Context, tenantID TenantID, bookingID BookingID) error

	ListPayments(ctx context.Context, tenantID TenantID, bookingID BookingID) ([]Payment, error)
	GetPayment(ctx context.Context, tenantID TenantID, id PaymentID) (*Payment, error)
	InsertPayment(ctx context.Context, tenantID TenantID, p Payment) error
	UpdatePayment(ctx context.Context, tenantID TenantID, p Payment) error

	// DeletePayments removes the booking's payments in the given states.
	DeletePayments(ctx context.Context, tenantID TenantID, bookingID BookingID, states ...PaymentState) error
}

// =============================================================================
// AUDIT - Check-in / check-out events (append-only)
// =============================================================================

type AuditStore interface {
	AppendCheckEvent(ctx context.Context, tenantID TenantID, e CheckEvent) error
	ListCheckEvents(ctx context.Context, tenantID TenantID, bookingID BookingID) ([]CheckEvent, error)

	// DeleteCheckEvents exists only for the booking-delete cascade.
	DeleteCheckEvents(ctx context.Context, tenantID TenantID, bookingID BookingID) error
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	CatalogStore
	BookingStore
	LedgerStore
	AuditStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }
