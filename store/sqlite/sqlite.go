/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Persists the catalog, bookings, both ledgers and the check-event audit
  trail. In production the same schema runs on PostgreSQL with minor
  dialect changes.

TENANCY:
  Every table carries tenant_id and every primary key is (tenant_id, id).
  Every query filters on tenant_id, so a row of another tenant reads as a
  missing row.

KEY TABLES:
  tenants:         Tenant settings (currency, deposit policy)
  units, guests:   Catalog, owned by external services
  bookings:        One row per reservation with its guest snapshot
  booking_charges: Charge ledger
  payments:        Payment ledger
  check_events:    Append-only check-in/check-out audit

OVERLAP TRIGGERS:
  bookings_no_overlap_insert / _update abort any write that would leave two
  active bookings overlapping on the same unit. booking.Service checks the
  same rule first; the triggers make it hold for any writer.

STORAGE FORMATS:
  Money:  decimal TEXT (shopspring/decimal String())
  Time:   RFC3339 UTC. Stay bounds are stored at second precision so that
          string comparison orders them correctly.

CONCURRENCY:
  A single connection and a sync.RWMutex. WithTx holds the write lock for
  the whole unit of work and hands fn a store bound to the *sql.Tx, which
  never takes the mutex again.

USAGE:
  store, err := sqlite.New("./data/stay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := booking.NewService(store, notifier, logger, nil)

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/core"
)

// Store implements core.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ core.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT,
		currency TEXT,
		min_deposit_percent TEXT
	);

	CREATE TABLE IF NOT EXISTS units (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT,
		base_price TEXT NOT NULL,
		currency TEXT,
		discount_type TEXT,
		discount_value TEXT,
		discount_start TEXT,
		discount_end TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS guests (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		details_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS bookings (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		guest_id TEXT NOT NULL,
		guest_json TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		guest_count INTEGER NOT NULL DEFAULT 1,
		notes TEXT,
		cancel_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		confirmed_at TEXT,
		checked_in_at TEXT,
		checked_out_at TEXT,
		cancelled_at TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	-- Allocator hot path: active bookings on a unit by interval
	CREATE INDEX IF NOT EXISTS idx_bookings_unit_stay
		ON bookings(tenant_id, unit_id, check_in, check_out);
	CREATE INDEX IF NOT EXISTS idx_bookings_status
		ON bookings(tenant_id, status);

	CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_insert
	BEFORE INSERT ON bookings
	WHEN NEW.status IN ('PENDING', 'CONFIRMED', 'CHECKED_IN')
	BEGIN
		SELECT RAISE(ABORT, 'booking_overlap')
		WHERE EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.tenant_id = NEW.tenant_id AND b.unit_id = NEW.unit_id
			  AND b.status IN ('PENDING', 'CONFIRMED', 'CHECKED_IN')
			  AND b.check_in < NEW.check_out AND b.check_out > NEW.check_in
		);
	END;

	CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_update
	BEFORE UPDATE ON bookings
	WHEN NEW.status IN ('PENDING', 'CONFIRMED', 'CHECKED_IN')
	BEGIN
		SELECT RAISE(ABORT, 'booking_overlap')
		WHERE EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.tenant_id = NEW.tenant_id AND b.unit_id = NEW.unit_id
			  AND b.id != NEW.id
			  AND b.status IN ('PENDING', 'CONFIRMED', 'CHECKED_IN')
			  AND b.check_in < NEW.check_out AND b.check_out > NEW.check_in
		);
	END;

	CREATE TABLE IF NOT EXISTS booking_charges (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		booking_id TEXT NOT NULL,
		charge_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL,
		voided_at TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_charges_booking
		ON booking_charges(tenant_id, booking_id);

	CREATE TABLE IF NOT EXISTS payments (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		booking_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT,
		failure_reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		confirmed_at TEXT,
		confirmed_by TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_booking
		ON payments(tenant_id, booking_id);

	CREATE TABLE IF NOT EXISTS check_events (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		booking_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor TEXT,
		at TEXT NOT NULL,
		notes TEXT,
		artifacts_json TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_check_events_booking
		ON check_events(tenant_id, booking_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"check_events", "payments", "booking_charges", "bookings", "guests", "units", "tenants"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) read() *queries {
	return &queries{q: s.db}
}

// =============================================================================
// LOCKED ENTRY POINTS (core.Store interface)
// =============================================================================

func (s *Store) GetTenant(ctx context.Context, id core.TenantID) (*core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTenant(ctx, id)
}

func (s *Store) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListTenants(ctx)
}

func (s *Store) ListBookingTenants(ctx context.Context) ([]core.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBookingTenants(ctx)
}

func (s *Store) SaveTenant(ctx context.Context, t core.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveTenant(ctx, t)
}

func (s *Store) GetUnit(ctx context.Context, tid core.TenantID, id core.UnitID) (*core.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetUnit(ctx, tid, id)
}

func (s *Store) SaveUnit(ctx context.Context, tid core.TenantID, u core.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveUnit(ctx, tid, u)
}

func (s *Store) GetGuest(ctx context.Context, tid core.TenantID, id core.GuestID) (*core.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetGuest(ctx, tid, id)
}

func (s *Store) SaveGuest(ctx context.Context, tid core.TenantID, g core.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveGuest(ctx, tid, g)
}

func (s *Store) GetBooking(ctx context.Context, tid core.TenantID, id core.BookingID) (*core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBooking(ctx, tid, id)
}

func (s *Store) ListBookings(ctx context.Context, tid core.TenantID, f core.BookingFilter) ([]core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBookings(ctx, tid, f)
}

func (s *Store) FindOverlapping(ctx context.Context, tid core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) ([]core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindOverlapping(ctx, tid, unitID, stay, exclude)
}

func (s *Store) FindCheckedIn(ctx context.Context, tid core.TenantID, unitID core.UnitID, exclude core.BookingID) ([]core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindCheckedIn(ctx, tid, unitID, exclude)
}

func (s *Store) InsertBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().InsertBooking(ctx, tid, b)
}

func (s *Store) UpdateBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateBooking(ctx, tid, b)
}

func (s *Store) DeleteBooking(ctx context.Context, tid core.TenantID, id core.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteBooking(ctx, tid, id)
}

func (s *Store) ListCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListCharges(ctx, tid, bid)
}

func (s *Store) GetCharge(ctx context.Context, tid core.TenantID, id core.ChargeID) (*core.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetCharge(ctx, tid, id)
}

func (s *Store) InsertCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().InsertCharge(ctx, tid, c)
}

func (s *Store) UpdateCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateCharge(ctx, tid, c)
}

func (s *Store) DeleteCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteCharges(ctx, tid, bid)
}

func (s *Store) ListPayments(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPayments(ctx, tid, bid)
}

func (s *Store) GetPayment(ctx context.Context, tid core.TenantID, id core.PaymentID) (*core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPayment(ctx, tid, id)
}

func (s *Store) InsertPayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().InsertPayment(ctx, tid, p)
}

func (s *Store) UpdatePayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdatePayment(ctx, tid, p)
}

func (s *Store) DeletePayments(ctx context.Context, tid core.TenantID, bid core.BookingID, states ...core.PaymentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeletePayments(ctx, tid, bid, states...)
}

func (s *Store) AppendCheckEvent(ctx context.Context, tid core.TenantID, e core.CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppendCheckEvent(ctx, tid, e)
}

func (s *Store) ListCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.CheckEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListCheckEvents(ctx, tid, bid)
}

func (s *Store) DeleteCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteCheckEvents(ctx, tid, bid)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// formatStay keeps interval bounds at second precision so that stored
// values compare correctly as strings.
func formatStay(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isOverlapError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "booking_overlap")
}

// checkAffected turns "0 rows affected" into a NotFoundError.
func checkAffected(res sql.Result, resource string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFound(resource, id)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
