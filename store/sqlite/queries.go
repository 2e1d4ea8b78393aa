package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/stay-engine/core"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements core.Store over a querier. It takes no locks; the
// caller (Store or WithTx) holds them.
type queries struct {
	q querier
}

var _ core.Store = (*queries)(nil)

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *queries) GetTenant(ctx context.Context, id core.TenantID) (*core.Tenant, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, currency, min_deposit_percent FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if isNoRows(err) {
		return nil, nil
	}
	return t, err
}

func (s *queries) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, currency, min_deposit_percent FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var out []core.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *queries) ListBookingTenants(ctx context.Context) ([]core.TenantID, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM bookings ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking tenants: %w", err)
	}
	defer rows.Close()

	var out []core.TenantID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, core.TenantID(id))
	}
	return out, rows.Err()
}

func scanTenant(row scanner) (*core.Tenant, error) {
	var (
		t       core.Tenant
		name    sql.NullString
		cur     sql.NullString
		deposit sql.NullString
	)
	if err := row.Scan(&t.ID, &name, &cur, &deposit); err != nil {
		return nil, err
	}
	t.Name = name.String
	t.Currency = cur.String
	if deposit.Valid && deposit.String != "" {
		d, err := parseDecimal(deposit.String)
		if err != nil {
			return nil, err
		}
		t.MinDepositPercent = &d
	}
	return &t, nil
}

func (s *queries) SaveTenant(ctx context.Context, t core.Tenant) error {
	var deposit sql.NullString
	if t.MinDepositPercent != nil {
		deposit = nullString(t.MinDepositPercent.String())
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO tenants (id, name, currency, min_deposit_percent)
		VALUES (?, ?, ?, ?)`,
		t.ID, nullString(t.Name), nullString(t.Currency), deposit)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *queries) GetUnit(ctx context.Context, tid core.TenantID, id core.UnitID) (*core.Unit, error) {
	var (
		u                    core.Unit
		name, cur            sql.NullString
		basePrice            string
		dType, dValue        sql.NullString
		dStart, dEnd         sql.NullString
		createdAt, updatedAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT tenant_id, id, name, base_price, currency,
		       discount_type, discount_value, discount_start, discount_end,
		       created_at, updated_at
		FROM units WHERE tenant_id = ? AND id = ?`, tid, id,
	).Scan(&u.TenantID, &u.ID, &name, &basePrice, &cur, &dType, &dValue, &dStart, &dEnd, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	u.Name = name.String
	u.Currency = cur.String
	if u.BasePrice, err = parseDecimal(basePrice); err != nil {
		return nil, err
	}
	if dType.Valid && dType.String != "" {
		value, err := parseDecimal(dValue.String)
		if err != nil {
			return nil, err
		}
		u.Discount = &core.DiscountRule{Type: core.DiscountType(dType.String), Value: value}
		if t := parseNullTime(dStart); t != nil {
			u.Discount.Start = *t
		}
		if t := parseNullTime(dEnd); t != nil {
			u.Discount.End = *t
		}
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func (s *queries) SaveUnit(ctx context.Context, tid core.TenantID, u core.Unit) error {
	var dType, dValue, dStart, dEnd sql.NullString
	if d := u.Discount; d != nil {
		dType = nullString(string(d.Type))
		dValue = nullString(d.Value.String())
		if !d.Start.IsZero() {
			dStart = nullTime(&d.Start)
		}
		if !d.End.IsZero() {
			dEnd = nullTime(&d.End)
		}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO units
		(tenant_id, id, name, base_price, currency, discount_type, discount_value,
		 discount_start, discount_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, u.ID, nullString(u.Name), u.BasePrice.String(), nullString(u.Currency),
		dType, dValue, dStart, dEnd, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

func (s *queries) GetGuest(ctx context.Context, tid core.TenantID, id core.GuestID) (*core.Guest, error) {
	var (
		g                    core.Guest
		details              string
		createdAt, updatedAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT tenant_id, id, details_json, created_at, updated_at
		FROM guests WHERE tenant_id = ? AND id = ?`, tid, id,
	).Scan(&g.TenantID, &g.ID, &details, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &g.Details); err != nil {
		return nil, fmt.Errorf("failed to decode guest details: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}

func (s *queries) SaveGuest(ctx context.Context, tid core.TenantID, g core.Guest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO guests (tenant_id, id, details_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		tid, g.ID, mustJSON(g.Details), formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save guest: %w", err)
	}
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `tenant_id, id, unit_id, guest_id, guest_json, check_in, check_out,
	total_amount, currency, status, payment_status, guest_count, notes, cancel_reason,
	created_at, updated_at, confirmed_at, checked_in_at, checked_out_at, cancelled_at`

const activeStatusList = "'PENDING', 'CONFIRMED', 'CHECKED_IN'"

func (s *queries) GetBooking(ctx context.Context, tid core.TenantID, id core.BookingID) (*core.Booking, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = ? AND id = ?`, tid, id)
	b, err := scanBooking(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *queries) ListBookings(ctx context.Context, tid core.TenantID, f core.BookingFilter) ([]core.Booking, error) {
	where := []string{"tenant_id = ?"}
	args := []any{tid}
	if f.UnitID != "" {
		where = append(where, "unit_id = ?")
		args = append(args, f.UnitID)
	}
	if f.GuestID != "" {
		where = append(where, "guest_id = ?")
		args = append(args, f.GuestID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "check_out > ?")
		args = append(args, formatStay(*f.From))
	}
	if f.To != nil {
		where = append(where, "check_in < ?")
		args = append(args, formatStay(*f.To))
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY check_in ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return s.queryBookings(ctx, query, args...)
}

// FindOverlapping uses the half-open overlap rule:
// existing.check_in < new.check_out AND existing.check_out > new.check_in.
func (s *queries) FindOverlapping(ctx context.Context, tid core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) ([]core.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE tenant_id = ? AND unit_id = ? AND id != ?
		  AND status IN (` + activeStatusList + `)
		  AND check_in < ? AND check_out > ?
		ORDER BY check_in ASC`
	return s.queryBookings(ctx, query, tid, unitID, exclude,
		formatStay(stay.CheckOut), formatStay(stay.CheckIn))
}

func (s *queries) FindCheckedIn(ctx context.Context, tid core.TenantID, unitID core.UnitID, exclude core.BookingID) ([]core.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE tenant_id = ? AND unit_id = ? AND id != ? AND status = ?`
	return s.queryBookings(ctx, query, tid, unitID, exclude, core.StatusCheckedIn)
}

func (s *queries) queryBookings(ctx context.Context, query string, args ...any) ([]core.Booking, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []core.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row scanner) (*core.Booking, error) {
	var (
		b                    core.Booking
		guestJSON            string
		checkIn, checkOut    string
		total                string
		notes, cancelReason  sql.NullString
		createdAt, updatedAt string
		confirmedAt          sql.NullString
		checkedInAt          sql.NullString
		checkedOutAt         sql.NullString
		cancelledAt          sql.NullString
	)
	err := row.Scan(
		&b.TenantID, &b.ID, &b.UnitID, &b.GuestID, &guestJSON, &checkIn, &checkOut,
		&total, &b.Currency, &b.Status, &b.PaymentStatus, &b.GuestCount, &notes, &cancelReason,
		&createdAt, &updatedAt, &confirmedAt, &checkedInAt, &checkedOutAt, &cancelledAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if err := json.Unmarshal([]byte(guestJSON), &b.Guest); err != nil {
		return nil, fmt.Errorf("failed to decode guest snapshot: %w", err)
	}
	b.Stay = core.NewInterval(parseTime(checkIn), parseTime(checkOut))
	if b.TotalAmount, err = parseDecimal(total); err != nil {
		return nil, err
	}
	b.Notes = notes.String
	b.CancelReason = cancelReason.String
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	b.ConfirmedAt = parseNullTime(confirmedAt)
	b.CheckedInAt = parseNullTime(checkedInAt)
	b.CheckedOutAt = parseNullTime(checkedOutAt)
	b.CancelledAt = parseNullTime(cancelledAt)
	return &b, nil
}

func (s *queries) InsertBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, b.ID, b.UnitID, b.GuestID, mustJSON(b.Guest),
		formatStay(b.Stay.CheckIn), formatStay(b.Stay.CheckOut),
		b.TotalAmount.String(), b.Currency, b.Status, b.PaymentStatus, b.GuestCount,
		nullString(b.Notes), nullString(b.CancelReason),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		nullTime(b.ConfirmedAt), nullTime(b.CheckedInAt), nullTime(b.CheckedOutAt), nullTime(b.CancelledAt),
	)
	return bookingWriteError(err, b)
}

func (s *queries) UpdateBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE bookings SET
			unit_id = ?, guest_id = ?, guest_json = ?, check_in = ?, check_out = ?,
			total_amount = ?, currency = ?, status = ?, payment_status = ?, guest_count = ?,
			notes = ?, cancel_reason = ?, updated_at = ?,
			confirmed_at = ?, checked_in_at = ?, checked_out_at = ?, cancelled_at = ?
		WHERE tenant_id = ? AND id = ?`,
		b.UnitID, b.GuestID, mustJSON(b.Guest),
		formatStay(b.Stay.CheckIn), formatStay(b.Stay.CheckOut),
		b.TotalAmount.String(), b.Currency, b.Status, b.PaymentStatus, b.GuestCount,
		nullString(b.Notes), nullString(b.CancelReason), formatTime(b.UpdatedAt),
		nullTime(b.ConfirmedAt), nullTime(b.CheckedInAt), nullTime(b.CheckedOutAt), nullTime(b.CancelledAt),
		tid, b.ID,
	)
	if err != nil {
		return bookingWriteError(err, b)
	}
	return checkAffected(res, "booking", b.ID)
}

func bookingWriteError(err error, b core.Booking) error {
	switch {
	case err == nil:
		return nil
	case isOverlapError(err):
		return &core.ConflictError{Reason: core.CodeUnitNotAvailable, UnitID: b.UnitID, BookingID: b.ID}
	case isUniqueConstraintError(err):
		return fmt.Errorf("booking %s already exists: %w", b.ID, err)
	default:
		return fmt.Errorf("failed to write booking: %w", err)
	}
}

func (s *queries) DeleteBooking(ctx context.Context, tid core.TenantID, id core.BookingID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM bookings WHERE tenant_id = ? AND id = ?`, tid, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

// =============================================================================
// CHARGES
// =============================================================================

const chargeColumns = `tenant_id, id, booking_id, charge_type, amount, currency, description,
	status, created_by, created_at, voided_at`

func (s *queries) ListCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.Charge, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+chargeColumns+` FROM booking_charges
		WHERE tenant_id = ? AND booking_id = ? ORDER BY created_at ASC, rowid ASC`, tid, bid)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var out []core.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *queries) GetCharge(ctx context.Context, tid core.TenantID, id core.ChargeID) (*core.Charge, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM booking_charges
		WHERE tenant_id = ? AND id = ?`, tid, id)
	c, err := scanCharge(row)
	if isNoRows(err) {
		return nil, nil
	}
	return c, err
}

func scanCharge(row scanner) (*core.Charge, error) {
	var (
		c                    core.Charge
		amount, createdAt    string
		description, creator sql.NullString
		voidedAt             sql.NullString
	)
	err := row.Scan(&c.TenantID, &c.ID, &c.BookingID, &c.Type, &amount, &c.Currency,
		&description, &c.Status, &creator, &createdAt, &voidedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan charge: %w", err)
	}
	if c.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	c.Description = description.String
	c.CreatedBy = creator.String
	c.CreatedAt = parseTime(createdAt)
	c.VoidedAt = parseNullTime(voidedAt)
	return &c, nil
}

func (s *queries) InsertCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO booking_charges (`+chargeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, c.ID, c.BookingID, c.Type, c.Amount.String(), c.Currency, nullString(c.Description),
		c.Status, nullString(c.CreatedBy), formatTime(c.CreatedAt), nullTime(c.VoidedAt))
	if err != nil {
		return fmt.Errorf("failed to insert charge: %w", err)
	}
	return nil
}

func (s *queries) UpdateCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE booking_charges SET amount = ?, currency = ?, description = ?, status = ?, voided_at = ?
		WHERE tenant_id = ? AND id = ?`,
		c.Amount.String(), c.Currency, nullString(c.Description), c.Status, nullTime(c.VoidedAt),
		tid, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update charge: %w", err)
	}
	return checkAffected(res, "charge", c.ID)
}

func (s *queries) DeleteCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM booking_charges WHERE tenant_id = ? AND booking_id = ?`, tid, bid); err != nil {
		return fmt.Errorf("failed to delete charges: %w", err)
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `tenant_id, id, booking_id, amount, currency, method, status, reference,
	failure_reason, created_by, created_at, confirmed_at, confirmed_by`

func (s *queries) ListPayments(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id = ? AND booking_id = ? ORDER BY created_at ASC, rowid ASC`, tid, bid)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *queries) GetPayment(ctx context.Context, tid core.TenantID, id core.PaymentID) (*core.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id = ? AND id = ?`, tid, id)
	p, err := scanPayment(row)
	if isNoRows(err) {
		return nil, nil
	}
	return p, err
}

func scanPayment(row scanner) (*core.Payment, error) {
	var (
		p                  core.Payment
		amount, createdAt  string
		reference, failure sql.NullString
		creator, confirmer sql.NullString
		confirmedAt        sql.NullString
	)
	err := row.Scan(&p.TenantID, &p.ID, &p.BookingID, &amount, &p.Currency, &p.Method, &p.Status,
		&reference, &failure, &creator, &createdAt, &confirmedAt, &confirmer)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	if p.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	p.Reference = reference.String
	p.FailureReason = failure.String
	p.CreatedBy = creator.String
	p.CreatedAt = parseTime(createdAt)
	p.ConfirmedAt = parseNullTime(confirmedAt)
	p.ConfirmedBy = confirmer.String
	return &p, nil
}

func (s *queries) InsertPayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, p.ID, p.BookingID, p.Amount.String(), p.Currency, p.Method, p.Status,
		nullString(p.Reference), nullString(p.FailureReason), nullString(p.CreatedBy),
		formatTime(p.CreatedAt), nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *queries) UpdatePayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET status = ?, reference = ?, failure_reason = ?, confirmed_at = ?, confirmed_by = ?
		WHERE tenant_id = ? AND id = ?`,
		p.Status, nullString(p.Reference), nullString(p.FailureReason),
		nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy), tid, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return checkAffected(res, "payment", p.ID)
}

func (s *queries) DeletePayments(ctx context.Context, tid core.TenantID, bid core.BookingID, states ...core.PaymentState) error {
	query := `DELETE FROM payments WHERE tenant_id = ? AND booking_id = ?`
	args := []any{tid, bid}
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, st)
		}
		query += " AND status IN (" + strings.Join(marks, ", ") + ")"
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	return nil
}

// =============================================================================
// CHECK EVENTS (append-only)
// =============================================================================

func (s *queries) AppendCheckEvent(ctx context.Context, tid core.TenantID, e core.CheckEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO check_events (tenant_id, id, booking_id, event_type, actor, at, notes, artifacts_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, e.ID, e.BookingID, e.Type, nullString(e.Actor), formatTime(e.At),
		nullString(e.Notes), mustJSON(e.Artifacts))
	if err != nil {
		return fmt.Errorf("failed to append check event: %w", err)
	}
	return nil
}

func (s *queries) ListCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) ([]core.CheckEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT tenant_id, id, booking_id, event_type, actor, at, notes, artifacts_json
		FROM check_events WHERE tenant_id = ? AND booking_id = ?
		ORDER BY at ASC, rowid ASC`, tid, bid)
	if err != nil {
		return nil, fmt.Errorf("failed to query check events: %w", err)
	}
	defer rows.Close()

	var out []core.CheckEvent
	for rows.Next() {
		var (
			e                   core.CheckEvent
			at                  string
			actor, notes, files sql.NullString
		)
		if err := rows.Scan(&e.TenantID, &e.ID, &e.BookingID, &e.Type, &actor, &at, &notes, &files); err != nil {
			return nil, fmt.Errorf("failed to scan check event: %w", err)
		}
		e.Actor = actor.String
		e.At = parseTime(at)
		e.Notes = notes.String
		if files.Valid && files.String != "" && files.String != "null" {
			if err := json.Unmarshal([]byte(files.String), &e.Artifacts); err != nil {
				return nil, fmt.Errorf("failed to decode artifacts: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *queries) DeleteCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM check_events WHERE tenant_id = ? AND booking_id = ?`, tid, bid); err != nil {
		return fmt.Errorf("failed to delete check events: %w", err)
	}
	return nil
}
