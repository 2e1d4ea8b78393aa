/*
Package billing computes what a booking owes and what it has paid.

PURPOSE:
  Everything here is a pure function of ledger rows. There is no stored
  balance that could drift: the bill, the paid total, the outstanding amount
  and the payment status are recomputed from charges and payments each time
  they are needed, and booking.Service persists the derived status in the
  same transaction as the change that affected it.

CHARGE LEDGER:
  TotalBill(base, charges)
    - Any OPEN ROOM charge present: bill = sum of all OPEN charges.
      The itemized room charge is authoritative; the base amount is ignored.
    - Otherwise: bill = max(0, base) + sum of OPEN non-room charges.

  Older bookings only carry the base amount; itemized bookings carry a ROOM
  charge mirroring it. Both shapes are billed without double counting.

PAYMENT LEDGER:
  Reconcile(bill, payments)
    paid        = sum of CONFIRMED payments
    outstanding = max(0, bill - paid)
    status      = UNPAID   if paid <= 0
                  PAID     if outstanding <= 0.01
                  PARTPAID otherwise

EXAMPLE:
  Base 15,000, OPEN ROOM 20,000, OPEN DAMAGE 2,000 -> bill 22,000.
  CONFIRMED payments 10,000 -> outstanding 12,000, PARTPAID.

SEE ALSO:
  - pricing.go: Default base amount from the unit rate
  - deposit.go: Check-in deposit gate
*/
package billing

import (
	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/core"
)

// Epsilon absorbs rounding when deciding whether a booking is fully paid.
var Epsilon = decimal.RequireFromString("0.01")

// =============================================================================
// CHARGE LEDGER
// =============================================================================

// TotalBill returns the authoritative bill for a booking.
func TotalBill(base core.Amount, charges []core.Charge) core.Amount {
	total := base.Zero()
	hasRoom := false
	for _, c := range charges {
		if !c.IsOpen() {
			continue
		}
		if c.Type == core.ChargeRoom {
			hasRoom = true
		}
		total.Value = total.Value.Add(c.Amount)
	}
	if hasRoom {
		return total
	}
	return total.Add(base.FloorZero())
}

// Outstanding returns max(0, bill - paid).
func Outstanding(bill, paid core.Amount) core.Amount {
	return bill.Sub(paid).FloorZero()
}

// RoomCharge returns the OPEN ROOM charge, if any. When several exist the
// first one is returned; the engine never creates more than one.
func RoomCharge(charges []core.Charge) *core.Charge {
	for i := range charges {
		if charges[i].Type == core.ChargeRoom && charges[i].IsOpen() {
			return &charges[i]
		}
	}
	return nil
}

// =============================================================================
// PAYMENT LEDGER
// =============================================================================

// Reconciliation is the derived financial state of one booking.
type Reconciliation struct {
	BookingID     core.BookingID
	TotalBill     core.Amount
	PaidTotal     core.Amount
	Outstanding   core.Amount
	PaymentStatus core.PaymentStatus
}

// PaidTotal sums the CONFIRMED payments.
func PaidTotal(currency string, payments []core.Payment) core.Amount {
	paid := core.NewAmountFromInt(0, currency)
	for _, p := range payments {
		if p.IsConfirmed() {
			paid.Value = paid.Value.Add(p.Amount)
		}
	}
	return paid
}

// DerivePaymentStatus is the single place where payment status is decided.
func DerivePaymentStatus(paid, outstanding core.Amount) core.PaymentStatus {
	switch {
	case !paid.IsPositive():
		return core.PaymentUnpaid
	case outstanding.Value.LessThanOrEqual(Epsilon):
		return core.PaymentPaid
	default:
		return core.PaymentPartPaid
	}
}

// Reconcile derives the financial state of a booking from its ledger rows.
func Reconcile(b core.Booking, charges []core.Charge, payments []core.Payment) Reconciliation {
	bill := TotalBill(b.Total(), charges)
	paid := PaidTotal(b.Currency, payments)
	outstanding := Outstanding(bill, paid)
	return Reconciliation{
		BookingID:     b.ID,
		TotalBill:     bill,
		PaidTotal:     paid,
		Outstanding:   outstanding,
		PaymentStatus: DerivePaymentStatus(paid, outstanding),
	}
}

// HasConfirmedPayment reports whether any payment is CONFIRMED.
func HasConfirmedPayment(payments []core.Payment) bool {
	for _, p := range payments {
		if p.IsConfirmed() {
			return true
		}
	}
	return false
}

// CountConfirmedNonZero counts CONFIRMED payments with a positive amount.
func CountConfirmedNonZero(payments []core.Payment) int {
	n := 0
	for _, p := range payments {
		if p.IsConfirmed() && p.Amount.IsPositive() {
			n++
		}
	}
	return n
}
