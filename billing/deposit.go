package billing

import (
	"github.com/warp/stay-engine/core"
)

// RequiredDeposit returns minDepositPercent/100 * bill for the tenant,
// unrounded. The percentage is clamped to [0, 100].
func RequiredDeposit(t core.Tenant, bill core.Amount) core.Amount {
	pct := clampPercent(t.DepositPercent())
	return bill.Mul(pct.Shift(-2))
}

// CheckDeposit is the check-in gate. It returns a DepositRequiredError when
// the confirmed payments don't reach the tenant's minimum deposit. The
// comparison uses the exact product; the error carries it rounded up to the
// cent so the reported shortfall is always enough to pass.
func CheckDeposit(t core.Tenant, r Reconciliation) error {
	required := RequiredDeposit(t, r.TotalBill)
	if r.PaidTotal.Value.GreaterThanOrEqual(required.Value) {
		return nil
	}
	shown := core.NewAmountFromDecimal(required.Value.RoundCeil(2), required.Currency)
	return &core.DepositRequiredError{
		BookingID: r.BookingID,
		Required:  shown,
		Paid:      r.PaidTotal,
		Shortfall: shown.Sub(r.PaidTotal),
	}
}
