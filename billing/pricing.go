package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/core"
)

var hundred = decimal.NewFromInt(100)

// NightRate is the price of one night of a stay.
type NightRate struct {
	Night      time.Time
	Rate       decimal.Decimal
	Discounted bool
}

// Quote is the unit-rate computation for a stay.
type Quote struct {
	UnitID core.UnitID
	Nights []NightRate
	Total  core.Amount
}

// Usable reports whether the quote can stand in for an explicit amount.
func (q Quote) Usable() bool { return q.Total.IsPositive() }

// QuoteStay prices each night of the stay at the unit's base price, applying
// the discount rule to nights that fall inside its window.
func QuoteStay(u core.Unit, stay core.Interval) Quote {
	q := Quote{UnitID: u.ID, Total: core.NewAmountFromInt(0, u.Currency)}
	for _, night := range stay.NightDates() {
		rate, discounted := nightlyRate(u, night)
		q.Nights = append(q.Nights, NightRate{Night: night, Rate: rate, Discounted: discounted})
		q.Total.Value = q.Total.Value.Add(rate)
	}
	q.Total = q.Total.Round()
	return q
}

func nightlyRate(u core.Unit, night time.Time) (decimal.Decimal, bool) {
	base := u.BasePrice
	if base.IsNegative() {
		base = decimal.Zero
	}
	d := u.Discount
	if d == nil || d.Start.IsZero() || d.End.IsZero() || !core.WithinDays(night, d.Start, d.End) {
		return base, false
	}
	switch d.Type {
	case core.DiscountPercent:
		pct := clampPercent(d.Value)
		return base.Mul(hundred.Sub(pct)).Div(hundred), true
	case core.DiscountFixedPrice:
		if d.Value.IsNegative() {
			return decimal.Zero, true
		}
		return d.Value, true
	}
	return base, false
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
