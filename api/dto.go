/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in core/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Amounts are decimal strings ("30000.00") in responses and accept either
  strings or numbers in requests. Stay bounds accept "2006-01-02" (midnight
  UTC) or RFC3339.

VALIDATION:
  Request types carry go-playground/validator tags checked by decode().
  Domain rules (overlaps, deposits, transitions) stay in booking.Service.

SEE ALSO:
  - handlers.go: Uses these types
  - core/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/core"
)

const dateLayout = "2006-01-02"

// parseInstant accepts a calendar date or an RFC3339 timestamp.
func parseInstant(field, s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.Invalid(field, "use YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), nil
}

func parseOptionalInstant(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseInstant(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// =============================================================================
// BOOKINGS
// =============================================================================

type CreateBookingRequest struct {
	UnitID     string           `json:"unit_id" validate:"required,max=64"`
	GuestID    string           `json:"guest_id" validate:"required,max=64"`
	CheckIn    string           `json:"check_in" validate:"required"`
	CheckOut   string           `json:"check_out" validate:"required"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	GuestCount int              `json:"guest_count,omitempty" validate:"gte=0,lte=50"`
	Notes      string           `json:"notes,omitempty" validate:"max=2000"`
	Actor      string           `json:"actor,omitempty" validate:"max=128"`
}

type UpdateBookingRequest struct {
	UnitID     *string          `json:"unit_id,omitempty" validate:"omitempty,min=1,max=64"`
	GuestID    *string          `json:"guest_id,omitempty" validate:"omitempty,min=1,max=64"`
	CheckIn    *string          `json:"check_in,omitempty"`
	CheckOut   *string          `json:"check_out,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   *string          `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	GuestCount *int             `json:"guest_count,omitempty" validate:"omitempty,gte=1,lte=50"`
	Notes      *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type GuestDetailsDTO struct {
	FullName       string `json:"full_name,omitempty" validate:"max=200"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string `json:"phone,omitempty" validate:"max=64"`
	Nationality    string `json:"nationality,omitempty" validate:"max=64"`
	DocumentType   string `json:"document_type,omitempty" validate:"max=64"`
	DocumentNumber string `json:"document_number,omitempty" validate:"max=64"`
	Address        string `json:"address,omitempty" validate:"max=500"`
}

func (g GuestDetailsDTO) toCore() core.GuestDetails {
	return core.GuestDetails(g)
}

func toGuestDetailsDTO(d core.GuestDetails) GuestDetailsDTO {
	return GuestDetailsDTO(d)
}

type CheckInRequest struct {
	Actor            string           `json:"actor,omitempty" validate:"max=128"`
	At               *string          `json:"at,omitempty"`
	Guest            *GuestDetailsDTO `json:"guest,omitempty"`
	PropagateToGuest bool             `json:"propagate_to_guest,omitempty"`
	Notes            string           `json:"notes,omitempty" validate:"max=2000"`
	Artifacts        []string         `json:"artifacts,omitempty" validate:"max=20,dive,required,max=512"`
}

type CheckOutRequest struct {
	Actor     string   `json:"actor,omitempty" validate:"max=128"`
	At        *string  `json:"at,omitempty"`
	Notes     string   `json:"notes,omitempty" validate:"max=2000"`
	Artifacts []string `json:"artifacts,omitempty" validate:"max=20,dive,required,max=512"`
}

type CancelRequest struct {
	Actor  string `json:"actor,omitempty" validate:"max=128"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type ActorRequest struct {
	Actor string `json:"actor,omitempty" validate:"max=128"`
}

type BookingDTO struct {
	ID            string          `json:"id"`
	UnitID        string          `json:"unit_id"`
	GuestID       string          `json:"guest_id"`
	Guest         GuestDetailsDTO `json:"guest"`
	CheckIn       string          `json:"check_in"`
	CheckOut      string          `json:"check_out"`
	Nights        int             `json:"nights"`
	TotalAmount   string          `json:"total_amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	GuestCount    int             `json:"guest_count"`
	Notes         string          `json:"notes,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	ConfirmedAt   *string         `json:"confirmed_at,omitempty"`
	CheckedInAt   *string         `json:"checked_in_at,omitempty"`
	CheckedOutAt  *string         `json:"checked_out_at,omitempty"`
	CancelledAt   *string         `json:"cancelled_at,omitempty"`
}

func toBookingDTO(b core.Booking) BookingDTO {
	return BookingDTO{
		ID:            string(b.ID),
		UnitID:        string(b.UnitID),
		GuestID:       string(b.GuestID),
		Guest:         toGuestDetailsDTO(b.Guest),
		CheckIn:       b.Stay.CheckIn.Format(time.RFC3339),
		CheckOut:      b.Stay.CheckOut.Format(time.RFC3339),
		Nights:        b.Stay.Nights(),
		TotalAmount:   money(b.TotalAmount),
		Currency:      b.Currency,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		GuestCount:    b.GuestCount,
		Notes:         b.Notes,
		CancelReason:  b.CancelReason,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.UTC().Format(time.RFC3339),
		ConfirmedAt:   formatOptional(b.ConfirmedAt),
		CheckedInAt:   formatOptional(b.CheckedInAt),
		CheckedOutAt:  formatOptional(b.CheckedOutAt),
		CancelledAt:   formatOptional(b.CancelledAt),
	}
}

func toBookingDTOs(bs []core.Booking) []BookingDTO {
	out := make([]BookingDTO, len(bs))
	for i, b := range bs {
		out[i] = toBookingDTO(b)
	}
	return out
}

type CheckEventDTO struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor,omitempty"`
	At        string   `json:"at"`
	Notes     string   `json:"notes,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

func toCheckEventDTOs(es []core.CheckEvent) []CheckEventDTO {
	out := make([]CheckEventDTO, len(es))
	for i, e := range es {
		out[i] = CheckEventDTO{
			ID:        string(e.ID),
			Type:      string(e.Type),
			Actor:     e.Actor,
			At:        e.At.UTC().Format(time.RFC3339),
			Notes:     e.Notes,
			Artifacts: e.Artifacts,
		}
	}
	return out
}

// =============================================================================
// LEDGERS
// =============================================================================

type BalanceDTO struct {
	BookingID     string `json:"booking_id"`
	Currency      string `json:"currency"`
	TotalBill     string `json:"total_bill"`
	PaidTotal     string `json:"paid_total"`
	Outstanding   string `json:"outstanding"`
	PaymentStatus string `json:"payment_status"`
}

func toBalanceDTO(r billing.Reconciliation) BalanceDTO {
	return BalanceDTO{
		BookingID:     string(r.BookingID),
		Currency:      r.TotalBill.Currency,
		TotalBill:     money(r.TotalBill.Value),
		PaidTotal:     money(r.PaidTotal.Value),
		Outstanding:   money(r.Outstanding.Value),
		PaymentStatus: string(r.PaymentStatus),
	}
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Method    string          `json:"method,omitempty" validate:"omitempty,oneof=CASH CARD BANK_TRANSFER ONLINE OTHER"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
	Confirmed bool            `json:"confirmed,omitempty"`
	Actor     string          `json:"actor,omitempty" validate:"max=128"`
}

type FailPaymentRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type PaymentDTO struct {
	ID            string  `json:"id"`
	BookingID     string  `json:"booking_id"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Reference     string  `json:"reference,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	ConfirmedAt   *string `json:"confirmed_at,omitempty"`
	ConfirmedBy   string  `json:"confirmed_by,omitempty"`
}

func toPaymentDTO(p core.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            string(p.ID),
		BookingID:     string(p.BookingID),
		Amount:        money(p.Amount),
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		Reference:     p.Reference,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		ConfirmedAt:   formatOptional(p.ConfirmedAt),
		ConfirmedBy:   p.ConfirmedBy,
	}
}

// PaymentResultDTO is returned by payment writes: the payment plus the
// booking's balance after the change.
type PaymentResultDTO struct {
	Payment PaymentDTO  `json:"payment"`
	Balance *BalanceDTO `json:"balance,omitempty"`
}

type ChargeRequest struct {
	Type        string          `json:"type" validate:"required,oneof=DAMAGE EXTRA OVERSTAY OTHER"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	Actor       string          `json:"actor,omitempty" validate:"max=128"`
}

type ChargeDTO struct {
	ID          string  `json:"id"`
	BookingID   string  `json:"booking_id"`
	Type        string  `json:"type"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	VoidedAt    *string `json:"voided_at,omitempty"`
}

func toChargeDTO(c core.Charge) ChargeDTO {
	return ChargeDTO{
		ID:          string(c.ID),
		BookingID:   string(c.BookingID),
		Type:        string(c.Type),
		Amount:      money(c.Amount),
		Currency:    c.Currency,
		Description: c.Description,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
		VoidedAt:    formatOptional(c.VoidedAt),
	}
}

type ChargeResultDTO struct {
	Charge  ChargeDTO  `json:"charge"`
	Balance BalanceDTO `json:"balance"`
}

// =============================================================================
// UNITS
// =============================================================================

type AvailabilityDTO struct {
	UnitID    string   `json:"unit_id"`
	CheckIn   string   `json:"check_in"`
	CheckOut  string   `json:"check_out"`
	Available bool     `json:"available"`
	Conflicts []string `json:"conflicts"`
}

type NightRateDTO struct {
	Night      string `json:"night"`
	Rate       string `json:"rate"`
	Discounted bool   `json:"discounted,omitempty"`
}

type QuoteDTO struct {
	UnitID   string         `json:"unit_id"`
	Nights   []NightRateDTO `json:"nights"`
	Total    string         `json:"total"`
	Currency string         `json:"currency"`
}

func toQuoteDTO(q billing.Quote) QuoteDTO {
	nights := make([]NightRateDTO, len(q.Nights))
	for i, n := range q.Nights {
		nights[i] = NightRateDTO{Night: n.Night.Format(dateLayout), Rate: money(n.Rate), Discounted: n.Discounted}
	}
	return QuoteDTO{UnitID: string(q.UnitID), Nights: nights, Total: money(q.Total.Value), Currency: q.Total.Currency}
}

// =============================================================================
// ADMIN (catalog seeding)
// =============================================================================

type TenantRequest struct {
	Name              string           `json:"name,omitempty" validate:"max=200"`
	Currency          string           `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	MinDepositPercent *decimal.Decimal `json:"min_deposit_percent,omitempty"`
}

type DiscountDTO struct {
	Type  string          `json:"type" validate:"required,oneof=PERCENT FIXED_PRICE"`
	Value decimal.Decimal `json:"value"`
	Start string          `json:"start,omitempty"`
	End   string          `json:"end,omitempty"`
}

type UnitRequest struct {
	Name      string          `json:"name,omitempty" validate:"max=200"`
	BasePrice decimal.Decimal `json:"base_price"`
	Currency  string          `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Discount  *DiscountDTO    `json:"discount,omitempty"`
}

func (u UnitRequest) toCore(id core.UnitID) (core.Unit, error) {
	unit := core.Unit{ID: id, Name: u.Name, BasePrice: u.BasePrice, Currency: u.Currency}
	if d := u.Discount; d != nil {
		rule := core.DiscountRule{Type: core.DiscountType(d.Type), Value: d.Value}
		var err error
		if d.Start != "" {
			if rule.Start, err = parseInstant("discount.start", d.Start); err != nil {
				return core.Unit{}, err
			}
		}
		if d.End != "" {
			if rule.End, err = parseInstant("discount.end", d.End); err != nil {
				return core.Unit{}, err
			}
		}
		unit.Discount = &rule
	}
	return unit, nil
}

type GuestRequest struct {
	GuestDetailsDTO
}

// =============================================================================
// SCENARIOS, ERRORS, HEALTH
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

type HealthDTO struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func stayFrom(checkIn, checkOut string) (core.Interval, error) {
	in, err := parseInstant("check_in", checkIn)
	if err != nil {
		return core.Interval{}, err
	}
	out, err := parseInstant("check_out", checkOut)
	if err != nil {
		return core.Interval{}, err
	}
	return core.NewInterval(in, out), nil
}

func requiredQuery(field, v string) error {
	if v == "" {
		return core.Invalid(field, "query parameter is required")
	}
	return nil
}
