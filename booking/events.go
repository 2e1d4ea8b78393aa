package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/core"
)

// Notifier receives domain events after the transaction that produced them
// has committed. Delivery failures never roll back the booking change.
type Notifier interface {
	BookingCreated(ctx context.Context, e BookingCreated) error
	PaymentAcknowledged(ctx context.Context, e PaymentAcknowledged) error
}

// BookingCreated is emitted once per successful Create.
type BookingCreated struct {
	TenantID    core.TenantID   `json:"tenant_id"`
	BookingID   core.BookingID  `json:"booking_id"`
	UnitID      core.UnitID     `json:"unit_id"`
	GuestID     core.GuestID    `json:"guest_id"`
	GuestName   string          `json:"guest_name"`
	GuestEmail  string          `json:"guest_email,omitempty"`
	CheckIn     time.Time       `json:"check_in"`
	CheckOut    time.Time       `json:"check_out"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentAcknowledged is emitted when the first non-zero payment of a
// booking is confirmed.
type PaymentAcknowledged struct {
	TenantID      core.TenantID      `json:"tenant_id"`
	BookingID     core.BookingID     `json:"booking_id"`
	PaymentID     core.PaymentID     `json:"payment_id"`
	GuestName     string             `json:"guest_name"`
	GuestEmail    string             `json:"guest_email,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	PaidTotal     decimal.Decimal    `json:"paid_total"`
	Outstanding   decimal.Decimal    `json:"outstanding"`
	PaymentStatus core.PaymentStatus `json:"payment_status"`
	ConfirmedAt   time.Time          `json:"confirmed_at"`
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) BookingCreated(context.Context, BookingCreated) error           { return nil }
func (NopNotifier) PaymentAcknowledged(context.Context, PaymentAcknowledged) error { return nil }

// outbox collects events raised inside a transaction. It is flushed only
// after WithTx returns nil.
type outbox struct {
	created []BookingCreated
	acks    []PaymentAcknowledged
}

func newBookingCreated(b core.Booking) BookingCreated {
	return BookingCreated{
		TenantID:    b.TenantID,
		BookingID:   b.ID,
		UnitID:      b.UnitID,
		GuestID:     b.GuestID,
		GuestName:   b.Guest.FullName,
		GuestEmail:  b.Guest.Email,
		CheckIn:     b.Stay.CheckIn,
		CheckOut:    b.Stay.CheckOut,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		CreatedAt:   b.CreatedAt,
	}
}
