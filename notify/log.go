package notify

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/booking"
)

// LogNotifier writes events to the log instead of a broker. Used when no
// RABBITMQ_URL is configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

var _ booking.Notifier = LogNotifier{}

func (n LogNotifier) BookingCreated(_ context.Context, e booking.BookingCreated) error {
	n.logger().WithFields(logrus.Fields{
		"event":      KeyBookingCreated,
		"tenant_id":  e.TenantID,
		"booking_id": e.BookingID,
		"unit_id":    e.UnitID,
		"check_in":   e.CheckIn.Format("2006-01-02"),
		"check_out":  e.CheckOut.Format("2006-01-02"),
		"total":      e.TotalAmount.StringFixed(2) + " " + e.Currency,
	}).Info("notification")
	return nil
}

func (n LogNotifier) PaymentAcknowledged(_ context.Context, e booking.PaymentAcknowledged) error {
	n.logger().WithFields(logrus.Fields{
		"event":          KeyPaymentAcknowledged,
		"tenant_id":      e.TenantID,
		"booking_id":     e.BookingID,
		"payment_id":     e.PaymentID,
		"amount":         e.Amount.StringFixed(2) + " " + e.Currency,
		"payment_status": e.PaymentStatus,
	}).Info("notification")
	return nil
}

func (n LogNotifier) logger() *logrus.Logger {
	if n.Logger == nil {
		return logrus.StandardLogger()
	}
	return n.Logger
}
