package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/warp/stay-engine/booking"
)

const (
	KeyBookingCreated      = "booking.created"
	KeyPaymentAcknowledged = "payment.acknowledged"
)

// DefaultTimeout bounds a single publish when none is configured.
const DefaultTimeout = 5 * time.Second

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("notification broker unavailable")

// Dispatcher implements booking.Notifier on top of a Publisher. After three
// consecutive failures the breaker opens for ten seconds and messages are
// dropped with ErrUnavailable instead of waiting on a dead broker.
type Dispatcher struct {
	pub     Publisher
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logrus.Logger
}

var _ booking.Notifier = (*Dispatcher)(nil)

func NewDispatcher(pub Publisher, timeout time.Duration, logger *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		pub:     pub,
		cb:      CircuitBreaker("notify", logger),
		timeout: timeout,
		logger:  logger,
	}
}

// CircuitBreaker builds the breaker used around broker calls.
func CircuitBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(
		gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			Interval:    0,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 2
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("circuit breaker state changed")
			},
		},
	)
}

func (d *Dispatcher) BookingCreated(ctx context.Context, e booking.BookingCreated) error {
	return d.publish(ctx, KeyBookingCreated, e)
}

func (d *Dispatcher) PaymentAcknowledged(ctx context.Context, e booking.PaymentAcknowledged) error {
	return d.publish(ctx, KeyPaymentAcknowledged, e)
}

// State reports the breaker state for health checks.
func (d *Dispatcher) State() string {
	return d.cb.State().String()
}

func (d *Dispatcher) publish(ctx context.Context, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.pub.PublishJSON(ctx, key, v)
	})
	switch {
	case err == nil:
		d.logger.WithField("routing_key", key).Debug("event published")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("publish %s: %w", key, ErrUnavailable)
	default:
		return fmt.Errorf("publish %s: %w", key, err)
	}
}
