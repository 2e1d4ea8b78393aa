/*
scheduler.go - Automated drift repair scheduler

PURPOSE:
  Periodically re-derives every booking's payment status and total from
  its ledgers and repairs stored values that drifted (imports, manual
  edits, interrupted writes).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Walks every tenant, including tenants without settings that own
    bookings; one tenant failing doesn't stop the others
  - Only drifted bookings are written (see booking.Service.RepairDrift)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - booking/queries.go: RepairDrift
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/booking"
)

// ReconciliationScheduler runs drift repair on an interval.
type ReconciliationScheduler struct {
	Service       *booking.Service
	Logger        *logrus.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(svc *booking.Service, logger *logrus.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReconciliationScheduler{
		Service:       svc,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.WithField("interval", rs.CheckInterval).Info("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow repairs every tenant once and returns the number of bookings
// fixed.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) int {
	tenants, err := rs.Service.TenantIDs(ctx)
	if err != nil {
		rs.Logger.WithError(err).Error("scheduler: list tenants")
		return 0
	}

	repaired := 0
	for _, id := range tenants {
		n, err := rs.Service.RepairDrift(ctx, id)
		if err != nil {
			rs.Logger.WithError(err).WithField("tenant_id", id).Error("scheduler: repair drift")
			continue
		}
		repaired += n
	}

	if repaired > 0 {
		rs.Logger.WithFields(logrus.Fields{"tenants": len(tenants), "repaired": repaired}).Info("scheduler: drift repaired")
	}
	return repaired
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *ReconciliationScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
