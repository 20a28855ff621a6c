package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/payment"
	"studio-checkout/internal/repo"
)

// AdminNotifier records back-office notifications.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, n *domain.AdminNotification)
}

type SweepResult struct {
	OrdersExpired   int
	BookingsExpired int
	// NeedsReview counts orders newly held for review because the gateway
	// reports them paid.
	NeedsReview int
	Errors      int
}

// ReconciliationWorker expires abandoned pending orders and past unpaid
// bookings. Every write is conditional on the record still being pending,
// so overlapping sweeps from several instances are harmless.
type ReconciliationWorker struct {
	tx        repo.Transactor
	orderRepo repo.OrderRepo
	bookings  repo.BookingRepo
	gateway   payment.PaymentGateway
	notifier  AdminNotifier
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewReconciliationWorker(
	tx repo.Transactor,
	orderRepo repo.OrderRepo,
	bookings repo.BookingRepo,
	gateway payment.PaymentGateway,
	notifier AdminNotifier,
	interval time.Duration,
	batchSize int,
) *ReconciliationWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconciliationWorker{
		tx:        tx,
		orderRepo: orderRepo,
		bookings:  bookings,
		gateway:   gateway,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	log.WithField("interval", rw.interval).Info("reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("reconciliation worker stopped")
			return nil
		case <-ticker.C:
			res, err := rw.RunOnce(ctx)
			if err != nil {
				log.WithError(err).Error("reconciliation sweep failed")
				continue
			}
			if res != (SweepResult{}) {
				log.WithFields(log.Fields{
					"orders_expired":   res.OrdersExpired,
					"bookings_expired": res.BookingsExpired,
					"needs_review":     res.NeedsReview,
					"errors":           res.Errors,
				}).Info("reconciliation sweep done")
			}
		}
	}
}

// RunOnce performs a single sweep. Per-record failures are logged and
// counted; only a failed listing aborts the sweep.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if err := rw.sweepOrders(ctx, &res); err != nil {
		return res, err
	}
	if err := rw.sweepBookings(ctx, &res); err != nil {
		return res, err
	}
	return res, nil
}

// sweepOrders pages through every expired pending order. Orders it cannot
// settle this time stay pending and are passed over by the cursor, so they
// never crowd newer orders out of a page.
func (rw *ReconciliationWorker) sweepOrders(ctx context.Context, res *SweepResult) error {
	now := rw.now()
	var after *repo.ExpiryCursor
	for {
		page, err := rw.orderRepo.FindExpiredPending(ctx, now, after, rw.batchSize)
		if err != nil {
			return err
		}
		for _, order := range page {
			rw.settleOrder(ctx, order, res)
		}
		if len(page) < rw.batchSize {
			return nil
		}
		last := page[len(page)-1]
		after = &repo.ExpiryCursor{ExpiresAt: last.ExpiresAt, ID: last.ID}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (rw *ReconciliationWorker) settleOrder(ctx context.Context, order domain.Order, res *SweepResult) {
	logger := log.WithFields(log.Fields{"order_id": order.ID, "order_number": order.OrderNumber})

	if order.GatewayOrderID != "" {
		status, err := rw.gateway.FetchOrderStatus(ctx, order.GatewayOrderID)
		switch {
		case errors.Is(err, payment.ErrGatewayOrderNotFound):
			// Nothing was ever collected against it.
		case err != nil:
			logger.WithError(err).Warn("gateway status unavailable, retrying next sweep")
			res.Errors++
			return
		case status == payment.OrderPaid:
			// Captured at the gateway but never verified here. Without a
			// signature the order is not marked paid; a human decides.
			rw.holdForReview(ctx, order, logger, res)
			return
		}
	}

	var expiredNow bool
	err := rw.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		expiredNow, err = rw.orderRepo.ExpireOrder(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		logger.WithError(err).Error("expire order")
		res.Errors++
		return
	}
	if expiredNow {
		res.OrdersExpired++
		logger.Info("abandoned order expired")
	}
}

// holdForReview flags the order in the store. Only the sweep that sets the
// flag notifies the back office.
func (rw *ReconciliationWorker) holdForReview(ctx context.Context, order domain.Order, logger *log.Entry, res *SweepResult) {
	var flagged bool
	err := rw.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		flagged, err = rw.orderRepo.MarkNeedsReview(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		logger.WithError(err).Error("flag order for review")
		res.Errors++
		return
	}
	if !flagged {
		return
	}

	res.NeedsReview++
	logger.WithField("gateway_order_id", order.GatewayOrderID).Warn("needs_manual_review: gateway reports paid for an unverified order")
	rw.notifier.NotifyAdmin(ctx, domain.NewAdminNotification("needs_manual_review",
		"Unverified payment on "+order.OrderNumber,
		"The gateway reports order "+order.GatewayOrderID+" as paid but no verified completion arrived. Check the gateway dashboard before fulfilling or refunding.",
		domain.EntityOrder, order.ID))
}

func (rw *ReconciliationWorker) sweepBookings(ctx context.Context, res *SweepResult) error {
	today := rw.now().UTC().Truncate(24 * time.Hour)
	stale, err := rw.bookings.FindUnpaidBefore(ctx, today, rw.batchSize)
	if err != nil {
		return err
	}

	for _, booking := range stale {
		var expiredNow bool
		err := rw.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			var err error
			expiredNow, err = rw.bookings.ExpireBooking(ctx, tx, booking.ID)
			return err
		})
		if err != nil {
			log.WithError(err).WithField("booking_id", booking.ID).Error("expire booking")
			res.Errors++
			continue
		}
		if expiredNow {
			res.BookingsExpired++
			log.WithFields(log.Fields{"booking_id": booking.ID, "booking_date": booking.BookingDate.Format("2006-01-02")}).Info("unpaid booking expired")
		}
	}
	return nil
}
