package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/sciventures/bitmarket-gateway/internal/repo"
)

const noteCheckoutAbandoned = "Bitmarket payment window expired, order marked failed"

// ReconciliationWorker sweeps orders that began checkout but never got a
// callback. Customers who close the Bitmarket tab would otherwise leave the
// order pending forever.
type ReconciliationWorker struct {
	db        *sql.DB
	orderRepo repo.OrderRepo
	interval  time.Duration
	ttl       time.Duration
}

func NewReconciliationWorker(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	interval time.Duration,
	ttl time.Duration,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		db:        db,
		orderRepo: orderRepo,
		interval:  interval,
		ttl:       ttl,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	log.Println("Reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rw.process(ctx); err != nil {
				log.Printf("Reconciliation failed: %v", err)
			}
		}
	}
}

func (rw *ReconciliationWorker) process(ctx context.Context) error {
	stuckOrders, err := rw.orderRepo.FindStuckOrders(ctx, rw.ttl)
	if err != nil {
		return err
	}

	if len(stuckOrders) == 0 {
		return nil
	}

	log.Printf("Found %d abandoned orders. Expiring...", len(stuckOrders))

	for _, order := range stuckOrders {
		if err := rw.expire(ctx, order.ID); err != nil {
			log.Printf("Failed to expire order %s: %v", order.ID, err)
			// Skip and retry on the next sweep.
		}
	}
	return nil
}

func (rw *ReconciliationWorker) expire(ctx context.Context, orderID string) error {
	tx, err := rw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := rw.orderRepo.FailIfPending(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !applied {
		// A callback settled the order between the sweep query and now.
		return nil
	}
	if err := rw.orderRepo.AddNote(ctx, tx, orderID, noteCheckoutAbandoned); err != nil {
		return err
	}

	return tx.Commit()
}
