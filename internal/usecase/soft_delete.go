package usecase

import (
	"context"
	"sync"
	"time"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/domain/repository"
	"workorder-service/pkg/logger"
	"workorder-service/pkg/metrics"
)

// DeleteHandle identifies one pending deletion and when it becomes
// irreversible.
type DeleteHandle struct {
	WorkOrderID string
	ExpiresAt   time.Time
}

// SoftDeleteCoordinator defers destructive deletion behind a cancellable grace
// timer. A soft-deleted order disappears from active views immediately; Undo
// before expiry restores it, expiry issues the irreversible hard delete to the
// gateway. Undo racing its own expiry is safe: whichever runs first wins and
// the loser is a no-op.
type SoftDeleteCoordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingDelete

	store      *workOrderStore
	ledger     *AuditLedger
	orderLocks *keyedMutex
	persist    *persister
	gateway    repository.WorkOrderRepository
	grace      time.Duration
	log        logger.Logger
	mtr        *metrics.Metrics

	now func() time.Time
}

type pendingDelete struct {
	handle DeleteHandle
	timer  *time.Timer
}

func newSoftDeleteCoordinator(store *workOrderStore, ledger *AuditLedger, orderLocks *keyedMutex, persist *persister, gateway repository.WorkOrderRepository, grace time.Duration, log logger.Logger, mtr *metrics.Metrics) *SoftDeleteCoordinator {
	return &SoftDeleteCoordinator{
		pending:    make(map[string]*pendingDelete),
		store:      store,
		ledger:     ledger,
		orderLocks: orderLocks,
		persist:    persist,
		gateway:    gateway,
		grace:      grace,
		log:        log,
		mtr:        mtr,
		now:        time.Now,
	}
}

// RequestDelete hides the order from active views and starts the grace timer.
// While a deletion is already pending for the id, the existing handle is
// returned and nothing else happens.
func (c *SoftDeleteCoordinator) RequestDelete(ctx context.Context, id, actor string) (*DeleteHandle, error) {
	c.mu.Lock()
	if p, ok := c.pending[id]; ok {
		handle := p.handle
		c.mu.Unlock()
		return &handle, nil
	}
	c.mu.Unlock()

	unlock := c.orderLocks.lock(id)
	defer unlock()

	wo, ok := c.store.get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if wo.Deleted {
		// Lost a race with another request; hand back its handle.
		c.mu.Lock()
		p, armed := c.pending[id]
		c.mu.Unlock()
		if armed {
			handle := p.handle
			return &handle, nil
		}
		return nil, domain.ErrNotFound
	}

	ts := c.now()
	wo.Deleted = true
	wo.DeletedAt = &ts
	c.ledger.Append(wo, entity.ChangeStatus, "deleted", "false", "true", actor)
	if _, err := c.persist.commit(ctx, wo); err != nil {
		return nil, err
	}

	handle := c.arm(id, ts.Add(c.grace))
	c.log.Info("work order soft-deleted", "orderId", id, "expiresAt", handle.ExpiresAt)
	return handle, nil
}

// Undo cancels a pending deletion and restores the order. Called after the
// deletion already expired (or was never requested), it is a no-op returning
// the order's current state, or ErrNotFound once the hard delete went through.
func (c *SoftDeleteCoordinator) Undo(ctx context.Context, id, actor string) (*entity.WorkOrder, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok && !p.timer.Stop() {
		// Expiry fired first and is running; it wins.
		ok = false
	}
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	c.gaugePending()

	if !ok {
		// No pending deletion. The order may have been restored already, or
		// its expiry may have run with the hard delete still outstanding; a
		// document left soft-deleted stays hidden either way.
		wo, found := c.store.get(id)
		if !found || wo.Deleted {
			return nil, domain.ErrNotFound
		}
		return wo, nil
	}

	unlock := c.orderLocks.lock(id)
	defer unlock()

	wo, found := c.store.get(id)
	if !found {
		return nil, domain.ErrNotFound
	}
	wo.Deleted = false
	wo.DeletedAt = nil
	c.ledger.Append(wo, entity.ChangeStatus, "deleted", "true", "false", actor)
	c.log.Info("work order deletion undone", "orderId", id)
	return c.persist.commit(ctx, wo)
}

// Pending reports whether a deletion is awaiting expiry for the id.
func (c *SoftDeleteCoordinator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// ReapExpired hard-deletes soft-deleted orders whose grace window elapsed
// without an armed timer, e.g. because the process restarted. Orders with a
// live timer are left to it.
func (c *SoftDeleteCoordinator) ReapExpired(ctx context.Context) error {
	deleted, err := c.gateway.ListDeleted(ctx)
	if err != nil {
		return err
	}
	now := c.now()
	for _, wo := range deleted {
		if wo.DeletedAt == nil || now.Before(wo.DeletedAt.Add(c.grace)) {
			continue
		}
		if c.Pending(wo.ID) {
			continue
		}
		c.hardDelete(wo.ID)
	}
	return nil
}

// rearm restores the grace timer for a soft-deleted order found during
// hydration. An already elapsed window expires on the spot.
func (c *SoftDeleteCoordinator) rearm(id string, deletedAt *time.Time) {
	expiresAt := c.now()
	if deletedAt != nil {
		expiresAt = deletedAt.Add(c.grace)
	}
	c.arm(id, expiresAt)
}

func (c *SoftDeleteCoordinator) arm(id string, expiresAt time.Time) *DeleteHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok {
		handle := p.handle
		return &handle
	}

	handle := DeleteHandle{WorkOrderID: id, ExpiresAt: expiresAt}
	delay := time.Until(expiresAt)
	if delay < 0 {
		delay = 0
	}
	c.pending[id] = &pendingDelete{
		handle: handle,
		timer:  time.AfterFunc(delay, func() { c.expire(id) }),
	}
	if c.mtr != nil {
		c.mtr.PendingDeletes.Set(float64(len(c.pending)))
	}
	return &handle
}

// expire runs on the timer goroutine when the grace window elapses.
func (c *SoftDeleteCoordinator) expire(id string) {
	c.mu.Lock()
	if _, ok := c.pending[id]; !ok {
		// Undo won the race.
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.mu.Unlock()
	c.gaugePending()

	c.hardDelete(id)
}

func (c *SoftDeleteCoordinator) hardDelete(id string) {
	unlock := c.orderLocks.lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.gateway.HardDelete(ctx, id); err != nil {
		// Leave the document soft-deleted; the reaper retries on its next run.
		c.log.Error("hard delete failed", "orderId", id, "error", err)
		return
	}
	c.store.remove(id)
	c.log.Info("work order hard-deleted", "orderId", id)
}

func (c *SoftDeleteCoordinator) gaugePending() {
	if c.mtr != nil {
		c.mu.Lock()
		n := len(c.pending)
		c.mu.Unlock()
		c.mtr.PendingDeletes.Set(float64(n))
	}
}
