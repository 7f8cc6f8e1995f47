package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/domain/repository"
	"workorder-service/pkg/logger"
	"workorder-service/pkg/metrics"
)

// Config carries the engine's tunables, supplied at construction.
type Config struct {
	// SiteCapacities is the per-site ceiling on total declared quantity.
	// Sites absent from the map carry no ceiling.
	SiteCapacities map[string]float64
	// GraceWindow is how long a soft-deleted order stays recoverable.
	GraceWindow time.Duration
	// AdvisoryThreshold is the progressed/declared ratio below which Finish
	// surfaces a low-progress advisory.
	AdvisoryThreshold float64
}

const (
	defaultGraceWindow       = 5 * time.Minute
	defaultAdvisoryThreshold = 0.9
)

// FinishAdvisory is the caller-facing warning surfaced when finishing an order
// that is materially under-progressed or has no attendance recorded. It is an
// advisory, never a hard block.
type FinishAdvisory struct {
	LowProgress     bool
	EmptyAttendance bool
	ProgressRatio   float64
	Threshold       float64
}

// WorkOrderLifecycle owns the work-order state machine and orchestrates
// admission control, crew allocation, attendance and the audit trail on each
// mutation. All mutation paths funnel through it; the in-memory view is
// authoritative and the persistence gateway is kept eventually consistent.
//
// Commands return the updated snapshot or a typed failure. Validation
// failures reject atomically; a persistence failure after an applied mutation
// returns both the snapshot (flagged unsynced) and an error wrapping
// domain.ErrPersistenceFailure.
type WorkOrderLifecycle struct {
	cfg        Config
	store      *workOrderStore
	orderLocks *keyedMutex
	ledger     *AuditLedger
	capacity   *CapacityAdmissionControl
	allocator  *ResourceAllocator
	attendance *AttendanceTracker
	softDelete *SoftDeleteCoordinator
	persist    *persister
	gateway    repository.WorkOrderRepository
	log        logger.Logger
	mtr        *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewWorkOrderLifecycle wires the engine. mtr may be nil.
func NewWorkOrderLifecycle(cfg Config, gateway repository.WorkOrderRepository, crewRepo repository.CrewRepository, log logger.Logger, mtr *metrics.Metrics) *WorkOrderLifecycle {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	if cfg.AdvisoryThreshold <= 0 {
		cfg.AdvisoryThreshold = defaultAdvisoryThreshold
	}

	store := newWorkOrderStore()
	orderLocks := newKeyedMutex()
	ledger := NewAuditLedger()
	persist := &persister{store: store, gateway: gateway, log: log}

	e := &WorkOrderLifecycle{
		cfg:        cfg,
		store:      store,
		orderLocks: orderLocks,
		ledger:     ledger,
		capacity:   NewCapacityAdmissionControl(cfg.SiteCapacities, store),
		persist:    persist,
		gateway:    gateway,
		log:        log,
		mtr:        mtr,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	e.allocator = newResourceAllocator(store, ledger, crewRepo, orderLocks, persist, log)
	e.attendance = newAttendanceTracker(store, ledger, orderLocks, persist, log)
	e.softDelete = newSoftDeleteCoordinator(store, ledger, orderLocks, persist, gateway, cfg.GraceWindow, log, mtr)
	return e
}

// Allocator exposes crew assignment commands.
func (e *WorkOrderLifecycle) Allocator() *ResourceAllocator { return e.allocator }

// Attendance exposes presence-recording commands.
func (e *WorkOrderLifecycle) Attendance() *AttendanceTracker { return e.attendance }

// SoftDelete exposes the deferred-deletion commands.
func (e *WorkOrderLifecycle) SoftDelete() *SoftDeleteCoordinator { return e.softDelete }

// Hydrate loads the gateway's orders into the authoritative view: every open
// order regardless of site, since orders may live at sites with no configured
// ceiling, plus soft-deleted orders whose grace timers are re-armed for their
// remaining window.
func (e *WorkOrderLifecycle) Hydrate(ctx context.Context) error {
	orders, err := e.gateway.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("hydrate open orders: %w", err)
	}
	for _, wo := range orders {
		e.store.put(wo.Clone())
	}

	deleted, err := e.gateway.ListDeleted(ctx)
	if err != nil {
		return fmt.Errorf("hydrate deleted orders: %w", err)
	}
	for _, wo := range deleted {
		e.store.put(wo.Clone())
		e.softDelete.rearm(wo.ID, wo.DeletedAt)
	}
	return nil
}

// Create admits a new work order against the site's capacity pool and emits it
// in status scheduled.
func (e *WorkOrderLifecycle) Create(ctx context.Context, kind entity.WorkOrderKind, declaredQty float64, site string, scheduledAt *time.Time, priority int, notes, actor string) (*entity.WorkOrder, error) {
	if kind != entity.KindLoad && kind != entity.KindUnload {
		return nil, fmt.Errorf("unknown work order kind %q", kind)
	}
	if declaredQty <= 0 {
		return nil, fmt.Errorf("%w: got %v", domain.ErrInvalidQuantity, declaredQty)
	}
	if strings.TrimSpace(site) == "" {
		return nil, fmt.Errorf("site must not be empty")
	}

	id := e.newID()
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo := &entity.WorkOrder{
		ID:          id,
		Kind:        kind,
		Status:      entity.StatusScheduled,
		Site:        site,
		DeclaredQty: declaredQty,
		Priority:    priority,
		Notes:       notes,
		ScheduledAt: scheduledAt,
		CreatedAt:   e.now(),
	}
	e.ledger.Append(wo, entity.ChangeStatus, "status", "", string(entity.StatusScheduled), actor)

	if err := e.capacity.Reserve(site, declaredQty, func() {
		e.store.put(wo.Clone())
	}); err != nil {
		e.reject("capacity_exceeded")
		return nil, err
	}

	e.observe("create")
	e.gaugeCapacity(site)
	return e.persist.commit(ctx, wo)
}

// MarkReady moves a scheduled order to ready once staging is done.
func (e *WorkOrderLifecycle) MarkReady(ctx context.Context, id, actor string) (*entity.WorkOrder, error) {
	return e.transition(ctx, id, actor, "mark ready", entity.StatusReady, entity.StatusScheduled)
}

// Start begins execution. Legal from scheduled or ready. Starting fails when
// any crew member on the roster is already on another active order; the caller
// resolves the conflict through the allocator first.
func (e *WorkOrderLifecycle) Start(ctx context.Context, id, actor string) (*entity.WorkOrder, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.StatusScheduled && wo.Status != entity.StatusReady {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "start", From: wo.Status}
	}
	for _, c := range wo.Crew {
		if other := e.store.activeOrderWithCrew(c.CrewMemberID, id); other != nil {
			e.reject("crew_conflict")
			return nil, &domain.CrewConflictError{CrewMemberID: c.CrewMemberID, OtherOrderID: other.ID}
		}
	}

	ts := e.now()
	prev := wo.Status
	wo.Status = entity.StatusActive
	wo.StartedAt = &ts
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(prev), string(entity.StatusActive), actor)
	e.observe("start")
	return e.persist.commit(ctx, wo)
}

// Pause interrupts an active order, opening a new pause interval.
func (e *WorkOrderLifecycle) Pause(ctx context.Context, id, reason, actor string) (*entity.WorkOrder, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.ErrEmptyPauseReason
	}

	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.StatusActive {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "pause", From: wo.Status}
	}

	wo.Pauses = append(wo.Pauses, entity.PauseInterval{Reason: reason, StartedAt: e.now()})
	wo.Status = entity.StatusPaused
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(entity.StatusActive), string(entity.StatusPaused), actor)
	e.observe("pause")
	return e.persist.commit(ctx, wo)
}

// Resume closes the open pause interval and returns the order to active.
func (e *WorkOrderLifecycle) Resume(ctx context.Context, id, actor string) (*entity.WorkOrder, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.StatusPaused {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "resume", From: wo.Status}
	}

	if open := wo.OpenPause(); open != nil {
		ts := e.now()
		open.EndedAt = &ts
	}
	wo.Status = entity.StatusActive
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(entity.StatusPaused), string(entity.StatusActive), actor)
	e.observe("resume")
	return e.persist.commit(ctx, wo)
}

// AdjustProgress moves the progressed quantity by delta, clamped to
// [0, declared]. The audit entry records the values actually applied, not the
// requested delta.
func (e *WorkOrderLifecycle) AdjustProgress(ctx context.Context, id string, delta float64, actor string) (*entity.WorkOrder, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.StatusActive {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "adjust progress on", From: wo.Status}
	}

	previous := wo.ProgressedQty
	applied := previous + delta
	if applied < 0 {
		applied = 0
	}
	if applied > wo.DeclaredQty {
		applied = wo.DeclaredQty
	}
	wo.ProgressedQty = applied
	e.ledger.Append(wo, entity.ChangeQuantityAdjust, "progressed", formatQty(previous), formatQty(applied), actor)
	e.observe("adjust_progress")
	return e.persist.commit(ctx, wo)
}

// EditDeclaredTotal changes the declared quantity of a non-terminal order. The
// new total may not drop below what is already progressed, and a net increase
// must pass admission control for the site.
func (e *WorkOrderLifecycle) EditDeclaredTotal(ctx context.Context, id string, newTotal float64, actor string) (*entity.WorkOrder, error) {
	if newTotal <= 0 {
		return nil, fmt.Errorf("%w: got %v", domain.ErrInvalidQuantity, newTotal)
	}

	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status.Terminal() {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "edit declared total on", From: wo.Status}
	}
	if newTotal < wo.ProgressedQty {
		e.reject("below_progressed")
		return nil, fmt.Errorf("%w: new total %s below progressed %s",
			domain.ErrBelowProgressed, formatQty(newTotal), formatQty(wo.ProgressedQty))
	}

	previous := wo.DeclaredQty
	apply := func() {
		wo.DeclaredQty = newTotal
		e.ledger.Append(wo, entity.ChangeQuantityTotalEdit, "declared", formatQty(previous), formatQty(newTotal), actor)
		e.store.put(wo.Clone())
	}

	if newTotal > previous {
		if err := e.capacity.Reserve(wo.Site, newTotal-previous, apply); err != nil {
			e.reject("capacity_exceeded")
			return nil, err
		}
	} else {
		apply()
	}

	e.observe("edit_declared_total")
	e.gaugeCapacity(wo.Site)
	return e.persist.commit(ctx, wo)
}

// Finish completes an active or paused order. It always transitions; when the
// progressed ratio is below the advisory threshold or no attendance was
// recorded, the returned advisory tells the caller to seek confirmation.
func (e *WorkOrderLifecycle) Finish(ctx context.Context, id, actor string) (*entity.WorkOrder, *FinishAdvisory, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, nil, err
	}
	if wo.Status != entity.StatusActive && wo.Status != entity.StatusPaused {
		e.reject("invalid_transition")
		return nil, nil, &domain.TransitionError{Command: "finish", From: wo.Status}
	}

	ts := e.now()
	if open := wo.OpenPause(); open != nil {
		open.EndedAt = &ts
	}
	prev := wo.Status
	wo.Status = entity.StatusFinished
	wo.FinishedAt = &ts
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(prev), string(entity.StatusFinished), actor)

	e.observe("finish")
	e.gaugeCapacity(wo.Site)
	snapshot, err := e.persist.commit(ctx, wo)
	return snapshot, e.advisoryFor(wo), err
}

// CheckFinish reports the advisory Finish would surface for the order's
// current state, without transitioning. Callers use it to ask for
// confirmation up front.
func (e *WorkOrderLifecycle) CheckFinish(id string) (*FinishAdvisory, error) {
	wo, ok := e.store.get(id)
	if !ok || wo.Deleted {
		return nil, domain.ErrNotFound
	}
	return e.advisoryFor(wo), nil
}

// Cancel aborts a non-terminal order, releasing its capacity reservation and
// all crew assignments.
func (e *WorkOrderLifecycle) Cancel(ctx context.Context, id, actor string) (*entity.WorkOrder, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if wo.Status.Terminal() {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: "cancel", From: wo.Status}
	}

	ts := e.now()
	if open := wo.OpenPause(); open != nil {
		open.EndedAt = &ts
	}
	prev := wo.Status
	wo.Status = entity.StatusCancelled
	wo.Crew = nil
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(prev), string(entity.StatusCancelled), actor)

	e.observe("cancel")
	e.gaugeCapacity(wo.Site)
	return e.persist.commit(ctx, wo)
}

// Get returns a snapshot of one order. Soft-deleted orders are hidden until
// undone.
func (e *WorkOrderLifecycle) Get(id string) (*entity.WorkOrder, error) {
	wo, ok := e.store.get(id)
	if !ok || wo.Deleted {
		return nil, domain.ErrNotFound
	}
	return wo, nil
}

// ListBySite returns snapshots of the site's orders, optionally filtered by
// status.
func (e *WorkOrderLifecycle) ListBySite(site string, statuses ...entity.WorkOrderStatus) []*entity.WorkOrder {
	return e.store.bySite(site, statuses...)
}

// History returns the order's audit trail, oldest first. Soft-deleted orders
// are hidden, matching Get.
func (e *WorkOrderLifecycle) History(id string) ([]entity.AuditEntry, error) {
	wo, ok := e.store.get(id)
	if !ok || wo.Deleted {
		return nil, domain.ErrNotFound
	}
	return e.ledger.History(wo), nil
}

// RemainingCapacity returns the site's uncommitted capacity.
func (e *WorkOrderLifecycle) RemainingCapacity(site string) float64 {
	return e.capacity.Remaining(site)
}

// transition applies a plain status change legal from the given statuses.
func (e *WorkOrderLifecycle) transition(ctx context.Context, id, actor, command string, to entity.WorkOrderStatus, from ...entity.WorkOrderStatus) (*entity.WorkOrder, error) {
	unlock := e.orderLocks.lock(id)
	defer unlock()

	wo, err := e.mutable(id)
	if err != nil {
		return nil, err
	}
	if !statusIn(wo.Status, from) {
		e.reject("invalid_transition")
		return nil, &domain.TransitionError{Command: command, From: wo.Status}
	}

	prev := wo.Status
	wo.Status = to
	e.ledger.Append(wo, entity.ChangeStatus, "status", string(prev), string(to), actor)
	e.observe(strings.ReplaceAll(command, " ", "_"))
	return e.persist.commit(ctx, wo)
}

// mutable fetches the order for a command; callers hold the order lock.
func (e *WorkOrderLifecycle) mutable(id string) (*entity.WorkOrder, error) {
	wo, ok := e.store.get(id)
	if !ok || wo.Deleted {
		return nil, domain.ErrNotFound
	}
	return wo, nil
}

func (e *WorkOrderLifecycle) advisoryFor(wo *entity.WorkOrder) *FinishAdvisory {
	ratio := 1.0
	if wo.DeclaredQty > 0 {
		ratio = wo.ProgressedQty / wo.DeclaredQty
	}
	adv := &FinishAdvisory{
		LowProgress:     ratio < e.cfg.AdvisoryThreshold,
		EmptyAttendance: len(wo.Attendance) == 0,
		ProgressRatio:   ratio,
		Threshold:       e.cfg.AdvisoryThreshold,
	}
	if !adv.LowProgress && !adv.EmptyAttendance {
		return nil
	}
	return adv
}

func (e *WorkOrderLifecycle) observe(command string) {
	if e.mtr != nil {
		e.mtr.CommandsTotal.WithLabelValues(command).Inc()
	}
}

func (e *WorkOrderLifecycle) reject(reason string) {
	if e.mtr != nil {
		e.mtr.RejectionsTotal.WithLabelValues(reason).Inc()
	}
}

func (e *WorkOrderLifecycle) gaugeCapacity(site string) {
	if e.mtr != nil {
		e.mtr.CommittedCapacity.WithLabelValues(site).Set(e.store.committedBySite(site))
	}
}

// persister swaps the mutated document into the authoritative view and pushes
// it to the gateway. A failed save keeps the mutation applied, flags the order
// unsynced and surfaces the failure; the audit trail rides inside the document
// and is re-sent on the next successful save.
type persister struct {
	store   *workOrderStore
	gateway repository.WorkOrderRepository
	log     logger.Logger
}

func (p *persister) commit(ctx context.Context, wo *entity.WorkOrder) (*entity.WorkOrder, error) {
	wo.Unsynced = false
	p.store.put(wo)
	if err := p.gateway.Save(ctx, wo.Clone()); err != nil {
		p.log.Error("work order save failed", "orderId", wo.ID, "error", err)
		flagged := wo.Clone()
		flagged.Unsynced = true
		p.store.put(flagged)
		return flagged.Clone(), &domain.PersistenceError{WorkOrderID: wo.ID, Op: "save", Err: err}
	}
	return wo.Clone(), nil
}
