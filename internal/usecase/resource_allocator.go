package usecase

import (
	"context"
	"sort"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/domain/repository"
	"workorder-service/pkg/logger"
)

// ConflictDetected is the advisory outcome of an assignment that would pull a
// crew member off another active work order. It is not a failure: no mutation
// has happened, and the caller decides whether to proceed via ConfirmReassign.
type ConflictDetected struct {
	CrewMemberID       string
	ConflictingOrderID string
}

// ResourceAllocator assigns and revokes crew members on work orders, detecting
// cross-order conflicts. Operations on the same crew member are serialized by
// a per-member mutex; no lock is held across the caller's confirmation
// decision, so ConfirmReassign revalidates the conflict from scratch.
type ResourceAllocator struct {
	store      *workOrderStore
	ledger     *AuditLedger
	crewRepo   repository.CrewRepository
	crewLocks  *keyedMutex
	orderLocks *keyedMutex
	persist    *persister
	log        logger.Logger
}

func newResourceAllocator(store *workOrderStore, ledger *AuditLedger, crewRepo repository.CrewRepository, orderLocks *keyedMutex, persist *persister, log logger.Logger) *ResourceAllocator {
	return &ResourceAllocator{
		store:      store,
		ledger:     ledger,
		crewRepo:   crewRepo,
		crewLocks:  newKeyedMutex(),
		orderLocks: orderLocks,
		persist:    persist,
		log:        log,
	}
}

// Assign puts a crew member on the order's roster. If the member is currently
// on a different active order the call mutates nothing and returns a
// ConflictDetected for the caller to confirm. Assigning a member already on
// the roster is a no-op.
func (a *ResourceAllocator) Assign(ctx context.Context, orderID, crewMemberID, actor string) (*entity.WorkOrder, *ConflictDetected, error) {
	unlockCrew := a.crewLocks.lock(crewMemberID)
	defer unlockCrew()

	member, err := a.lookupMember(ctx, crewMemberID)
	if err != nil {
		return nil, nil, err
	}
	if wo, ok := a.store.get(orderID); !ok || wo.Deleted {
		return nil, nil, domain.ErrNotFound
	}

	if other := a.store.activeOrderWithCrew(crewMemberID, orderID); other != nil {
		a.log.Info("crew assignment conflict detected",
			"crewMemberId", crewMemberID, "orderId", orderID, "conflictingOrderId", other.ID)
		return nil, &ConflictDetected{CrewMemberID: crewMemberID, ConflictingOrderID: other.ID}, nil
	}

	unlockOrder := a.orderLocks.lock(orderID)
	defer unlockOrder()
	return a.addLocked(ctx, orderID, member, actor)
}

// ConfirmReassign resolves a previously detected conflict: it removes the crew
// member from the conflicting active order, logging a crew-remove entry there,
// then adds the member to the target order with a crew-add entry. The conflict
// is revalidated because the world may have changed since detection; if it is
// gone, the call degrades to a plain assignment.
func (a *ResourceAllocator) ConfirmReassign(ctx context.Context, orderID, crewMemberID, actor string) (*entity.WorkOrder, error) {
	unlockCrew := a.crewLocks.lock(crewMemberID)
	defer unlockCrew()

	member, err := a.lookupMember(ctx, crewMemberID)
	if err != nil {
		return nil, err
	}

	other := a.store.activeOrderWithCrew(crewMemberID, orderID)
	if other == nil {
		unlockOrder := a.orderLocks.lock(orderID)
		defer unlockOrder()
		wo, _, err := a.addLocked(ctx, orderID, member, actor)
		return wo, err
	}

	unlock := a.lockOrders(orderID, other.ID)
	defer unlock()

	// Validate the target before touching the conflicting order, so a bad
	// target cannot leave the crew member removed but not reassigned.
	target, ok := a.store.get(orderID)
	if !ok || target.Deleted {
		return nil, domain.ErrNotFound
	}
	if target.Status.Terminal() {
		return nil, &domain.TransitionError{Command: "assign crew to", From: target.Status}
	}

	conflicting, ok := a.store.get(other.ID)
	if ok && conflicting.HasCrew(crewMemberID) {
		removeCrew(conflicting, crewMemberID)
		a.ledger.Append(conflicting, entity.ChangeCrewRemove, "crew", crewMemberID, "", actor)
		if _, err := a.persist.commit(ctx, conflicting); err != nil {
			return nil, err
		}
	}

	wo, _, err := a.addLocked(ctx, orderID, member, actor)
	return wo, err
}

// Revoke removes a crew member from the order unconditionally.
func (a *ResourceAllocator) Revoke(ctx context.Context, orderID, crewMemberID, actor string) (*entity.WorkOrder, error) {
	unlockCrew := a.crewLocks.lock(crewMemberID)
	defer unlockCrew()
	unlockOrder := a.orderLocks.lock(orderID)
	defer unlockOrder()

	wo, ok := a.store.get(orderID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !wo.HasCrew(crewMemberID) {
		return nil, domain.ErrNotFound
	}

	removeCrew(wo, crewMemberID)
	a.ledger.Append(wo, entity.ChangeCrewRemove, "crew", crewMemberID, "", actor)
	return a.persist.commit(ctx, wo)
}

// addLocked validates the target order and appends the assignment. Callers
// hold the crew-member and order locks.
func (a *ResourceAllocator) addLocked(ctx context.Context, orderID string, member *entity.CrewMember, actor string) (*entity.WorkOrder, *ConflictDetected, error) {
	wo, ok := a.store.get(orderID)
	if !ok || wo.Deleted {
		return nil, nil, domain.ErrNotFound
	}
	if wo.Status.Terminal() {
		return nil, nil, &domain.TransitionError{Command: "assign crew to", From: wo.Status}
	}
	if wo.HasCrew(member.ID) {
		return wo, nil, nil
	}

	wo.Crew = append(wo.Crew, entity.CrewAssignment{
		CrewMemberID: member.ID,
		Name:         member.Name,
		Present:      false,
	})
	a.ledger.Append(wo, entity.ChangeCrewAdd, "crew", "", member.ID, actor)
	snapshot, err := a.persist.commit(ctx, wo)
	return snapshot, nil, err
}

func (a *ResourceAllocator) lookupMember(ctx context.Context, crewMemberID string) (*entity.CrewMember, error) {
	member, err := a.crewRepo.FindByID(ctx, crewMemberID)
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, domain.ErrInactiveCrewMember
	}
	return member, nil
}

// lockOrders acquires both order locks in id order to avoid lock cycles.
func (a *ResourceAllocator) lockOrders(ids ...string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	unlocks := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		unlocks = append(unlocks, a.orderLocks.lock(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func removeCrew(wo *entity.WorkOrder, crewMemberID string) {
	for i, c := range wo.Crew {
		if c.CrewMemberID == crewMemberID {
			wo.Crew = append(wo.Crew[:i], wo.Crew[i+1:]...)
			return
		}
	}
}
