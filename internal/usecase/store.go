package usecase

import (
	"sync"

	"workorder-service/internal/domain/entity"
)

// workOrderStore is the authoritative in-memory view of all work orders.
// Reads hand out clones; writes swap whole documents so a mutation and its
// audit entry become visible atomically.
type workOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*entity.WorkOrder
}

func newWorkOrderStore() *workOrderStore {
	return &workOrderStore{orders: make(map[string]*entity.WorkOrder)}
}

func (s *workOrderStore) get(id string) (*entity.WorkOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wo, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return wo.Clone(), true
}

func (s *workOrderStore) put(wo *entity.WorkOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[wo.ID] = wo
}

func (s *workOrderStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

// bySite returns clones of the non-deleted orders at a site, optionally
// filtered by status.
func (s *workOrderStore) bySite(site string, statuses ...entity.WorkOrderStatus) []*entity.WorkOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.WorkOrder
	for _, wo := range s.orders {
		if wo.Site != site || wo.Deleted {
			continue
		}
		if len(statuses) > 0 && !statusIn(wo.Status, statuses) {
			continue
		}
		out = append(out, wo.Clone())
	}
	return out
}

// committedBySite sums the declared quantity of every order still counting
// against the site's capacity pool.
func (s *workOrderStore) committedBySite(site string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	for _, wo := range s.orders {
		if wo.Site == site && !wo.Deleted && wo.Status.CountsAgainstCapacity() {
			sum += wo.DeclaredQty
		}
	}
	return sum
}

// activeOrderWithCrew returns a clone of the active order carrying the crew
// member, excluding the given order id. Used for conflict detection.
func (s *workOrderStore) activeOrderWithCrew(crewMemberID, excludeOrderID string) *entity.WorkOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, wo := range s.orders {
		if wo.ID == excludeOrderID || wo.Deleted || wo.Status != entity.StatusActive {
			continue
		}
		if wo.HasCrew(crewMemberID) {
			return wo.Clone()
		}
	}
	return nil
}

func statusIn(s entity.WorkOrderStatus, set []entity.WorkOrderStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// keyedMutex serializes operations per key (work-order id, site, crew member)
// without a lock spanning unrelated keys. Mutexes are created on first use and
// kept for the process lifetime; the key space is small.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
