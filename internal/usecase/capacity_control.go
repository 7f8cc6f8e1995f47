package usecase

import (
	"math"

	"workorder-service/internal/domain"
)

// CapacityAdmissionControl gates creation and growth of work orders against a
// per-site capacity pool. The committed quantity is never stored: it is
// recomputed from the live order view under the site's mutex, so capacity is
// released automatically the moment an order turns terminal.
type CapacityAdmissionControl struct {
	capacities map[string]float64
	store      *workOrderStore
	siteLocks  *keyedMutex
}

// NewCapacityAdmissionControl creates the admission controller. Sites absent
// from capacities carry no ceiling.
func NewCapacityAdmissionControl(capacities map[string]float64, store *workOrderStore) *CapacityAdmissionControl {
	caps := make(map[string]float64, len(capacities))
	for site, qty := range capacities {
		caps[site] = qty
	}
	return &CapacityAdmissionControl{
		capacities: caps,
		store:      store,
		siteLocks:  newKeyedMutex(),
	}
}

// Remaining returns the site's uncommitted capacity.
func (c *CapacityAdmissionControl) Remaining(site string) float64 {
	unlock := c.siteLocks.lock(site)
	defer unlock()
	return c.remainingLocked(site)
}

// Reserve admits qty against the site's remaining capacity and, on success,
// runs commit while still holding the site mutex. The commit closure must make
// the reserving order (or its grown total) visible in the store, so concurrent
// reservations at the same site observe it.
func (c *CapacityAdmissionControl) Reserve(site string, qty float64, commit func()) error {
	unlock := c.siteLocks.lock(site)
	defer unlock()

	remaining := c.remainingLocked(site)
	if qty > remaining {
		return &domain.CapacityError{Site: site, Remaining: remaining, Requested: qty}
	}
	commit()
	return nil
}

func (c *CapacityAdmissionControl) remainingLocked(site string) float64 {
	total, ok := c.capacities[site]
	if !ok {
		return math.Inf(1)
	}
	return total - c.store.committedBySite(site)
}
