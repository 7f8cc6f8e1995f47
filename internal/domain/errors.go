package domain

import (
	"errors"
	"fmt"

	"workorder-service/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a work order or crew member doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a lifecycle command is illegal
	// from the order's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCapacityExceeded is returned when admission control rejects a
	// reservation against a site's capacity pool.
	ErrCapacityExceeded = errors.New("site capacity exceeded")

	// ErrBelowProgressed is returned when a declared-total edit would drop
	// below the quantity already progressed.
	ErrBelowProgressed = errors.New("declared total below progressed quantity")

	// ErrInvalidAttendancePayload is returned when a presence record is
	// malformed for its outcome kind.
	ErrInvalidAttendancePayload = errors.New("invalid attendance payload")

	// ErrPersistenceFailure is returned when the storage gateway failed; the
	// in-memory mutation, if any, stays applied and the order is flagged
	// unsynced.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrEmptyPauseReason is returned when pause is requested without a reason.
	ErrEmptyPauseReason = errors.New("pause reason must not be empty")

	// ErrInactiveCrewMember is returned when assigning a roster member whose
	// active flag is off.
	ErrInactiveCrewMember = errors.New("crew member is inactive")

	// ErrInvalidQuantity is returned when a declared quantity is not positive.
	ErrInvalidQuantity = errors.New("declared quantity must be positive")

	// ErrCrewConflict is returned when starting an order would put a crew
	// member on two simultaneously active orders. The caller resolves it by
	// revoking or reassigning before retrying.
	ErrCrewConflict = errors.New("crew member already on an active work order")
)

// CrewConflictError identifies which member and order block a start.
type CrewConflictError struct {
	CrewMemberID string
	OtherOrderID string
}

func (e *CrewConflictError) Error() string {
	return fmt.Sprintf("crew member %s is already on active work order %s", e.CrewMemberID, e.OtherOrderID)
}

func (e *CrewConflictError) Unwrap() error { return ErrCrewConflict }

// TransitionError reports the command that was illegal from a status.
type TransitionError struct {
	Command string
	From    entity.WorkOrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a work order in status %q", e.Command, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CapacityError carries the caller-facing figures of an admission rejection.
type CapacityError struct {
	Site      string
	Remaining float64
	Requested float64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("site %q capacity exceeded: requested %.2f, remaining %.2f", e.Site, e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// PersistenceError wraps a gateway failure with the affected order id.
type PersistenceError struct {
	WorkOrderID string
	Op          string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for work order %s: %v", e.Op, e.WorkOrderID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistenceFailure }
