package usecase

import (
	"context"
	"fmt"
	"time"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/pkg/logger"
)

// AttendanceTracker records structured presence outcomes for crew members on a
// work order. A re-decision appends a new record rather than overwriting the
// old one; the assignment's presence flag always reflects the latest outcome.
type AttendanceTracker struct {
	store      *workOrderStore
	ledger     *AuditLedger
	orderLocks *keyedMutex
	persist    *persister
	log        logger.Logger
	now        func() time.Time
}

func newAttendanceTracker(store *workOrderStore, ledger *AuditLedger, orderLocks *keyedMutex, persist *persister, log logger.Logger) *AttendanceTracker {
	return &AttendanceTracker{
		store:      store,
		ledger:     ledger,
		orderLocks: orderLocks,
		persist:    persist,
		log:        log,
		now:        time.Now,
	}
}

// Record validates and appends one presence decision. Absences must not carry
// entry or exit times; every other outcome requires both.
func (t *AttendanceTracker) Record(ctx context.Context, orderID, crewMemberID string, outcome entity.AttendanceOutcome, entryTime, exitTime *time.Time, remark, actor string) (*entity.WorkOrder, error) {
	if err := validateAttendance(outcome, entryTime, exitTime); err != nil {
		return nil, err
	}

	unlock := t.orderLocks.lock(orderID)
	defer unlock()

	wo, ok := t.store.get(orderID)
	if !ok || wo.Deleted {
		return nil, domain.ErrNotFound
	}
	if !wo.HasCrew(crewMemberID) {
		return nil, domain.ErrNotFound
	}

	previous := latestOutcome(wo, crewMemberID)
	record := entity.AttendanceRecord{
		CrewMemberID: crewMemberID,
		Outcome:      outcome,
		EntryTime:    entryTime,
		ExitTime:     exitTime,
		Remark:       remark,
		RecordedAt:   t.now(),
	}
	wo.Attendance = append(wo.Attendance, record)

	for i := range wo.Crew {
		if wo.Crew[i].CrewMemberID == crewMemberID {
			wo.Crew[i].Present = outcome.Present()
		}
	}

	t.ledger.Append(wo, entity.ChangeAttendance, "attendance/"+crewMemberID, string(previous), string(outcome), actor)
	return t.persist.commit(ctx, wo)
}

func validateAttendance(outcome entity.AttendanceOutcome, entryTime, exitTime *time.Time) error {
	if !entity.ValidAttendanceOutcome(string(outcome)) {
		return fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidAttendancePayload, outcome)
	}
	if outcome.RequiresTimes() {
		if entryTime == nil || exitTime == nil {
			return fmt.Errorf("%w: outcome %q requires entry and exit times", domain.ErrInvalidAttendancePayload, outcome)
		}
		return nil
	}
	if entryTime != nil || exitTime != nil {
		return fmt.Errorf("%w: outcome %q must not carry entry or exit times", domain.ErrInvalidAttendancePayload, outcome)
	}
	return nil
}

func latestOutcome(wo *entity.WorkOrder, crewMemberID string) entity.AttendanceOutcome {
	for i := len(wo.Attendance) - 1; i >= 0; i-- {
		if wo.Attendance[i].CrewMemberID == crewMemberID {
			return wo.Attendance[i].Outcome
		}
	}
	return ""
}
