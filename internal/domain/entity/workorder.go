package entity

import "time"

// WorkOrderKind distinguishes loading from unloading jobs.
type WorkOrderKind string

const (
	KindLoad   WorkOrderKind = "load"
	KindUnload WorkOrderKind = "unload"
)

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	StatusScheduled WorkOrderStatus = "scheduled"
	StatusReady     WorkOrderStatus = "ready"
	StatusActive    WorkOrderStatus = "active"
	StatusPaused    WorkOrderStatus = "paused"
	StatusFinished  WorkOrderStatus = "finished"
	StatusCancelled WorkOrderStatus = "cancelled"
)

// Terminal reports whether no transition may leave this status.
func (s WorkOrderStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CountsAgainstCapacity reports whether the order's declared quantity
// is still committed against its site's capacity pool.
func (s WorkOrderStatus) CountsAgainstCapacity() bool {
	switch s {
	case StatusScheduled, StatusReady, StatusActive, StatusPaused:
		return true
	}
	return false
}

// ValidWorkOrderStatus reports whether raw names a known status.
func ValidWorkOrderStatus(raw string) bool {
	switch WorkOrderStatus(raw) {
	case StatusScheduled, StatusReady, StatusActive, StatusPaused, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// PauseInterval is one interruption of an active work order.
// EndedAt is nil while the pause is still open.
type PauseInterval struct {
	Reason    string     `bson:"reason"`
	StartedAt time.Time  `bson:"startedAt"`
	EndedAt   *time.Time `bson:"endedAt,omitempty"`
}

// CrewAssignment is one crew member currently on a work order's roster,
// together with the presence flag derived from the latest attendance outcome.
type CrewAssignment struct {
	CrewMemberID string `bson:"crewMemberId"`
	Name         string `bson:"name"`
	Present      bool   `bson:"present"`
}

// WorkOrder is one schedulable loading or unloading job. It is mutated only
// through lifecycle commands; callers always receive copies.
type WorkOrder struct {
	ID            string             `bson:"_id"`
	Kind          WorkOrderKind      `bson:"kind"`
	Status        WorkOrderStatus    `bson:"status"`
	Site          string             `bson:"site"`
	DeclaredQty   float64            `bson:"declaredQty"`
	ProgressedQty float64            `bson:"progressedQty"`
	Priority      int                `bson:"priority"`
	Notes         string             `bson:"notes"`
	Crew          []CrewAssignment   `bson:"crew"`
	Pauses        []PauseInterval    `bson:"pauses"`
	Attendance    []AttendanceRecord `bson:"attendance"`
	Audit         []AuditEntry       `bson:"audit"`
	ScheduledAt   *time.Time         `bson:"scheduledAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	StartedAt     *time.Time         `bson:"startedAt,omitempty"`
	FinishedAt    *time.Time         `bson:"finishedAt,omitempty"`

	// Deleted marks a soft-deleted order hidden from active views while its
	// grace window runs.
	Deleted   bool       `bson:"deleted"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty"`

	// Unsynced is set when an in-memory mutation could not be persisted; the
	// next successful save clears it.
	Unsynced bool `bson:"unsynced"`
}

// HasCrew reports whether the crew member is on the order's roster.
func (w *WorkOrder) HasCrew(crewMemberID string) bool {
	for _, c := range w.Crew {
		if c.CrewMemberID == crewMemberID {
			return true
		}
	}
	return false
}

// OpenPause returns the most recent unterminated pause interval, or nil.
func (w *WorkOrder) OpenPause() *PauseInterval {
	for i := len(w.Pauses) - 1; i >= 0; i-- {
		if w.Pauses[i].EndedAt == nil {
			return &w.Pauses[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the engine.
func (w *WorkOrder) Clone() *WorkOrder {
	cp := *w
	cp.Crew = append([]CrewAssignment(nil), w.Crew...)
	cp.Pauses = append([]PauseInterval(nil), w.Pauses...)
	cp.Attendance = append([]AttendanceRecord(nil), w.Attendance...)
	cp.Audit = append([]AuditEntry(nil), w.Audit...)
	return &cp
}
