package entity

import "time"

// AttendanceOutcome is the closed set of presence decisions for a crew member
// on a work order.
type AttendanceOutcome string

const (
	OutcomeFullDay        AttendanceOutcome = "full_day"
	OutcomeHalfDay        AttendanceOutcome = "half_day"
	OutcomeAbsent         AttendanceOutcome = "absent"
	OutcomeLateArrival    AttendanceOutcome = "late_arrival"
	OutcomeEarlyDeparture AttendanceOutcome = "early_departure"
)

// ValidAttendanceOutcome reports whether raw names a known outcome.
func ValidAttendanceOutcome(raw string) bool {
	switch AttendanceOutcome(raw) {
	case OutcomeFullDay, OutcomeHalfDay, OutcomeAbsent, OutcomeLateArrival, OutcomeEarlyDeparture:
		return true
	}
	return false
}

// Present reports whether the outcome counts the crew member as present.
func (o AttendanceOutcome) Present() bool {
	return o != OutcomeAbsent
}

// RequiresTimes reports whether the outcome must carry entry and exit times.
// Absences must not carry either.
func (o AttendanceOutcome) RequiresTimes() bool {
	return o != OutcomeAbsent
}

// AttendanceRecord is one immutable presence decision for a crew member on a
// work order. Re-decisions append a new record; history is cumulative.
type AttendanceRecord struct {
	CrewMemberID string            `bson:"crewMemberId"`
	Outcome      AttendanceOutcome `bson:"outcome"`
	EntryTime    *time.Time        `bson:"entryTime,omitempty"`
	ExitTime     *time.Time        `bson:"exitTime,omitempty"`
	Remark       string            `bson:"remark,omitempty"`
	RecordedAt   time.Time         `bson:"recordedAt"`
}
