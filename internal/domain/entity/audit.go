package entity

import "time"

// ChangeCategory classifies one field-level change in the audit trail.
type ChangeCategory string

const (
	ChangeQuantityAdjust    ChangeCategory = "quantity-adjust"
	ChangeQuantityTotalEdit ChangeCategory = "quantity-total-edit"
	ChangeCrewAdd           ChangeCategory = "crew-add"
	ChangeCrewRemove        ChangeCategory = "crew-remove"
	ChangeStatus            ChangeCategory = "status-change"
	ChangeAttendance        ChangeCategory = "attendance-change"
)

// AuditEntry is one immutable record of a field-level change on a work order.
// Seq is a per-order monotonic sequence assigned at append time; it orders
// entries even when wall-clock timestamps collide.
type AuditEntry struct {
	Seq      int64          `bson:"seq"`
	Category ChangeCategory `bson:"category"`
	Field    string         `bson:"field"`
	Previous string         `bson:"previous"`
	Next     string         `bson:"next"`
	Actor    string         `bson:"actor"`
	At       time.Time      `bson:"at"`
}
