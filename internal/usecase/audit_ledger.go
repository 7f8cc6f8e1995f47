package usecase

import (
	"strconv"
	"time"

	"workorder-service/internal/domain/entity"
)

// AuditLedger builds and appends the immutable change trail carried by each
// work order. Entries are ordered by a per-order sequence number assigned at
// append time, so ordering stays stable even when timestamps collide.
//
// Append must be called while the caller holds the order's command lock; the
// entry becomes visible together with the mutation when the order document is
// swapped into the store.
type AuditLedger struct {
	now func() time.Time
}

// NewAuditLedger creates the ledger component.
func NewAuditLedger() *AuditLedger {
	return &AuditLedger{now: time.Now}
}

// Append records one field-level change on the order. O(1), append-only.
func (l *AuditLedger) Append(wo *entity.WorkOrder, category entity.ChangeCategory, field, previous, next, actor string) entity.AuditEntry {
	var seq int64 = 1
	if n := len(wo.Audit); n > 0 {
		seq = wo.Audit[n-1].Seq + 1
	}
	entry := entity.AuditEntry{
		Seq:      seq,
		Category: category,
		Field:    field,
		Previous: previous,
		Next:     next,
		Actor:    actor,
		At:       l.now(),
	}
	wo.Audit = append(wo.Audit, entry)
	return entry
}

// History returns a copy of the order's entries, oldest first. Callers that
// want newest-first reverse at presentation time.
func (l *AuditLedger) History(wo *entity.WorkOrder) []entity.AuditEntry {
	return append([]entity.AuditEntry(nil), wo.Audit...)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
