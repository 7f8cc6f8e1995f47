package repository

import (
	"context"

	"workorder-service/internal/domain/entity"
)

// WorkOrderRepository is the persistence gateway for work orders. The engine's
// in-memory state is authoritative; the gateway is kept eventually consistent
// through saves and must never be the source of truth for validation.
type WorkOrderRepository interface {
	// Save upserts the full work-order document, audit trail included.
	Save(ctx context.Context, order *entity.WorkOrder) error
	// Load fetches one order by id, soft-deleted ones included.
	Load(ctx context.Context, id string) (*entity.WorkOrder, error)
	// HardDelete irreversibly removes the order. Called only once a
	// soft-delete grace window has elapsed.
	HardDelete(ctx context.Context, id string) error
	// ListOpen returns every non-terminal, non-deleted order. Used to rebuild
	// the authoritative view on startup; orders at sites without a configured
	// ceiling are included.
	ListOpen(ctx context.Context) ([]*entity.WorkOrder, error)
	// ListDeleted returns soft-deleted orders not yet hard-removed, used to
	// reconcile grace windows that expired while the process was down.
	ListDeleted(ctx context.Context) ([]*entity.WorkOrder, error)
}
