package usecase

import (
	"context"
	"sync"
	"time"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/pkg/logger"
)

// fakeGateway is a test double for the persistence gateway. It tracks saves
// and hard deletes and can be told to fail.
type fakeGateway struct {
	mu sync.Mutex

	saved       map[string]*entity.WorkOrder
	hardDeleted []string

	// failSave and failHardDelete, when set, make the matching call return
	// them.
	failSave       error
	failHardDelete error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{saved: make(map[string]*entity.WorkOrder)}
}

func (g *fakeGateway) Save(ctx context.Context, order *entity.WorkOrder) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSave != nil {
		return g.failSave
	}
	g.saved[order.ID] = order.Clone()
	return nil
}

func (g *fakeGateway) Load(ctx context.Context, id string) (*entity.WorkOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	wo, ok := g.saved[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return wo.Clone(), nil
}

func (g *fakeGateway) HardDelete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failHardDelete != nil {
		return g.failHardDelete
	}
	delete(g.saved, id)
	g.hardDeleted = append(g.hardDeleted, id)
	return nil
}

func (g *fakeGateway) ListOpen(ctx context.Context) ([]*entity.WorkOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*entity.WorkOrder
	for _, wo := range g.saved {
		if !wo.Deleted && !wo.Status.Terminal() {
			out = append(out, wo.Clone())
		}
	}
	return out, nil
}

func (g *fakeGateway) ListDeleted(ctx context.Context) ([]*entity.WorkOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*entity.WorkOrder
	for _, wo := range g.saved {
		if wo.Deleted {
			out = append(out, wo.Clone())
		}
	}
	return out, nil
}

func (g *fakeGateway) setFailSave(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSave = err
}

func (g *fakeGateway) setFailHardDelete(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failHardDelete = err
}

func (g *fakeGateway) hardDeletedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.hardDeleted...)
}

// fakeCrewRepo is a test double for the roster read view.
type fakeCrewRepo struct {
	mu      sync.Mutex
	members map[string]*entity.CrewMember
}

func newFakeCrewRepo(members ...*entity.CrewMember) *fakeCrewRepo {
	r := &fakeCrewRepo{members: make(map[string]*entity.CrewMember)}
	for _, m := range members {
		r.members[m.ID] = m
	}
	return r
}

func (r *fakeCrewRepo) FindByID(ctx context.Context, id string) (*entity.CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeCrewRepo) ListActive(ctx context.Context) ([]*entity.CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CrewMember
	for _, m := range r.members {
		if m.Active {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func activeMember(id, name string) *entity.CrewMember {
	return &entity.CrewMember{ID: id, Name: name, Active: true}
}

// newTestEngine wires an engine over fakes with a short grace window.
func newTestEngine(caps map[string]float64, crew ...*entity.CrewMember) (*WorkOrderLifecycle, *fakeGateway, *fakeCrewRepo) {
	gateway := newFakeGateway()
	roster := newFakeCrewRepo(crew...)
	engine := NewWorkOrderLifecycle(Config{
		SiteCapacities:    caps,
		GraceWindow:       time.Hour,
		AdvisoryThreshold: 0.9,
	}, gateway, roster, logger.NewNop(), nil)
	return engine, gateway, roster
}

func testTimes() (time.Time, time.Time) {
	entry := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	return entry, entry.Add(9 * time.Hour)
}

func mustCreate(engine *WorkOrderLifecycle, qty float64, site string) *entity.WorkOrder {
	wo, err := engine.Create(context.Background(), entity.KindLoad, qty, site, nil, 0, "", "tester")
	if err != nil {
		panic(err)
	}
	return wo
}
