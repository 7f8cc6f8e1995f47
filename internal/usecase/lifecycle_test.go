package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/pkg/logger"
)

func TestCreateReservesCapacity(t *testing.T) {
	engine, _, _ := newTestEngine(map[string]float64{"dock-a": 10})
	ctx := context.Background()

	wo, err := engine.Create(ctx, entity.KindLoad, 10, "dock-a", nil, 0, "", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if wo.Status != entity.StatusScheduled {
		t.Errorf("status = %q, want scheduled", wo.Status)
	}
	if got := engine.RemainingCapacity("dock-a"); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}

	_, err = engine.Create(ctx, entity.KindUnload, 1, "dock-a", nil, 0, "", "tester")
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("second create err = %v, want CapacityError", err)
	}
	if capErr.Remaining != 0 || capErr.Requested != 1 {
		t.Errorf("CapacityError = remaining %v requested %v, want 0 and 1", capErr.Remaining, capErr.Requested)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	if _, err := engine.Create(ctx, entity.KindLoad, 0, "dock-a", nil, 0, "", "tester"); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("zero quantity err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := engine.Create(ctx, entity.KindLoad, -3, "dock-a", nil, 0, "", "tester"); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("negative quantity err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := engine.Create(ctx, "sideload", 5, "dock-a", nil, 0, "", "tester"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestStartTransitions(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	started, err := engine.Start(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != entity.StatusActive {
		t.Errorf("status = %q, want active", started.Status)
	}
	if started.StartedAt == nil {
		t.Error("StartedAt not set")
	}

	if _, err := engine.Start(ctx, wo.ID, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second start err = %v, want ErrInvalidTransition", err)
	}
	if _, err := engine.Start(ctx, "nope", "tester"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestMarkReadyThenStart(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	ready, err := engine.MarkReady(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if ready.Status != entity.StatusReady {
		t.Errorf("status = %q, want ready", ready.Status)
	}
	if _, err := engine.MarkReady(ctx, wo.ID, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("double mark ready err = %v, want ErrInvalidTransition", err)
	}
	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start from ready: %v", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	if _, err := engine.Pause(ctx, wo.ID, "lunch", "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("pause from scheduled err = %v, want ErrInvalidTransition", err)
	}

	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.Pause(ctx, wo.ID, "  ", "tester"); !errors.Is(err, domain.ErrEmptyPauseReason) {
		t.Errorf("empty reason err = %v, want ErrEmptyPauseReason", err)
	}

	paused, err := engine.Pause(ctx, wo.ID, "rain", "tester")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != entity.StatusPaused {
		t.Errorf("status = %q, want paused", paused.Status)
	}
	open := paused.OpenPause()
	if open == nil || open.Reason != "rain" {
		t.Fatalf("open pause = %+v, want interval with reason rain", open)
	}

	resumed, err := engine.Resume(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != entity.StatusActive {
		t.Errorf("status = %q, want active", resumed.Status)
	}
	if resumed.OpenPause() != nil {
		t.Error("pause interval not closed on resume")
	}
	if _, err := engine.Resume(ctx, wo.ID, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("resume while active err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdjustProgressClampsAndAuditsAppliedValue(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	if _, err := engine.AdjustProgress(ctx, wo.ID, 1, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("adjust before start err = %v, want ErrInvalidTransition", err)
	}

	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AdjustProgress(ctx, wo.ID, 3, "tester"); err != nil {
		t.Fatalf("adjust +3: %v", err)
	}

	after, err := engine.AdjustProgress(ctx, wo.ID, 100, "tester")
	if err != nil {
		t.Fatalf("adjust +100: %v", err)
	}
	if after.ProgressedQty != 5 {
		t.Errorf("progressed = %v, want clamped to 5", after.ProgressedQty)
	}

	history, err := engine.History(wo.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	last := history[len(history)-1]
	if last.Category != entity.ChangeQuantityAdjust || last.Previous != "3" || last.Next != "5" {
		t.Errorf("audit entry = %+v, want quantity-adjust 3 -> 5", last)
	}

	under, err := engine.AdjustProgress(ctx, wo.ID, -100, "tester")
	if err != nil {
		t.Fatalf("adjust -100: %v", err)
	}
	if under.ProgressedQty != 0 {
		t.Errorf("progressed = %v, want clamped to 0", under.ProgressedQty)
	}
}

func TestEditDeclaredTotalGuards(t *testing.T) {
	engine, _, _ := newTestEngine(map[string]float64{"dock-a": 10})
	ctx := context.Background()

	wo := mustCreate(engine, 6, "dock-a")
	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AdjustProgress(ctx, wo.ID, 3, "tester"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	if _, err := engine.EditDeclaredTotal(ctx, wo.ID, 2, "tester"); !errors.Is(err, domain.ErrBelowProgressed) {
		t.Errorf("edit below progressed err = %v, want ErrBelowProgressed", err)
	}
	if got, _ := engine.Get(wo.ID); got.DeclaredQty != 6 {
		t.Errorf("declared after rejected edit = %v, want unchanged 6", got.DeclaredQty)
	}

	mustCreate(engine, 4, "dock-a")
	if _, err := engine.EditDeclaredTotal(ctx, wo.ID, 8, "tester"); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Errorf("edit beyond capacity err = %v, want ErrCapacityExceeded", err)
	}

	edited, err := engine.EditDeclaredTotal(ctx, wo.ID, 5, "tester")
	if err != nil {
		t.Fatalf("edit to 5: %v", err)
	}
	if edited.DeclaredQty != 5 {
		t.Errorf("declared = %v, want 5", edited.DeclaredQty)
	}
	if got := engine.RemainingCapacity("dock-a"); got != 1 {
		t.Errorf("remaining = %v, want 1", got)
	}
}

func TestFinishAdvisory(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	wo := mustCreate(engine, 10, "dock-a")
	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AdjustProgress(ctx, wo.ID, 1, "tester"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	advisory, err := engine.CheckFinish(wo.ID)
	if err != nil {
		t.Fatalf("check finish: %v", err)
	}
	if advisory == nil || !advisory.LowProgress || !advisory.EmptyAttendance {
		t.Fatalf("advisory = %+v, want low progress and empty attendance", advisory)
	}

	finished, advisory, err := engine.Finish(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.Status != entity.StatusFinished || finished.FinishedAt == nil {
		t.Errorf("finished order = status %q finishedAt %v", finished.Status, finished.FinishedAt)
	}
	if advisory == nil || !advisory.LowProgress {
		t.Errorf("finish advisory = %+v, want low progress flagged", advisory)
	}
}

func TestFinishWithoutAdvisory(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	wo := mustCreate(engine, 10, "dock-a")
	if _, _, err := engine.Allocator().Assign(ctx, wo.ID, "cm-1", "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AdjustProgress(ctx, wo.ID, 9.5, "tester"); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	entry, exit := testTimes()
	if _, err := engine.Attendance().Record(ctx, wo.ID, "cm-1", entity.OutcomeFullDay, &entry, &exit, "", "tester"); err != nil {
		t.Fatalf("attendance: %v", err)
	}

	_, advisory, err := engine.Finish(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if advisory != nil {
		t.Errorf("advisory = %+v, want nil", advisory)
	}
}

func TestFinishFromPausedClosesInterval(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	if _, err := engine.Start(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.Pause(ctx, wo.ID, "shift change", "tester"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	finished, _, err := engine.Finish(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.OpenPause() != nil {
		t.Error("open pause survived finish")
	}

	if _, _, err := engine.Finish(ctx, wo.ID, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("finish of finished err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelReleasesCapacityAndCrew(t *testing.T) {
	engine, _, _ := newTestEngine(map[string]float64{"dock-a": 10}, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	wo := mustCreate(engine, 10, "dock-a")
	if _, _, err := engine.Allocator().Assign(ctx, wo.ID, "cm-1", "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	cancelled, err := engine.Cancel(ctx, wo.ID, "tester")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
	if len(cancelled.Crew) != 0 {
		t.Errorf("crew = %v, want released", cancelled.Crew)
	}
	if got := engine.RemainingCapacity("dock-a"); got != 10 {
		t.Errorf("remaining = %v, want full 10", got)
	}
	if _, err := engine.Cancel(ctx, wo.ID, "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancel of cancelled err = %v, want ErrInvalidTransition", err)
	}
}

func TestStartBlockedByCrewConflict(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	a := mustCreate(engine, 5, "dock-a")
	b := mustCreate(engine, 5, "dock-a")
	if _, _, err := engine.Allocator().Assign(ctx, a.ID, "cm-1", "tester"); err != nil {
		t.Fatalf("assign to a: %v", err)
	}
	if _, _, err := engine.Allocator().Assign(ctx, b.ID, "cm-1", "tester"); err != nil {
		t.Fatalf("assign to b: %v", err)
	}

	if _, err := engine.Start(ctx, a.ID, "tester"); err != nil {
		t.Fatalf("start a: %v", err)
	}

	_, err := engine.Start(ctx, b.ID, "tester")
	var conflict *domain.CrewConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("start b err = %v, want CrewConflictError", err)
	}
	if conflict.CrewMemberID != "cm-1" || conflict.OtherOrderID != a.ID {
		t.Errorf("conflict = %+v, want cm-1 on order a", conflict)
	}
}

func TestEveryMutationAppendsOneAuditEntry(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	steps := []func() error{
		func() error { _, err := engine.Start(ctx, wo.ID, "tester"); return err },
		func() error { _, err := engine.Pause(ctx, wo.ID, "rain", "tester"); return err },
		func() error { _, err := engine.Resume(ctx, wo.ID, "tester"); return err },
		func() error { _, err := engine.AdjustProgress(ctx, wo.ID, 2, "tester"); return err },
	}
	for i, step := range steps {
		before, _ := engine.History(wo.ID)
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		after, _ := engine.History(wo.ID)
		if len(after) != len(before)+1 {
			t.Fatalf("step %d: history grew %d -> %d, want exactly one entry", i, len(before), len(after))
		}
	}

	history, _ := engine.History(wo.ID)
	for i, e := range history {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestSaveFailureFlagsUnsynced(t *testing.T) {
	engine, gateway, _ := newTestEngine(nil)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")

	gateway.setFailSave(errors.New("mongo down"))
	snapshot, err := engine.Start(ctx, wo.ID, "tester")
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("start err = %v, want ErrPersistenceFailure", err)
	}
	if snapshot == nil || snapshot.Status != entity.StatusActive {
		t.Fatalf("snapshot = %+v, want applied active mutation", snapshot)
	}
	if !snapshot.Unsynced {
		t.Error("snapshot not flagged unsynced")
	}
	if got, _ := engine.Get(wo.ID); !got.Unsynced {
		t.Error("stored order not flagged unsynced")
	}

	gateway.setFailSave(nil)
	if _, err := engine.Pause(ctx, wo.ID, "rain", "tester"); err != nil {
		t.Fatalf("pause after recovery: %v", err)
	}
	if got, _ := engine.Get(wo.ID); got.Unsynced {
		t.Error("unsynced flag not cleared after successful save")
	}
}

func TestConcurrentCreatesRespectCapacity(t *testing.T) {
	engine, _, _ := newTestEngine(map[string]float64{"dock-a": 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Create(ctx, entity.KindLoad, 10, "dock-a", nil, 0, "", "tester")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 10 || rejected != 10 {
		t.Errorf("admitted %d rejected %d, want 10 and 10", ok, rejected)
	}
	if got := engine.RemainingCapacity("dock-a"); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}
}

func TestListBySiteFiltersStatus(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	ctx := context.Background()

	a := mustCreate(engine, 5, "dock-a")
	mustCreate(engine, 5, "dock-a")
	mustCreate(engine, 5, "dock-b")
	if _, err := engine.Start(ctx, a.ID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := len(engine.ListBySite("dock-a")); got != 2 {
		t.Errorf("dock-a orders = %d, want 2", got)
	}
	active := engine.ListBySite("dock-a", entity.StatusActive)
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("active orders = %+v, want just order a", active)
	}
	if got := len(engine.ListBySite("dock-c")); got != 0 {
		t.Errorf("dock-c orders = %d, want 0", got)
	}
}

func TestHydrateRestoresOrdersAtUncappedSites(t *testing.T) {
	gateway := newFakeGateway()
	roster := newFakeCrewRepo()
	cfg := Config{
		SiteCapacities:    map[string]float64{"dock-a": 100},
		GraceWindow:       time.Hour,
		AdvisoryThreshold: 0.9,
	}

	first := NewWorkOrderLifecycle(cfg, gateway, roster, logger.NewNop(), nil)
	capped := mustCreate(first, 5, "dock-a")
	uncapped := mustCreate(first, 5, "dock-x")

	// A fresh engine over the same gateway sees both, ceiling or not.
	second := NewWorkOrderLifecycle(cfg, gateway, roster, logger.NewNop(), nil)
	if err := second.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	for _, id := range []string{capped.ID, uncapped.ID} {
		if _, err := second.Get(id); err != nil {
			t.Errorf("get %q after hydration: %v", id, err)
		}
	}
	if got := len(second.ListBySite("dock-x")); got != 1 {
		t.Errorf("dock-x orders = %d, want 1", got)
	}
	if got := second.RemainingCapacity("dock-a"); got != 95 {
		t.Errorf("remaining = %v, want 95 rebuilt from hydrated orders", got)
	}
}
