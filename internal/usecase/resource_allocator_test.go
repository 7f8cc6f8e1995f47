package usecase

import (
	"context"
	"errors"
	"testing"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
)

func TestAssignAndRevoke(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()
	alloc := engine.Allocator()

	wo := mustCreate(engine, 5, "dock-a")
	assigned, conflict, err := alloc.Assign(ctx, wo.ID, "cm-1", "tester")
	if err != nil || conflict != nil {
		t.Fatalf("assign = conflict %+v err %v", conflict, err)
	}
	if !assigned.HasCrew("cm-1") {
		t.Fatal("crew member not on roster after assign")
	}

	// Assigning again is a no-op.
	again, conflict, err := alloc.Assign(ctx, wo.ID, "cm-1", "tester")
	if err != nil || conflict != nil {
		t.Fatalf("repeat assign = conflict %+v err %v", conflict, err)
	}
	if len(again.Crew) != 1 {
		t.Errorf("crew size = %d, want 1", len(again.Crew))
	}

	revoked, err := alloc.Revoke(ctx, wo.ID, "cm-1", "tester")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.HasCrew("cm-1") {
		t.Error("crew member still on roster after revoke")
	}
	history, _ := engine.History(wo.ID)
	last := history[len(history)-1]
	if last.Category != entity.ChangeCrewRemove || last.Previous != "cm-1" {
		t.Errorf("audit entry = %+v, want crew-remove of cm-1", last)
	}

	if _, err := alloc.Revoke(ctx, wo.ID, "cm-1", "tester"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("revoke of absent member err = %v, want ErrNotFound", err)
	}
}

func TestAssignValidatesRoster(t *testing.T) {
	inactive := &entity.CrewMember{ID: "cm-2", Name: "Bo", Active: false}
	engine, _, _ := newTestEngine(nil, inactive)
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	if _, _, err := engine.Allocator().Assign(ctx, wo.ID, "cm-9", "tester"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown member err = %v, want ErrNotFound", err)
	}
	if _, _, err := engine.Allocator().Assign(ctx, wo.ID, "cm-2", "tester"); !errors.Is(err, domain.ErrInactiveCrewMember) {
		t.Errorf("inactive member err = %v, want ErrInactiveCrewMember", err)
	}
}

func TestAssignDetectsConflictAndConfirmReassigns(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()
	alloc := engine.Allocator()

	a := mustCreate(engine, 5, "dock-a")
	b := mustCreate(engine, 5, "dock-a")
	if _, _, err := alloc.Assign(ctx, a.ID, "cm-1", "tester"); err != nil {
		t.Fatalf("assign to a: %v", err)
	}
	if _, err := engine.Start(ctx, a.ID, "tester"); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, err := engine.Start(ctx, b.ID, "tester"); err != nil {
		t.Fatalf("start b: %v", err)
	}

	wo, conflict, err := alloc.Assign(ctx, b.ID, "cm-1", "tester")
	if err != nil {
		t.Fatalf("assign to b: %v", err)
	}
	if conflict == nil || conflict.ConflictingOrderID != a.ID {
		t.Fatalf("conflict = %+v, want detection naming order a", conflict)
	}
	if wo != nil {
		t.Error("detection returned a snapshot, want no mutation")
	}
	if got, _ := engine.Get(b.ID); got.HasCrew("cm-1") {
		t.Fatal("crew member added to b before confirmation")
	}
	if got, _ := engine.Get(a.ID); !got.HasCrew("cm-1") {
		t.Fatal("crew member removed from a before confirmation")
	}

	reassigned, err := alloc.ConfirmReassign(ctx, b.ID, "cm-1", "tester")
	if err != nil {
		t.Fatalf("confirm reassign: %v", err)
	}
	if !reassigned.HasCrew("cm-1") {
		t.Error("crew member missing from b after confirmation")
	}
	if got, _ := engine.Get(a.ID); got.HasCrew("cm-1") {
		t.Error("crew member still on a after confirmation")
	}

	historyA, _ := engine.History(a.ID)
	lastA := historyA[len(historyA)-1]
	if lastA.Category != entity.ChangeCrewRemove {
		t.Errorf("a audit entry = %+v, want crew-remove", lastA)
	}
	historyB, _ := engine.History(b.ID)
	lastB := historyB[len(historyB)-1]
	if lastB.Category != entity.ChangeCrewAdd || lastB.Next != "cm-1" {
		t.Errorf("b audit entry = %+v, want crew-add of cm-1", lastB)
	}
}

func TestConfirmReassignWithoutConflictIsPlainAssign(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	assigned, err := engine.Allocator().ConfirmReassign(ctx, wo.ID, "cm-1", "tester")
	if err != nil {
		t.Fatalf("confirm without conflict: %v", err)
	}
	if !assigned.HasCrew("cm-1") {
		t.Error("crew member not assigned")
	}
}

func TestAssignAcrossNonActiveOrdersIsFree(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()
	alloc := engine.Allocator()

	a := mustCreate(engine, 5, "dock-a")
	b := mustCreate(engine, 5, "dock-b")
	if _, conflict, err := alloc.Assign(ctx, a.ID, "cm-1", "tester"); err != nil || conflict != nil {
		t.Fatalf("assign to a = conflict %+v err %v", conflict, err)
	}
	if _, conflict, err := alloc.Assign(ctx, b.ID, "cm-1", "tester"); err != nil || conflict != nil {
		t.Fatalf("assign to b = conflict %+v err %v", conflict, err)
	}
}

func TestAssignToTerminalOrderRejected(t *testing.T) {
	engine, _, _ := newTestEngine(nil, activeMember("cm-1", "Ana"))
	ctx := context.Background()

	wo := mustCreate(engine, 5, "dock-a")
	if _, err := engine.Cancel(ctx, wo.ID, "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := engine.Allocator().Assign(ctx, wo.ID, "cm-1", "tester"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("assign to cancelled err = %v, want ErrInvalidTransition", err)
	}
}
