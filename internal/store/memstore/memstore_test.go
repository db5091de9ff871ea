package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/jensholdgaard/stackedroll-bot/internal/clock"
	"github.com/jensholdgaard/stackedroll-bot/internal/event"
	"github.com/jensholdgaard/stackedroll-bot/internal/store"
	"github.com/jensholdgaard/stackedroll-bot/internal/store/memstore"
)

func TestRosterRepo_LoadEmpty(t *testing.T) {
	repo := memstore.NewRosterRepo()

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !snap.Empty() {
		t.Error("fresh repo should load an empty snapshot")
	}
	if snap.Points == nil || snap.Aliases == nil {
		t.Error("empty snapshot maps must be non-nil")
	}
}

func TestRosterRepo_ReplaceAndLoad(t *testing.T) {
	repo := memstore.NewRosterRepo()
	ctx := context.Background()
	importedAt := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	in := &store.Snapshot{
		Points:     map[string]int{"foobar": 240},
		Aliases:    map[string]string{"barfoo": "foobar"},
		ImportedAt: importedAt,
		ImportText: "Foobar,240,Barfoo",
	}
	if err := repo.Replace(ctx, in); err != nil {
		t.Fatalf("Replace() error: %v", err)
	}

	// Mutating the caller's snapshot must not leak into the store.
	in.Points["foobar"] = 999

	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := snap.Points["foobar"]; got != 240 {
		t.Errorf("points[foobar] = %d, want 240", got)
	}
	if got := snap.Aliases["barfoo"]; got != "foobar" {
		t.Errorf("aliases[barfoo] = %q, want %q", got, "foobar")
	}
	if !snap.ImportedAt.Equal(importedAt) {
		t.Errorf("ImportedAt = %v, want %v", snap.ImportedAt, importedAt)
	}
}

func TestRosterRepo_SetPoints(t *testing.T) {
	repo := memstore.NewRosterRepo()
	ctx := context.Background()

	_ = repo.Replace(ctx, &store.Snapshot{
		Points:     map[string]int{"foobar": 240},
		Aliases:    map[string]string{},
		ImportedAt: time.Now(),
	})

	if err := repo.SetPoints(ctx, "foobar", 300); err != nil {
		t.Fatalf("SetPoints() error: %v", err)
	}
	snap, _ := repo.Load(ctx)
	if got := snap.Points["foobar"]; got != 300 {
		t.Errorf("points[foobar] = %d, want 300", got)
	}

	if err := repo.SetPoints(ctx, "ghost", 1); err == nil {
		t.Error("SetPoints(unknown) should fail")
	}
}

func TestRosterRepo_Clear(t *testing.T) {
	repo := memstore.NewRosterRepo()
	ctx := context.Background()

	_ = repo.Replace(ctx, &store.Snapshot{
		Points:     map[string]int{"foobar": 240},
		Aliases:    map[string]string{"barfoo": "foobar"},
		ImportedAt: time.Now(),
		ImportText: "x",
	})
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	snap, _ := repo.Load(ctx)
	if !snap.Empty() {
		t.Error("snapshot should be empty after Clear")
	}
	if len(snap.Points) != 0 || len(snap.Aliases) != 0 {
		t.Errorf("cleared snapshot still has data: %+v", snap)
	}
}

func TestEventStore(t *testing.T) {
	clk := clock.Mock{T: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	es := memstore.NewEventStore(clk)
	ctx := context.Background()

	err := es.Append(ctx,
		event.Event{AggregateID: event.RosterAggregateID, Type: event.RosterImported, Version: 1},
		event.Event{AggregateID: event.RosterAggregateID, Type: event.PointsSet, Version: 2},
	)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	all, err := es.Load(ctx, event.RosterAggregateID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Load() returned %d events, want 2", len(all))
	}
	if !all[0].CreatedAt.Equal(clk.T) {
		t.Errorf("CreatedAt = %v, want mock time %v", all[0].CreatedAt, clk.T)
	}

	imported, err := es.LoadByType(ctx, event.RosterImported)
	if err != nil {
		t.Fatalf("LoadByType() error: %v", err)
	}
	if len(imported) != 1 {
		t.Errorf("LoadByType(RosterImported) returned %d events, want 1", len(imported))
	}
}

func TestEventStore_UniqueIDs(t *testing.T) {
	clk := clock.Mock{T: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	es := memstore.NewEventStore(clk)
	ctx := context.Background()

	// Interleave single and batched appends; every stamped ID must stay unique.
	_ = es.Append(ctx, event.Event{AggregateID: event.RosterAggregateID, Type: event.RosterImported, Version: 1})
	_ = es.Append(ctx,
		event.Event{AggregateID: event.RosterAggregateID, Type: event.PointsSet, Version: 1},
		event.Event{AggregateID: event.RosterAggregateID, Type: event.PointsAdjusted, Version: 1},
	)
	_ = es.Append(ctx, event.Event{AggregateID: event.RosterAggregateID, Type: event.RosterCleared, Version: 1})

	all, err := es.Load(ctx, event.RosterAggregateID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	seen := make(map[string]bool, len(all))
	for _, e := range all {
		if e.ID == "" {
			t.Error("event stored without an ID")
		}
		if seen[e.ID] {
			t.Errorf("duplicate event ID %q", e.ID)
		}
		seen[e.ID] = true
	}
}
