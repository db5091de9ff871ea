package stackedroll_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/stackedroll-bot/internal/clock"
	"github.com/jensholdgaard/stackedroll-bot/internal/config"
	"github.com/jensholdgaard/stackedroll-bot/internal/event"
	"github.com/jensholdgaard/stackedroll-bot/internal/importer"
	"github.com/jensholdgaard/stackedroll-bot/internal/stackedroll"
	"github.com/jensholdgaard/stackedroll-bot/internal/store"
	"github.com/jensholdgaard/stackedroll-bot/internal/store/memstore"
)

var testTP = noop.NewTracerProvider()

var testClock = clock.Mock{T: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}

var testSettings = config.StackedRollConfig{Enabled: true, ReserveThreshold: 5000}

// mockImporterView records importer view interactions.
type mockImporterView struct {
	draws    int
	closes   int
	statuses []string
}

func (v *mockImporterView) Draw(context.Context) error         { v.draws++; return nil }
func (v *mockImporterView) Close(context.Context) error        { v.closes++; return nil }
func (v *mockImporterView) Status(_ context.Context, s string) { v.statuses = append(v.statuses, s) }

// mockOverview records overview interactions.
type mockOverview struct {
	draws  int
	closes int
}

func (v *mockOverview) Draw(context.Context) error  { v.draws++; return nil }
func (v *mockOverview) Close(context.Context) error { v.closes++; return nil }

// failingRepo wraps a working repository and fails selected operations.
type failingRepo struct {
	store.RosterRepository
	replaceErr error
	setErr     error
}

func (r *failingRepo) Replace(ctx context.Context, snap *store.Snapshot) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	return r.RosterRepository.Replace(ctx, snap)
}

func (r *failingRepo) SetPoints(ctx context.Context, name string, points int) error {
	if r.setErr != nil {
		return r.setErr
	}
	return r.RosterRepository.SetPoints(ctx, name, points)
}

type fixture struct {
	mgr      *stackedroll.Manager
	repo     store.RosterRepository
	events   *memstore.EventStore
	imp      *mockImporterView
	overview *mockOverview
}

func newFixture(t *testing.T, repo store.RosterRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = memstore.NewRosterRepo()
	}
	f := &fixture{
		repo:     repo,
		events:   memstore.NewEventStore(testClock),
		imp:      &mockImporterView{},
		overview: &mockOverview{},
	}
	f.mgr = stackedroll.NewManager(testSettings, repo, f.events, f.imp, f.overview,
		slog.Default(), testTP, testClock)
	return f
}

func TestManager_Import_RoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240,Barfoo", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 240 {
		t.Errorf("GetPoints(foobar) = %d, want 240", got)
	}
	if got := f.mgr.GetPoints(ctx, "barfoo", -1); got != 240 {
		t.Errorf("GetPoints(barfoo) via alias = %d, want 240", got)
	}
	if f.imp.closes != 1 {
		t.Errorf("importer view closes = %d, want 1", f.imp.closes)
	}
	if f.overview.draws != 0 {
		t.Errorf("overview draws = %d, want 0 without openOverview", f.overview.draws)
	}

	snap, _ := f.repo.Load(ctx)
	if snap.Points["foobar"] != 240 {
		t.Errorf("persisted points[foobar] = %d, want 240", snap.Points["foobar"])
	}
	if !snap.ImportedAt.Equal(testClock.T) {
		t.Errorf("persisted ImportedAt = %v, want %v", snap.ImportedAt, testClock.T)
	}

	imported, _ := f.events.LoadByType(context.Background(), event.RosterImported)
	if len(imported) != 1 {
		t.Errorf("imported events = %d, want 1", len(imported))
	}
}

func TestManager_Import_OpenOverview(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.mgr.Import(context.Background(), "Foobar,240", true); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if f.overview.draws != 1 {
		t.Errorf("overview draws = %d, want 1 with openOverview", f.overview.draws)
	}
}

func TestManager_Import_ParseFailureKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240", false); err != nil {
		t.Fatalf("seeding import error: %v", err)
	}

	err := f.mgr.Import(ctx, "garbage row with no points", false)
	if !errors.Is(err, importer.ErrNoValidRows) {
		t.Fatalf("Import() error = %v, want ErrNoValidRows", err)
	}
	if len(f.imp.statuses) != 1 {
		t.Fatalf("status messages = %d, want 1", len(f.imp.statuses))
	}

	// Prior roster is untouched, imported and on record.
	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 240 {
		t.Errorf("GetPoints(foobar) after failed import = %d, want 240", got)
	}
	available, err := f.mgr.Available(ctx)
	if err != nil || !available {
		t.Errorf("Available() = (%v, %v), want (true, nil)", available, err)
	}
}

func TestManager_Import_EmptyInput(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mgr.Import(context.Background(), "   \n ", false)
	if !errors.Is(err, importer.ErrEmptyInput) {
		t.Fatalf("Import() error = %v, want ErrEmptyInput", err)
	}
	if len(f.imp.statuses) != 1 {
		t.Errorf("status messages = %d, want 1", len(f.imp.statuses))
	}
}

func TestManager_Import_StorageFailureReportsAndAborts(t *testing.T) {
	boom := errors.New("db down")
	f := newFixture(t, &failingRepo{RosterRepository: memstore.NewRosterRepo(), replaceErr: boom})
	ctx := context.Background()

	err := f.mgr.Import(ctx, "Foobar,240", false)
	if !errors.Is(err, boom) {
		t.Fatalf("Import() error = %v, want wrapped %v", err, boom)
	}
	if len(f.imp.statuses) != 1 {
		t.Errorf("status messages = %d, want 1", len(f.imp.statuses))
	}
	if f.imp.closes != 0 {
		t.Errorf("importer view closes = %d, want 0 on failure", f.imp.closes)
	}
}

func TestManager_Import_DuplicatePrimaryKeepsFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foo,10\nFoo,20", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if got := f.mgr.GetPoints(ctx, "foo", -1); got != 10 {
		t.Errorf("GetPoints(foo) = %d, want 10", got)
	}
}

func TestManager_Import_AliasConflictingWithPrimary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foo,10,Bar\nBar,5", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	// Bar is a primary, so the alias claim from line 1 is dropped.
	if got := f.mgr.GetPoints(ctx, "bar", -1); got != 5 {
		t.Errorf("GetPoints(bar) = %d, want 5", got)
	}
}

func TestManager_Draw_Routing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Draw(ctx); err != nil {
		t.Fatalf("Draw() error: %v", err)
	}
	if f.imp.draws != 1 || f.overview.draws != 0 {
		t.Errorf("before import: importer draws = %d, overview draws = %d, want 1, 0", f.imp.draws, f.overview.draws)
	}

	if err := f.mgr.Import(ctx, "Foobar,240", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if err := f.mgr.Draw(ctx); err != nil {
		t.Fatalf("Draw() error: %v", err)
	}
	if f.imp.draws != 1 || f.overview.draws != 1 {
		t.Errorf("after import: importer draws = %d, overview draws = %d, want 1, 1", f.imp.draws, f.overview.draws)
	}
}

func TestManager_Disabled(t *testing.T) {
	f := &fixture{
		repo:     memstore.NewRosterRepo(),
		events:   memstore.NewEventStore(testClock),
		imp:      &mockImporterView{},
		overview: &mockOverview{},
	}
	mgr := stackedroll.NewManager(
		config.StackedRollConfig{Enabled: false, ReserveThreshold: 5000},
		f.repo, f.events, f.imp, f.overview, slog.Default(), testTP, testClock,
	)
	ctx := context.Background()

	if err := mgr.Import(ctx, "Foobar,240", false); !errors.Is(err, stackedroll.ErrDisabled) {
		t.Errorf("Import() error = %v, want ErrDisabled", err)
	}
	if err := mgr.Draw(ctx); !errors.Is(err, stackedroll.ErrDisabled) {
		t.Errorf("Draw() error = %v, want ErrDisabled", err)
	}
}

func TestManager_Clear(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240,Barfoo", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if err := f.mgr.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	available, err := f.mgr.Available(ctx)
	if err != nil {
		t.Fatalf("Available() error: %v", err)
	}
	if available {
		t.Error("Available() = true after Clear, want false")
	}
	if got := f.mgr.GetPoints(ctx, "foobar", -42); got != -42 {
		t.Errorf("GetPoints(foobar) after Clear = %d, want caller default", got)
	}
	if f.overview.closes != 1 {
		t.Errorf("overview closes = %d, want 1", f.overview.closes)
	}

	cleared, _ := f.events.LoadByType(ctx, event.RosterCleared)
	if len(cleared) != 1 {
		t.Errorf("cleared events = %d, want 1", len(cleared))
	}
}

func TestManager_SetPoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240,Barfoo", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	// Set through an alias; persistence lands under the primary key.
	if err := f.mgr.SetPoints(ctx, "Barfoo", 300); err != nil {
		t.Fatalf("SetPoints() error: %v", err)
	}
	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 300 {
		t.Errorf("GetPoints(foobar) = %d, want 300", got)
	}
	snap, _ := f.repo.Load(ctx)
	if snap.Points["foobar"] != 300 {
		t.Errorf("persisted points[foobar] = %d, want 300", snap.Points["foobar"])
	}

	// Unknown names are silent no-ops.
	if err := f.mgr.SetPoints(ctx, "ghost", 999); err != nil {
		t.Fatalf("SetPoints(unknown) error: %v", err)
	}
	snap, _ = f.repo.Load(ctx)
	if _, ok := snap.Points["ghost"]; ok {
		t.Error("SetPoints(unknown) must not create a record")
	}
}

func TestManager_ModifyPoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	if err := f.mgr.ModifyPoints(ctx, "foobar", -40); err != nil {
		t.Fatalf("ModifyPoints() error: %v", err)
	}
	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 200 {
		t.Errorf("GetPoints(foobar) = %d, want 200", got)
	}

	// Deltas below zero clamp.
	if err := f.mgr.ModifyPoints(ctx, "foobar", -10000); err != nil {
		t.Fatalf("ModifyPoints() error: %v", err)
	}
	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 0 {
		t.Errorf("GetPoints(foobar) after large deduction = %d, want 0", got)
	}
	snap, _ := f.repo.Load(ctx)
	if snap.Points["foobar"] != 0 {
		t.Errorf("persisted points[foobar] = %d, want 0", snap.Points["foobar"])
	}

	if err := f.mgr.ModifyPoints(ctx, "ghost", 5); err != nil {
		t.Fatalf("ModifyPoints(unknown) error: %v", err)
	}

	adjusted, _ := f.events.LoadByType(ctx, event.PointsAdjusted)
	if len(adjusted) != 2 {
		t.Errorf("adjusted events = %d, want 2 (unknown name appends none)", len(adjusted))
	}
}

func TestManager_SetPoints_PersistFailureKeepsRosterConsistent(t *testing.T) {
	boom := errors.New("db down")
	repo := &failingRepo{RosterRepository: memstore.NewRosterRepo()}
	f := newFixture(t, repo)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	repo.setErr = boom
	if err := f.mgr.SetPoints(ctx, "foobar", 999); !errors.Is(err, boom) {
		t.Fatalf("SetPoints() error = %v, want wrapped %v", err, boom)
	}

	// The derived roster must never run ahead of the store.
	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 240 {
		t.Errorf("GetPoints(foobar) after failed persist = %d, want 240", got)
	}
	snap, _ := repo.RosterRepository.Load(ctx)
	if snap.Points["foobar"] != 240 {
		t.Errorf("persisted points[foobar] = %d, want 240", snap.Points["foobar"])
	}
	set, _ := f.events.LoadByType(ctx, event.PointsSet)
	if len(set) != 0 {
		t.Errorf("points set events = %d, want 0 on failed persist", len(set))
	}
}

func TestManager_ModifyPoints_PersistFailureKeepsRosterConsistent(t *testing.T) {
	boom := errors.New("db down")
	repo := &failingRepo{RosterRepository: memstore.NewRosterRepo()}
	f := newFixture(t, repo)
	ctx := context.Background()

	if err := f.mgr.Import(ctx, "Foobar,240", false); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	repo.setErr = boom
	if err := f.mgr.ModifyPoints(ctx, "foobar", -40); !errors.Is(err, boom) {
		t.Fatalf("ModifyPoints() error = %v, want wrapped %v", err, boom)
	}

	if got := f.mgr.GetPoints(ctx, "foobar", -1); got != 240 {
		t.Errorf("GetPoints(foobar) after failed persist = %d, want 240", got)
	}
	adjusted, _ := f.events.LoadByType(ctx, event.PointsAdjusted)
	if len(adjusted) != 0 {
		t.Errorf("points adjusted events = %d, want 0 on failed persist", len(adjusted))
	}
}

func TestManager_Recover(t *testing.T) {
	repo := memstore.NewRosterRepo()
	ctx := context.Background()
	_ = repo.Replace(ctx, &store.Snapshot{
		Points:     map[string]int{"foobar": 240},
		Aliases:    map[string]string{"barfoo": "foobar"},
		ImportedAt: testClock.T,
		ImportText: "Foobar,240,Barfoo",
	})

	f := newFixture(t, repo)
	if err := f.mgr.Recover(ctx); err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	if got := f.mgr.GetPoints(ctx, "barfoo", -1); got != 240 {
		t.Errorf("GetPoints(barfoo) after Recover = %d, want 240", got)
	}
}

func TestManager_Recover_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.mgr.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() on empty store error: %v", err)
	}
	if got := len(f.mgr.Records()); got != 0 {
		t.Errorf("Records() = %d entries, want 0", got)
	}
}
