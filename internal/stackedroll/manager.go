// Package stackedroll orchestrates the stacked roll tracker: importing
// rosters, clearing them, dispatching the right view, and the alias-aware
// point API backed by both the materialized roster and the raw store.
package stackedroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/stackedroll-bot/internal/clock"
	"github.com/jensholdgaard/stackedroll-bot/internal/config"
	"github.com/jensholdgaard/stackedroll-bot/internal/event"
	"github.com/jensholdgaard/stackedroll-bot/internal/importer"
	"github.com/jensholdgaard/stackedroll-bot/internal/roll"
	"github.com/jensholdgaard/stackedroll-bot/internal/roster"
	"github.com/jensholdgaard/stackedroll-bot/internal/store"
)

// ErrDisabled is returned when stacked roll tracking is switched off in the
// settings.
var ErrDisabled = errors.New("stacked roll tracking is disabled")

// ImporterView is the import prompt surface: drawn when no roster data is
// available, with a status sink for import feedback.
type ImporterView interface {
	Draw(ctx context.Context) error
	Close(ctx context.Context) error
	Status(ctx context.Context, msg string)
}

// OverviewView is the standings surface, drawn once roster data exists.
type OverviewView interface {
	Draw(ctx context.Context) error
	Close(ctx context.Context) error
}

// Manager handles stacked roll operations.
type Manager struct {
	cfg    config.StackedRollConfig
	repo   store.RosterRepository
	events event.Store
	roster *roster.Roster
	calc   roll.Calculator

	importerView ImporterView
	overview     OverviewView

	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new stacked roll Manager with an empty roster.
// Call Recover to rebuild the roster from persisted data.
func NewManager(
	cfg config.StackedRollConfig,
	repo store.RosterRepository,
	events event.Store,
	importerView ImporterView,
	overview OverviewView,
	logger *slog.Logger,
	tp trace.TracerProvider,
	clk clock.Clock,
) *Manager {
	return &Manager{
		cfg:          cfg,
		repo:         repo,
		events:       events,
		roster:       roster.New(),
		calc:         roll.Calculator{ReserveThreshold: cfg.ReserveThreshold},
		importerView: importerView,
		overview:     overview,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/stackedroll-bot/internal/stackedroll"),
		clock:        clk,
	}
}

// Calculator returns the threshold calculator configured from settings.
func (m *Manager) Calculator() roll.Calculator { return m.calc }

// Records returns the materialized roster ordered by points descending.
func (m *Manager) Records() []roster.PlayerRecord { return m.roster.Records() }

// Recover rebuilds the materialized roster from the persisted snapshot.
// Run at startup so the roster survives restarts and leader failover.
func (m *Manager) Recover(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Recover")
	defer span.End()

	snap, err := m.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading roster snapshot: %w", err)
	}
	if snap.Empty() {
		return nil
	}

	m.roster.Materialize(snap.Points, snap.Aliases)
	m.logger.InfoContext(ctx, "roster recovered",
		slog.Int("players", m.roster.Len()),
		slog.Time("imported_at", snap.ImportedAt),
	)
	return nil
}

// Available reports whether a successful import is on record.
func (m *Manager) Available(ctx context.Context) (bool, error) {
	snap, err := m.repo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading roster snapshot: %w", err)
	}
	return !snap.Empty(), nil
}

// Draw routes to the importer view when no data is available, and to the
// overview otherwise. Pure dispatch, no state change.
func (m *Manager) Draw(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	ctx, span := m.tracer.Start(ctx, "Manager.Draw")
	defer span.End()

	available, err := m.Available(ctx)
	if err != nil {
		return err
	}
	if !available {
		return m.importerView.Draw(ctx)
	}
	return m.overview.Draw(ctx)
}

// Import parses rawText and, on success, replaces the stored roster
// wholesale, rebuilds the materialized view, and closes the importer view.
// On failure the error is reported through the importer's status sink and
// all prior state is left untouched.
func (m *Manager) Import(ctx context.Context, rawText string, openOverview bool) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	ctx, span := m.tracer.Start(ctx, "Manager.Import",
		trace.WithAttributes(
			attribute.Int("input_bytes", len(rawText)),
			attribute.Bool("open_overview", openOverview),
		),
	)
	defer span.End()

	result, err := importer.Parse(rawText, m.clock.Now().UTC())
	if err != nil {
		m.importerView.Status(ctx, err.Error())
		m.logger.WarnContext(ctx, "import rejected", slog.Any("error", err))
		return fmt.Errorf("parsing import: %w", err)
	}

	snap := &store.Snapshot{
		Points:     result.Points,
		Aliases:    result.Aliases,
		ImportedAt: result.ImportedAt,
		ImportText: result.ImportText,
	}
	if err := m.repo.Replace(ctx, snap); err != nil {
		m.importerView.Status(ctx, "import failed: could not persist roster, previous data kept")
		return fmt.Errorf("replacing roster: %w", err)
	}

	m.roster.Materialize(snap.Points, snap.Aliases)

	data, _ := json.Marshal(event.RosterImportedData{
		Players: len(snap.Points),
		Aliases: len(snap.Aliases),
		At:      snap.ImportedAt,
	})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: event.RosterAggregateID,
		Type:        event.RosterImported,
		Data:        data,
		Version:     1,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append roster imported event", slog.Any("error", err))
	}

	if err := m.importerView.Close(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to close importer view", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "roster imported",
		slog.Int("players", len(snap.Points)),
		slog.Int("aliases", len(snap.Aliases)),
	)

	if openOverview {
		return m.Draw(ctx)
	}
	return nil
}

// Clear wipes the stored roster and the materialized view and closes the
// overview.
func (m *Manager) Clear(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Clear")
	defer span.End()

	if err := m.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clearing roster: %w", err)
	}
	m.roster.Reset()

	if err := m.events.Append(ctx, event.Event{
		AggregateID: event.RosterAggregateID,
		Type:        event.RosterCleared,
		Data:        json.RawMessage(`{}`),
		Version:     1,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append roster cleared event", slog.Any("error", err))
	}

	if err := m.overview.Close(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to close overview", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "roster cleared")
	return nil
}

// GetPoints returns the balance for name (alias-aware), or def when the
// name is unknown.
func (m *Manager) GetPoints(ctx context.Context, name string, def int) int {
	_, span := m.tracer.Start(ctx, "Manager.GetPoints",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	return m.roster.GetPoints(name, def)
}

// SetPoints sets the balance of a known participant, persisting the value
// under the resolved primary key and then patching the roster in place. The
// store is written first so a failed persist cannot leave the derived roster
// ahead of the raw data. Unknown names are a silent no-op: only imported
// participants can be updated.
func (m *Manager) SetPoints(ctx context.Context, name string, points int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SetPoints",
		trace.WithAttributes(
			attribute.String("name", name),
			attribute.Int("points", points),
		),
	)
	defer span.End()

	primary := m.roster.Resolve(name)
	// Balances are never negative, so -1 marks an unknown name.
	if m.roster.GetPoints(primary, -1) < 0 {
		m.logger.DebugContext(ctx, "set points ignored for unknown player", slog.String("name", name))
		return nil
	}

	clamped := roll.ClampPoints(points)
	if err := m.repo.SetPoints(ctx, primary, clamped); err != nil {
		return fmt.Errorf("persisting points for %s: %w", primary, err)
	}
	m.roster.SetPoints(primary, clamped)

	data, _ := json.Marshal(event.PointsChangeData{PlayerName: primary, Points: clamped})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: event.RosterAggregateID,
		Type:        event.PointsSet,
		Data:        data,
		Version:     1,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append points set event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "points set",
		slog.String("player", primary),
		slog.Int("points", clamped),
	)
	return nil
}

// ModifyPoints adjusts a known participant's balance by delta, clamping at
// zero. Like SetPoints, the new balance is persisted before the roster is
// patched. Unknown names are a silent no-op.
func (m *Manager) ModifyPoints(ctx context.Context, name string, delta int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.ModifyPoints",
		trace.WithAttributes(
			attribute.String("name", name),
			attribute.Int("delta", delta),
		),
	)
	defer span.End()

	primary := m.roster.Resolve(name)
	current := m.roster.GetPoints(primary, -1)
	if current < 0 {
		m.logger.DebugContext(ctx, "modify points ignored for unknown player", slog.String("name", name))
		return nil
	}

	points := roll.ClampPoints(current + delta)
	if err := m.repo.SetPoints(ctx, primary, points); err != nil {
		return fmt.Errorf("persisting points for %s: %w", primary, err)
	}
	m.roster.SetPoints(primary, points)

	data, _ := json.Marshal(event.PointsChangeData{PlayerName: primary, Points: points, Delta: delta})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: event.RosterAggregateID,
		Type:        event.PointsAdjusted,
		Data:        data,
		Version:     1,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append points adjusted event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "points adjusted",
		slog.String("player", primary),
		slog.Int("delta", delta),
		slog.Int("points", points),
	)
	return nil
}
