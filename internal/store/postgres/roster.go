package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/stackedroll-bot/internal/clock"
	"github.com/jensholdgaard/stackedroll-bot/internal/store"
)

// RosterRepo implements store.RosterRepository with sqlx.
type RosterRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewRosterRepo returns a new RosterRepo.
func NewRosterRepo(db *sqlx.DB, clk clock.Clock) *RosterRepo {
	return &RosterRepo{db: db, clk: clk}
}

type pointRow struct {
	Name   string `db:"name"`
	Points int    `db:"points"`
}

type aliasRow struct {
	Alias       string `db:"alias"`
	PrimaryName string `db:"primary_name"`
}

type metadataRow struct {
	ImportedAt time.Time `db:"imported_at"`
	ImportText string    `db:"import_text"`
}

// Load reads the full snapshot. A database with no recorded import yields an
// empty snapshot, not an error.
func (r *RosterRepo) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{
		Points:  make(map[string]int),
		Aliases: make(map[string]string),
	}

	var meta metadataRow
	err := r.db.GetContext(ctx, &meta,
		`SELECT imported_at, import_text FROM roster_metadata WHERE id = 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("loading roster metadata: %w", err)
	}
	snap.ImportedAt = meta.ImportedAt
	snap.ImportText = meta.ImportText

	var points []pointRow
	if err := r.db.SelectContext(ctx, &points, `SELECT name, points FROM roster_points`); err != nil {
		return nil, fmt.Errorf("loading roster points: %w", err)
	}
	for _, row := range points {
		snap.Points[row.Name] = row.Points
	}

	var aliases []aliasRow
	if err := r.db.SelectContext(ctx, &aliases, `SELECT alias, primary_name FROM roster_aliases`); err != nil {
		return nil, fmt.Errorf("loading roster aliases: %w", err)
	}
	for _, row := range aliases {
		snap.Aliases[row.Alias] = row.PrimaryName
	}

	return snap, nil
}

// Replace swaps in snap wholesale inside one transaction, so a failed import
// can never leave a partially written roster behind.
func (r *RosterRepo) Replace(ctx context.Context, snap *store.Snapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"roster_points", "roster_aliases", "roster_metadata"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	now := r.clk.Now().UTC()
	pointStmt, err := tx.PreparexContext(ctx,
		`INSERT INTO roster_points (name, points, updated_at) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("preparing points insert: %w", err)
	}
	defer pointStmt.Close()
	for name, points := range snap.Points {
		if _, err := pointStmt.ExecContext(ctx, name, points, now); err != nil {
			return fmt.Errorf("inserting points for %s: %w", name, err)
		}
	}

	aliasStmt, err := tx.PreparexContext(ctx,
		`INSERT INTO roster_aliases (alias, primary_name) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("preparing alias insert: %w", err)
	}
	defer aliasStmt.Close()
	for alias, primary := range snap.Aliases {
		if _, err := aliasStmt.ExecContext(ctx, alias, primary); err != nil {
			return fmt.Errorf("inserting alias %s: %w", alias, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO roster_metadata (id, imported_at, import_text) VALUES (1, $1, $2)`,
		snap.ImportedAt.UTC(), snap.ImportText,
	); err != nil {
		return fmt.Errorf("inserting roster metadata: %w", err)
	}

	return tx.Commit()
}

// SetPoints updates one primary's balance.
func (r *RosterRepo) SetPoints(ctx context.Context, name string, points int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE roster_points SET points = $1, updated_at = $2 WHERE name = $3`,
		points, r.clk.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("updating points: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("player %s not found", name)
	}
	return nil
}

// Clear removes all roster data and import metadata in one transaction.
func (r *RosterRepo) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"roster_points", "roster_aliases", "roster_metadata"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return tx.Commit()
}
