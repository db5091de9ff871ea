package store

import (
	"context"
	"time"
)

// Snapshot is the raw persisted roster: the source of truth the
// materialized view is rebuilt from.
type Snapshot struct {
	// Points maps normalized primary name to balance.
	Points map[string]int
	// Aliases maps normalized alias to normalized primary name.
	Aliases map[string]string
	// ImportedAt is when the current data was imported; zero when no
	// import has ever been recorded (or it has been cleared).
	ImportedAt time.Time
	// ImportText is the raw text of the last import, kept for auditing.
	ImportText string
}

// Empty reports whether the snapshot holds no recorded import.
func (s *Snapshot) Empty() bool {
	return s.ImportedAt.IsZero()
}

// RosterRepository defines roster persistence operations.
type RosterRepository interface {
	// Load returns the current snapshot. A store with no recorded import
	// returns an empty (non-nil) snapshot.
	Load(ctx context.Context) (*Snapshot, error)
	// Replace swaps in snap wholesale and atomically; prior contents are
	// discarded. A failed Replace leaves the previous data intact.
	Replace(ctx context.Context, snap *Snapshot) error
	// SetPoints updates the balance of one primary name in place.
	SetPoints(ctx context.Context, name string, points int) error
	// Clear removes all roster data and import metadata.
	Clear(ctx context.Context) error
}
