package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	RosterImported Type = "roster.imported"
	RosterCleared  Type = "roster.cleared"

	PointsSet      Type = "points.set"
	PointsAdjusted Type = "points.adjusted"
)

// RosterAggregateID is the aggregate all roster-wide events attach to; the
// bot tracks a single roster.
const RosterAggregateID = "roster"

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RosterImportedData is the payload for RosterImported events.
type RosterImportedData struct {
	Players int       `json:"players"`
	Aliases int       `json:"aliases"`
	At      time.Time `json:"at"`
}

// PointsChangeData is the payload for points events.
type PointsChangeData struct {
	PlayerName string `json:"player_name"`
	Points     int    `json:"points"`
	Delta      int    `json:"delta,omitempty"`
}
