// Package memstore provides a store.Driver that keeps all data in process
// memory. It backs single-instance deployments that do not need durability
// and the unit tests of everything layered above the store.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jensholdgaard/stackedroll-bot/internal/clock"
	"github.com/jensholdgaard/stackedroll-bot/internal/config"
	"github.com/jensholdgaard/stackedroll-bot/internal/event"
	"github.com/jensholdgaard/stackedroll-bot/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("memory", openMemory)
}

// openMemory is the store.Driver for the "memory" backend.
func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Roster: NewRosterRepo(),
		Events: NewEventStore(clk),
		Closer: closerFunc(func() error { return nil }),
		Ping:   func(context.Context) error { return nil },
	}, nil
}

// RosterRepo implements store.RosterRepository in memory.
type RosterRepo struct {
	mu   sync.RWMutex
	snap store.Snapshot
}

// NewRosterRepo returns an empty in-memory roster repository.
func NewRosterRepo() *RosterRepo {
	return &RosterRepo{snap: emptySnapshot()}
}

func emptySnapshot() store.Snapshot {
	return store.Snapshot{
		Points:  make(map[string]int),
		Aliases: make(map[string]string),
	}
}

// Load returns a deep copy of the current snapshot so callers cannot mutate
// stored state behind the repository's back.
func (r *RosterRepo) Load(_ context.Context) (*store.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copySnapshot(&r.snap), nil
}

// Replace swaps in a deep copy of snap wholesale.
func (r *RosterRepo) Replace(_ context.Context, snap *store.Snapshot) error {
	cp := copySnapshot(snap)
	r.mu.Lock()
	r.snap = *cp
	r.mu.Unlock()
	return nil
}

// SetPoints updates one primary's balance in place.
func (r *RosterRepo) SetPoints(_ context.Context, name string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snap.Points[name]; !ok {
		return fmt.Errorf("player %s not found", name)
	}
	r.snap.Points[name] = points
	return nil
}

// Clear wipes roster data and import metadata.
func (r *RosterRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	r.snap = emptySnapshot()
	r.mu.Unlock()
	return nil
}

func copySnapshot(s *store.Snapshot) *store.Snapshot {
	cp := &store.Snapshot{
		Points:     make(map[string]int, len(s.Points)),
		Aliases:    make(map[string]string, len(s.Aliases)),
		ImportedAt: s.ImportedAt,
		ImportText: s.ImportText,
	}
	for k, v := range s.Points {
		cp.Points[k] = v
	}
	for k, v := range s.Aliases {
		cp.Aliases[k] = v
	}
	return cp
}

// EventStore implements event.Store in memory.
type EventStore struct {
	mu     sync.RWMutex
	events []event.Event
	nextID int
	clk    clock.Clock
}

// NewEventStore returns an empty in-memory event store.
func NewEventStore(clk clock.Clock) *EventStore {
	return &EventStore{clk: clk}
}

// Append stores events in arrival order, stamping ID and CreatedAt.
func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.nextID++
		e.ID = fmt.Sprintf("mem-%d", s.nextID)
		e.CreatedAt = s.clk.Now()
		s.events = append(s.events, e)
	}
	return nil
}

// Load returns all events for an aggregate in append order.
func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LoadByType returns events filtered by type in append order.
func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
