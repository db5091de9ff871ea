// Package roster holds the materialized roster view: the alias-resolved
// lookup structure that point queries and mutations run against.
package roster

import (
	"sort"
	"sync"

	"github.com/jensholdgaard/stackedroll-bot/internal/names"
	"github.com/jensholdgaard/stackedroll-bot/internal/roll"
)

// PlayerRecord is one primary participant with their point balance and any
// alternate names discovered for them.
type PlayerRecord struct {
	PrimaryName string
	Points      int
	Aliases     []string
	// Class is reserved for a future import column and currently always
	// empty.
	Class string
}

// Roster is the derived, rebuildable cache over the stored points and alias
// tables. It is never the source of truth: Materialize rebuilds it in full
// from raw data, and the only in-place mutation allowed is the point patch
// performed by SetPoints.
//
// Safe for concurrent use; Discord handlers run on session goroutines.
type Roster struct {
	mu      sync.RWMutex
	details map[string]*PlayerRecord
	aliases map[string]string
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{
		details: make(map[string]*PlayerRecord),
		aliases: make(map[string]string),
	}
}

// Materialize rebuilds the roster wholesale from raw points and aliases and
// swaps it in atomically. Orphan aliases (no record for their primary) and
// aliases colliding with an existing primary are dropped. Rebuilding twice
// from the same raw data yields identical content.
func (r *Roster) Materialize(points map[string]int, aliases map[string]string) {
	details := make(map[string]*PlayerRecord, len(points))
	for name, pts := range points {
		key := names.Normalize(name)
		if key == "" {
			continue
		}
		details[key] = &PlayerRecord{
			PrimaryName: key,
			Points:      roll.ClampPoints(pts),
			Aliases:     []string{},
		}
	}

	index := make(map[string]string, len(aliases))
	for alias, primary := range aliases {
		a, p := names.Normalize(alias), names.Normalize(primary)
		if a == "" || p == "" {
			continue
		}
		rec, ok := details[p]
		if !ok {
			continue
		}
		if _, isPrimary := details[a]; isPrimary {
			continue
		}
		rec.Aliases = append(rec.Aliases, a)
		index[a] = p
	}

	// Map iteration order is random; sort so repeated rebuilds are
	// bit-identical.
	for _, rec := range details {
		sort.Strings(rec.Aliases)
	}

	r.mu.Lock()
	r.details = details
	r.aliases = index
	r.mu.Unlock()
}

// Reset empties the roster.
func (r *Roster) Reset() {
	r.mu.Lock()
	r.details = make(map[string]*PlayerRecord)
	r.aliases = make(map[string]string)
	r.mu.Unlock()
}

// Resolve maps any name, alias or primary, to its normalized primary key.
// Unknown names resolve to their own normalized form. All point lookups and
// mutations go through this single path so alias handling cannot diverge
// between queries and the materialized alias lists.
func (r *Roster) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(name)
}

func (r *Roster) resolve(name string) string {
	key := names.Normalize(name)
	if primary, ok := r.aliases[key]; ok {
		return primary
	}
	return key
}

// GetPoints returns the balance for name (alias-aware), or def when no
// record exists.
func (r *Roster) GetPoints(name string, def int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.details[r.resolve(name)]; ok {
		return rec.Points
	}
	return def
}

// SetPoints patches the balance of a known participant in place and returns
// the resolved primary key. Unknown names are a silent no-op: only
// participants from the last import can be updated. The caller is expected
// to persist the same value under the returned key.
func (r *Roster) SetPoints(name string, points int) (primary string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	primary = r.resolve(name)
	rec, ok := r.details[primary]
	if !ok {
		return "", false
	}
	rec.Points = roll.ClampPoints(points)
	return primary, true
}

// Records returns a copy of all records ordered by points descending, ties
// broken by name. Used by the overview and the spreadsheet export.
func (r *Roster) Records() []PlayerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PlayerRecord, 0, len(r.details))
	for _, rec := range r.details {
		cp := *rec
		cp.Aliases = append([]string(nil), rec.Aliases...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].PrimaryName < out[j].PrimaryName
	})
	return out
}

// Len returns the number of primary participants.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.details)
}
