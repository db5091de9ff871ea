// Package importer parses pasted tabular text into a roster snapshot.
//
// The accepted format is one record per line, fields separated by commas,
// tabs, or runs of spaces, in the order: name, points, alias... There is no
// header row. CSV, TSV, and pasted spreadsheet tables all parse the same
// way.
package importer

import (
	"errors"
	"strings"
	"time"

	"github.com/jensholdgaard/stackedroll-bot/internal/names"
	"github.com/jensholdgaard/stackedroll-bot/internal/roll"
)

// Errors returned by Parse. Both abort the import without touching any
// existing roster data.
var (
	// ErrEmptyInput means nothing (or only whitespace) was supplied.
	ErrEmptyInput = errors.New("import text is empty")
	// ErrNoValidRows means no line could be parsed. A header row is a
	// common cause; the format expects data rows only.
	ErrNoValidRows = errors.New(`no valid rows found: expected one "name, points, alias..." record per line, with no header row`)
)

// Result is a parsed import, ready to replace the stored roster wholesale.
type Result struct {
	// Points maps normalized primary name to point balance.
	Points map[string]int
	// Aliases maps normalized alias to normalized primary name.
	Aliases map[string]string
	// ImportedAt is when the import was parsed.
	ImportedAt time.Time
	// ImportText is the original raw input, kept for auditing.
	ImportText string
}

// Parse validates raw import text and builds a Result. Rows with a missing
// name, a duplicate primary, or a non-numeric point value are skipped, not
// fatal; the import fails only when no row at all is usable.
func Parse(raw string, now time.Time) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}

	points := make(map[string]int)
	aliases := make(map[string]string)

	for _, line := range strings.Split(raw, "\n") {
		fields := strings.FieldsFunc(line, isSeparator)
		if len(fields) < 2 {
			continue
		}

		name := names.Normalize(fields[0])
		if name == "" {
			continue
		}
		if _, taken := points[name]; taken {
			// First occurrence of a primary wins.
			continue
		}
		pts, err := roll.ParsePoints(fields[1])
		if err != nil {
			continue
		}
		points[name] = pts

		for _, field := range fields[2:] {
			alias := names.Normalize(field)
			if alias == "" || alias == name {
				continue
			}
			if _, isPrimary := points[alias]; isPrimary {
				continue
			}
			if _, claimed := aliases[alias]; claimed {
				// First claim wins; later duplicates are dropped.
				continue
			}
			aliases[alias] = name
		}
	}

	if len(points) == 0 {
		return nil, ErrNoValidRows
	}

	// A later line may promote an earlier alias to a primary. The primary
	// owns the name: drop the alias claim.
	for alias := range aliases {
		if _, isPrimary := points[alias]; isPrimary {
			delete(aliases, alias)
		}
	}

	return &Result{
		Points:     points,
		Aliases:    aliases,
		ImportedAt: now,
		ImportText: raw,
	}, nil
}

// isSeparator matches comma, tab, and space so that CSV, TSV, and pasted
// tables split identically. Carriage returns from CRLF input fold in too.
func isSeparator(r rune) bool {
	return r == ',' || r == '\t' || r == ' ' || r == '\r'
}
