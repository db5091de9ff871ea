// Package export renders the roster standings as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jensholdgaard/stackedroll-bot/internal/roll"
	"github.com/jensholdgaard/stackedroll-bot/internal/roster"
)

const sheetName = "Standings"

var headers = []string{"Player", "Points", "Roll Points", "Reserve", "Roll Min", "Roll Max", "Aliases"}

// WriteStandings writes an xlsx workbook with one row per participant,
// including the derived roll range, to w. Records are written in the order
// given.
func WriteStandings(w io.Writer, records []roster.PlayerRecord, calc roll.Calculator) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("writing header %q: %w", h, err)
		}
	}

	for i, rec := range records {
		values := []any{
			rec.PrimaryName,
			rec.Points,
			calc.RollPoints(rec.Points),
			calc.Reserve(rec.Points),
			calc.MinStackedRoll(rec.Points),
			calc.MaxStackedRoll(rec.Points),
			strings.Join(rec.Aliases, ", "),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("writing row for %s: %w", rec.PrimaryName, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
