// Package excel maintains an in-memory snapshot of the product spreadsheet
// and answers keyword searches against it.
//
// The snapshot is replaced wholesale on reload through an atomic pointer, so
// readers never observe a partially loaded table. A failed reload keeps the
// previous snapshot intact.
package excel

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aera-procure/apollobot/internal/models"
)

// Columns whose values participate in keyword matching.
const (
	ColumnDescription = "Description"
	ColumnCategory    = "Category"
	ColumnSubCategory = "Sub Category"
)

// Fetcher retrieves the raw workbook bytes from the document source.
type Fetcher interface {
	FetchWorkbook(ctx context.Context) ([]byte, error)
}

// Snapshot is one immutable parse of the spreadsheet.
type Snapshot struct {
	Rows     []models.SpreadsheetRow
	LoadedAt time.Time
}

// Index holds the current spreadsheet snapshot.
type Index struct {
	fetcher  Fetcher
	snapshot atomic.Pointer[Snapshot]
}

// NewIndex creates an empty index backed by the given fetcher. No data is
// loaded until Reload or the first search.
func NewIndex(fetcher Fetcher) *Index {
	return &Index{fetcher: fetcher}
}

// Reload fetches and parses the workbook, then swaps in the new snapshot.
// On any failure the previous snapshot, if any, stays in place.
func (ix *Index) Reload(ctx context.Context) error {
	raw, err := ix.fetcher.FetchWorkbook(ctx)
	if err != nil {
		slog.Error("Index.Reload: workbook fetch failed", "error", err)
		return err
	}
	rows, err := parseWorkbook(raw)
	if err != nil {
		slog.Error("Index.Reload: workbook parse failed", "error", err)
		return fmt.Errorf("%w: parse workbook: %v", models.ErrUpstream, err)
	}
	ix.snapshot.Store(&Snapshot{Rows: rows, LoadedAt: time.Now()})
	slog.Info("Index.Reload: spreadsheet data loaded", "rows", len(rows))
	return nil
}

// Current returns the live snapshot, or nil when nothing has loaded yet.
func (ix *Index) Current() *Snapshot {
	return ix.snapshot.Load()
}

// Search returns the rows matching the keyword phrase, lazily loading the
// spreadsheet on first use. The phrase is split into whitespace-separated
// lowercase tokens (duplicates collapse); a row matches iff every token is a
// substring of its concatenated Description, Category, and Sub Category
// values, case-insensitively.
func (ix *Index) Search(ctx context.Context, phrase string) ([]models.SpreadsheetRow, error) {
	snap := ix.snapshot.Load()
	if snap == nil {
		if err := ix.Reload(ctx); err != nil {
			return nil, err
		}
		snap = ix.snapshot.Load()
	}
	if snap == nil {
		return nil, models.ErrNoSnapshot
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(phrase)) {
		tokens[tok] = struct{}{}
	}

	var matches []models.SpreadsheetRow
	for _, row := range snap.Rows {
		text := strings.ToLower(row.Values[ColumnDescription] + row.Values[ColumnCategory] + row.Values[ColumnSubCategory])
		if matchAll(text, tokens) {
			matches = append(matches, row)
		}
	}
	slog.Debug("Index.Search: search completed", "phrase", phrase, "matches", len(matches), "rows", len(snap.Rows))
	return matches, nil
}

func matchAll(text string, tokens map[string]struct{}) bool {
	for tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}

// Format renders rows for chat display: one "**Column**: value" line per
// non-empty cell, columns joined with markdown line breaks, rows separated by
// blank lines.
func Format(rows []models.SpreadsheetRow) string {
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		var lines []string
		for _, col := range row.Columns {
			value := strings.TrimSpace(row.Values[col])
			if value == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("**%s**: %s", col, value))
		}
		formatted = append(formatted, strings.Join(lines, "  \n"))
	}
	return strings.Join(formatted, "\n\n")
}

// parseWorkbook reads the first sheet, taking the first row as column names.
func parseWorkbook(raw []byte) ([]models.SpreadsheetRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make([]string, 0, len(cells[0]))
	for _, name := range cells[0] {
		header = append(header, strings.TrimSpace(name))
	}

	rows := make([]models.SpreadsheetRow, 0, len(cells)-1)
	for _, record := range cells[1:] {
		values := make(map[string]string, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				values[col] = record[i]
			} else {
				values[col] = ""
			}
		}
		rows = append(rows, models.SpreadsheetRow{Columns: header, Values: values})
	}
	return rows, nil
}
