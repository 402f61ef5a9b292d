// Package reconcile maps normalized extraction results onto persisted rows so
// repeated runs converge to a single row per booking.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookingsync/internal/models"
)

// Table is the tabular storage a worksheet exposes: ordered rows of text
// cells, row 1 reserved for the header.
type Table interface {
	// ReadAll returns every row including the header.
	ReadAll(ctx context.Context) ([][]string, error)
	// AppendRow appends a data row after the last row.
	AppendRow(ctx context.Context, row []string) error
	// UpdateRow overwrites the row at the given 1-based position.
	UpdateRow(ctx context.Context, rowNum int, row []string) error
	// DeleteRows removes the 1-based inclusive row range.
	DeleteRows(ctx context.Context, start, end int) error
}

// Engine performs keyed upserts against a Table. It holds no row state of its
// own: the identity-key index is rebuilt by a full scan at the start of every
// pass, so staleness cannot cause a lost update and repeated application of
// the same records is idempotent.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Result counts the outcome of one upsert batch.
type Result struct {
	Upserted int
	Errors   int
	Details  []string
}

// Upsert writes each record to the full worksheet, updating the row whose
// identity key matches or appending a new one. Updates overwrite every
// managed column, never a partial patch.
func (e *Engine) Upsert(ctx context.Context, t Table, records []*models.BookingRecord) (Result, error) {
	var result Result
	if len(records) == 0 {
		return result, nil
	}

	rows, err := t.ReadAll(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read existing rows: %w", err)
	}
	index := buildIndex(rows)
	nextRow := len(rows) + 1

	for _, rec := range records {
		if err := e.upsertOne(ctx, t, rec, index, &nextRow); err != nil {
			e.logger.Error("Failed to upsert record", "eventID", rec.EventID, "error", err)
			result.Errors++
			result.Details = append(result.Details, fmt.Sprintf("upsert %s: %v", rec.EventID, err))
			continue
		}
		result.Upserted++
	}
	return result, nil
}

func (e *Engine) upsertOne(ctx context.Context, t Table, rec *models.BookingRecord, index map[string]int, nextRow *int) error {
	row := rec.Row()
	if rowNum, ok := index[rec.EventID]; ok {
		e.logger.Debug("Updating existing row", "eventID", rec.EventID, "row", rowNum)
		return t.UpdateRow(ctx, rowNum, row)
	}
	e.logger.Debug("Appending new row", "eventID", rec.EventID)
	if err := t.AppendRow(ctx, row); err != nil {
		return err
	}
	// Keep the index current so a duplicate key later in the same batch
	// updates instead of appending again.
	index[rec.EventID] = *nextRow
	*nextRow++
	return nil
}

// buildIndex maps identity key to 1-based row position, skipping the header.
func buildIndex(rows [][]string) map[string]int {
	index := make(map[string]int)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) > 0 && row[0] != "" {
			index[row[0]] = i + 1
		}
	}
	return index
}

// UpsertReduced writes a record to the reduced four-column worksheet.
// Matching order: identity key first; when no row carries the key, a row with
// the same date and the same resolved person-names string is treated as the
// same booking. Only then is a new row appended.
func (e *Engine) UpsertReduced(ctx context.Context, t Table, rec *models.BookingRecord) error {
	rows, err := t.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reduced rows: %w", err)
	}

	date := rec.StartTime.Format(models.DateLayout)
	persons := models.JoinNames(rec.PersonNames)

	target := 0
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) > 0 && row[0] == rec.EventID && rec.EventID != "" {
			target = i + 1
			break
		}
	}
	if target == 0 {
		for i, row := range rows {
			if i == 0 {
				continue
			}
			if len(row) >= 4 && row[1] == date && row[3] == persons {
				target = i + 1
				e.logger.Info("Matched reduced row by date and person names", "row", target)
				break
			}
		}
	}

	newRow := rec.ReducedRow()
	if target > 0 {
		e.logger.Debug("Updating reduced row", "eventID", rec.EventID, "row", target)
		return t.UpdateRow(ctx, target, newRow)
	}
	e.logger.Debug("Appending reduced row", "eventID", rec.EventID)
	return t.AppendRow(ctx, newRow)
}

// Cleanup deletes every row whose last-updated timestamp is older than the
// horizon. This is a separate, explicit retention operation and irreversible.
func (e *Engine) Cleanup(ctx context.Context, t Table, horizon time.Time, loc *time.Location) (removed, checked int, err error) {
	rows, err := t.ReadAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read rows for cleanup: %w", err)
	}

	var stale []int
	for i, row := range rows {
		if i == 0 {
			continue
		}
		checked++
		if len(row) < 13 || row[12] == "" {
			continue
		}
		updated, parseErr := time.ParseInLocation(models.TimestampLayout, row[12], loc)
		if parseErr != nil {
			e.logger.Warn("Could not parse updated_at, keeping row", "row", i+1, "value", row[12])
			continue
		}
		if updated.Before(horizon) {
			stale = append(stale, i+1)
		}
	}

	// Delete bottom-up so earlier row positions stay valid.
	for i := len(stale) - 1; i >= 0; i-- {
		rowNum := stale[i]
		if err := t.DeleteRows(ctx, rowNum, rowNum); err != nil {
			e.logger.Error("Failed to delete stale row", "row", rowNum, "error", err)
			continue
		}
		removed++
	}
	return removed, checked, nil
}
