// Package export renders the persisted booking table as delimited or
// structured text.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"bookingsync/internal/models"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatICal = "ical"
)

// Render converts raw worksheet rows (header first) to the requested format.
func Render(rows [][]string, format string, loc *time.Location) (string, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return renderCSV(rows)
	case FormatJSON:
		return renderJSON(rows)
	case FormatICal:
		return renderICal(rows, loc)
	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

func renderCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.String(), nil
}

func renderJSON(rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "[]", nil
	}
	headers := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				record[header] = row[i]
			} else {
				record[header] = ""
			}
		}
		records = append(records, record)
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}
	return string(b), nil
}

func renderICal(rows [][]string, loc *time.Location) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//bookingsync//EN")

	for i, row := range rows {
		if i == 0 {
			continue
		}
		rec, err := models.RecordFromRow(row, loc)
		if err != nil {
			// Malformed rows are skipped rather than failing the export.
			continue
		}
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, rec.EventID)
		ve.Props.SetText(ical.PropSummary, rec.Title)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, rec.UpdatedAt.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, rec.StartTime)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, rec.EndTime)
		if rec.Location != "" {
			ve.Props.SetText(ical.PropLocation, rec.Location)
		}
		if rec.CompanyName != "" || len(rec.PersonNames) > 0 {
			description := rec.CompanyName
			if len(rec.PersonNames) > 0 {
				if description != "" {
					description += " / "
				}
				description += models.JoinNames(rec.PersonNames)
			}
			ve.Props.SetText(ical.PropDescription, description)
		}
		cal.Children = append(cal.Children, ve)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}
