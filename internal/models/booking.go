package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Lifecycle statuses a booking record may carry.
const (
	StatusActive    = "active"
	StatusRemoved   = "removed"
	StatusCancelled = "cancelled"
)

// TimestampLayout is the cell format for start/end/updated timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the cell format for the reduced sheet's date column.
const DateLayout = "2006-01-02"

// Headers of the full booking worksheet, in column order.
var BookingHeaders = []string{
	"event_id", "title", "company_name", "person_names",
	"start_datetime", "end_datetime", "timezone",
	"attendees", "location", "source_calendar",
	"extracted_confidence", "status", "updated_at", "run_id",
}

// Headers of the reduced worksheet, in column order.
var ReducedHeaders = []string{"event_id", "date", "company_name", "person_names"}

// ExtractionCandidate is one extractor's opinion about an event.
// Instances are never mutated after creation; merging produces a new one.
type ExtractionCandidate struct {
	CompanyName string   // empty means no company was found
	PersonNames []string // order is not significant
	Confidence  float64  // in [0.0, 1.0]
}

// BookingRecord is one persisted row of the booking worksheet.
type BookingRecord struct {
	EventID        string
	Title          string
	CompanyName    string
	PersonNames    []string
	StartTime      time.Time
	EndTime        time.Time
	Timezone       string
	Attendees      []Attendee
	Location       string
	SourceCalendar string
	Confidence     float64
	Status         string
	UpdatedAt      time.Time
	RunID          string
}

// PersonNamesJSON returns the serialized person-name list as stored in a cell.
func (r *BookingRecord) PersonNamesJSON() string {
	return marshalList(r.PersonNames)
}

// AttendeesJSON returns the serialized attendee list as stored in a cell.
func (r *BookingRecord) AttendeesJSON() string {
	if len(r.Attendees) == 0 {
		return "[]"
	}
	b, err := json.Marshal(r.Attendees)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func marshalList(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Row converts the record to the full worksheet's column order.
// List fields are serialized here; everywhere else they stay structured.
func (r *BookingRecord) Row() []string {
	confidence := ""
	if r.Confidence > 0 {
		confidence = strconv.FormatFloat(r.Confidence, 'f', 2, 64)
	}
	return []string{
		r.EventID,
		r.Title,
		r.CompanyName,
		r.PersonNamesJSON(),
		r.StartTime.Format(TimestampLayout),
		r.EndTime.Format(TimestampLayout),
		r.Timezone,
		r.AttendeesJSON(),
		r.Location,
		r.SourceCalendar,
		confidence,
		r.Status,
		r.UpdatedAt.Format(TimestampLayout),
		r.RunID,
	}
}

// ReducedRow converts the record to the reduced worksheet's column order.
func (r *BookingRecord) ReducedRow() []string {
	return []string{
		r.EventID,
		r.StartTime.Format(DateLayout),
		r.CompanyName,
		JoinNames(r.PersonNames),
	}
}

// JoinNames renders a person-name list the way the reduced sheet stores it.
func JoinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// RecordFromRow parses a full worksheet row back into a BookingRecord.
// Rows that do not parse are malformed upstream data and reported as an error.
func RecordFromRow(row []string, loc *time.Location) (BookingRecord, error) {
	rec := BookingRecord{}
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	rec.EventID = cell(0)
	rec.Title = cell(1)
	rec.CompanyName = cell(2)
	if err := json.Unmarshal([]byte(orEmptyList(cell(3))), &rec.PersonNames); err != nil {
		return rec, err
	}
	start, err := time.ParseInLocation(TimestampLayout, cell(4), loc)
	if err != nil {
		return rec, err
	}
	rec.StartTime = start
	end, err := time.ParseInLocation(TimestampLayout, cell(5), loc)
	if err != nil {
		return rec, err
	}
	rec.EndTime = end
	rec.Timezone = cell(6)
	if err := json.Unmarshal([]byte(orEmptyList(cell(7))), &rec.Attendees); err != nil {
		return rec, err
	}
	rec.Location = cell(8)
	rec.SourceCalendar = cell(9)
	if c := cell(10); c != "" {
		conf, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return rec, err
		}
		rec.Confidence = conf
	}
	rec.Status = cell(11)
	if u := cell(12); u != "" {
		updated, err := time.ParseInLocation(TimestampLayout, u, loc)
		if err != nil {
			return rec, err
		}
		rec.UpdatedAt = updated
	}
	rec.RunID = cell(13)
	return rec, nil
}

func orEmptyList(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}

// SyncRun summarizes one synchronization pass. Finalized at run end and
// immutable thereafter; used only for reporting.
type SyncRun struct {
	RunID         string
	StartTime     time.Time
	EndTime       time.Time
	TotalEvents   int
	MatchedEvents int
	Upserted      int
	Skipped       int
	Errors        int
	ErrorDetails  []string
}

// Duration reports the elapsed wall time of the pass.
func (s *SyncRun) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// SuccessRate reports the share of fetched events that were upserted or skipped.
func (s *SyncRun) SuccessRate() float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return float64(s.Upserted+s.Skipped) / float64(s.TotalEvents)
}
