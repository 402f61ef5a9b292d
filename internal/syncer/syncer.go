// Package syncer orchestrates one synchronization pass: fetch events,
// extract and normalize entities, and reconcile the results into storage.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"bookingsync/internal/config"
	"bookingsync/internal/export"
	"bookingsync/internal/extract"
	"bookingsync/internal/models"
	"bookingsync/internal/normalize"
	"bookingsync/internal/reconcile"
)

// maxErrorDetails bounds the error sample carried in a run summary.
const maxErrorDetails = 20

// EventSource supplies raw events and accepts event creation and updates.
type EventSource interface {
	Events(ctx context.Context, from, to time.Time) ([]*models.Event, error)
	Event(ctx context.Context, id string) (*models.Event, error)
	CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error)
	UpdateEvent(ctx context.Context, id, title string, start, end time.Time) error
}

// Store persists rows and answers worksheet queries.
type Store interface {
	EnsureWorksheet(ctx context.Context, title string, headers []string) error
	EnsureReducedWorksheet(ctx context.Context, title string) error
	Table(title string) reconcile.Table
}

// Syncer runs synchronization passes. Events within a pass are processed
// strictly sequentially; at most one pass is expected to run at a time
// against a given table.
type Syncer struct {
	logger *slog.Logger
	source EventSource
	store  Store
	engine *reconcile.Engine
	hybrid *extract.Hybrid
	cfg    *config.Config
	loc    *time.Location
	filter *regexp.Regexp
	dicts  extract.Dictionaries
	dryRun bool
}

// NewSyncer creates a Syncer.
func NewSyncer(logger *slog.Logger, source EventSource, store Store, hybrid *extract.Hybrid, cfg *config.Config, loc *time.Location, dryRun bool) (*Syncer, error) {
	filter, err := regexp.Compile(cfg.EventFilter.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid event filter pattern %q: %w", cfg.EventFilter.Pattern, err)
	}
	return &Syncer{
		logger: logger,
		source: source,
		store:  store,
		engine: reconcile.NewEngine(logger),
		hybrid: hybrid,
		cfg:    cfg,
		loc:    loc,
		filter: filter,
		dicts: extract.Dictionaries{
			DomainCompanies: cfg.Extraction.DomainCompanies,
		},
		dryRun: dryRun,
	}, nil
}

// Sync performs a full synchronization pass over the given time window and
// returns the run summary. Only a failed event fetch or an unopenable table
// aborts the pass; every other failure is recorded and the pass continues.
func (s *Syncer) Sync(ctx context.Context, from, to time.Time, runID string) (*models.SyncRun, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	run := &models.SyncRun{RunID: runID, StartTime: time.Now()}
	finish := func() {
		run.EndTime = time.Now()
		run.Skipped = run.TotalEvents - run.MatchedEvents
	}
	s.logger.Info("Starting sync pass", "runID", runID, "from", from, "to", to)

	if err := s.store.EnsureWorksheet(ctx, s.cfg.Spreadsheet.SheetName, models.BookingHeaders); err != nil {
		s.recordError(run, fmt.Sprintf("open table: %v", err))
		finish()
		return run, fmt.Errorf("failed to open booking table: %w", err)
	}
	if s.cfg.Spreadsheet.ReducedMode {
		if err := s.store.EnsureReducedWorksheet(ctx, s.cfg.Spreadsheet.ReducedSheetName); err != nil {
			s.recordError(run, fmt.Sprintf("open reduced table: %v", err))
			finish()
			return run, fmt.Errorf("failed to open reduced table: %w", err)
		}
	}

	events, err := s.source.Events(ctx, from, to)
	if err != nil {
		// No partial event set is trustworthy; abort the pass.
		s.recordError(run, fmt.Sprintf("fetch events: %v", err))
		finish()
		return run, fmt.Errorf("failed to fetch events: %w", err)
	}
	run.TotalEvents = len(events)

	var records []*models.BookingRecord
	for _, ev := range events {
		if !s.filter.MatchString(ev.Title) {
			s.logger.Debug("Event does not match inclusion filter", "title", ev.Title)
			continue
		}
		run.MatchedEvents++

		rec, problems := s.processEvent(ctx, ev, runID)
		for _, p := range problems {
			s.recordError(run, p)
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	if s.dryRun {
		for _, rec := range records {
			s.logger.Info("[DRY RUN] Would upsert record", "eventID", rec.EventID, "company", rec.CompanyName, "persons", rec.PersonNames)
		}
		finish()
		return run, nil
	}

	table := s.store.Table(s.cfg.Spreadsheet.SheetName)
	result, err := s.engine.Upsert(ctx, table, records)
	if err != nil {
		s.recordError(run, fmt.Sprintf("reconcile: %v", err))
	}
	run.Upserted += result.Upserted
	for _, detail := range result.Details {
		s.recordError(run, detail)
	}

	if s.cfg.Spreadsheet.ReducedMode {
		reduced := s.store.Table(s.cfg.Spreadsheet.ReducedSheetName)
		for _, rec := range records {
			if err := s.engine.UpsertReduced(ctx, reduced, rec); err != nil {
				s.recordError(run, fmt.Sprintf("reduced upsert %s: %v", rec.EventID, err))
			}
		}
	}

	s.refreshCompanyDictionary(ctx, table)

	finish()
	s.logger.Info("Sync pass finished",
		"runID", runID,
		"total", run.TotalEvents,
		"matched", run.MatchedEvents,
		"upserted", run.Upserted,
		"skipped", run.Skipped,
		"errors", run.Errors)
	return run, nil
}

// processEvent turns one event into a validated booking record. A nil record
// means the event contributes nothing to this pass; the returned problems are
// reported on the run.
func (s *Syncer) processEvent(ctx context.Context, ev *models.Event, runID string) (*models.BookingRecord, []string) {
	candidate := s.hybrid.Extract(ctx, ev, s.dicts)
	normalized := normalize.Candidate(candidate)
	now := time.Now().In(s.loc)

	rec := &models.BookingRecord{
		EventID:        ev.ID,
		Title:          ev.Title,
		CompanyName:    normalized.CompanyName,
		PersonNames:    normalized.PersonNames,
		StartTime:      ev.StartTime.In(s.loc),
		EndTime:        ev.EndTime.In(s.loc),
		Timezone:       s.loc.String(),
		Attendees:      ev.Attendees,
		Location:       ev.Location,
		SourceCalendar: ev.SourceCalendar,
		Confidence:     normalized.Confidence,
		Status:         models.StatusActive,
		UpdatedAt:      now,
		RunID:          runID,
	}

	validation := normalize.ValidateRecord(rec, now)
	for _, warning := range validation.Warnings {
		s.logger.Info("Record validation warning", "eventID", ev.ID, "warning", warning)
	}
	if !validation.Valid() {
		var problems []string
		for _, e := range validation.Errors {
			problems = append(problems, fmt.Sprintf("validate %s: %s", ev.ID, e))
		}
		return nil, problems
	}
	return rec, nil
}

// refreshCompanyDictionary rebuilds the known-company set from the full
// persisted table. Deliberately pass-granular: a one-pass-old view is
// acceptable in exchange for avoiding a lookup per event.
func (s *Syncer) refreshCompanyDictionary(ctx context.Context, table reconcile.Table) {
	rows, err := table.ReadAll(ctx)
	if err != nil {
		s.logger.Warn("Could not refresh company dictionary", "error", err)
		return
	}
	seen := make(map[string]struct{})
	var companies []string
	for i, row := range rows {
		if i == 0 || len(row) < 3 || row[2] == "" {
			continue
		}
		if _, dup := seen[row[2]]; dup {
			continue
		}
		seen[row[2]] = struct{}{}
		companies = append(companies, row[2])
	}
	s.dicts.KnownCompanies = companies
	s.logger.Info("Refreshed company dictionary", "count", len(companies))
}

func (s *Syncer) recordError(run *models.SyncRun, detail string) {
	run.Errors++
	if len(run.ErrorDetails) < maxErrorDetails {
		run.ErrorDetails = append(run.ErrorDetails, detail)
	}
}

// Status reports backend reachability and table size.
type Status struct {
	Ready         bool
	CalendarOK    bool
	CalendarError string
	StorageOK     bool
	StorageError  string
	TableRows     int
	CheckedAt     time.Time
}

// Status checks that both backends are reachable.
func (s *Syncer) Status(ctx context.Context) *Status {
	status := &Status{CheckedAt: time.Now()}

	if checker, ok := s.source.(interface {
		CheckAccess(ctx context.Context) error
	}); ok {
		if err := checker.CheckAccess(ctx); err != nil {
			status.CalendarError = err.Error()
		} else {
			status.CalendarOK = true
		}
	} else {
		status.CalendarOK = true
	}

	rows, err := s.store.Table(s.cfg.Spreadsheet.SheetName).ReadAll(ctx)
	if err != nil {
		status.StorageError = err.Error()
	} else {
		status.StorageOK = true
		status.TableRows = len(rows)
	}

	status.Ready = status.CalendarOK && status.StorageOK
	return status
}

// Cleanup deletes records whose last update is older than the given number
// of days. Irreversible; separate from ordinary reconciliation.
func (s *Syncer) Cleanup(ctx context.Context, days int) (removed, checked int, err error) {
	horizon := time.Now().In(s.loc).AddDate(0, 0, -days)
	table := s.store.Table(s.cfg.Spreadsheet.SheetName)
	return s.engine.Cleanup(ctx, table, horizon, s.loc)
}

// Export renders the persisted table in the requested format.
func (s *Syncer) Export(ctx context.Context, format string) (string, error) {
	rows, err := s.store.Table(s.cfg.Spreadsheet.SheetName).ReadAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read table for export: %w", err)
	}
	return export.Render(rows, format, s.loc)
}

// Push writes reduced-sheet rows back to the calendar: rows with an identity
// key update their event, rows without one create an event (default
// 13:00-14:00 slot) and receive the new identity key in column A.
func (s *Syncer) Push(ctx context.Context) (created, updated int, err error) {
	if err := s.store.EnsureReducedWorksheet(ctx, s.cfg.Spreadsheet.ReducedSheetName); err != nil {
		return 0, 0, fmt.Errorf("failed to open reduced table: %w", err)
	}
	table := s.store.Table(s.cfg.Spreadsheet.ReducedSheetName)
	rows, err := table.ReadAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read reduced table: %w", err)
	}

	for i, row := range rows {
		if i == 0 || len(row) < 2 || row[1] == "" {
			continue
		}
		cell := func(j int) string {
			if j < len(row) {
				return row[j]
			}
			return ""
		}
		eventID, dateStr, company, persons := cell(0), cell(1), cell(2), cell(3)

		date, parseErr := time.ParseInLocation(models.DateLayout, dateStr, s.loc)
		if parseErr != nil {
			s.logger.Warn("Skipping reduced row with unparseable date", "row", i+1, "date", dateStr)
			continue
		}
		start := time.Date(date.Year(), date.Month(), date.Day(), 13, 0, 0, 0, s.loc)
		end := start.Add(time.Hour)

		title := "【B】" + persons
		if company != "" {
			title = "【B】" + company + "・" + persons
		}

		if eventID != "" {
			if err := s.source.UpdateEvent(ctx, eventID, title, start, end); err != nil {
				s.logger.Error("Failed to update event from reduced row", "row", i+1, "error", err)
				continue
			}
			updated++
			continue
		}

		newID, err := s.source.CreateEvent(ctx, title, start, end)
		if err != nil {
			s.logger.Error("Failed to create event from reduced row", "row", i+1, "error", err)
			continue
		}
		if err := table.UpdateRow(ctx, i+1, []string{newID, dateStr, company, persons}); err != nil {
			s.logger.Error("Failed to write back new event id", "row", i+1, "error", err)
			continue
		}
		created++
	}
	return created, updated, nil
}
