package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *BookingRecord {
	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	return &BookingRecord{
		EventID:        "ev-1",
		Title:          "【B】株式会社サンプル / 田中様",
		CompanyName:    "株式会社サンプル",
		PersonNames:    []string{"田中太郎"},
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Timezone:       "Asia/Tokyo",
		Attendees:      []Attendee{{DisplayName: "田中太郎", Email: "tanaka@example.com"}},
		Location:       "オンライン",
		SourceCalendar: "primary",
		Confidence:     0.9,
		Status:         StatusActive,
		UpdatedAt:      start,
		RunID:          "run-1",
	}
}

func TestRowColumnOrder(t *testing.T) {
	row := sampleRecord().Row()

	require.Len(t, row, len(BookingHeaders))
	assert.Equal(t, "ev-1", row[0])
	assert.Equal(t, "株式会社サンプル", row[2])
	assert.Equal(t, `["田中太郎"]`, row[3])
	assert.Equal(t, "2026-03-10 13:00:00", row[4])
	assert.Equal(t, "2026-03-10 14:00:00", row[5])
	assert.Equal(t, "0.90", row[10])
	assert.Equal(t, "active", row[11])
	assert.Equal(t, "run-1", row[13])
}

func TestRowEmptyConfidenceCell(t *testing.T) {
	rec := sampleRecord()
	rec.Confidence = 0
	assert.Equal(t, "", rec.Row()[10])
}

func TestListCellsAlwaysWellFormed(t *testing.T) {
	rec := &BookingRecord{}
	assert.Equal(t, "[]", rec.PersonNamesJSON())
	assert.Equal(t, "[]", rec.AttendeesJSON())
}

func TestReducedRow(t *testing.T) {
	rec := sampleRecord()
	rec.PersonNames = []string{"田中太郎", "佐藤花子"}

	assert.Equal(t, []string{"ev-1", "2026-03-10", "株式会社サンプル", "田中太郎, 佐藤花子"}, rec.ReducedRow())
}

func TestJoinNames(t *testing.T) {
	assert.Equal(t, "", JoinNames(nil))
	assert.Equal(t, "田中", JoinNames([]string{"田中"}))
	assert.Equal(t, "田中, 佐藤", JoinNames([]string{"田中", "佐藤"}))
}

func TestRecordFromRowRoundTrip(t *testing.T) {
	rec := sampleRecord()

	got, err := RecordFromRow(rec.Row(), time.UTC)

	require.NoError(t, err)
	assert.Equal(t, rec.EventID, got.EventID)
	assert.Equal(t, rec.CompanyName, got.CompanyName)
	assert.Equal(t, rec.PersonNames, got.PersonNames)
	assert.Equal(t, rec.Attendees, got.Attendees)
	assert.True(t, rec.StartTime.Equal(got.StartTime))
	assert.True(t, rec.EndTime.Equal(got.EndTime))
	assert.Equal(t, rec.Confidence, got.Confidence)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.RunID, got.RunID)
}

func TestRecordFromRowMalformed(t *testing.T) {
	t.Run("bad person list", func(t *testing.T) {
		row := sampleRecord().Row()
		row[3] = "not json"
		_, err := RecordFromRow(row, time.UTC)
		assert.Error(t, err)
	})

	t.Run("bad start time", func(t *testing.T) {
		row := sampleRecord().Row()
		row[4] = "yesterday"
		_, err := RecordFromRow(row, time.UTC)
		assert.Error(t, err)
	})

	t.Run("bad confidence", func(t *testing.T) {
		row := sampleRecord().Row()
		row[10] = "high"
		_, err := RecordFromRow(row, time.UTC)
		assert.Error(t, err)
	})
}

func TestSyncRunReporting(t *testing.T) {
	run := &SyncRun{
		StartTime:   time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 10, 13, 0, 30, 0, time.UTC),
		TotalEvents: 10,
		Upserted:    6,
		Skipped:     3,
	}

	assert.Equal(t, 30*time.Second, run.Duration())
	assert.InDelta(t, 0.9, run.SuccessRate(), 1e-9)
	assert.Equal(t, 0.0, (&SyncRun{}).SuccessRate())
}

func TestAttendeeNames(t *testing.T) {
	ev := &Event{Attendees: []Attendee{
		{DisplayName: "田中太郎", Email: "tanaka@example.com"},
		{Email: "anon@example.com"},
		{DisplayName: "佐藤花子"},
	}}

	assert.Equal(t, []string{"田中太郎", "佐藤花子"}, ev.AttendeeNames())
}
