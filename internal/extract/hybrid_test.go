package extract

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"bookingsync/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingFallback records invocations and returns a canned candidate.
type countingFallback struct {
	calls  int
	result models.ExtractionCandidate
}

func (f *countingFallback) Extract(_ context.Context, _ *models.Event) models.ExtractionCandidate {
	f.calls++
	return f.result
}

func TestHybridSkipsFallbackAboveThreshold(t *testing.T) {
	fallback := &countingFallback{result: models.ExtractionCandidate{CompanyName: "モデル株式会社", Confidence: 0.99}}
	h := NewHybrid(0.8, fallback, discardLogger())

	// Heuristics alone score 0.9 for this event.
	ev := testEvent("【B】株式会社サンプル / 田中様 / オンライン面談", "",
		models.Attendee{DisplayName: "田中太郎", Email: "tanaka@example.com"})
	got := h.Extract(context.Background(), ev, Dictionaries{})

	assert.Equal(t, 0, fallback.calls)
	assert.Equal(t, "株式会社サンプル", got.CompanyName)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestHybridInvokesFallbackBelowThreshold(t *testing.T) {
	fallback := &countingFallback{result: models.ExtractionCandidate{
		CompanyName: "株式会社テスト",
		PersonNames: []string{"田中"},
		Confidence:  0.9,
	}}
	h := NewHybrid(0.8, fallback, discardLogger())

	got := h.Extract(context.Background(), testEvent("【B】mtg", ""), Dictionaries{})

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "株式会社テスト", got.CompanyName)
	assert.Equal(t, []string{"田中"}, got.PersonNames)
	// 0.0*0.6 + 0.9*0.4 plus the both-fields bonus.
	assert.InDelta(t, 0.46, got.Confidence, 1e-9)
}

func TestHybridNilFallback(t *testing.T) {
	h := NewHybrid(0.8, nil, discardLogger())

	got := h.Extract(context.Background(), testEvent("【B】mtg", ""), Dictionaries{})

	assert.Empty(t, got.CompanyName)
	assert.Empty(t, got.PersonNames)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestHybridUnparseableFallbackLeavesHeuristicIntact(t *testing.T) {
	// The model side degrades to an empty candidate on garbage output; the
	// arbitrated result must equal the heuristic result, untouched.
	provider := &stubProvider{response: "ここにJSONはありません"}
	h := NewHybrid(0.8, NewModelExtractor(provider, discardLogger()), discardLogger())

	ev := testEvent("【B】1on1", "フーバー合同会社との商談")
	got := h.Extract(context.Background(), ev, Dictionaries{})

	assert.Equal(t, Pattern(ev, Dictionaries{}), got)
}

func TestMergeHeuristicWinsTies(t *testing.T) {
	heuristic := models.ExtractionCandidate{CompanyName: "現場株式会社", PersonNames: []string{"佐藤"}, Confidence: 0.5}
	fallback := models.ExtractionCandidate{CompanyName: "モデル株式会社", PersonNames: []string{"鈴木"}, Confidence: 0.5}

	got := merge(heuristic, fallback)

	assert.Equal(t, "現場株式会社", got.CompanyName)
	assert.Equal(t, []string{"佐藤", "鈴木"}, got.PersonNames)
}

func TestMergeFallbackWinsOnStrictlyHigherConfidence(t *testing.T) {
	heuristic := models.ExtractionCandidate{CompanyName: "現場株式会社", PersonNames: []string{"佐藤"}, Confidence: 0.4}
	fallback := models.ExtractionCandidate{CompanyName: "モデル株式会社", PersonNames: []string{"鈴木"}, Confidence: 0.6}

	got := merge(heuristic, fallback)

	assert.Equal(t, "モデル株式会社", got.CompanyName)
	assert.Equal(t, []string{"鈴木", "佐藤"}, got.PersonNames)
}

func TestMergeFillsMissingSides(t *testing.T) {
	heuristic := models.ExtractionCandidate{PersonNames: []string{"佐藤"}, Confidence: 0.4}
	fallback := models.ExtractionCandidate{CompanyName: "モデル株式会社", Confidence: 0.2}

	got := merge(heuristic, fallback)

	assert.Equal(t, "モデル株式会社", got.CompanyName)
	assert.Equal(t, []string{"佐藤"}, got.PersonNames)
	// 0.4*0.6 + 0.2*0.4 plus the both-fields bonus.
	assert.InDelta(t, 0.42, got.Confidence, 1e-9)
}

func TestMergeConfidenceClamp(t *testing.T) {
	heuristic := models.ExtractionCandidate{CompanyName: "A株式会社", PersonNames: []string{"佐藤"}, Confidence: 1.0}
	fallback := models.ExtractionCandidate{CompanyName: "A株式会社", PersonNames: []string{"佐藤"}, Confidence: 1.0}

	got := merge(heuristic, fallback)

	assert.Equal(t, 1.0, got.Confidence)
}

func TestNewHybridThresholdFallback(t *testing.T) {
	h := NewHybrid(0, nil, discardLogger())
	assert.Equal(t, DefaultConfidenceThreshold, h.threshold)

	h = NewHybrid(1.5, nil, discardLogger())
	assert.Equal(t, DefaultConfidenceThreshold, h.threshold)

	h = NewHybrid(0.65, nil, discardLogger())
	assert.Equal(t, 0.65, h.threshold)
}
