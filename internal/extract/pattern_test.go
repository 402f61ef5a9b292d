package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bookingsync/internal/models"
)

func testEvent(title, description string, attendees ...models.Attendee) *models.Event {
	return &models.Event{
		ID:          "ev-1",
		Title:       title,
		Description: description,
		StartTime:   time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Attendees:   attendees,
	}
}

func TestMatchesInclusionFilter(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"【B】株式会社サンプル / 面談", true},
		{"  【B】打合せ", true},
		{"　【B】打合せ", true},
		{"【B】", true},
		{"打合せ 【B】", false},
		{"定例ミーティング", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesInclusionFilter(tt.title), "title %q", tt.title)
	}
}

func TestStripInclusionPrefix(t *testing.T) {
	assert.Equal(t, "株式会社サンプル", StripInclusionPrefix("【B】株式会社サンプル"))
	assert.Equal(t, "打合せ", StripInclusionPrefix("　【B】打合せ"))
	assert.Equal(t, "そのまま", StripInclusionPrefix("そのまま"))
}

func TestPatternCompanyFromTitleHead(t *testing.T) {
	ev := testEvent("【B】株式会社サンプル / 田中様 / オンライン面談", "",
		models.Attendee{DisplayName: "田中太郎", Email: "tanaka@example.com"})

	got := Pattern(ev, Dictionaries{})

	assert.Equal(t, "株式会社サンプル", got.CompanyName)
	assert.Contains(t, got.PersonNames, "田中太郎")
	// Suffix-bearing company (0.4) plus multiple persons (0.5).
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestPatternEmptyEvent(t *testing.T) {
	got := Pattern(testEvent("", ""), Dictionaries{})

	assert.Empty(t, got.CompanyName)
	assert.Empty(t, got.PersonNames)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestPatternCompanyFromSuffixInDescription(t *testing.T) {
	ev := testEvent("【B】1on1", "フーバー合同会社との商談")

	got := Pattern(ev, Dictionaries{})

	assert.Equal(t, "フーバー合同会社", got.CompanyName)
	assert.InDelta(t, 0.4, got.Confidence, 1e-9)
}

func TestPatternCompanyFromDomainMapping(t *testing.T) {
	dicts := Dictionaries{DomainCompanies: map[string]string{"example.co.jp": "Example"}}
	ev := testEvent("【B】mtg", "tanaka@example.co.jp")

	got := Pattern(ev, dicts)

	assert.Equal(t, "Example", got.CompanyName)
	// Company resolved through the domain mapping only.
	assert.InDelta(t, 0.2, got.Confidence, 1e-9)
}

func TestPatternCompanyFromKnownCompanies(t *testing.T) {
	dicts := Dictionaries{KnownCompanies: []string{"アクメ商事"}}
	ev := testEvent("【B】sync", "アクメ商事との契約更新")

	got := Pattern(ev, dicts)

	assert.Equal(t, "アクメ商事", got.CompanyName)
	assert.InDelta(t, 0.3, got.Confidence, 1e-9)
}

func TestPatternCompanyFuzzyMatch(t *testing.T) {
	dicts := Dictionaries{KnownCompanies: []string{"Salesforce"}}
	// One dropped letter still resolves to the known company.
	ev := testEvent("【B】sync", "Salesforc meeting")

	got := Pattern(ev, dicts)

	assert.Equal(t, "Salesforce", got.CompanyName)
}

func TestPatternTitleHeadBeatsOtherSources(t *testing.T) {
	dicts := Dictionaries{KnownCompanies: []string{"アクメ商事"}}
	ev := testEvent("【B】株式会社サンプル / 打合せ", "アクメ商事")

	got := Pattern(ev, dicts)

	assert.Equal(t, "株式会社サンプル", got.CompanyName)
}

func TestPatternPersonShapes(t *testing.T) {
	t.Run("honorific in text", func(t *testing.T) {
		got := Pattern(testEvent("【B】mtg", "佐藤さんと打合せ"), Dictionaries{})
		assert.Contains(t, got.PersonNames, "佐藤さん")
	})

	t.Run("spaced full name", func(t *testing.T) {
		got := Pattern(testEvent("【B】mtg", "山田　太郎"), Dictionaries{})
		assert.Contains(t, got.PersonNames, "山田 太郎")
	})

	t.Run("attendee display name", func(t *testing.T) {
		got := Pattern(testEvent("【B】mtg", "", models.Attendee{DisplayName: "鈴木一郎"}), Dictionaries{})
		assert.Contains(t, got.PersonNames, "鈴木一郎")
	})

	t.Run("email-shaped attendee is rejected", func(t *testing.T) {
		got := Pattern(testEvent("【B】mtg", "", models.Attendee{DisplayName: "suzuki@example.com"}), Dictionaries{})
		assert.Empty(t, got.PersonNames)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		got := Pattern(testEvent("【B】mtg 田中太郎", "", models.Attendee{DisplayName: "田中太郎"}), Dictionaries{})
		count := 0
		for _, n := range got.PersonNames {
			if n == "田中太郎" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestScoreConfidenceLongTextBonus(t *testing.T) {
	long := strings.Repeat("ロングテキスト", 8) // 56 runes, past the bonus threshold
	short := "短い"
	assert.InDelta(t, 0.1, scoreConfidence("", nil, long, Dictionaries{}), 1e-9)
	assert.Equal(t, 0.0, scoreConfidence("", nil, short, Dictionaries{}))
}

func TestScoreConfidenceCap(t *testing.T) {
	long := strings.Repeat("ロングテキスト", 8)
	got := scoreConfidence("株式会社サンプル", []string{"田中", "佐藤"}, long, Dictionaries{})
	assert.Equal(t, 1.0, got)
}
