// Package normalize canonicalizes extracted strings and validates booking
// records before they are persisted.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"bookingsync/internal/models"
)

// CompanySuffixes are the legal-entity and business suffixes that mark a
// string as a company name rather than a person.
var CompanySuffixes = []string{
	"株式会社", "有限会社", "合同会社", "一般社団法人", "公益社団法人",
	"一般財団法人", "公益財団法人", "社会福祉法人", "学校法人",
	"医療法人", "宗教法人", "特定非営利活動法人",
	"Inc.", "LLC", "Ltd.", "Corp.", "Corporation",
	"Co.", "Company", "Limited",
}

// enclosedEntityForms maps the enclosed CJK abbreviations to their spelled-out
// legal-entity names.
var enclosedEntityForms = map[string]string{
	"㈱": "株式会社",
	"㈲": "有限会社",
	"㈳": "合同会社",
	"㈴": "一般社団法人",
	"㈵": "公益社団法人",
	"㈶": "一般財団法人",
	"㈷": "公益財団法人",
	"㈸": "社会福祉法人",
	"㈹": "学校法人",
	"㈺": "医療法人",
	"㈻": "宗教法人",
	"㈼": "特定非営利活動法人",
}

// dotlessEntitySuffixes are English legal-entity abbreviations that gain a
// trailing dot when they end the name.
var dotlessEntitySuffixes = []string{"Inc", "Ltd", "Corp", "Co"}

// fullwidthForms maps fullwidth punctuation and spacing to halfwidth.
var fullwidthForms = map[string]string{
	"　": " ",
	"（": "(",
	"）": ")",
	"［": "[",
	"］": "]",
}

// roleTerms name activities or roles, not people. A candidate containing one
// is rejected by the validity predicate.
var roleTerms = []string{
	"コーチング", "コーチ", "セラピスト", "カウンセラー",
	"面談", "商談", "打合せ", "打ち合わせ", "ミーティング",
}

var (
	numericOnlyRe    = regexp.MustCompile(`^[0-9]+$`)
	emailRe          = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlRe            = regexp.MustCompile(`^https?://`)
	whitespaceOnlyRe = regexp.MustCompile(`^[　\s]+$`)
)

// CompanyName canonicalizes a company name: trims it, unifies legal-entity
// spellings, and returns "" when nothing is left.
func CompanyName(name string) string {
	normalized := strings.TrimSpace(name)
	for enclosed, spelled := range enclosedEntityForms {
		normalized = strings.ReplaceAll(normalized, enclosed, spelled)
	}
	for _, suffix := range dotlessEntitySuffixes {
		if normalized == suffix || strings.HasSuffix(normalized, " "+suffix) || strings.HasSuffix(normalized, "　"+suffix) {
			normalized += "."
			break
		}
	}
	return strings.TrimSpace(normalized)
}

// PersonName canonicalizes a person name: trims, folds fullwidth punctuation
// to halfwidth, and unifies honorific spellings.
func PersonName(name string) string {
	normalized := strings.TrimSpace(name)
	for full, half := range fullwidthForms {
		normalized = strings.ReplaceAll(normalized, full, half)
	}
	if strings.HasSuffix(normalized, "さま") {
		normalized = strings.TrimSuffix(normalized, "さま") + "様"
	}
	return strings.TrimSpace(normalized)
}

// ValidPersonName reports whether a candidate string can name a person.
// Company markers, contact addresses, and activity nouns are rejected.
func ValidPersonName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	if numericOnlyRe.MatchString(name) || emailRe.MatchString(name) ||
		urlRe.MatchString(name) || whitespaceOnlyRe.MatchString(name) {
		return false
	}
	if strings.Contains(name, "@") {
		return false
	}
	if HasCompanySuffix(name) {
		return false
	}
	for _, term := range roleTerms {
		if strings.Contains(name, term) {
			return false
		}
	}
	return true
}

// HasCompanySuffix reports whether the string contains a legal-entity or
// business suffix.
func HasCompanySuffix(s string) bool {
	for _, suffix := range CompanySuffixes {
		if strings.Contains(s, suffix) {
			return true
		}
	}
	return false
}

// Candidate normalizes an extraction candidate into a result holding only
// canonicalized, valid strings. The confidence carries over untouched.
func Candidate(c models.ExtractionCandidate) models.ExtractionCandidate {
	out := models.ExtractionCandidate{
		CompanyName: CompanyName(c.CompanyName),
		Confidence:  c.Confidence,
	}
	seen := make(map[string]struct{}, len(c.PersonNames))
	for _, name := range c.PersonNames {
		normalized := PersonName(name)
		if normalized == "" || !ValidPersonName(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out.PersonNames = append(out.PersonNames, normalized)
	}
	return out
}

// ValidationResult carries the outcome of record validation. Errors make the
// record unpersistable; warnings are reported but do not block it.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the record may be persisted.
func (v ValidationResult) Valid() bool { return len(v.Errors) == 0 }

// ValidateRecord enforces a booking record's structural invariants.
func ValidateRecord(rec *models.BookingRecord, now time.Time) ValidationResult {
	var result ValidationResult
	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	if rec.EventID == "" {
		fail("event_id is required")
	}
	if rec.Title == "" {
		fail("title is required")
	}
	if rec.StartTime.IsZero() {
		fail("start_datetime is required")
	}
	if rec.EndTime.IsZero() {
		fail("end_datetime is required")
	}
	if !rec.StartTime.IsZero() && !rec.EndTime.IsZero() {
		if !rec.StartTime.Before(rec.EndTime) {
			fail("start_datetime must precede end_datetime")
		}
		if rec.StartTime.Before(now) {
			warn("start_datetime is in the past")
		}
	}
	switch rec.Status {
	case models.StatusActive, models.StatusRemoved, models.StatusCancelled:
	default:
		fail("invalid status: %q", rec.Status)
	}
	if rec.Confidence < 0.5 {
		warn("extraction confidence below 0.5")
	}
	if !wellFormedList(rec.PersonNamesJSON()) {
		fail("person_names does not serialize to a well-formed list")
	}
	if !wellFormedList(rec.AttendeesJSON()) {
		fail("attendees does not serialize to a well-formed list")
	}
	return result
}

func wellFormedList(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
}
