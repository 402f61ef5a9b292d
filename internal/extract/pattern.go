// Package extract derives a company name and person names from calendar
// event text, combining layered heuristics with a model-backed fallback.
package extract

import (
	"regexp"
	"strings"

	"github.com/xrash/smetrics"

	"bookingsync/internal/models"
	"bookingsync/internal/normalize"
)

// Dictionaries is the caller-owned lookup state the pattern extractor reads.
// Refreshed between passes, never mutated mid-run.
type Dictionaries struct {
	// KnownCompanies holds company names already present in storage.
	KnownCompanies []string
	// DomainCompanies maps an email domain to a company name.
	DomainCompanies map[string]string
}

// fuzzyMatchThreshold is the minimum similarity for a known-company match.
const fuzzyMatchThreshold = 0.80

// genericBusinessTerms are business-noun endings that mark a title segment
// as a company even without a legal-entity suffix.
var genericBusinessTerms = []string{
	"商事", "工業", "製作所", "不動産", "銀行", "信用金庫", "センター", "研究所",
}

// companyEndings are brandish suffixes that make a 3+ character title
// segment company-shaped.
var companyEndings = []string{
	"プラス", "plus", "Plus",
	"サービス", "service", "Service",
	"ソリューション", "solution", "Solution",
	"クリニック", "clinic", "Clinic",
}

var (
	inclusionPrefixRe = regexp.MustCompile(`^[\s　]*【B】`)
	titleDelimiterRe  = regexp.MustCompile(`[|/／・×x—~〜-]`)
	emailAddressRe    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	kanjiNameRe    = regexp.MustCompile(`^[一-龯]{2,4}$`)
	hiraganaNameRe = regexp.MustCompile(`^[あ-ん]{2,6}$`)
	katakanaNameRe = regexp.MustCompile(`^[ア-ン]{2,6}$`)

	honorificNameRe  = regexp.MustCompile(`[一-龯]{1,4}(様|さん|先生|氏)`)
	spacedFullNameRe = regexp.MustCompile(`([一-龯]{1,3})[　\s]([一-龯]{1,3})(様|さん|先生|氏)?`)
	kanaHonorificRe  = regexp.MustCompile(`[ぁ-んァ-ヶー]{2,10}(さん|様)`)

	scriptPlusRe    = regexp.MustCompile(`^([ァ-ヶー]+|[あ-ん]+|[一-龯]+)([Pp]lus|プラス)`)
	katakanaOnlyRe  = regexp.MustCompile(`^[ァ-ヶー]{3,}$`)
	hiraganaOnlyRe  = regexp.MustCompile(`^[あ-ん]{3,}$`)
	fieldSplitterRe = regexp.MustCompile(`[　\s]+`)
)

// suffixCaptureRes match "token + legal-entity suffix" anywhere in text,
// one compiled pattern per suffix.
var suffixCaptureRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(normalize.CompanySuffixes))
	for _, suffix := range normalize.CompanySuffixes {
		res = append(res, regexp.MustCompile(`[^　\s]+`+regexp.QuoteMeta(suffix)))
	}
	return res
}()

// MatchesInclusionFilter reports whether a title carries the booking marker
// prefix that selects events for synchronization.
func MatchesInclusionFilter(title string) bool {
	return inclusionPrefixRe.MatchString(title)
}

// StripInclusionPrefix removes the booking marker prefix from a title.
func StripInclusionPrefix(title string) string {
	return strings.TrimSpace(inclusionPrefixRe.ReplaceAllString(title, ""))
}

// Pattern runs the heuristic extractor over an event. It is a pure function
// of the event and the supplied dictionaries: no network calls, deterministic
// output, confidence per the additive scoring rules.
func Pattern(ev *models.Event, dicts Dictionaries) models.ExtractionCandidate {
	text := collectText(ev)
	company := extractCompany(ev.Title, text, dicts)
	persons := extractPersons(text, ev)
	return models.ExtractionCandidate{
		CompanyName: company,
		PersonNames: persons,
		Confidence:  scoreConfidence(company, persons, text, dicts),
	}
}

// collectText concatenates the event fields the heuristics scan.
func collectText(ev *models.Event) string {
	var parts []string
	if ev.Title != "" {
		title := StripInclusionPrefix(ev.Title)
		parts = append(parts, title)
		if head := companyFromTitle(title); head != "" {
			parts = append(parts, head)
		}
	}
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.Location != "" {
		parts = append(parts, ev.Location)
	}
	parts = append(parts, ev.AttendeeNames()...)
	return strings.Join(parts, " ")
}

// extractCompany finds the best company candidate. The title's leading
// segment wins outright; otherwise suffix, domain, and fuzzy candidates are
// pooled and the highest-scoring one kept.
func extractCompany(title, text string, dicts Dictionaries) string {
	if head := companyFromTitle(StripInclusionPrefix(title)); head != "" {
		return head
	}

	var candidates []string
	for _, re := range suffixCaptureRes {
		candidates = append(candidates, re.FindAllString(text, -1)...)
	}
	if domainCompany := companyFromDomain(text, dicts.DomainCompanies); domainCompany != "" {
		candidates = append(candidates, domainCompany)
	}
	if known := closestKnownCompany(text, dicts.KnownCompanies); known != "" {
		candidates = append(candidates, known)
	}

	switch len(candidates) {
	case 0:
		return ""
	case 1:
		return candidates[0]
	}
	return bestScoredCandidate(candidates, text)
}

// companyFromTitle inspects the leading title segment (before the first
// delimiter) for company-shaped text.
func companyFromTitle(title string) string {
	if title == "" {
		return ""
	}
	head := strings.TrimSpace(titleDelimiterRe.Split(title, 2)[0])
	if head == "" {
		return ""
	}
	if normalize.HasCompanySuffix(head) {
		return head
	}
	for _, term := range genericBusinessTerms {
		if strings.Contains(head, term) {
			return head
		}
	}
	if scriptPlusRe.MatchString(head) {
		return head
	}
	if len([]rune(head)) >= 3 {
		for _, ending := range companyEndings {
			if strings.HasSuffix(head, ending) {
				return head
			}
		}
	}
	if katakanaOnlyRe.MatchString(head) || hiraganaOnlyRe.MatchString(head) {
		return head
	}
	return ""
}

// companyFromDomain resolves a company from any email address in the text
// whose domain appears in the mapping.
func companyFromDomain(text string, domains map[string]string) string {
	if len(domains) == 0 {
		return ""
	}
	for _, email := range emailAddressRe.FindAllString(text, -1) {
		at := strings.LastIndex(email, "@")
		if company, ok := domains[email[at+1:]]; ok {
			return company
		}
	}
	return ""
}

// closestKnownCompany returns the known company closest to the text, if its
// similarity reaches the fuzzy threshold. A literal occurrence short-circuits.
func closestKnownCompany(text string, known []string) string {
	best := ""
	bestScore := 0.0
	tokens := fieldSplitterRe.Split(text, -1)
	for _, company := range known {
		if company == "" {
			continue
		}
		if strings.Contains(text, company) {
			return company
		}
		for _, token := range tokens {
			if token == "" {
				continue
			}
			score := smetrics.JaroWinkler(token, company, 0.7, 4)
			if score >= fuzzyMatchThreshold && score > bestScore {
				best = company
				bestScore = score
			}
		}
	}
	return best
}

// bestScoredCandidate ranks pooled candidates by occurrence frequency and
// normalized length.
func bestScoredCandidate(candidates []string, text string) string {
	best := ""
	bestScore := 0.0
	for _, candidate := range candidates {
		frequency := float64(strings.Count(text, candidate))
		lengthScore := float64(len([]rune(candidate))) / 20
		if lengthScore > 1 {
			lengthScore = 1
		}
		score := frequency*0.6 + lengthScore*0.4
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}

// extractPersons collects person names: attendee display names that pass the
// validity predicate are authoritative, then text-mined shapes are added.
// Duplicates are removed by exact identity.
func extractPersons(text string, ev *models.Event) []string {
	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, dup := seen[name]; dup || name == "" {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range ev.AttendeeNames() {
		trimmed := strings.TrimSpace(name)
		if normalize.ValidPersonName(trimmed) {
			add(trimmed)
		}
	}
	for _, name := range minePersonNames(text) {
		add(name)
	}
	return names
}

// minePersonNames applies the fixed shape patterns to the text.
func minePersonNames(text string) []string {
	var names []string

	for _, token := range fieldSplitterRe.Split(text, -1) {
		if kanjiNameRe.MatchString(token) || hiraganaNameRe.MatchString(token) || katakanaNameRe.MatchString(token) {
			names = append(names, token)
		}
	}
	names = append(names, honorificNameRe.FindAllString(text, -1)...)
	for _, m := range spacedFullNameRe.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1]+" "+m[2])
	}
	names = append(names, kanaHonorificRe.FindAllString(text, -1)...)
	return names
}

// scoreConfidence applies the additive confidence rules, capped at 1.0.
func scoreConfidence(company string, persons []string, text string, dicts Dictionaries) float64 {
	confidence := 0.0
	if company != "" {
		switch {
		case normalize.HasCompanySuffix(company):
			confidence += 0.4
		case containsString(dicts.KnownCompanies, company):
			confidence += 0.3
		case anyDomainInText(text, dicts.DomainCompanies):
			confidence += 0.2
		default:
			confidence += 0.1
		}
	}
	if len(persons) > 0 {
		confidence += 0.3
		if len(persons) > 1 {
			confidence += 0.2
		} else {
			confidence += 0.1
		}
	}
	if len([]rune(text)) > 50 {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func anyDomainInText(text string, domains map[string]string) bool {
	for domain := range domains {
		if strings.Contains(text, domain) {
			return true
		}
	}
	return false
}
