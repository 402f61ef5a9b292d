package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"bookingsync/internal/llm"
	"bookingsync/internal/models"
)

// stubProvider returns a canned response or error.
type stubProvider struct {
	response string
	err      error
	prompts  []string
}

func (p *stubProvider) Complete(_ context.Context, prompt string, _ llm.CompletionOpts) (string, error) {
	p.prompts = append(p.prompts, prompt)
	return p.response, p.err
}

func (p *stubProvider) Name() string { return "stub" }

func TestModelExtractorParsesFencedJSON(t *testing.T) {
	provider := &stubProvider{response: "ご確認ください。\n```json\n{\"company_name\": \"株式会社テスト\", \"person_names\": [\"田中\"], \"confidence\": 0.85}\n```"}
	m := NewModelExtractor(provider, discardLogger())

	got := m.Extract(context.Background(), testEvent("【B】mtg", ""))

	assert.Equal(t, "株式会社テスト", got.CompanyName)
	assert.Equal(t, []string{"田中"}, got.PersonNames)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestModelExtractorParsesBareJSON(t *testing.T) {
	provider := &stubProvider{response: `{"company_name": null, "person_names": ["佐藤"], "confidence": 0.6}`}
	m := NewModelExtractor(provider, discardLogger())

	got := m.Extract(context.Background(), testEvent("【B】mtg", ""))

	assert.Empty(t, got.CompanyName)
	assert.Equal(t, []string{"佐藤"}, got.PersonNames)
	assert.Equal(t, 0.6, got.Confidence)
}

func TestModelExtractorDegradesOnGarbage(t *testing.T) {
	provider := &stubProvider{response: "すみません、JSONを生成できませんでした。"}
	m := NewModelExtractor(provider, discardLogger())

	got := m.Extract(context.Background(), testEvent("【B】mtg", ""))

	assert.Equal(t, models.ExtractionCandidate{}, got)
}

func TestModelExtractorDegradesOnProviderError(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("backend unavailable")}
	m := NewModelExtractor(provider, discardLogger())

	got := m.Extract(context.Background(), testEvent("【B】mtg", ""))

	assert.Equal(t, models.ExtractionCandidate{}, got)
}

func TestModelExtractorNilProvider(t *testing.T) {
	m := NewModelExtractor(nil, discardLogger())

	got := m.Extract(context.Background(), testEvent("【B】mtg", ""))

	assert.Equal(t, models.ExtractionCandidate{}, got)
}

func TestParseResponseNullStringCompany(t *testing.T) {
	got, err := parseResponse(`{"company_name": "null", "person_names": [], "confidence": 0.2}`)
	assert.NoError(t, err)
	assert.Empty(t, got.CompanyName)
}

func TestParseResponseClampsConfidence(t *testing.T) {
	got, err := parseResponse(`{"company_name": "X", "person_names": [], "confidence": 1.7}`)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)

	got, err = parseResponse(`{"company_name": "X", "person_names": [], "confidence": -0.3}`)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestBuildPromptCarriesEventFields(t *testing.T) {
	ev := testEvent("【B】株式会社サンプル / 面談", "議題: 契約更新",
		models.Attendee{DisplayName: "田中太郎", Email: "tanaka@example.com"})
	ev.Location = "東京オフィス"

	prompt := buildPrompt(ev)

	assert.Contains(t, prompt, "【B】株式会社サンプル / 面談")
	assert.Contains(t, prompt, "議題: 契約更新")
	assert.Contains(t, prompt, "東京オフィス")
	assert.Contains(t, prompt, "田中太郎")
}

func TestBuildPromptEmptyFields(t *testing.T) {
	prompt := buildPrompt(testEvent("【B】mtg", ""))
	assert.Contains(t, prompt, "なし")
}
