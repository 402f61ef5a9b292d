package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"bookingsync/internal/llm"
	"bookingsync/internal/models"
)

// ModelExtractor asks a text-generation backend for company and person names.
// Every backend or parse failure degrades to a zero-confidence empty
// candidate; it never raises past its own boundary.
type ModelExtractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewModelExtractor creates a model-backed extractor. A nil provider is
// allowed and yields empty candidates.
func NewModelExtractor(provider llm.Provider, logger *slog.Logger) *ModelExtractor {
	return &ModelExtractor{provider: provider, logger: logger}
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// modelPayload is the structured response the prompt demands.
type modelPayload struct {
	CompanyName *string  `json:"company_name"`
	PersonNames []string `json:"person_names"`
	Confidence  float64  `json:"confidence"`
}

// Extract queries the backend for the given event.
func (m *ModelExtractor) Extract(ctx context.Context, ev *models.Event) models.ExtractionCandidate {
	empty := models.ExtractionCandidate{Confidence: 0}
	if m.provider == nil {
		m.logger.Debug("No model backend configured, returning empty candidate")
		return empty
	}

	response, err := m.provider.Complete(ctx, buildPrompt(ev), llm.CompletionOpts{
		MaxTokens:   500,
		Temperature: 0.1,
		Format:      "json",
		System:      "あなたは会社名と人名を正確に抽出するアシスタントです。",
	})
	if err != nil {
		m.logger.Warn("Model extraction failed", "event", ev.ID, "error", err)
		return empty
	}

	candidate, err := parseResponse(response)
	if err != nil {
		m.logger.Warn("Could not parse model response", "event", ev.ID, "error", err)
		return empty
	}
	return candidate
}

// buildPrompt renders the bounded extraction instruction from event fields.
func buildPrompt(ev *models.Event) string {
	description := ev.Description
	if description == "" {
		description = "なし"
	}
	location := ev.Location
	if location == "" {
		location = "なし"
	}
	attendees := "なし"
	if names := ev.AttendeeNames(); len(names) > 0 {
		if b, err := json.Marshal(names); err == nil {
			attendees = string(b)
		}
	}

	return strings.TrimSpace(fmt.Sprintf(`
以下のカレンダーイベントから、実在する会社名と人名だけを抽出して、JSONで返してください。
存在しない推測はせず、見つからなければnullにしてください。

**イベント情報:**
- タイトル: %s
- 説明: %s
- 場所: %s
- 出席者: %s

**抽出ルール:**
1. 会社名: 株式会社、Inc.などの接尾語があるもの、または明らかに企業名と分かるもの
2. 人名: 日本語の姓名、または明らかに人名と分かるもの
3. 架空の名前や推測は禁止
4. 信頼度スコア（0.0-1.0）を付与

**出力形式:**
`+"```json"+`
{
  "company_name": "会社名またはnull",
  "person_names": ["人名1", "人名2"],
  "confidence": 0.85
}
`+"```"+`

**注意:** 必ず有効なJSON形式で返してください。`,
		ev.Title, description, location, attendees))
}

// parseResponse extracts the structured block from a possibly noisy response.
// A fenced block is preferred; otherwise the whole response must parse.
func parseResponse(response string) (models.ExtractionCandidate, error) {
	raw := response
	if m := fencedJSONRe.FindStringSubmatch(response); m != nil {
		raw = m[1]
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return models.ExtractionCandidate{}, fmt.Errorf("decoding model response: %w", err)
	}

	company := ""
	if payload.CompanyName != nil && *payload.CompanyName != "null" {
		company = strings.TrimSpace(*payload.CompanyName)
	}
	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return models.ExtractionCandidate{
		CompanyName: company,
		PersonNames: payload.PersonNames,
		Confidence:  confidence,
	}, nil
}
