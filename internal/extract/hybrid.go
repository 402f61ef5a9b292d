package extract

import (
	"context"
	"log/slog"

	"bookingsync/internal/models"
)

// DefaultConfidenceThreshold gates fallback invocation when no threshold is
// configured.
const DefaultConfidenceThreshold = 0.8

// Fallback is the model-backed extraction side of the hybrid. It must degrade
// internally: implementations return an empty candidate instead of erroring.
type Fallback interface {
	Extract(ctx context.Context, ev *models.Event) models.ExtractionCandidate
}

// Hybrid arbitrates between the pattern extractor and a model-backed
// fallback. Per event it is in one of two states: heuristic-trusted (the
// pattern result clears the threshold and is returned unchanged) or
// fallback-needed (the model runs and the two results are merged).
type Hybrid struct {
	threshold float64
	fallback  Fallback
	logger    *slog.Logger
}

// NewHybrid creates an arbitrator. A threshold outside (0, 1] falls back to
// the default.
func NewHybrid(threshold float64, fallback Fallback, logger *slog.Logger) *Hybrid {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &Hybrid{threshold: threshold, fallback: fallback, logger: logger}
}

// Extract produces the arbitrated candidate for one event. The fallback is
// only invoked when the heuristic confidence is below the threshold; it is
// the side with external latency and cost.
func (h *Hybrid) Extract(ctx context.Context, ev *models.Event, dicts Dictionaries) models.ExtractionCandidate {
	heuristic := Pattern(ev, dicts)
	if heuristic.Confidence >= h.threshold {
		h.logger.Debug("Heuristic extraction trusted", "event", ev.ID, "confidence", heuristic.Confidence)
		return heuristic
	}

	h.logger.Debug("Heuristic confidence below threshold, invoking fallback",
		"event", ev.ID, "confidence", heuristic.Confidence)
	var fallback models.ExtractionCandidate
	if h.fallback != nil {
		fallback = h.fallback.Extract(ctx, ev)
	}
	// An empty fallback carries no information; the heuristic result stands.
	if fallback.CompanyName == "" && len(fallback.PersonNames) == 0 && fallback.Confidence == 0 {
		return heuristic
	}
	return merge(heuristic, fallback)
}

// merge combines the two extraction sides into a fresh candidate. The
// heuristic side wins ties; the merged confidence weights it 0.6 to 0.4.
func merge(heuristic, fallback models.ExtractionCandidate) models.ExtractionCandidate {
	merged := models.ExtractionCandidate{
		CompanyName: mergeCompany(heuristic, fallback),
		PersonNames: mergePersons(heuristic, fallback),
	}

	confidence := heuristic.Confidence*0.6 + fallback.Confidence*0.4
	hasCompany := merged.CompanyName != ""
	hasPersons := len(merged.PersonNames) > 0
	switch {
	case hasCompany && hasPersons:
		confidence += 0.10
	case hasCompany || hasPersons:
		confidence += 0.05
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	merged.Confidence = confidence
	return merged
}

func mergeCompany(heuristic, fallback models.ExtractionCandidate) string {
	switch {
	case heuristic.CompanyName == "":
		return fallback.CompanyName
	case fallback.CompanyName == "":
		return heuristic.CompanyName
	case fallback.Confidence > heuristic.Confidence:
		return fallback.CompanyName
	default:
		return heuristic.CompanyName
	}
}

func mergePersons(heuristic, fallback models.ExtractionCandidate) []string {
	if len(heuristic.PersonNames) == 0 {
		return append([]string(nil), fallback.PersonNames...)
	}
	if len(fallback.PersonNames) == 0 {
		return append([]string(nil), heuristic.PersonNames...)
	}

	base, extra := heuristic.PersonNames, fallback.PersonNames
	if fallback.Confidence > heuristic.Confidence {
		base, extra = fallback.PersonNames, heuristic.PersonNames
	}

	merged := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(base))
	for _, name := range base {
		seen[name] = struct{}{}
	}
	for _, name := range extra {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			merged = append(merged, name)
		}
	}
	return merged
}
