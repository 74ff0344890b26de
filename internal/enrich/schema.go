package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
)

// EventEnrichment is the per-event output the model must return. Fields
// failing validation disqualify the event's enrichment; the rule-engine
// values stand instead.
type EventEnrichment struct {
	EventID    string   `json:"event_id"`
	Summary    string   `json:"summary"`
	Severity   int      `json:"severity"`   // 1-5
	Confidence int      `json:"confidence"` // 1-5
	Needs      []string `json:"needs,omitempty"`
	Claims     []Claim  `json:"claims,omitempty"`
}

// Claim is one model assertion with its supporting citation.
type Claim struct {
	Text     string         `json:"text"`
	Citation dedup.Citation `json:"citation"`
}

// ParseBatch decodes the model's JSON output for a batch. The output must be
// a JSON array of enrichments; markdown fences around it are tolerated.
func ParseBatch(content string) ([]EventEnrichment, error) {
	content = stripFences(content)

	var out []EventEnrichment
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("enrichment output is not a JSON array: %w", err)
	}
	return out, nil
}

// Validate checks one enrichment against its event. Returns an error naming
// the first violation.
func (en EventEnrichment) Validate(event dedup.EventRecord) error {
	if en.EventID != event.EventID {
		return fmt.Errorf("event id mismatch: %q", en.EventID)
	}
	if strings.TrimSpace(en.Summary) == "" {
		return fmt.Errorf("empty summary")
	}
	if en.Severity < 1 || en.Severity > 5 {
		return fmt.Errorf("severity %d out of range", en.Severity)
	}
	if en.Confidence < 1 || en.Confidence > 5 {
		return fmt.Errorf("confidence %d out of range", en.Confidence)
	}
	return nil
}

// LockClaims drops every claim whose citation fails the quote lock against
// the source texts. Returns the surviving claims and the drop count.
func LockClaims(claims []Claim, sourceTexts map[string]string) ([]Claim, int) {
	var kept []Claim
	dropped := 0
	for _, claim := range claims {
		if err := VerifyCitation(claim.Citation, sourceTexts); err != nil {
			dropped++
			continue
		}
		kept = append(kept, claim)
	}
	return kept, dropped
}

// VerifyCitation enforces the quote lock: the cited quote must equal, byte
// for byte, the span [QuoteStart, QuoteEnd) of the source text at the cited
// URL. Off-by-one spans and paraphrases are rejected.
func VerifyCitation(cit dedup.Citation, sourceTexts map[string]string) error {
	text, ok := sourceTexts[cit.URL]
	if !ok {
		return fmt.Errorf("cited url not in evidence: %s", cit.URL)
	}
	if cit.Quote == "" {
		return fmt.Errorf("empty quote")
	}
	if cit.QuoteStart < 0 || cit.QuoteEnd > len(text) || cit.QuoteStart >= cit.QuoteEnd {
		return fmt.Errorf("quote span [%d,%d) out of bounds", cit.QuoteStart, cit.QuoteEnd)
	}
	if text[cit.QuoteStart:cit.QuoteEnd] != cit.Quote {
		return fmt.Errorf("quote does not match source span")
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
