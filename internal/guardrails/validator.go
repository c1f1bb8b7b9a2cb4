// Package guardrails is the rule-based second pass over synthesized output.
// The synthesizer scores its own answer, and the same process that may
// hallucinate should not be the only judge of whether it did; this package
// re-checks the result against the retrieved evidence without another model
// call.
package guardrails

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/pkg/logger"
)

// Validation thresholds and penalties. Named so they can be reviewed and
// retuned without hunting through the checks.
const (
	MinAnswerChars = 50
	MaxAnswerChars = 5000

	// Answers past this length on thin evidence draw a mild penalty.
	longAnswerChars   = 2000
	thinEvidenceCount = 3

	penaltyShortAnswer   = 0.3
	penaltyLongAnswer    = 0.2
	penaltyNoCitations   = 0.4
	penaltyUnmatchedCite = 0.15
	maxCitePenalty       = 0.5
	penaltyThinEvidence  = 0.1

	// Results below this confidence after penalties escalate to review.
	escalationThreshold = 0.5
)

// honestRefusalPhrases mark an answer that admits the evidence does not
// cover the question. Honest refusal is the desired behavior, not a
// hallucination, so it passes unpenalized.
var honestRefusalPhrases = []string{
	"not found", "not mentioned", "not stated", "not specified",
	"unclear", "cannot determine",
}

// Verdict is the validator's decision: either the (possibly
// confidence-reduced) result is released, or it escalates with reasons.
type Verdict struct {
	Valid   bool
	Result  *evidence.AnalysisResult
	Reasons []string
}

// Validator checks a synthesized result against the chunks it was built
// from. Stateless and deterministic.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the schema, citation-grounding, and hallucination checks,
// applies accumulated penalties, and decides release versus escalation.
// The input result is not mutated; the verdict carries an adjusted copy.
func (v *Validator) Validate(result *evidence.AnalysisResult, chunks []evidence.Chunk) Verdict {
	if result == nil || strings.TrimSpace(result.Answer) == "" {
		return Verdict{Valid: false, Reasons: []string{"empty answer"}}
	}

	adjusted := *result
	adjusted.Confidence = clamp01(adjusted.Confidence)

	// Honest refusal short-circuits: admitting the evidence is silent is
	// the correct output regardless of length or chunk count.
	lower := strings.ToLower(adjusted.Answer)
	for _, phrase := range honestRefusalPhrases {
		if strings.Contains(lower, phrase) {
			return Verdict{Valid: true, Result: &adjusted}
		}
	}

	var reasons []string
	var penalty float64

	if len(adjusted.Answer) < MinAnswerChars {
		reasons = append(reasons, "answer too short")
		penalty += penaltyShortAnswer
	} else if len(adjusted.Answer) > MaxAnswerChars {
		reasons = append(reasons, "answer too long - possible hallucination")
		penalty += penaltyLongAnswer
	}

	if len(adjusted.Citations) == 0 {
		reasons = append(reasons, "no citations provided")
		penalty += penaltyNoCitations
	}

	citeReasons, citePenalty := groundCitations(adjusted.Citations, chunks)
	reasons = append(reasons, citeReasons...)
	penalty += citePenalty

	if len(adjusted.Answer) > longAnswerChars && len(chunks) < thinEvidenceCount {
		reasons = append(reasons, "long answer from thin evidence")
		penalty += penaltyThinEvidence
	}

	adjusted.Confidence = clamp01(adjusted.Confidence - penalty)

	if adjusted.Confidence < escalationThreshold {
		logger.Warn("Guardrails escalating result",
			zap.Float64("confidence", adjusted.Confidence),
			zap.Float64("penalty", penalty),
			zap.Strings("reasons", reasons),
		)
		if len(reasons) == 0 {
			reasons = append(reasons, fmt.Sprintf(
				"confidence %.2f below release threshold %.2f",
				adjusted.Confidence, escalationThreshold))
		}
		return Verdict{Valid: false, Result: &adjusted, Reasons: reasons}
	}

	return Verdict{Valid: true, Result: &adjusted, Reasons: reasons}
}

// groundCitations verifies every citation traces back to a retrieved chunk.
// Matching is a case-insensitive substring test in either direction, which
// tolerates truncated titles without a full fuzzy matcher. Unmatched
// citations accumulate penalties rather than failing outright.
func groundCitations(citations []evidence.Citation, chunks []evidence.Chunk) ([]string, float64) {
	var reasons []string
	var penalty float64

	for _, cite := range citations {
		if citationGrounded(cite.PaperTitle, chunks) {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("citation %q not in retrieved papers", cite.PaperTitle))
		penalty += penaltyUnmatchedCite
	}

	if penalty > maxCitePenalty {
		penalty = maxCitePenalty
	}
	return reasons, penalty
}

func citationGrounded(title string, chunks []evidence.Chunk) bool {
	t := strings.ToLower(title)
	for _, c := range chunks {
		p := strings.ToLower(c.PaperTitle)
		if p == "" || t == "" {
			continue
		}
		if strings.Contains(p, t) || strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
