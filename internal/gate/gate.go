// Package gate implements the deterministic sufficiency check that sits
// between retrieval and synthesis: a cheap, auditable circuit breaker that
// refuses to spend a completion call on an under-evidenced question.
package gate

import (
	"fmt"
	"strings"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
)

// Decision is the outcome of the sufficiency rules. When Proceed is false,
// Reason concatenates every failing rule so the escalation names all of them.
type Decision struct {
	Proceed bool
	Reasons []string
}

// Reason joins the failing rules into one human-readable string.
func (d Decision) Reason() string {
	return strings.Join(d.Reasons, "; ")
}

// Evaluate applies the sufficiency rules for the given intent profile. All
// rules must pass to proceed. Pure and stateless: same inputs, same decision.
//
// Rules:
//   - at least profile.MinChunks chunks retrieved
//   - average evidence score at or above profile.ScoreThreshold (inclusive)
//   - at least one distinct source paper
func Evaluate(chunks []evidence.Chunk, cov evidence.Coverage, profile intent.Profile) Decision {
	var reasons []string

	if len(chunks) < profile.MinChunks {
		reasons = append(reasons, fmt.Sprintf(
			"insufficient evidence: only %d chunks retrieved (minimum: %d)",
			len(chunks), profile.MinChunks))
	}

	if cov.AvgScore < profile.ScoreThreshold {
		reasons = append(reasons, fmt.Sprintf(
			"low evidence scores: average %.3f below threshold %.3f",
			cov.AvgScore, profile.ScoreThreshold))
	}

	if cov.DistinctPapers < 1 {
		reasons = append(reasons, "no source paper coverage in retrieved evidence")
	}

	return Decision{
		Proceed: len(reasons) == 0,
		Reasons: reasons,
	}
}
