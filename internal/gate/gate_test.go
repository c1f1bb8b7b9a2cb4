package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
)

func chunksWithScores(scores ...float64) []evidence.Chunk {
	out := make([]evidence.Chunk, len(scores))
	for i, s := range scores {
		out[i] = evidence.Chunk{
			PaperTitle:   "Paper A",
			SectionTitle: "Results",
			Text:         "some evidence",
			Score:        s,
		}
	}
	return out
}

func evaluate(chunks []evidence.Chunk, profile intent.Profile) Decision {
	return Evaluate(chunks, evidence.ComputeCoverage(chunks), profile)
}

func TestEvaluateProceeds(t *testing.T) {
	d := evaluate(chunksWithScores(0.8, 0.7), intent.General.Profile())
	assert.True(t, d.Proceed)
	assert.Empty(t, d.Reasons)
}

func TestEvaluateTooFewChunks(t *testing.T) {
	d := evaluate(chunksWithScores(0.9), intent.General.Profile())
	require.False(t, d.Proceed)
	assert.Contains(t, d.Reason(), "insufficient evidence: only 1 chunks retrieved (minimum: 2)")
}

func TestEvaluateComparisonNeedsThree(t *testing.T) {
	d := evaluate(chunksWithScores(0.9, 0.9), intent.Comparison.Profile())
	require.False(t, d.Proceed)
	assert.Contains(t, d.Reason(), "minimum: 3")

	d = evaluate(chunksWithScores(0.9, 0.9, 0.9), intent.Comparison.Profile())
	assert.True(t, d.Proceed)
}

func TestEvaluateAverageScoreBoundaryInclusive(t *testing.T) {
	// Exactly at the threshold proceeds.
	d := evaluate(chunksWithScores(0.5, 0.5), intent.General.Profile())
	assert.True(t, d.Proceed)

	d = evaluate(chunksWithScores(0.5, 0.48), intent.General.Profile())
	require.False(t, d.Proceed)
	assert.Contains(t, d.Reason(), "low evidence scores")
}

func TestEvaluateExploratoryIntentsUseLowerBar(t *testing.T) {
	chunks := chunksWithScores(0.45, 0.45)

	assert.False(t, evaluate(chunks, intent.General.Profile()).Proceed)
	assert.True(t, evaluate(chunks, intent.Limitations.Profile()).Proceed)
	assert.True(t, evaluate(chunks, intent.ResearchGaps.Profile()).Proceed)
	assert.True(t, evaluate(chunks, intent.FutureWork.Profile()).Proceed)
}

func TestEvaluateEmptyEvidenceReportsAllFailures(t *testing.T) {
	d := evaluate(nil, intent.General.Profile())
	require.False(t, d.Proceed)
	assert.Len(t, d.Reasons, 3)
	assert.Contains(t, d.Reason(), "no source paper coverage")
}

func TestEvaluateDeterministic(t *testing.T) {
	chunks := chunksWithScores(0.4, 0.6)
	first := evaluate(chunks, intent.Methodology.Profile())
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, evaluate(chunks, intent.Methodology.Profile()))
	}
}
