package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name     string
		question string
		want     Intent
	}{
		{
			name:     "limitations keyword",
			question: "What are the limitations of this approach?",
			want:     Limitations,
		},
		{
			name:     "future work keyword",
			question: "What future work do the authors suggest?",
			want:     FutureWork,
		},
		{
			name:     "research gap keyword",
			question: "Which areas remain unexplored?",
			want:     ResearchGaps,
		},
		{
			name:     "methodology keyword",
			question: "How does the proposed algorithm work?",
			want:     Methodology,
		},
		{
			name:     "experiments keyword",
			question: "Which benchmark was used for evaluation?",
			want:     Experiments,
		},
		{
			name:     "results keyword",
			question: "What accuracy did the model achieve?",
			want:     Results,
		},
		{
			name:     "comparison keyword",
			question: "Is model A better than model B on GLUE?",
			want:     Comparison,
		},
		{
			name:     "summary keyword",
			question: "Give me an overview of the paper",
			want:     Summary,
		},
		{
			name:     "citation keyword",
			question: "Which papers does this work cite?",
			want:     Citation,
		},
		{
			name:     "no keyword falls back to general",
			question: "Tell me something interesting",
			want:     General,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.question)
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.want.Profile().Sections, got.AllowedSections)
		})
	}
}

func TestClassifyPriorityBreaksTies(t *testing.T) {
	c := NewClassifier()

	// Matches both Summary ("summary") and Limitations ("limitation");
	// Limitations has the higher priority.
	got := c.Classify("Give a brief summary of the limitations")
	assert.Equal(t, Limitations, got.Intent)
}

func TestClassifyConfidence(t *testing.T) {
	c := NewClassifier()

	matched := c.Classify("What are the limitations?")
	assert.Equal(t, MatchedConfidence, matched.Confidence)

	fallback := c.Classify("Hmm.")
	assert.Equal(t, General, fallback.Intent)
	assert.Equal(t, FallbackConfidence, fallback.Confidence)
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier()

	question := "How does the method compare against the baseline results?"
	first := c.Classify(question)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, c.Classify(question))
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, c.Classify("what are the LIMITATIONS?").Intent,
		c.Classify("What are the limitations?").Intent)
}

func TestProfilesAreTotal(t *testing.T) {
	for _, in := range All() {
		p := in.Profile()
		require.NotEmpty(t, p.Sections, "intent %s has no sections", in)
		require.NotZero(t, p.Priority, "intent %s has no priority", in)
		require.NotZero(t, p.ScoreThreshold, "intent %s has no score threshold", in)
		require.GreaterOrEqual(t, p.MinChunks, 2, "intent %s min chunks", in)
	}
}

func TestProfileSectionRules(t *testing.T) {
	for _, in := range All() {
		for _, section := range in.Profile().Sections {
			assert.NotEqual(t, "Unknown", section, "intent %s allows Unknown", in)
			if section == "References" {
				assert.Equal(t, Citation, in, "only citation may search References")
			}
		}
	}

	assert.Equal(t, []string{"References"}, Citation.Profile().Sections)
	assert.Equal(t, 3, Comparison.Profile().MinChunks)
}
