package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
)

type fakeCompleter struct {
	answer     string
	err        error
	lastSystem string
	lastUser   string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func sampleChunks() []evidence.Chunk {
	return []evidence.Chunk{
		{PaperTitle: "Attention Is All You Need", SectionTitle: "Results", PageStart: 7, PageEnd: 8, Text: "BLEU of 28.4 on WMT14.", Score: 0.9},
		{PaperTitle: "BERT", SectionTitle: "Experiments", PageStart: 5, PageEnd: 6, Text: "GLUE score of 80.5.", Score: 0.8},
	}
}

func TestSynthesizePromptContainsEvidence(t *testing.T) {
	completer := &fakeCompleter{answer: strings.Repeat("The transformer outperforms recurrent baselines. ", 6)}
	s := NewSynthesizer(completer)

	_, err := s.Synthesize(context.Background(), "What results were reported?", intent.Results, sampleChunks())
	require.NoError(t, err)

	assert.Contains(t, completer.lastUser, "[1] From 'Attention Is All You Need' (Section: Results, Pages 7-8)")
	assert.Contains(t, completer.lastUser, "BLEU of 28.4")
	assert.Contains(t, completer.lastUser, "QUESTION: What results were reported?")
	assert.Contains(t, completer.lastSystem, "ONLY the provided excerpts")
}

func TestSynthesizeBrevityInstruction(t *testing.T) {
	completer := &fakeCompleter{answer: "Short."}
	s := NewSynthesizer(completer)

	_, err := s.Synthesize(context.Background(), "Give a brief overview", intent.Summary, sampleChunks())
	require.NoError(t, err)
	assert.Contains(t, completer.lastUser, "Keep the answer short")

	_, err = s.Synthesize(context.Background(), "Give an overview", intent.Summary, sampleChunks())
	require.NoError(t, err)
	assert.NotContains(t, completer.lastUser, "Keep the answer short")
}

func TestSynthesizeErrorPropagates(t *testing.T) {
	s := NewSynthesizer(&fakeCompleter{err: errors.New("model unavailable")})

	result, err := s.Synthesize(context.Background(), "anything", intent.General, sampleChunks())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "completion failed")
}

func TestExtractCitationsDeduplicates(t *testing.T) {
	chunks := append(sampleChunks(), evidence.Chunk{
		PaperTitle: "Attention Is All You Need", SectionTitle: "Results", PageStart: 7, PageEnd: 9, Text: "different span, same start page",
	})

	citations := ExtractCitations(chunks)
	require.Len(t, citations, 2)
	assert.Equal(t, "Attention Is All You Need", citations[0].PaperTitle)
	assert.Equal(t, "7-8", citations[0].Pages)
	assert.Equal(t, "BERT", citations[1].PaperTitle)
}

func TestEstimateConfidence(t *testing.T) {
	long := strings.Repeat("Supported claim. ", 20)

	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{
			name:   "uncertain phrase",
			answer: "The requested metric was not found in provided papers.",
			want:   ConfidenceUncertain,
		},
		{
			name:   "brief answer",
			answer: "Yes, on WMT14.",
			want:   ConfidenceBrief,
		},
		{
			name:   "top chunk title mentioned",
			answer: long + "As reported in Attention Is All You Need, the score holds.",
			want:   ConfidenceCited,
		},
		{
			name:   "long answer without title mention",
			answer: long,
			want:   ConfidenceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateConfidence(tt.answer, sampleChunks())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateConfidenceTitleMentionOnlyTopChunks(t *testing.T) {
	chunks := sampleChunks()
	chunks = append(chunks,
		evidence.Chunk{PaperTitle: "Third Paper", PageStart: 1, PageEnd: 2},
		evidence.Chunk{PaperTitle: "Fourth Paper", PageStart: 1, PageEnd: 2},
	)

	long := strings.Repeat("Supported claim. ", 20)
	got := estimateConfidence(long+"See Fourth Paper for details.", chunks)
	assert.Equal(t, ConfidenceDefault, got)
}

func TestIntentInstructionsAreTotal(t *testing.T) {
	for _, in := range intent.All() {
		assert.NotEmpty(t, intentInstructions[in], "missing instruction for %s", in)
	}
}
