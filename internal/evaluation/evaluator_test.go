package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail/backend/internal/evidence"
)

type fakeJudge struct {
	response string
	err      error
}

func (f *fakeJudge) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

const judgeJSON = `{"groundedness": 3, "relevance": 2, "completeness": 2, "citation_fidelity": 3, "classification": "grounded", "reasoning": "claims match evidence"}`

func testChunks() []evidence.Chunk {
	return []evidence.Chunk{
		{PaperTitle: "Attention Is All You Need", SectionTitle: "Results", PageStart: 7, PageEnd: 8, Text: "BLEU of 28.4 on WMT14.", Score: 0.9},
	}
}

func TestEvaluateAnswer(t *testing.T) {
	e := NewEvaluator(
		&fakeJudge{response: judgeJSON},
		&fakeEmbedder{vec: []float32{1, 0}},
	)

	result, err := e.EvaluateAnswer(context.Background(), "What BLEU score?", "BLEU of 28.4.", testChunks())
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Scores.Groundedness)
	assert.Equal(t, "grounded", result.Scores.Classification)
	// Identical embeddings for answer and evidence give similarity 1.
	assert.InDelta(t, 1.0, result.EvidenceSimilarity, 1e-9)
}

func TestEvaluateAnswerJudgeError(t *testing.T) {
	e := NewEvaluator(&fakeJudge{err: errors.New("rate limited")}, &fakeEmbedder{})

	_, err := e.EvaluateAnswer(context.Background(), "q", "a", testChunks())
	assert.Error(t, err)
}

func TestEvaluateAnswerSimilarityFailureIsNotFatal(t *testing.T) {
	e := NewEvaluator(
		&fakeJudge{response: judgeJSON},
		&fakeEmbedder{err: errors.New("backend down")},
	)

	result, err := e.EvaluateAnswer(context.Background(), "q", "a", testChunks())
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.EvidenceSimilarity)
}

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "bare json", raw: judgeJSON},
		{name: "code fence", raw: "```json\n" + judgeJSON + "\n```"},
		{name: "prose wrapper", raw: "Here is my grading:\n" + judgeJSON + "\nHope that helps."},
		{name: "no json", raw: "the answer looks fine to me", wantErr: true},
		{name: "malformed json", raw: `{"groundedness": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := parseScores(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3.0, scores.Groundedness)
			assert.Equal(t, "grounded", scores.Classification)
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestRunDatasetSkipsFailures(t *testing.T) {
	e := NewEvaluator(
		&fakeJudge{response: judgeJSON},
		&fakeEmbedder{vec: []float32{1, 0}},
	)

	dataset := &Dataset{Items: []DatasetItem{
		{Question: "good one"},
		{Question: "broken one"},
		{Question: "another good one"},
	}}

	answer := func(ctx context.Context, question string) (string, []evidence.Chunk, error) {
		if question == "broken one" {
			return "", nil, errors.New("pipeline down")
		}
		return "BLEU of 28.4.", testChunks(), nil
	}

	report, err := e.RunDataset(context.Background(), dataset, answer)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalQuestions)
	assert.Equal(t, 2, report.EvaluatedQuestions)
	assert.Equal(t, 2, report.GroundedCount)
	// Averages cover graded items only; the failed item does not deflate them.
	assert.InDelta(t, 3.0, report.AvgGroundedness, 1e-9)
	assert.InDelta(t, 2.0, report.AvgRelevance, 1e-9)
}

func TestLoadDatasetFromJSON(t *testing.T) {
	data := []byte(`{"items": [{"question": "q1", "ground_truth": "a1", "category": "results"}]}`)

	dataset, err := LoadDatasetFromJSON(data)
	require.NoError(t, err)
	require.Len(t, dataset.Items, 1)
	assert.Equal(t, "results", dataset.Items[0].Category)

	_, err = LoadDatasetFromJSON([]byte("not json"))
	assert.Error(t, err)
}
