package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/guardrails"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/internal/synthesis"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (stubEmbedder) EmbedSparse(ctx context.Context, text string) (retrieval.SparseVector, error) {
	return retrieval.SparseVector{Indices: []uint32{3}, Values: []float32{1}}, nil
}

type stubIndex struct {
	chunks []evidence.Chunk
	err    error
}

func (s *stubIndex) Search(ctx context.Context, space retrieval.Space, vec retrieval.Vector, limit int, filter *retrieval.SectionFilter) ([]evidence.Chunk, error) {
	return s.chunks, s.err
}

func (s *stubIndex) SearchImages(ctx context.Context, vec []float32, limit int, minScore float64) ([]evidence.Image, error) {
	return nil, nil
}

type stubCompleter struct {
	answer string
	err    error
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.answer, s.err
}

type captureStore struct {
	saved *PendingReview
	err   error
}

func (c *captureStore) SavePending(ctx context.Context, review *PendingReview) error {
	if c.err != nil {
		return c.err
	}
	c.saved = review
	return nil
}

func strongChunks() []evidence.Chunk {
	return []evidence.Chunk{
		{PaperTitle: "Attention Is All You Need", SectionTitle: "Results", PageStart: 7, PageEnd: 8, Text: "BLEU of 28.4 on WMT14.", Score: 0.9},
		{PaperTitle: "BERT", SectionTitle: "Results", PageStart: 5, PageEnd: 6, Text: "GLUE of 80.5.", Score: 0.8},
	}
}

func newTestOrchestrator(index *stubIndex, completer *stubCompleter, store ReviewStore, opts Options) *Orchestrator {
	retriever := retrieval.NewRetriever(stubEmbedder{}, index, retrieval.Options{})
	return NewOrchestrator(
		intent.NewClassifier(),
		retriever,
		synthesis.NewSynthesizer(completer),
		guardrails.NewValidator(),
		store,
		opts,
	)
}

func TestAnswerHappyPath(t *testing.T) {
	answer := strings.Repeat("The transformer reaches strong translation quality. ", 4) +
		"These results come from Attention Is All You Need."
	o := newTestOrchestrator(
		&stubIndex{chunks: strongChunks()},
		&stubCompleter{answer: answer},
		nil,
		Options{},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome.Kind)
	assert.Equal(t, intent.Results, outcome.Intent)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, answer, outcome.Result.Answer)
	assert.NotEmpty(t, outcome.Result.Citations)
	assert.NotEmpty(t, outcome.RequestID)
	assert.Nil(t, outcome.Escalation)
}

func TestAnswerHybridStrongEvidenceProceeds(t *testing.T) {
	// Fused ranking must not distort the evidence scores the gate reads:
	// two chunks at index similarity 0.9/0.8 across two papers clear the
	// default 0.5 threshold in hybrid mode too.
	answer := strings.Repeat("The transformer reaches strong translation quality. ", 4) +
		"These results come from Attention Is All You Need."
	index := &stubIndex{chunks: strongChunks()}
	retriever := retrieval.NewRetriever(stubEmbedder{}, index, retrieval.Options{Hybrid: true})
	o := NewOrchestrator(
		intent.NewClassifier(),
		retriever,
		synthesis.NewSynthesizer(&stubCompleter{answer: answer}),
		guardrails.NewValidator(),
		nil,
		Options{},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome.Kind)
	assert.Nil(t, outcome.Escalation)
}

func TestAnswerInsufficientEvidenceEscalates(t *testing.T) {
	index := &stubIndex{chunks: strongChunks()[:1]}
	o := newTestOrchestrator(index, &stubCompleter{answer: "should never be called"}, nil, Options{})

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalated, outcome.Kind)
	require.NotNil(t, outcome.Escalation)
	assert.Equal(t, StageRetrieval, outcome.Escalation.Stage)
	assert.Contains(t, outcome.Escalation.Reason, "insufficient evidence: only 1 chunks retrieved (minimum: 2)")
	assert.NotEmpty(t, outcome.Escalation.SuggestedActions)

	// Automated resolution assembles a degraded answer from raw evidence.
	require.NotNil(t, outcome.Result)
	assert.Equal(t, DegradedConfidence, outcome.Result.Confidence)
	assert.Contains(t, outcome.Result.Answer, "Limited evidence")
}

func TestAnswerNoEvidenceRefuses(t *testing.T) {
	o := newTestOrchestrator(&stubIndex{}, &stubCompleter{answer: "unused"}, nil, Options{})

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, outcome.Kind)
	assert.Nil(t, outcome.Result)
	assert.NotEmpty(t, outcome.RefusalReason)
}

func TestAnswerHonestRefusalIsValid(t *testing.T) {
	o := newTestOrchestrator(
		&stubIndex{chunks: strongChunks()},
		&stubCompleter{answer: "Not found in provided papers."},
		nil,
		Options{},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome.Kind)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, synthesis.ConfidenceUncertain, outcome.Result.Confidence)
}

func TestAnswerGuardrailsEscalation(t *testing.T) {
	// A terse unsupported answer: brief confidence 0.6 minus the short
	// answer penalty lands below the release threshold.
	o := newTestOrchestrator(
		&stubIndex{chunks: strongChunks()},
		&stubCompleter{answer: "Yes."},
		nil,
		Options{},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalated, outcome.Kind)
	require.NotNil(t, outcome.Escalation)
	assert.Equal(t, StageGuardrails, outcome.Escalation.Stage)
}

func TestAnswerRetrievalErrorIsHardFailure(t *testing.T) {
	o := newTestOrchestrator(&stubIndex{err: errors.New("index down")}, &stubCompleter{}, nil, Options{})

	outcome, err := o.Answer(context.Background(), Question{Text: "anything at all"})
	require.Error(t, err)
	assert.Nil(t, outcome)

	var retrievalErr *RetrievalError
	assert.True(t, errors.As(err, &retrievalErr))
}

func TestAnswerSynthesisErrorIsHardFailure(t *testing.T) {
	o := newTestOrchestrator(
		&stubIndex{chunks: strongChunks()},
		&stubCompleter{err: errors.New("model down")},
		nil,
		Options{},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?"})
	require.Error(t, err)
	assert.Nil(t, outcome)

	var synthesisErr *SynthesisError
	assert.True(t, errors.As(err, &synthesisErr))
}

func TestAnswerInteractiveSuspends(t *testing.T) {
	store := &captureStore{}
	o := newTestOrchestrator(
		&stubIndex{chunks: strongChunks()[:1]},
		&stubCompleter{answer: "unused"},
		store,
		Options{Interactive: true},
	)

	outcome, err := o.Answer(context.Background(), Question{Text: "What accuracy did the model achieve?", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuspended, outcome.Kind)
	assert.NotEmpty(t, outcome.ReviewID)

	require.NotNil(t, store.saved)
	assert.Equal(t, outcome.ReviewID, store.saved.ID)
	assert.Equal(t, "s-1", store.saved.SessionID)
	assert.Equal(t, string(StageRetrieval), store.saved.FromStage)
	assert.Len(t, store.saved.Chunks, 1)
}

func TestResolveDecisions(t *testing.T) {
	o := newTestOrchestrator(&stubIndex{}, &stubCompleter{}, nil, Options{})

	review := &PendingReview{
		ID:       "r-1",
		Question: "What accuracy did the model achieve?",
		Reason:   "insufficient evidence",
		Chunks:   strongChunks(),
	}

	t.Run("approve with disclaimer", func(t *testing.T) {
		outcome, err := o.Resolve(review, DecisionApprove)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAnswered, outcome.Kind)
		require.NotNil(t, outcome.Result)
		assert.Equal(t, DegradedConfidence, outcome.Result.Confidence)
	})

	t.Run("request more evidence", func(t *testing.T) {
		outcome, err := o.Resolve(review, DecisionMoreEvidence)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRefused, outcome.Kind)
	})

	t.Run("refine question", func(t *testing.T) {
		outcome, err := o.Resolve(review, DecisionRefine)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRefused, outcome.Kind)
		assert.Contains(t, outcome.RefusalReason, "insufficient evidence")
	})

	t.Run("unknown decision", func(t *testing.T) {
		_, err := o.Resolve(review, ReviewDecision("punt"))
		assert.Error(t, err)
	})

	t.Run("approve without evidence refuses", func(t *testing.T) {
		outcome, err := o.Resolve(&PendingReview{ID: "r-2"}, DecisionApprove)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRefused, outcome.Kind)
	})
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a byte-index cut at 3 would land mid-rune.
	assert.Equal(t, "ab...", excerpt("abécd", 3))
	assert.Equal(t, "abé...", excerpt("abécd", 4))
	assert.Equal(t, "abécd", excerpt("abécd", 6))
	assert.True(t, utf8.ValidString(excerpt(strings.Repeat("é", 200), 301)))
}

func TestDegradedResultCapsChunks(t *testing.T) {
	chunks := append(strongChunks(),
		evidence.Chunk{PaperTitle: "C", SectionTitle: "Results", PageStart: 1, PageEnd: 2, Text: "c", Score: 0.5},
		evidence.Chunk{PaperTitle: "D", SectionTitle: "Results", PageStart: 1, PageEnd: 2, Text: "d", Score: 0.4},
	)

	result := degradedResult(chunks)
	assert.Equal(t, DegradedConfidence, result.Confidence)
	assert.Contains(t, result.Answer, "3. C (Results")
	assert.NotContains(t, result.Answer, "D (Results")
	assert.Len(t, result.Citations, 3)
}
