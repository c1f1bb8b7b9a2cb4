package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/pkg/logger"
)

// Evaluator grades pipeline answers offline: an LLM judge scores each
// answer against its evidence, and embedding similarity gives a cheap
// second signal. Used from evaluation scripts and regression runs, not
// from the serving path.
type Evaluator struct {
	judge    Judge
	embedder DenseEmbedder
}

// Judge is the completion capability the rubric prompt runs on.
type Judge interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type DenseEmbedder interface {
	EmbedDense(ctx context.Context, text string) ([]float32, error)
}

// Scores is the judge's rubric output. Each dimension is 0-3.
type Scores struct {
	Groundedness     float64 `json:"groundedness"`
	Relevance        float64 `json:"relevance"`
	Completeness     float64 `json:"completeness"`
	CitationFidelity float64 `json:"citation_fidelity"`
	Classification   string  `json:"classification"`
	Reasoning        string  `json:"reasoning"`
}

// Result pairs the judge scores with the embedding similarity between the
// answer and its evidence.
type Result struct {
	Scores             Scores
	EvidenceSimilarity float64
}

type DatasetItem struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth"`
	Category    string `json:"category"`
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type Report struct {
	TotalQuestions        int
	EvaluatedQuestions    int
	UngroundedCount       int
	PartialCount          int
	GroundedCount         int
	AvgGroundedness       float64
	AvgRelevance          float64
	AvgCompleteness       float64
	AvgCitationFidelity   float64
	AvgEvidenceSimilarity float64
}

func NewEvaluator(judge Judge, embedder DenseEmbedder) *Evaluator {
	return &Evaluator{
		judge:    judge,
		embedder: embedder,
	}
}

const judgeSystemPrompt = `You are grading an answer produced by a research-paper question answering system. Score strictly against the provided evidence passages: claims not supported by the evidence lower the groundedness score even when they are true. Respond with a single JSON object and nothing else, with keys: groundedness, relevance, completeness, citation_fidelity (each 0-3), classification (one of "ungrounded", "partially_grounded", "grounded"), reasoning (one sentence).`

// EvaluateAnswer grades one answer against the evidence it was synthesized
// from.
func (e *Evaluator) EvaluateAnswer(ctx context.Context, question, answer string, chunks []evidence.Chunk) (*Result, error) {
	prompt := buildJudgePrompt(question, answer, chunks)

	raw, err := e.judge.Complete(ctx, judgeSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	scores, err := parseScores(raw)
	if err != nil {
		return nil, err
	}

	similarity := 0.0
	if len(chunks) > 0 {
		similarity, err = e.evidenceSimilarity(ctx, answer, chunks)
		if err != nil {
			logger.Warn("Failed to compute evidence similarity", zap.Error(err))
		}
	}

	logger.Info("Answer evaluated",
		zap.String("classification", scores.Classification),
		zap.Float64("groundedness", scores.Groundedness),
		zap.Float64("evidence_similarity", similarity),
	)

	return &Result{
		Scores:             *scores,
		EvidenceSimilarity: similarity,
	}, nil
}

// AnswerFunc runs one question through the system under evaluation and
// returns the answer text with the evidence it used.
type AnswerFunc func(ctx context.Context, question string) (string, []evidence.Chunk, error)

// RunDataset drives every dataset item through the system and aggregates
// judge scores. Items that fail are skipped, not fatal, so one flaky call
// does not void a long run.
func (e *Evaluator) RunDataset(ctx context.Context, dataset *Dataset, answer AnswerFunc) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQuestions: len(dataset.Items)}

	var totalGrounded, totalRelevance, totalCompleteness, totalCitation, totalSimilarity float64

	for i, item := range dataset.Items {
		logger.Info("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		text, chunks, err := answer(ctx, item.Question)
		if err != nil {
			logger.Error("Failed to answer question", zap.Error(err))
			continue
		}

		result, err := e.EvaluateAnswer(ctx, item.Question, text, chunks)
		if err != nil {
			logger.Error("Failed to evaluate answer", zap.Error(err))
			continue
		}

		switch result.Scores.Classification {
		case "ungrounded":
			report.UngroundedCount++
		case "partially_grounded":
			report.PartialCount++
		case "grounded":
			report.GroundedCount++
		}

		report.EvaluatedQuestions++
		totalGrounded += result.Scores.Groundedness
		totalRelevance += result.Scores.Relevance
		totalCompleteness += result.Scores.Completeness
		totalCitation += result.Scores.CitationFidelity
		totalSimilarity += result.EvidenceSimilarity
	}

	// Averages cover the items actually graded; skipped items would
	// otherwise drag every mean toward zero.
	if report.EvaluatedQuestions > 0 {
		n := float64(report.EvaluatedQuestions)
		report.AvgGroundedness = totalGrounded / n
		report.AvgRelevance = totalRelevance / n
		report.AvgCompleteness = totalCompleteness / n
		report.AvgCitationFidelity = totalCitation / n
		report.AvgEvidenceSimilarity = totalSimilarity / n
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("ungrounded", report.UngroundedCount),
		zap.Int("partial", report.PartialCount),
		zap.Int("grounded", report.GroundedCount),
	)

	return report, nil
}

func buildJudgePrompt(question, answer string, chunks []evidence.Chunk) string {
	var b strings.Builder

	b.WriteString("Question:\n")
	b.WriteString(question)
	b.WriteString("\n\nEvidence passages:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] From '%s' (Section: %s, Pages %s): %s\n",
			i+1, c.PaperTitle, c.SectionTitle, c.PageRange(), c.Text)
	}
	b.WriteString("\nAnswer to grade:\n")
	b.WriteString(answer)

	return b.String()
}

func parseScores(raw string) (*Scores, error) {
	// Judges occasionally wrap the JSON in prose or a code fence.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("judge response contained no JSON object")
	}

	var scores Scores
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse judge response: %w", err)
	}
	return &scores, nil
}

func (e *Evaluator) evidenceSimilarity(ctx context.Context, answer string, chunks []evidence.Chunk) (float64, error) {
	answerEmb, err := e.embedder.EmbedDense(ctx, answer)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	evidenceEmb, err := e.embedder.EmbedDense(ctx, strings.Join(texts, "\n"))
	if err != nil {
		return 0, err
	}

	return cosineSimilarity(answerEmb, evidenceEmb), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func LoadDatasetFromJSON(jsonData []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(jsonData, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}
