package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/pkg/logger"
)

// TextCompleter is the language-model capability the synthesizer consumes.
// One prompt in, one completion out; no multi-turn loop.
type TextCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Confidence bands for the answer heuristic. These are coarse, auditable
// proxies rather than calibrated probabilities; they are named so product
// review can find and retune them in one place.
const (
	ConfidenceUncertain = 0.3
	ConfidenceBrief     = 0.6
	ConfidenceCited     = 0.85
	ConfidenceDefault   = 0.7

	// Answers shorter than this are treated as brief.
	briefAnswerChars = 200
	// Only the strongest chunks count for the title-mention bonus.
	titleMentionTopN = 3
)

// uncertainPhrases mark an answer as hedged or empty-handed.
var uncertainPhrases = []string{
	"not found", "unclear", "uncertain", "cannot determine",
}

// brevityKeywords in the question request a short bulleted answer.
var brevityKeywords = []string{
	"brief", "briefly", "short", "concise", "tldr", "tl;dr", "in a nutshell",
}

const systemPrompt = `You are a research assistant answering questions strictly from excerpts of academic papers.

Your answers must:
1. Use ONLY the provided excerpts - no outside knowledge
2. Cite the paper title and page for every claim, as [Paper Title, Page X]
3. Say "Not found in provided papers" when the excerpts do not answer the question
4. Never invent papers, numbers, or findings`

// intentInstructions is total over the intent enum; synthesis routes through
// this table instead of branching on intent values.
var intentInstructions = map[intent.Intent]string{
	intent.Summary: `Summarize what the excerpts state. Lead with the main idea, then supporting points.`,
	intent.Comparison: `Produce a structured side-by-side comparison. Compare ONLY what the excerpts state, cite a paper for each point, and note both differences and similarities. If a paper does not address a comparison point, say so.`,
	intent.ResearchGaps: `Identify research gaps ONLY from explicit statements in the excerpts - limitation sections, future work, challenges the authors name. Do not invent gaps. Organize by theme if several are found.`,
	intent.Methodology: `Describe the method or approach as the excerpts present it: components, procedure, and design choices.`,
	intent.Experiments: `Report the experimental setup stated in the excerpts: datasets, baselines, ablations, and training details.`,
	intent.Results: `Report the quantitative and qualitative findings stated in the excerpts, with the metrics the papers use.`,
	intent.Limitations: `List the limitations the authors explicitly acknowledge. Restrict yourself to stated drawbacks, not inferred ones.`,
	intent.FutureWork: `List the directions the authors explicitly propose as future work or open questions.`,
	intent.Citation: `Answer from the reference material: which works are cited and in what context.`,
	intent.General: `Answer the question factually from the excerpts.`,
}

// Synthesizer builds a grounded prompt from evidence, invokes the completer
// once, and scores its own output with a fixed heuristic. Stateless; safe
// for concurrent use.
type Synthesizer struct {
	completer TextCompleter
}

func NewSynthesizer(completer TextCompleter) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Synthesize produces a cited answer from the supplied chunks. The chunk
// list is exactly what the sufficiency gate approved; no further retrieval
// happens here. A completer failure propagates as a hard error with no
// retry at this level.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, in intent.Intent, chunks []evidence.Chunk) (*evidence.AnalysisResult, error) {
	prompt := buildPrompt(question, in, chunks)

	answer, err := s.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	result := &evidence.AnalysisResult{
		Answer:     answer,
		Citations:  ExtractCitations(chunks),
		Confidence: estimateConfidence(answer, chunks),
	}

	logger.Info("Answer synthesized",
		zap.String("intent", in.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("answer_length", len(answer)),
		zap.Float64("confidence", result.Confidence),
	)

	return result, nil
}

func buildPrompt(question string, in intent.Intent, chunks []evidence.Chunk) string {
	var b strings.Builder

	b.WriteString("EXCERPTS FROM PAPERS:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] From '%s' (Section: %s, Pages %s):\n%s\n",
			i+1, c.PaperTitle, c.SectionTitle, c.PageRange(), c.Text)
	}

	fmt.Fprintf(&b, "\nQUESTION: %s\n", question)

	instruction, ok := intentInstructions[in]
	if !ok {
		instruction = intentInstructions[intent.General]
	}
	b.WriteString("\nINSTRUCTIONS: ")
	b.WriteString(instruction)
	b.WriteString("\n")

	if wantsBrevity(question) {
		b.WriteString("\nKeep the answer short: a few bullet points, no preamble.\n")
	}

	return b.String()
}

func wantsBrevity(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range brevityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractCitations deduplicates the supplied chunks by (paper title, start
// page). Citations come from the evidence actually given to the model, never
// from parsing the generated text.
func ExtractCitations(chunks []evidence.Chunk) []evidence.Citation {
	seen := make(map[string]struct{})
	citations := make([]evidence.Citation, 0, len(chunks))

	for _, c := range chunks {
		key := fmt.Sprintf("%s_%d", c.PaperTitle, c.PageStart)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, evidence.Citation{
			PaperTitle: c.PaperTitle,
			Section:    c.SectionTitle,
			Pages:      c.PageRange(),
		})
	}

	return citations
}

func estimateConfidence(answer string, chunks []evidence.Chunk) float64 {
	lower := strings.ToLower(answer)

	for _, phrase := range uncertainPhrases {
		if strings.Contains(lower, phrase) {
			return ConfidenceUncertain
		}
	}

	if len(answer) < briefAnswerChars {
		return ConfidenceBrief
	}

	topN := titleMentionTopN
	if topN > len(chunks) {
		topN = len(chunks)
	}
	for _, c := range chunks[:topN] {
		if c.PaperTitle != "" && strings.Contains(lower, strings.ToLower(c.PaperTitle)) {
			return ConfidenceCited
		}
	}

	return ConfidenceDefault
}
