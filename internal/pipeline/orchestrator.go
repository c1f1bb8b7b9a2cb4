package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/gate"
	"github.com/papertrail/backend/internal/guardrails"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/internal/metrics"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/internal/synthesis"
	"github.com/papertrail/backend/pkg/logger"
)

const (
	// DegradedConfidence is the fixed confidence of an answer assembled
	// directly from top chunks when human review auto-resolves.
	DegradedConfidence = 0.4
	// degradedTopChunks bounds how much raw evidence a degraded answer quotes.
	degradedTopChunks = 3
)

// ReviewDecision is the fixed set of resolutions for a suspended review.
type ReviewDecision string

const (
	DecisionApprove      ReviewDecision = "approve_with_disclaimer"
	DecisionMoreEvidence ReviewDecision = "request_more_evidence"
	DecisionRefine       ReviewDecision = "refine_question"
)

// PendingReview is the persisted suspension state of an interactive
// human-review: enough to resume into Stop later without re-running
// retrieval.
type PendingReview struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id,omitempty"`
	Question  string           `json:"question"`
	Intent    string           `json:"intent"`
	FromStage string           `json:"from_stage"`
	Reason    string           `json:"reason"`
	Chunks    []evidence.Chunk `json:"chunks"`
	CreatedAt time.Time        `json:"created_at"`
}

// ReviewStore persists pending reviews across the suspend/resume boundary.
type ReviewStore interface {
	SavePending(ctx context.Context, review *PendingReview) error
}

// Options configures one Orchestrator.
type Options struct {
	TopK int
	// Interactive suspends on human review instead of auto-resolving.
	// Requires a ReviewStore.
	Interactive bool
}

// Orchestrator wires the pipeline stages into one request flow:
//
//	Start -> Retrieval -> {Analysis | HumanReview} -> Stop
//
// Strictly linear per request; no state is revisited and no component holds
// cross-request mutable state, so one Orchestrator serves many concurrent
// requests. Collaborator handles are injected at construction for test
// substitution.
type Orchestrator struct {
	classifier *intent.Classifier
	retriever  *retrieval.Retriever
	synth      *synthesis.Synthesizer
	validator  *guardrails.Validator
	reviews    ReviewStore
	opts       Options
}

func NewOrchestrator(
	classifier *intent.Classifier,
	retriever *retrieval.Retriever,
	synth *synthesis.Synthesizer,
	validator *guardrails.Validator,
	reviews ReviewStore,
	opts Options,
) *Orchestrator {
	if opts.TopK == 0 {
		opts.TopK = 5
	}
	return &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		synth:      synth,
		validator:  validator,
		reviews:    reviews,
		opts:       opts,
	}
}

// Answer runs one question through the pipeline. Decision branches
// (insufficient evidence, guardrails escalation, refusal) come back as an
// Outcome; only hard service failures (RetrievalError, SynthesisError)
// return an error, with no partial answer.
func (o *Orchestrator) Answer(ctx context.Context, q Question) (*Outcome, error) {
	start := time.Now()
	requestID := uuid.New().String()

	logger.Info("Pipeline started",
		zap.String("request_id", requestID),
		zap.String("question", q.Text),
	)

	var ev Event = StartEvent{RequestID: requestID, Question: q}
	for {
		var err error
		switch e := ev.(type) {
		case StartEvent:
			ev = o.classify(e)
		case RetrievalEvent:
			ev, err = o.retrieve(ctx, e)
		case AnalysisEvent:
			ev, err = o.analyze(ctx, e)
		case HumanReviewEvent:
			ev, err = o.review(ctx, e)
		case StopEvent:
			outcome := e.Outcome
			outcome.LatencyMS = int(time.Since(start).Milliseconds())
			o.observe(outcome)
			return outcome, nil
		default:
			return nil, fmt.Errorf("unknown pipeline event %T", ev)
		}
		if err != nil {
			metrics.PipelineRequests.WithLabelValues("error").Inc()
			return nil, err
		}
	}
}

func (o *Orchestrator) classify(e StartEvent) Event {
	ir := o.classifier.Classify(e.Question.Text)

	logger.Debug("Intent classified",
		zap.String("request_id", e.RequestID),
		zap.String("intent", ir.Intent.String()),
		zap.Float64("confidence", ir.Confidence),
		zap.Strings("sections", ir.AllowedSections),
	)

	return RetrievalEvent{
		RequestID: e.RequestID,
		Question:  e.Question,
		Intent:    ir,
		TopK:      o.opts.TopK,
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, e RetrievalEvent) (Event, error) {
	timer := time.Now()
	chunks, images, err := o.retriever.Retrieve(ctx, e.Question.Text, e.Intent, e.TopK)
	metrics.StageDuration.WithLabelValues(string(StageRetrieval)).Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	metrics.RetrievedChunks.Observe(float64(len(chunks)))

	cov := evidence.ComputeCoverage(chunks)
	decision := gate.Evaluate(chunks, cov, e.Intent.Intent.Profile())
	if !decision.Proceed {
		metrics.Escalations.WithLabelValues(string(StageRetrieval)).Inc()
		return HumanReviewEvent{
			RequestID: e.RequestID,
			Question:  e.Question,
			Intent:    e.Intent,
			FromStage: StageRetrieval,
			Reason:    decision.Reason(),
			Chunks:    chunks,
			Images:    images,
		}, nil
	}

	return AnalysisEvent{
		RequestID: e.RequestID,
		Question:  e.Question,
		Intent:    e.Intent,
		Chunks:    chunks,
		Images:    images,
		Coverage:  cov,
	}, nil
}

func (o *Orchestrator) analyze(ctx context.Context, e AnalysisEvent) (Event, error) {
	timer := time.Now()
	result, err := o.synth.Synthesize(ctx, e.Question.Text, e.Intent.Intent, e.Chunks)
	metrics.StageDuration.WithLabelValues(string(StageAnalysis)).Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	verdict := o.validator.Validate(result, e.Chunks)
	if !verdict.Valid {
		metrics.Escalations.WithLabelValues(string(StageGuardrails)).Inc()
		return HumanReviewEvent{
			RequestID: e.RequestID,
			Question:  e.Question,
			Intent:    e.Intent,
			FromStage: StageGuardrails,
			Reason:    strings.Join(verdict.Reasons, "; "),
			Chunks:    e.Chunks,
			Images:    e.Images,
			Draft:     verdict.Result,
		}, nil
	}

	return StopEvent{Outcome: &Outcome{
		Kind:      OutcomeAnswered,
		RequestID: e.RequestID,
		Intent:    e.Intent.Intent,
		Result:    verdict.Result,
		Images:    e.Images,
	}}, nil
}

// review resolves the human-review state. Interactive deployments suspend:
// the pending payload is persisted and the caller gets a review id to resume
// with. Automated deployments resolve deterministically to a degraded answer
// or a refusal.
func (o *Orchestrator) review(ctx context.Context, e HumanReviewEvent) (Event, error) {
	if o.opts.Interactive && o.reviews != nil {
		pending := &PendingReview{
			ID:        uuid.New().String(),
			SessionID: e.Question.SessionID,
			Question:  e.Question.Text,
			Intent:    e.Intent.Intent.String(),
			FromStage: string(e.FromStage),
			Reason:    e.Reason,
			Chunks:    e.Chunks,
			CreatedAt: time.Now().UTC(),
		}
		if err := o.reviews.SavePending(ctx, pending); err != nil {
			return nil, fmt.Errorf("failed to persist pending review: %w", err)
		}

		logger.Info("Pipeline suspended for human review",
			zap.String("request_id", e.RequestID),
			zap.String("review_id", pending.ID),
			zap.String("from_stage", string(e.FromStage)),
		)

		return StopEvent{Outcome: &Outcome{
			Kind:       OutcomeSuspended,
			RequestID:  e.RequestID,
			Intent:     e.Intent.Intent,
			ReviewID:   pending.ID,
			Escalation: o.notice(e),
		}}, nil
	}

	if len(e.Chunks) == 0 {
		return StopEvent{Outcome: &Outcome{
			Kind:          OutcomeRefused,
			RequestID:     e.RequestID,
			Intent:        e.Intent.Intent,
			RefusalReason: e.Reason,
		}}, nil
	}

	return StopEvent{Outcome: &Outcome{
		Kind:       OutcomeEscalated,
		RequestID:  e.RequestID,
		Intent:     e.Intent.Intent,
		Result:     degradedResult(e.Chunks),
		Escalation: o.notice(e),
		Images:     e.Images,
	}}, nil
}

func (o *Orchestrator) notice(e HumanReviewEvent) *EscalationNotice {
	actions := retrievalActions
	if e.FromStage == StageGuardrails {
		actions = guardrailsActions
	}
	return &EscalationNotice{
		Stage:            e.FromStage,
		Reason:           e.Reason,
		Chunks:           e.Chunks,
		SuggestedActions: actions,
	}
}

// Resolve completes a previously suspended review. Retrieval is not re-run:
// the persisted chunks are the evidence base for whichever decision the
// reviewer took.
func (o *Orchestrator) Resolve(review *PendingReview, decision ReviewDecision) (*Outcome, error) {
	base := Outcome{
		Kind:      OutcomeAnswered,
		RequestID: review.ID,
	}

	switch decision {
	case DecisionApprove:
		if len(review.Chunks) == 0 {
			base.Kind = OutcomeRefused
			base.RefusalReason = "no evidence available to approve"
			return &base, nil
		}
		base.Result = degradedResult(review.Chunks)
		return &base, nil
	case DecisionMoreEvidence:
		base.Kind = OutcomeRefused
		base.RefusalReason = "more evidence requested: add papers to the corpus and ask again"
		return &base, nil
	case DecisionRefine:
		base.Kind = OutcomeRefused
		base.RefusalReason = "question sent back for refinement: " + review.Reason
		return &base, nil
	default:
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
}

// degradedResult assembles a "limited evidence" answer directly from the top
// chunks, with a fixed low confidence and a disclaimer. No model call.
func degradedResult(chunks []evidence.Chunk) *evidence.AnalysisResult {
	top := chunks
	if len(top) > degradedTopChunks {
		top = top[:degradedTopChunks]
	}

	var b strings.Builder
	b.WriteString("Limited evidence was available for this question. The most relevant passages found:\n")
	for i, c := range top {
		fmt.Fprintf(&b, "\n%d. %s (%s, pages %s): %s\n",
			i+1, c.PaperTitle, c.SectionTitle, c.PageRange(), excerpt(c.Text, 300))
	}

	return &evidence.AnalysisResult{
		Answer:       b.String(),
		Citations:    synthesis.ExtractCitations(top),
		Confidence:   DegradedConfidence,
		ConflictNote: "assembled from raw evidence without synthesis",
	}
}

func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	// Back up to a rune boundary so multi-byte characters are never split.
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func (o *Orchestrator) observe(outcome *Outcome) {
	metrics.PipelineRequests.WithLabelValues(string(outcome.Kind)).Inc()
	if outcome.Result != nil {
		metrics.ConfidenceScore.Observe(outcome.Result.Confidence)
	}

	logger.Info("Pipeline finished",
		zap.String("request_id", outcome.RequestID),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("intent", outcome.Intent.String()),
		zap.Int("latency_ms", outcome.LatencyMS),
	)
}
