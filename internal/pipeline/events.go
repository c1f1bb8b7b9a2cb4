package pipeline

import (
	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
)

// Stage identifies which part of the pipeline produced an event or flagged
// an escalation.
type Stage string

const (
	StageStart       Stage = "start"
	StageRetrieval   Stage = "retrieval"
	StageAnalysis    Stage = "analysis"
	StageGuardrails  Stage = "guardrails"
	StageHumanReview Stage = "human_review"
	StageStop        Stage = "stop"
)

// Event is the sealed union of pipeline stage payloads. Exactly one payload
// shape exists per state, so a consuming stage cannot read a field the
// producing stage never set. Events are immutable: each stage constructs a
// fresh successor instead of mutating its input.
type Event interface {
	stage() Stage
}

// Question is the immutable pipeline input.
type Question struct {
	Text      string
	SessionID string
}

// StartEvent enters the pipeline with the raw question.
type StartEvent struct {
	RequestID string
	Question  Question
}

func (StartEvent) stage() Stage { return StageStart }

// RetrievalEvent instructs the retrieval stage. Intent classification has
// already run.
type RetrievalEvent struct {
	RequestID string
	Question  Question
	Intent    intent.Result
	TopK      int
}

func (RetrievalEvent) stage() Stage { return StageRetrieval }

// AnalysisEvent carries evidence the sufficiency gate approved. The chunk
// list handed to synthesis is exactly this list; the pipeline never fetches
// more evidence mid-synthesis.
type AnalysisEvent struct {
	RequestID string
	Question  Question
	Intent    intent.Result
	Chunks    []evidence.Chunk
	Images    []evidence.Image
	Coverage  evidence.Coverage
}

func (AnalysisEvent) stage() Stage { return StageAnalysis }

// HumanReviewEvent requests human intervention. FromStage records which gate
// fired (retrieval sufficiency vs. guardrails) so callers and logs can tell
// the two escalation kinds apart.
type HumanReviewEvent struct {
	RequestID string
	Question  Question
	Intent    intent.Result
	FromStage Stage
	Reason    string
	Chunks    []evidence.Chunk
	Images    []evidence.Image
	// Draft is the synthesized result when guardrails escalated; nil for
	// retrieval-stage escalations.
	Draft *evidence.AnalysisResult
}

func (HumanReviewEvent) stage() Stage { return StageHumanReview }

// StopEvent is terminal and carries the caller-visible outcome.
type StopEvent struct {
	Outcome *Outcome
}

func (StopEvent) stage() Stage { return StageStop }

// OutcomeKind discriminates the terminal outcome shapes.
type OutcomeKind string

const (
	// OutcomeAnswered carries a validated AnalysisResult.
	OutcomeAnswered OutcomeKind = "answered"
	// OutcomeEscalated carries an EscalationNotice for the caller to act on.
	OutcomeEscalated OutcomeKind = "escalated"
	// OutcomeRefused is a valid terminal outcome with no answer at all.
	OutcomeRefused OutcomeKind = "refused"
	// OutcomeSuspended means an interactive deployment parked the request
	// for human review; ReviewID resumes it.
	OutcomeSuspended OutcomeKind = "suspended"
)

// EscalationNotice is the structured decision-branch payload: the reason,
// the evidence gathered so far, and the small fixed set of next actions.
type EscalationNotice struct {
	Stage            Stage            `json:"stage"`
	Reason           string           `json:"reason"`
	Chunks           []evidence.Chunk `json:"chunks"`
	SuggestedActions []string         `json:"suggested_actions"`
}

// Outcome is what Answer returns for every non-error path. Decision branches
// are data, never error values: they are expected, frequent, and carry
// structured fields the caller consumes.
type Outcome struct {
	Kind          OutcomeKind              `json:"kind"`
	RequestID     string                   `json:"request_id"`
	Intent        intent.Intent            `json:"intent"`
	Result        *evidence.AnalysisResult `json:"result,omitempty"`
	Escalation    *EscalationNotice        `json:"escalation,omitempty"`
	RefusalReason string                   `json:"refusal_reason,omitempty"`
	ReviewID      string                   `json:"review_id,omitempty"`
	Images        []evidence.Image         `json:"images,omitempty"`
	LatencyMS     int                      `json:"latency_ms"`
}

// Suggested next actions per escalating stage, fixed by design.
var (
	retrievalActions = []string{
		"Rephrase the question for better retrieval",
		"Add more papers to the corpus",
		"Approve proceeding with available evidence",
	}
	guardrailsActions = []string{
		"Approve answer with disclaimer",
		"Request more evidence",
		"Refine the question",
	}
)
