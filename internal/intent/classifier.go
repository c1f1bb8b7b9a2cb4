package intent

import (
	"strconv"
	"strings"
)

// Intent is the closed set of question categories the pipeline understands.
// Every Intent has a total profile entry; there is no open-ended fallthrough.
type Intent int

const (
	General Intent = iota
	Summary
	Comparison
	Results
	Experiments
	Methodology
	ResearchGaps
	FutureWork
	Limitations
	Citation
)

var intentNames = map[Intent]string{
	General:      "general",
	Summary:      "summary",
	Comparison:   "comparison",
	Results:      "results",
	Experiments:  "experiments",
	Methodology:  "methodology",
	ResearchGaps: "research_gaps",
	FutureWork:   "future_work",
	Limitations:  "limitations",
	Citation:     "citation",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return "general"
}

// MarshalJSON renders intents by name so API payloads stay stable if the
// enum order ever changes.
func (i Intent) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(i.String())), nil
}

// All lists every intent in classification order. Tests range over this to
// assert the profile tables are total.
func All() []Intent {
	return []Intent{
		General, Summary, Comparison, Results, Experiments,
		Methodology, ResearchGaps, FutureWork, Limitations, Citation,
	}
}

// Profile holds the per-intent retrieval and sufficiency parameters.
type Profile struct {
	// Sections a retrieval for this intent may draw from, in preference order.
	Sections []string
	// Priority breaks ties when several intents match the same question.
	// Higher wins; specific intents outrank generic ones.
	Priority int
	// ScoreThreshold is the minimum average evidence score for the
	// sufficiency gate. Exploratory intents use a lower bar.
	ScoreThreshold float64
	// MinChunks is the minimum evidence count for the sufficiency gate.
	MinChunks int
}

var profiles = map[Intent]Profile{
	Citation: {
		Sections:       []string{"References"},
		Priority:       100,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
	Limitations: {
		Sections:       []string{"Discussion", "Limitations"},
		Priority:       90,
		ScoreThreshold: 0.4,
		MinChunks:      2,
	},
	FutureWork: {
		Sections:       []string{"Future Work"},
		Priority:       85,
		ScoreThreshold: 0.4,
		MinChunks:      2,
	},
	ResearchGaps: {
		Sections:       []string{"Discussion", "Limitations", "Future Work"},
		Priority:       80,
		ScoreThreshold: 0.4,
		MinChunks:      2,
	},
	Methodology: {
		Sections:       []string{"Methods"},
		Priority:       70,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
	Experiments: {
		Sections:       []string{"Experiments", "Results"},
		Priority:       60,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
	Results: {
		Sections:       []string{"Results"},
		Priority:       50,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
	Comparison: {
		Sections:       []string{"Results", "Experiments"},
		Priority:       40,
		ScoreThreshold: 0.5,
		MinChunks:      3,
	},
	Summary: {
		Sections:       []string{"Abstract", "Introduction"},
		Priority:       20,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
	General: {
		Sections:       []string{"Abstract", "Introduction", "Methods", "Results"},
		Priority:       10,
		ScoreThreshold: 0.5,
		MinChunks:      2,
	},
}

// Profile returns the retrieval profile for the intent.
func (i Intent) Profile() Profile {
	if p, ok := profiles[i]; ok {
		return p
	}
	return profiles[General]
}

var keywords = map[Intent][]string{
	Limitations: {
		"limitation", "drawback", "shortcoming", "weakness", "problem with",
		"issue with", "challenge", "constraint", "restriction", "downside",
	},
	FutureWork: {
		"future work", "future direction", "next step", "improve", "extension",
		"further research", "open question", "remaining",
	},
	ResearchGaps: {
		"gap", "missing", "lack", "unexplored", "underexplored", "overlooked",
		"not addressed", "unresolved",
	},
	Methodology: {
		"method", "approach", "technique", "algorithm", "how does", "how do",
		"procedure", "framework", "architecture", "design", "implementation",
	},
	Experiments: {
		"experiment", "evaluation", "benchmark", "test", "dataset", "baseline",
		"ablation", "hyperparameter", "training", "fine-tun",
	},
	Results: {
		"result", "performance", "accuracy", "score", "metric", "outcome",
		"finding", "achieve", "outperform",
	},
	Comparison: {
		"compare", "comparison", "versus", "vs", "differ", "better than",
		"worse than", "relative to", "against",
	},
	Summary: {
		"summary", "summarize", "overview", "what is", "explain", "describe",
		"introduction", "main idea", "key point", "tldr", "gist",
	},
	Citation: {
		"reference", "cite", "citation", "source", "bibliography", "paper by",
	},
}

// Confidence values reported by Classify. The fallback value feeds the
// sufficiency decision downstream, so it is fixed and named rather than
// tuned per call site.
const (
	MatchedConfidence  = 1.0
	FallbackConfidence = 0.5
)

// Result of classifying one question.
type Result struct {
	Intent          Intent
	AllowedSections []string
	Confidence      float64
}

// Classifier maps a question to an intent and an allowed-section filter.
// Pure keyword matching over fixed tables: no model call, no state, and
// identical input always yields identical output.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify lower-cases the question, collects every intent with at least one
// keyword hit, and resolves conflicts by priority. No hit degrades to General
// with a reduced confidence.
func (c *Classifier) Classify(question string) Result {
	lower := strings.ToLower(question)

	best := General
	matched := false
	for _, candidate := range All() {
		kws, ok := keywords[candidate]
		if !ok {
			continue
		}
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				if !matched || candidate.Profile().Priority > best.Profile().Priority {
					best = candidate
				}
				matched = true
				break
			}
		}
	}

	if !matched {
		return Result{
			Intent:          General,
			AllowedSections: General.Profile().Sections,
			Confidence:      FallbackConfidence,
		}
	}

	return Result{
		Intent:          best,
		AllowedSections: best.Profile().Sections,
		Confidence:      MatchedConfidence,
	}
}
