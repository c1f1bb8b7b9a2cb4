// Package evidence holds the immutable value types that flow between
// pipeline stages: retrieved chunks, image hits, coverage statistics,
// citations, and the synthesized result.
package evidence

import "fmt"

// Chunk is one retrieved text span with its provenance. Immutable once
// retrieved. Score is always the index similarity (0..1 scale); hybrid
// retrieval additionally sets FusedScore, the reciprocal-rank value the
// final ordering came from. Sufficiency thresholds compare against Score,
// which keeps them meaningful in both retrieval modes.
type Chunk struct {
	Text         string  `json:"text"`
	PaperTitle   string  `json:"paper_title"`
	SectionTitle string  `json:"section_title"`
	PageStart    int     `json:"page_start"`
	PageEnd      int     `json:"page_end"`
	Score        float64 `json:"score"`
	FusedScore   float64 `json:"fused_score,omitempty"`
}

// PageRange renders the chunk's page span for prompts and citations.
func (c Chunk) PageRange() string {
	return fmt.Sprintf("%d-%d", c.PageStart, c.PageEnd)
}

// Image is one retrieved image hit. Images ride alongside text evidence but
// never participate in fusion or the sufficiency decision.
type Image struct {
	ImageID    string  `json:"image_id"`
	PaperTitle string  `json:"paper_title"`
	PageNumber int     `json:"page_number"`
	Caption    string  `json:"caption,omitempty"`
	Score      float64 `json:"score"`
}

// Citation points at a source paper and page range. Deduplicated by
// (paper title, starting page).
type Citation struct {
	PaperTitle string `json:"paper_title"`
	Section    string `json:"section"`
	Pages      string `json:"pages"`
}

// Coverage summarizes a retrieved chunk set. Derived per request, never
// stored.
type Coverage struct {
	ChunkCount       int     `json:"chunk_count"`
	DistinctPapers   int     `json:"distinct_papers"`
	DistinctSections int     `json:"distinct_sections"`
	MinScore         float64 `json:"min_score"`
	AvgScore         float64 `json:"avg_score"`
	MaxScore         float64 `json:"max_score"`
}

// ComputeCoverage derives coverage statistics from a chunk set.
func ComputeCoverage(chunks []Chunk) Coverage {
	if len(chunks) == 0 {
		return Coverage{}
	}

	papers := make(map[string]struct{})
	sections := make(map[string]struct{})

	cov := Coverage{
		ChunkCount: len(chunks),
		MinScore:   chunks[0].Score,
		MaxScore:   chunks[0].Score,
	}

	var sum float64
	for _, c := range chunks {
		papers[c.PaperTitle] = struct{}{}
		sections[c.SectionTitle] = struct{}{}
		sum += c.Score
		if c.Score < cov.MinScore {
			cov.MinScore = c.Score
		}
		if c.Score > cov.MaxScore {
			cov.MaxScore = c.Score
		}
	}

	cov.DistinctPapers = len(papers)
	cov.DistinctSections = len(sections)
	cov.AvgScore = sum / float64(len(chunks))
	return cov
}

// AnalysisResult is the synthesized, cited answer.
type AnalysisResult struct {
	Answer       string     `json:"answer"`
	Citations    []Citation `json:"citations"`
	Confidence   float64    `json:"confidence"`
	ConflictNote string     `json:"conflict_note,omitempty"`
}
