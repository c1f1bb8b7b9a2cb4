package retrieval

import (
	"sort"

	"github.com/papertrail/backend/internal/evidence"
)

// Reciprocal rank fusion defaults. The smoothing constant follows the
// standard RRF formulation; weights split evenly between the two spaces.
const (
	DefaultRRFK         = 60
	DefaultDenseWeight  = 0.5
	DefaultSparseWeight = 0.5
)

// fuseRRF merges the dense and sparse ranked lists by reciprocal rank:
//
//	fused = wDense/(k + denseRank) + wSparse/(k + sparseRank)
//
// with 1-based ranks and absent terms omitted. Candidates are keyed by
// source identity (paper, section, page span, text) since the two lists
// return independent copies of the same chunk. The fused value decides the
// order and lands in FusedScore; Score keeps the best per-space index
// similarity, since that is the scale the sufficiency thresholds use.
func fuseRRF(dense, sparse []evidence.Chunk, k int, wDense, wSparse float64) []evidence.Chunk {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		chunk evidence.Chunk
		score float64
	}
	candidates := make(map[string]*fused)

	accumulate := func(list []evidence.Chunk, weight float64) {
		for i, c := range list {
			rank := i + 1
			key := chunkKey(c)
			f, ok := candidates[key]
			if !ok {
				f = &fused{chunk: c}
				candidates[key] = f
			} else if c.Score > f.chunk.Score {
				f.chunk.Score = c.Score
			}
			f.score += weight / float64(k+rank)
		}
	}
	accumulate(dense, wDense)
	accumulate(sparse, wSparse)

	merged := make([]evidence.Chunk, 0, len(candidates))
	for _, f := range candidates {
		c := f.chunk
		c.FusedScore = f.score
		merged = append(merged, c)
	}

	// Deterministic order: fused score descending, key as tie-break.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FusedScore != merged[j].FusedScore {
			return merged[i].FusedScore > merged[j].FusedScore
		}
		return chunkKey(merged[i]) < chunkKey(merged[j])
	})

	return merged
}

func chunkKey(c evidence.Chunk) string {
	return c.PaperTitle + "\x00" + c.SectionTitle + "\x00" + c.PageRange() + "\x00" + c.Text
}
