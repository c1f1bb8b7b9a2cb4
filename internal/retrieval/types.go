package retrieval

import (
	"context"

	"github.com/papertrail/backend/internal/evidence"
)

// Space names a vector space in the index. The text pipeline uses the dense
// and sparse spaces; images live in a separate space that never joins fusion.
type Space string

const (
	SpaceDense  Space = "dense"
	SpaceSparse Space = "sparse"
	SpaceImage  Space = "image"
)

// SparseVector is a keyword embedding as parallel indices and weights.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Vector carries the query embedding for one sub-query. Exactly one of the
// two representations is set, matching the space being searched.
type Vector struct {
	Dense  []float32
	Sparse SparseVector
}

// SectionFilter restricts a text search to chunks whose section label is in
// Allowed. A nil filter or an empty Allowed set means unfiltered search.
type SectionFilter struct {
	Allowed []string
}

// Embedder produces query embeddings. Implementations wrap external model
// services; failures propagate as retrieval errors, never as empty vectors.
type Embedder interface {
	EmbedDense(ctx context.Context, text string) ([]float32, error)
	EmbedSparse(ctx context.Context, text string) (SparseVector, error)
}

// VectorIndex is the nearest-neighbor search capability. Implementations
// must support the dense text space; backends without a sparse or image
// space return an error for those, and the retriever is configured to not
// ask for them.
type VectorIndex interface {
	// Search runs a nearest-neighbor query over a text space and returns
	// chunks ranked by the index's own similarity score.
	Search(ctx context.Context, space Space, vec Vector, limit int, filter *SectionFilter) ([]evidence.Chunk, error)
	// SearchImages queries the image space with a score floor. Section
	// filters do not apply to images.
	SearchImages(ctx context.Context, vec []float32, limit int, minScore float64) ([]evidence.Image, error)
}
