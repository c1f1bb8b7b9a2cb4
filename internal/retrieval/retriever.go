package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/pkg/logger"
)

// overfetchFactor widens each sub-query so fusion has enough candidates to
// reorder before the final top-k cut.
const overfetchFactor = 2

// Options configures one Retriever instance. Zero values fall back to the
// package defaults.
type Options struct {
	Hybrid        bool
	RRFK          int
	DenseWeight   float64
	SparseWeight  float64
	Images        bool
	ImageTopK     int
	ImageMinScore float64
}

// Retriever issues dense and optionally sparse nearest-neighbor queries
// against the vector index, restricted to the intent's allowed sections, and
// fuses the ranked lists by reciprocal rank. It holds no per-request state:
// the embedder and index handles are read-only after construction and safe
// for concurrent use.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	opts     Options
}

func NewRetriever(embedder Embedder, index VectorIndex, opts Options) *Retriever {
	if opts.RRFK == 0 {
		opts.RRFK = DefaultRRFK
	}
	if opts.DenseWeight == 0 && opts.SparseWeight == 0 {
		opts.DenseWeight = DefaultDenseWeight
		opts.SparseWeight = DefaultSparseWeight
	}
	if opts.ImageTopK == 0 {
		opts.ImageTopK = 3
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		opts:     opts,
	}
}

// Retrieve returns the fused top-k evidence chunks for the question, plus a
// short image list when multimodal retrieval is enabled. Any embedding or
// index failure propagates as an error; the caller treats it as a hard
// failure, not as thin evidence.
func (r *Retriever) Retrieve(ctx context.Context, question string, ir intent.Result, topK int) ([]evidence.Chunk, []evidence.Image, error) {
	filter := buildSectionFilter(ir)
	fetch := topK * overfetchFactor

	var (
		wg        sync.WaitGroup
		dense     []evidence.Chunk
		sparse    []evidence.Chunk
		images    []evidence.Image
		denseErr  error
		sparseErr error
		imagesErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		dense, denseErr = r.searchDense(ctx, question, fetch, filter)
	}()

	if r.opts.Hybrid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sparse, sparseErr = r.searchSparse(ctx, question, fetch, filter)
		}()
	}

	if r.opts.Images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			images, imagesErr = r.searchImages(ctx, question)
		}()
	}

	wg.Wait()

	if denseErr != nil {
		return nil, nil, denseErr
	}
	if sparseErr != nil {
		return nil, nil, sparseErr
	}
	if imagesErr != nil {
		return nil, nil, imagesErr
	}

	var chunks []evidence.Chunk
	if r.opts.Hybrid {
		chunks = fuseRRF(dense, sparse, r.opts.RRFK, r.opts.DenseWeight, r.opts.SparseWeight)
	} else {
		// Plain dense ranking; index scores pass through untouched.
		chunks = dense
	}
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	logger.Info("Evidence retrieved",
		zap.String("intent", ir.Intent.String()),
		zap.Bool("hybrid", r.opts.Hybrid),
		zap.Int("dense_hits", len(dense)),
		zap.Int("sparse_hits", len(sparse)),
		zap.Int("fused", len(chunks)),
		zap.Int("images", len(images)),
	)

	return chunks, images, nil
}

func (r *Retriever) searchDense(ctx context.Context, question string, limit int, filter *SectionFilter) ([]evidence.Chunk, error) {
	vec, err := r.embedder.EmbedDense(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("dense embedding failed: %w", err)
	}
	chunks, err := r.index.Search(ctx, SpaceDense, Vector{Dense: vec}, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) searchSparse(ctx context.Context, question string, limit int, filter *SectionFilter) ([]evidence.Chunk, error) {
	vec, err := r.embedder.EmbedSparse(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("sparse embedding failed: %w", err)
	}
	chunks, err := r.index.Search(ctx, SpaceSparse, Vector{Sparse: vec}, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("sparse search failed: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) searchImages(ctx context.Context, question string) ([]evidence.Image, error) {
	return r.SearchImages(ctx, question, r.opts.ImageTopK, r.opts.ImageMinScore)
}

// SearchImages queries the image space directly, outside the text pipeline.
// A non-positive topK falls back to the configured default.
func (r *Retriever) SearchImages(ctx context.Context, question string, topK int, minScore float64) ([]evidence.Image, error) {
	if topK <= 0 {
		topK = r.opts.ImageTopK
	}
	vec, err := r.embedder.EmbedDense(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("image query embedding failed: %w", err)
	}
	images, err := r.index.SearchImages(ctx, vec, topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("image search failed: %w", err)
	}
	return images, nil
}

// buildSectionFilter turns the classifier's allowed sections into an index
// filter. "Unknown" is always excluded; "References" is only searchable for
// the Citation intent. An empty set after exclusion means unfiltered search.
func buildSectionFilter(ir intent.Result) *SectionFilter {
	allowed := make([]string, 0, len(ir.AllowedSections))
	for _, s := range ir.AllowedSections {
		if s == "Unknown" {
			continue
		}
		if s == "References" && ir.Intent != intent.Citation {
			continue
		}
		allowed = append(allowed, s)
	}
	if len(allowed) == 0 {
		return nil
	}
	return &SectionFilter{Allowed: allowed}
}
