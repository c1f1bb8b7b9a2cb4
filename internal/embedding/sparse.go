package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/papertrail/backend/internal/retrieval"
)

// sparseDim is the hashed term space. Collisions at this size are rare for
// query-length texts and harmless for ranking.
const sparseDim = 1 << 20

// SparseEncoder produces keyword embeddings locally: prose tokenization,
// stopword removal, term hashing into a fixed index space, and sublinear
// term-frequency weights with L2 normalization. Deterministic; the same
// text always hashes to the same vector, which keeps query-side and
// index-side vectors comparable.
type SparseEncoder struct {
	stopwords map[string]struct{}
}

func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{stopwords: defaultStopwords()}
}

// Encode converts text into an indices+weights sparse vector.
func (e *SparseEncoder) Encode(text string) (retrieval.SparseVector, error) {
	tokens, err := e.tokenize(text)
	if err != nil {
		return retrieval.SparseVector{}, fmt.Errorf("tokenization failed: %w", err)
	}

	tf := make(map[uint32]float64)
	for _, tok := range tokens {
		tf[hashTerm(tok)]++
	}
	if len(tf) == 0 {
		return retrieval.SparseVector{}, nil
	}

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	var norm float64
	for i, idx := range indices {
		w := 1.0 + math.Log(tf[idx])
		values[i] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] = float32(float64(values[i]) / norm)
	}

	return retrieval.SparseVector{Indices: indices, Values: values}, nil
}

func (e *SparseEncoder) tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(strings.ToLower(text),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, tok := range doc.Tokens() {
		term := strings.TrimSpace(tok.Text)
		if len(term) < 2 || !hasLetter(term) {
			continue
		}
		if _, stop := e.stopwords[term]; stop {
			continue
		}
		out = append(out, term)
	}
	return out, nil
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32() % sparseDim
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || r > 127 {
			return true
		}
	}
	return false
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "than", "so",
		"such", "into", "about", "between", "through", "during", "before",
		"after", "what", "which", "who", "how", "do", "does", "did",
		"can", "will", "would", "should", "could", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var _ retrieval.Embedder = (*Service)(nil)

// DenseBackend is the external dense-embedding capability the Service
// composes with the local sparse encoder.
type DenseBackend interface {
	EmbedDense(ctx context.Context, text string) ([]float32, error)
}

// Service implements retrieval.Embedder by pairing a remote dense backend
// with the local sparse encoder.
type Service struct {
	dense  DenseBackend
	sparse *SparseEncoder
}

func NewService(dense DenseBackend) *Service {
	return &Service{
		dense:  dense,
		sparse: NewSparseEncoder(),
	}
}

func (s *Service) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	return s.dense.EmbedDense(ctx, text)
}

func (s *Service) EmbedSparse(_ context.Context, text string) (retrieval.SparseVector, error) {
	return s.sparse.Encode(text)
}
