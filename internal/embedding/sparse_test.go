package embedding

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeterministic(t *testing.T) {
	enc := NewSparseEncoder()
	text := "Transformer attention improves machine translation quality"

	first, err := enc.Encode(text)
	require.NoError(t, err)
	require.NotEmpty(t, first.Indices)

	for i := 0; i < 10; i++ {
		again, err := enc.Encode(text)
		require.NoError(t, err)
		assert.Equal(t, first.Indices, again.Indices)
		assert.Equal(t, first.Values, again.Values)
	}
}

func TestEncodeDropsStopwords(t *testing.T) {
	enc := NewSparseEncoder()

	content, err := enc.Encode("transformer")
	require.NoError(t, err)

	padded, err := enc.Encode("the transformer is in a paper and it was about this")
	require.NoError(t, err)

	// Only "transformer" and "paper" survive the stopword filter.
	assert.Len(t, padded.Indices, 2)
	assert.Contains(t, padded.Indices, content.Indices[0])
}

func TestEncodeIndicesSortedAndNormalized(t *testing.T) {
	enc := NewSparseEncoder()

	vec, err := enc.Encode("attention attention attention heads multi head attention mechanism")
	require.NoError(t, err)
	require.NotEmpty(t, vec.Indices)
	assert.Len(t, vec.Values, len(vec.Indices))

	assert.True(t, sort.SliceIsSorted(vec.Indices, func(i, j int) bool {
		return vec.Indices[i] < vec.Indices[j]
	}))

	var norm float64
	for _, v := range vec.Values {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestEncodeRepeatedTermWeighsHigher(t *testing.T) {
	enc := NewSparseEncoder()

	vec, err := enc.Encode("attention attention attention baseline")
	require.NoError(t, err)
	require.Len(t, vec.Indices, 2)

	attn := hashTerm("attention")
	var attnWeight, otherWeight float32
	for i, idx := range vec.Indices {
		if idx == attn {
			attnWeight = vec.Values[i]
		} else {
			otherWeight = vec.Values[i]
		}
	}
	assert.Greater(t, attnWeight, otherWeight)
}

func TestEncodeEmptyText(t *testing.T) {
	enc := NewSparseEncoder()

	for _, text := range []string{"", "   ", "the of and", "123 456"} {
		vec, err := enc.Encode(text)
		require.NoError(t, err)
		assert.Empty(t, vec.Indices, "text %q", text)
		assert.Empty(t, vec.Values, "text %q", text)
	}
}

func TestEncodeCaseInsensitive(t *testing.T) {
	enc := NewSparseEncoder()

	upper, err := enc.Encode("TRANSFORMER Attention")
	require.NoError(t, err)
	lower, err := enc.Encode("transformer attention")
	require.NoError(t, err)

	assert.Equal(t, lower.Indices, upper.Indices)
	assert.Equal(t, lower.Values, upper.Values)
}

type fakeDense struct {
	vec []float32
	err error
}

func (f *fakeDense) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestServiceDelegates(t *testing.T) {
	svc := NewService(&fakeDense{vec: []float32{0.5, 0.5}})

	dense, err := svc.EmbedDense(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, dense)

	sparse, err := svc.EmbedSparse(context.Background(), "transformer attention")
	require.NoError(t, err)
	assert.Len(t, sparse.Indices, 2)
}

func TestServiceDenseErrorPropagates(t *testing.T) {
	svc := NewService(&fakeDense{err: errors.New("backend down")})

	_, err := svc.EmbedDense(context.Background(), "query")
	assert.EqualError(t, err, "backend down")
}
