package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)

	score, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-6)

	score, err = CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, score, 1e-6)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)
}

func TestCosineSimilarityEmptyVector(t *testing.T) {
	_, err := CosineSimilarity(nil, []float32{1})
	assert.Error(t, err)
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	score, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(0), score)
}
