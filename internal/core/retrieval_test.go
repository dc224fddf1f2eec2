package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievalPresets(t *testing.T) {
	assert.Equal(t, 15, ComprehensiveRetrieval().K)
	assert.Equal(t, 6, FocusedRetrieval().K)
	assert.Equal(t, 10, BalancedRetrieval().K)

	for _, cfg := range []RetrievalConfig{ComprehensiveRetrieval(), FocusedRetrieval(), BalancedRetrieval()} {
		assert.Equal(t, SearchTypeSimilarity, cfg.SearchType)
	}
}

func TestNewRetrievalConfig(t *testing.T) {
	cfg, err := NewRetrievalConfig(5, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, SearchTypeSimilarity, cfg.SearchType)

	_, err = NewRetrievalConfig(0, "", nil)
	assert.Error(t, err)

	_, err = NewRetrievalConfig(-3, "", nil)
	assert.Error(t, err)

	_, err = NewRetrievalConfig(5, "", map[string]string{"": "x"})
	assert.Error(t, err)

	cfg, err = NewRetrievalConfig(5, "similarity", map[string]string{"fetch_k": "20"})
	require.NoError(t, err)
	assert.Equal(t, "20", cfg.Extra["fetch_k"])
}

func TestPlanRetrieval(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		size      int
		want      int
	}{
		{"small collection shrinks window", 10, 3, 2},
		{"exact fit unchanged", 10, 10, 10},
		{"large collection unchanged", 10, 100, 10},
		{"single record floors at one", 10, 1, 1},
		{"empty collection floors at one", 10, 0, 1},
		{"two records", 10, 2, 1},
		{"unknown size keeps request", 10, -1, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := RetrievalConfig{K: tc.requested, SearchType: SearchTypeSimilarity}
			got := PlanRetrieval(cfg, tc.size)
			assert.Equal(t, tc.want, got.K)
			assert.Equal(t, SearchTypeSimilarity, got.SearchType)
		})
	}
}

func TestPlanRetrievalDoesNotMutateRequest(t *testing.T) {
	cfg := RetrievalConfig{K: 10, SearchType: SearchTypeSimilarity}
	_ = PlanRetrieval(cfg, 3)
	assert.Equal(t, 10, cfg.K)
}
