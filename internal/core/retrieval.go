package core

import "fmt"

// SearchTypeSimilarity is the only search strategy the collection store
// currently implements.
const SearchTypeSimilarity = "similarity"

// RetrievalConfig controls how many passages are fetched and with which
// strategy. It is immutable once attached to a request. Extra carries
// caller-specific options that the pipeline passes through untouched.
type RetrievalConfig struct {
	K          int
	SearchType string
	Extra      map[string]string
}

// NewRetrievalConfig validates a caller-supplied configuration.
func NewRetrievalConfig(k int, searchType string, extra map[string]string) (RetrievalConfig, error) {
	if k < 1 {
		return RetrievalConfig{}, fmt.Errorf("result count must be at least 1, got %d", k)
	}
	if searchType == "" {
		searchType = SearchTypeSimilarity
	}
	for key := range extra {
		if key == "" {
			return RetrievalConfig{}, fmt.Errorf("extra option keys must be non-empty")
		}
	}
	return RetrievalConfig{K: k, SearchType: searchType, Extra: extra}, nil
}

// ComprehensiveRetrieval is tuned for list and overview questions.
func ComprehensiveRetrieval() RetrievalConfig {
	return RetrievalConfig{K: 15, SearchType: SearchTypeSimilarity}
}

// FocusedRetrieval is tuned for narrow, specific questions.
func FocusedRetrieval() RetrievalConfig {
	return RetrievalConfig{K: 6, SearchType: SearchTypeSimilarity}
}

// BalancedRetrieval is the default configuration.
func BalancedRetrieval() RetrievalConfig {
	return RetrievalConfig{K: 10, SearchType: SearchTypeSimilarity}
}

// PlanRetrieval adapts the requested configuration to the actual collection
// size. When the collection holds fewer records than requested, the result
// count is lowered to max(1, size-1) so the search never demands more
// results than meaningfully exist. A negative size means the size could not
// be determined; the requested configuration is then used unchanged.
func PlanRetrieval(requested RetrievalConfig, collectionSize int) RetrievalConfig {
	if collectionSize < 0 || collectionSize >= requested.K {
		return requested
	}
	effective := requested
	effective.K = collectionSize - 1
	if effective.K < 1 {
		effective.K = 1
	}
	return effective
}
