package core

import (
	"context"
	"errors"

	"github.com/docstack/pdfchat/internal/vectorstore"
)

// ErrRetrieval marks a failure anywhere in the retrieval path (query
// rewriting, query embedding or vector search). It is surfaced rather than
// swallowed: answering without context would break the grounding guarantee.
var ErrRetrieval = errors.New("retrieval failed")

// ErrGeneration marks a failure of the text-generation service while
// composing the answer. Not retried here; the caller decides retry policy.
var ErrGeneration = errors.New("generation failed")

// Embedder converts text into fixed-length vectors via the remote embedding
// service. Calls are billed, so callers batch and avoid repeats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamToken is one fragment of a streaming generation response. The
// channel is closed when the stream ends; a token with Err set terminates it.
type StreamToken struct {
	Content string
	Err     error
}

// Generator produces text from the remote generation service under a system
// instruction.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
	GenerateStream(ctx context.Context, systemInstruction, prompt string) (<-chan StreamToken, error)
}

// PassageStore is the slice of the collection store the retriever needs.
type PassageStore interface {
	Search(ownerID, documentID string, vector []float32, k int) ([]vectorstore.Passage, error)
	Count(ownerID, documentID string) (int, error)
}
