package core

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/docstack/pdfchat/internal/vectorstore"
)

type mockEmbedder struct {
	embedCalls int
	batchCalls int
	lastQuery  string
	embedErr   error
	batchErr   error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls++
	m.lastQuery = text
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return bagVector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagVector(t)
	}
	return out, nil
}

// bagVector hashes words into a fixed number of buckets, so texts that share
// words score higher under cosine similarity. Deterministic and good enough
// to exercise ranking.
func bagVector(text string) []float32 {
	v := make([]float32, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?\"'")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%64]++
	}
	return v
}

type generateCall struct {
	system string
	prompt string
}

type mockGenerator struct {
	calls        []generateCall
	generateFn   func(system, prompt string) (string, error)
	streamTokens []StreamToken
	streamErr    error
}

func (m *mockGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	m.calls = append(m.calls, generateCall{system: system, prompt: prompt})
	if m.generateFn != nil {
		return m.generateFn(system, prompt)
	}
	return "mock answer", nil
}

func (m *mockGenerator) GenerateStream(_ context.Context, system, prompt string) (<-chan StreamToken, error) {
	m.calls = append(m.calls, generateCall{system: system, prompt: prompt})
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	out := make(chan StreamToken, len(m.streamTokens))
	for _, tok := range m.streamTokens {
		out <- tok
	}
	close(out)
	return out, nil
}

type mockPassageStore struct {
	count      int
	countErr   error
	passages   []vectorstore.Passage
	searchErr  error
	lastK      int
	lastVector []float32
}

func (m *mockPassageStore) Search(_, _ string, vector []float32, k int) ([]vectorstore.Passage, error) {
	m.lastK = k
	m.lastVector = vector
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.passages, nil
}

func (m *mockPassageStore) Count(_, _ string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}
