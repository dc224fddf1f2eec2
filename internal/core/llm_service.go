package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/docstack/pdfchat/internal/config"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	// Embedding requests are billed per call; batching keeps one request
	// per chunk batch instead of one per chunk.
	embeddingBatchSize = 100
)

type LLMService struct {
	client *genai.Client
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client: client,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("no embedding data received from gemini")
			}
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}

func (s *LLMService) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation request failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

func (s *LLMService) GenerateStream(ctx context.Context, systemInstruction, prompt string) (<-chan StreamToken, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	iter := model.GenerateContentStream(ctx, genai.Text(prompt))
	out := make(chan StreamToken)
	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				out <- StreamToken{Err: fmt.Errorf("gemini stream failed: %w", err)}
				return
			}
			if text := responseText(resp); text != "" {
				out <- StreamToken{Content: text}
			}
		}
	}()
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return sb.String()
}
