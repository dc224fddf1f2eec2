package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/docstack/pdfchat/internal/store"
	"github.com/docstack/pdfchat/internal/vectorstore"
)

const condenseSystemInstruction = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, formulate a standalone question " +
	"which can be understood without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

// Retriever answers "which passages are relevant to this turn". When the
// conversation already has history, the follow-up question is first rewritten
// into a standalone query with one generation call; a first question is
// passed through untouched, which saves that call entirely.
type Retriever struct {
	embedder  Embedder
	generator Generator
	passages  PassageStore
}

func NewRetriever(embedder Embedder, generator Generator, passages PassageStore) *Retriever {
	return &Retriever{
		embedder:  embedder,
		generator: generator,
		passages:  passages,
	}
}

// Retrieve runs one retrieval request: rewrite (or pass through) the
// question, adapt the requested configuration to the collection size, then
// search. It returns the query that was actually searched alongside the
// ranked passages. Failures are not retried;
// vectorstore.ErrCollectionNotFound propagates as-is so the caller can
// distinguish "not indexed yet" from a service failure.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, documentID string, cfg RetrievalConfig, history []store.Message, question string) (string, []vectorstore.Passage, error) {
	query := question
	if len(history) > 0 {
		rewritten, err := r.generator.Generate(ctx, condenseSystemInstruction, condensePrompt(history, question))
		if err != nil {
			return "", nil, fmt.Errorf("rewriting question for document %s: %w: %w", documentID, ErrRetrieval, err)
		}
		query = strings.TrimSpace(rewritten)
		if query == "" {
			query = question
		}
	}

	count, err := r.passages.Count(ownerID, documentID)
	if err != nil {
		// Unknown collection size: fall back to the requested config.
		log.Printf("Could not determine collection size for document %s (owner %s): %v", documentID, ownerID, err)
		count = -1
	}
	effective := PlanRetrieval(cfg, count)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("embedding query for document %s: %w: %w", documentID, ErrRetrieval, err)
	}

	passages, err := r.passages.Search(ownerID, documentID, vector, effective.K)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("searching document %s for owner %s: %w: %w", documentID, ownerID, ErrRetrieval, err)
	}

	log.Printf("Retrieved %d passages for document %s (requested %d, effective %d)", len(passages), documentID, cfg.K, effective.K)
	return query, passages, nil
}

func condensePrompt(history []store.Message, question string) string {
	var sb strings.Builder
	sb.WriteString("Chat History:\n")
	sb.WriteString(formatHistory(history))
	sb.WriteString("\nFollow Up Question: ")
	sb.WriteString(question)
	sb.WriteString("\nStandalone Question:")
	return sb.String()
}

func formatHistory(history []store.Message) string {
	var sb strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case store.RoleHuman:
			sb.WriteString("Human: ")
		case store.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString(msg.Role + ": ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
