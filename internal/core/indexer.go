package core

import (
	"context"
	"fmt"
	"log"

	"github.com/docstack/pdfchat/internal/chunker"
	"github.com/docstack/pdfchat/internal/vectorstore"
)

// Indexer runs the indexing pipeline: split the document pages into chunks,
// embed every chunk in one batched call, and store the vectors in the
// owner's collection. Indexing is idempotent: a document whose collection is
// already populated is skipped without touching the embedding service, so a
// retried background job never re-bills.
type Indexer struct {
	embedder Embedder
	splitter *chunker.Splitter
	vectors  *vectorstore.Store
}

func NewIndexer(embedder Embedder, splitter *chunker.Splitter, vectors *vectorstore.Store) *Indexer {
	return &Indexer{
		embedder: embedder,
		splitter: splitter,
		vectors:  vectors,
	}
}

func (ix *Indexer) IndexDocument(ctx context.Context, ownerID, documentID string, pages []chunker.Page) error {
	chunks, err := ix.splitter.Split(pages)
	if err != nil {
		return fmt.Errorf("chunking document %s: %w", documentID, err)
	}

	state, existing, err := ix.vectors.State(ownerID, documentID)
	if err != nil {
		return fmt.Errorf("checking collection for document %s (owner %s): %w", documentID, ownerID, err)
	}
	if state == vectorstore.CollectionPopulated {
		log.Printf("Document %s (owner %s) already indexed with %d records, skipping", documentID, ownerID, existing)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding document %s (owner %s): %w", documentID, ownerID, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding document %s: got %d vectors for %d chunks", documentID, len(vectors), len(chunks))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:          fmt.Sprintf("%s:%d", documentID, chunk.Index),
			Vector:      vectors[i],
			Text:        chunk.Text,
			DocumentID:  documentID,
			Page:        chunk.Page,
			ChunkIndex:  chunk.Index,
			TotalChunks: chunk.Total,
		}
	}

	if state == vectorstore.CollectionEmpty {
		log.Printf("Collection for document %s (owner %s) exists but is empty, appending %d records", documentID, ownerID, len(records))
		if err := ix.vectors.Append(ownerID, documentID, records); err != nil {
			return fmt.Errorf("appending to collection for document %s (owner %s): %w", documentID, ownerID, err)
		}
		return nil
	}

	if err := ix.vectors.Create(ownerID, documentID, records); err != nil {
		return fmt.Errorf("creating collection for document %s (owner %s): %w", documentID, ownerID, err)
	}
	log.Printf("Indexed document %s (owner %s) with %d chunks", documentID, ownerID, len(records))
	return nil
}

// DeleteDocument removes the document's collection and mapping record.
// Deleting a never-indexed document succeeds quietly.
func (ix *Indexer) DeleteDocument(ownerID, documentID string) error {
	return ix.vectors.Delete(ownerID, documentID)
}
