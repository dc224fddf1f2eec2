// Package vectorstore persists embedded document chunks in per-owner
// collections on local disk. Every owner gets an isolated partition
// directory; that partition boundary is the only isolation mechanism, so all
// lookups go through the owner id. Collection identity is tracked in a
// per-partition mapping file, which is the source of truth: the stored
// collection files carry no registry of their own.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrCollectionNotFound is returned when no collection has been indexed for
// the owner/document pair. The caller decides whether that is fatal or just
// means the document has not been indexed yet.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionState is the result of an explicit existence check, so callers
// never have to drive control flow off a load failure.
type CollectionState int

const (
	CollectionAbsent CollectionState = iota
	CollectionEmpty
	CollectionPopulated
)

// Record is one embedded chunk as stored in a collection.
type Record struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	Text        string    `json:"text"`
	DocumentID  string    `json:"document_id"`
	Page        int       `json:"page"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
}

// Passage is a retrieved chunk with its similarity score.
type Passage struct {
	Text        string  `json:"text"`
	DocumentID  string  `json:"document_id"`
	Page        int     `json:"page"`
	ChunkIndex  int     `json:"chunk_index"`
	TotalChunks int     `json:"total_chunks"`
	Score       float32 `json:"score"`
}

type collectionFile struct {
	CollectionName string   `json:"collection_name"`
	Records        []Record `json:"records"`
}

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// CollectionName derives the deterministic collection name for a document.
// Hyphens are replaced because collection names must be identifier-safe.
func CollectionName(documentID string) string {
	return "pdf_" + strings.ReplaceAll(documentID, "-", "_")
}

func (s *Store) partitionDir(ownerID string) string {
	return filepath.Join(s.root, "user_"+ownerID)
}

func (s *Store) collectionPath(ownerID, collectionID string) string {
	return filepath.Join(s.partitionDir(ownerID), collectionID+".json")
}

// State reports whether a collection exists for the owner/document pair and
// how many records it holds.
func (s *Store) State(ownerID, documentID string) (CollectionState, int, error) {
	mapping, err := s.lookupMapping(ownerID, documentID)
	if err != nil {
		return CollectionAbsent, 0, err
	}
	if mapping == nil {
		return CollectionAbsent, 0, nil
	}
	coll, err := s.loadCollection(ownerID, mapping.CollectionUUID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CollectionEmpty, 0, nil
		}
		return CollectionAbsent, 0, err
	}
	if len(coll.Records) == 0 {
		return CollectionEmpty, 0, nil
	}
	return CollectionPopulated, len(coll.Records), nil
}

// Create stores the records in a fresh collection and registers it in the
// mapping file. The mapping is written only after the records are durably on
// disk, so a mapping never points at a collection that was not written. Each
// generation gets a fresh random identifier, so a stale collection left over
// from a failed deletion can never be silently appended to.
func (s *Store) Create(ownerID, documentID string, records []Record) error {
	dir := s.partitionDir(ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition for owner %s: %w", ownerID, err)
	}

	if old, err := s.lookupMapping(ownerID, documentID); err == nil && old != nil {
		// A previous generation is being replaced; drop its file so it
		// cannot linger unreferenced.
		if err := os.Remove(s.collectionPath(ownerID, old.CollectionUUID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: could not remove previous collection %s for document %s: %v", old.CollectionUUID, documentID, err)
		}
	}

	collectionID := uuid.NewString()
	coll := collectionFile{CollectionName: CollectionName(documentID), Records: records}
	if err := s.writeCollection(ownerID, collectionID, &coll); err != nil {
		return fmt.Errorf("failed to write collection for document %s: %w", documentID, err)
	}

	if err := s.addMapping(ownerID, documentID, collectionID); err != nil {
		return fmt.Errorf("failed to record mapping for document %s: %w", documentID, err)
	}
	return nil
}

// Append adds records to an existing (possibly empty) collection, keeping
// its identity.
func (s *Store) Append(ownerID, documentID string, records []Record) error {
	mapping, err := s.lookupMapping(ownerID, documentID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return fmt.Errorf("append to document %s for owner %s: %w", documentID, ownerID, ErrCollectionNotFound)
	}
	coll, err := s.loadCollection(ownerID, mapping.CollectionUUID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load collection for document %s: %w", documentID, err)
		}
		coll = &collectionFile{CollectionName: mapping.CollectionName}
	}
	coll.Records = append(coll.Records, records...)
	if err := s.writeCollection(ownerID, mapping.CollectionUUID, coll); err != nil {
		return fmt.Errorf("failed to write collection for document %s: %w", documentID, err)
	}
	return nil
}

// Search returns the k records nearest to the query vector by cosine
// similarity, best first.
func (s *Store) Search(ownerID, documentID string, vector []float32, k int) ([]Passage, error) {
	mapping, err := s.lookupMapping(ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, fmt.Errorf("search document %s for owner %s: %w", documentID, ownerID, ErrCollectionNotFound)
	}
	coll, err := s.loadCollection(ownerID, mapping.CollectionUUID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load collection for document %s: %w", documentID, err)
	}

	scored := make([]Passage, 0, len(coll.Records))
	for _, rec := range coll.Records {
		score, err := CosineSimilarity(vector, rec.Vector)
		if err != nil {
			log.Printf("Skipping record %s in collection %s: %v", rec.ID, mapping.CollectionName, err)
			continue
		}
		scored = append(scored, Passage{
			Text:        rec.Text,
			DocumentID:  rec.DocumentID,
			Page:        rec.Page,
			ChunkIndex:  rec.ChunkIndex,
			TotalChunks: rec.TotalChunks,
			Score:       score,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of records indexed for the document, or 0 when no
// collection exists.
func (s *Store) Count(ownerID, documentID string) (int, error) {
	_, n, err := s.State(ownerID, documentID)
	return n, err
}

// Delete removes the collection and its mapping record. Deleting a document
// that was never indexed is not an error. The mapping record is removed even
// when the collection file cannot be deleted; the orphaned file is logged
// and becomes unreachable, and a later re-index creates a fresh generation.
func (s *Store) Delete(ownerID, documentID string) error {
	mapping, err := s.lookupMapping(ownerID, documentID)
	if err != nil {
		return err
	}
	if mapping == nil {
		log.Printf("No collection to delete for document %s (owner %s)", documentID, ownerID)
		return nil
	}

	if err := os.Remove(s.collectionPath(ownerID, mapping.CollectionUUID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: partial deletion for document %s (owner %s): collection %s could not be removed: %v", documentID, ownerID, mapping.CollectionUUID, err)
	}

	if err := s.removeMapping(ownerID, documentID); err != nil {
		return fmt.Errorf("failed to remove mapping for document %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) loadCollection(ownerID, collectionID string) (*collectionFile, error) {
	data, err := os.ReadFile(s.collectionPath(ownerID, collectionID))
	if err != nil {
		return nil, err
	}
	var coll collectionFile
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, fmt.Errorf("corrupt collection file %s: %w", collectionID, err)
	}
	return &coll, nil
}

func (s *Store) writeCollection(ownerID, collectionID string, coll *collectionFile) error {
	data, err := json.Marshal(coll)
	if err != nil {
		return err
	}
	return os.WriteFile(s.collectionPath(ownerID, collectionID), data, 0o644)
}

// timestampFormat matches the created_at layout used in the mapping file.
const timestampFormat = "2006-01-02 15:04:05"

func now() string {
	return time.Now().Format(timestampFormat)
}
