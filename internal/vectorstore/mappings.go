package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const mappingsFileName = "pdf_mappings.json"

// Mapping links a document id to the collection that holds its vectors.
type Mapping struct {
	CollectionUUID string `json:"collection_uuid"`
	CollectionName string `json:"collection_name"`
	CreatedAt      string `json:"created_at"`
}

func (s *Store) mappingsPath(ownerID string) string {
	return filepath.Join(s.partitionDir(ownerID), mappingsFileName)
}

// loadMappings reads the owner's mapping file. A missing partition or file
// yields an empty map.
func (s *Store) loadMappings(ownerID string) (map[string]Mapping, error) {
	data, err := os.ReadFile(s.mappingsPath(ownerID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]Mapping{}, nil
		}
		return nil, fmt.Errorf("failed to read mappings for owner %s: %w", ownerID, err)
	}
	mappings := map[string]Mapping{}
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("corrupt mappings file for owner %s: %w", ownerID, err)
	}
	return mappings, nil
}

func (s *Store) saveMappings(ownerID string, mappings map[string]Mapping) error {
	data, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.mappingsPath(ownerID), data, 0o644)
}

func (s *Store) lookupMapping(ownerID, documentID string) (*Mapping, error) {
	mappings, err := s.loadMappings(ownerID)
	if err != nil {
		return nil, err
	}
	m, ok := mappings[documentID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) addMapping(ownerID, documentID, collectionID string) error {
	mappings, err := s.loadMappings(ownerID)
	if err != nil {
		return err
	}
	mappings[documentID] = Mapping{
		CollectionUUID: collectionID,
		CollectionName: CollectionName(documentID),
		CreatedAt:      now(),
	}
	return s.saveMappings(ownerID, mappings)
}

func (s *Store) removeMapping(ownerID, documentID string) error {
	mappings, err := s.loadMappings(ownerID)
	if err != nil {
		return err
	}
	delete(mappings, documentID)
	return s.saveMappings(ownerID, mappings)
}

// Mappings returns a copy of the owner's mapping table, keyed by document id.
func (s *Store) Mappings(ownerID string) (map[string]Mapping, error) {
	return s.loadMappings(ownerID)
}
