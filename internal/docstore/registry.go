package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pdfchat-core/server/internal/agent/model"
)

const registryFile = "registry.json"

func (s *Store) registryPath() string {
	return filepath.Join(s.dir, registryFile)
}

func (s *Store) loadRegistry() (map[string]string, error) {
	b, err := os.ReadFile(s.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	mapping := map[string]string{}
	if err := json.Unmarshal(b, &mapping); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return mapping, nil
}

func (s *Store) saveRegistry(mapping map[string]string) error {
	b, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(s.registryPath(), b, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// reconcile synchronises the registry with the files currently on disk:
// unknown files get a fresh id, entries whose file is gone are dropped.
// Ids of surviving entries never change.
func (s *Store) reconcile() (map[string]string, error) {
	mapping, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	files, err := s.ListFiles()
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(files))
	for _, f := range files {
		existing[f] = true
	}
	known := make(map[string]bool, len(mapping))
	for _, fname := range mapping {
		known[fname] = true
	}

	changed := false
	sort.Strings(files)
	for _, f := range files {
		if !known[f] {
			mapping[uuid.New().String()] = f
			changed = true
		}
	}
	for id, fname := range mapping {
		if !existing[fname] {
			delete(mapping, id)
			changed = true
		}
	}

	if changed {
		if err := s.saveRegistry(mapping); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}

// AddDocument registers a filename and returns its stable id. Calling it
// twice with the same filename returns the same id.
func (s *Store) AddDocument(filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.reconcile()
	if err != nil {
		return "", err
	}
	for id, fname := range mapping {
		if fname == filename {
			return id, nil
		}
	}
	id := uuid.New().String()
	mapping[id] = filename
	if err := s.saveRegistry(mapping); err != nil {
		return "", err
	}
	return id, nil
}

// ResolveFilename maps a document id back to its filename.
func (s *Store) ResolveFilename(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.reconcile()
	if err != nil {
		return "", err
	}
	fname, ok := mapping[id]
	if !ok {
		return "", ErrUnknownDocument
	}
	return fname, nil
}

// ListDocuments enumerates registered documents in stable filename order.
func (s *Store) ListDocuments() ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.reconcile()
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(mapping))
	for id, fname := range mapping {
		docs = append(docs, model.Document{ID: id, Filename: fname})
	}
	sort.Slice(docs, func(i, j int) bool {
		return strings.ToLower(docs[i].Filename) < strings.ToLower(docs[j].Filename)
	})
	return docs, nil
}
