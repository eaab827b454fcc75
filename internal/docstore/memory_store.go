package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// MemoryStore is an in-memory WorkflowStore. Non-durable; intended for
// tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*api.WorkflowDoc
}

var _ api.WorkflowStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*api.WorkflowDoc),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*api.WorkflowDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, api.ErrWorkflowNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, doc *api.WorkflowDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("workflow %s already exists", doc.ID)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, doc *api.WorkflowDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		return api.ErrWorkflowNotFound
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}
