package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Gateway. Documents are kept in insertion order and
// copied on every read and write so callers never share maps with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	order []string
	docs  map[string]Document
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Document)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return []Document{}, nil
	}
	out := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if MatchAll(doc, filters) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateCollection(collection); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	stored := doc.Clone()
	if stored == nil {
		stored = Document{}
	}
	id := stored.ID()
	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	stored["id"] = id
	c.docs[id] = stored
	c.order = append(c.order, id)
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	doc, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range patch.Clone() {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	return nil
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.order)
	}
	return 0
}
