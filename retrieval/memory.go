package retrieval

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/consultflow/types"
)

// MemoryRetriever keeps documents in process. Safe for concurrent use.
type MemoryRetriever struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryRetriever creates a retriever seeded with docs.
func NewMemoryRetriever(docs ...Document) *MemoryRetriever {
	m := &MemoryRetriever{docs: make(map[string]Document, len(docs))}
	m.Add(docs...)
	return m
}

// Add inserts or replaces documents by id.
func (m *MemoryRetriever) Add(docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = d
	}
}

// Len returns the number of stored documents.
func (m *MemoryRetriever) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search implements Retriever.
func (m *MemoryRetriever) Search(ctx context.Context, query string, k int) ([]types.ContextDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	m.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return rank(docs, query, k), nil
}
