package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/consultflow/types"
)

// MockRetriever 返回预置文档的 retrieval.Retriever，记录所有查询
type MockRetriever struct {
	docs []types.ContextDocument
	fail error

	mu  sync.Mutex
	log []string
}

func NewMockRetriever(docs ...types.ContextDocument) *MockRetriever {
	return &MockRetriever{docs: docs}
}

// WithError 之后的每次 Search 都失败，需在首次调用前设置
func (m *MockRetriever) WithError(err error) *MockRetriever {
	m.fail = err
	return m
}

// Search 返回前 k 个预置文档，k<=0 表示全部
func (m *MockRetriever) Search(ctx context.Context, query string, k int) ([]types.ContextDocument, error) {
	m.mu.Lock()
	m.log = append(m.log, query)
	m.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case m.fail != nil:
		return nil, m.fail
	}
	n := len(m.docs)
	if k > 0 && k < n {
		n = k
	}
	return append([]types.ContextDocument(nil), m.docs[:n]...), nil
}

func (m *MockRetriever) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}
