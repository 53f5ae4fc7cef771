package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/consultflow/llm"
)

// ReplyFunc 按请求生成响应
type ReplyFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// MockProvider llm.Provider 的测试替身，记录收到的每个请求。
// 默认回复 "Mock response"，用量固定为 10 prompt + 20 completion。
type MockProvider struct {
	mu       sync.Mutex
	reply    ReplyFunc
	requests []*llm.ChatRequest
}

func NewMockProvider() *MockProvider {
	return (&MockProvider{}).WithResponse("Mock response")
}

// WithResponse 固定回复文本
func (m *MockProvider) WithResponse(text string) *MockProvider {
	return m.WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return cannedResponse(req.Model, text), nil
	})
}

// WithError 每次调用都返回 err
func (m *MockProvider) WithError(err error) *MockProvider {
	return m.WithCompletionFunc(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, err
	})
}

func (m *MockProvider) WithCompletionFunc(fn ReplyFunc) *MockProvider {
	m.mu.Lock()
	m.reply = fn
	m.mu.Unlock()
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.reply
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx, req)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest 最近一次请求，未被调用时为 nil
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.requests); n > 0 {
		return m.requests[n-1]
	}
	return nil
}

func cannedResponse(model, text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:           "mock-response",
		Provider:     "mock",
		Model:        model,
		Content:      text,
		FinishReason: "stop",
		Usage:        llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt:    time.Now(),
	}
}
