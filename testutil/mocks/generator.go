package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
)

// GeneratorCall 记录单次生成调用
type GeneratorCall struct {
	Agent  string
	Prompt llm.Prompt
	Opts   llm.Options
}

// MockGenerator 是 llm.Generator 的模拟实现。
// 按调用方名称（llm.Options.Agent）返回预置文本，支持按次序应答、
// 错误注入与可被 context 打断的延迟。
type MockGenerator struct {
	mu sync.Mutex

	responses map[string][]string
	errs      map[string]error
	delays    map[string]time.Duration
	fallback  func(agent string) string
	delay     time.Duration

	calls []GeneratorCall
	seen  map[string]int
}

// NewMockGenerator 创建 MockGenerator；未配置的调用方返回
// "<agent> analysis." 形式的默认文本
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
		seen:      make(map[string]int),
		fallback:  func(agent string) string { return agent + " analysis." },
	}
}

// WithRoleResponse 设置某角色的固定响应
func (m *MockGenerator) WithRoleResponse(role types.Role, text string) *MockGenerator {
	return m.WithResponse(string(role), text)
}

// WithResponse 设置某调用方的固定响应
func (m *MockGenerator) WithResponse(agent, text string) *MockGenerator {
	return m.WithSequence(agent, text)
}

// WithSequence 设置按次序返回的响应，用尽后重复最后一个
func (m *MockGenerator) WithSequence(agent string, texts ...string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agent] = append([]string(nil), texts...)
	return m
}

// WithRoleError 让某角色的调用返回错误
func (m *MockGenerator) WithRoleError(role types.Role, err error) *MockGenerator {
	return m.WithError(string(role), err)
}

// WithError 让某调用方的调用返回错误
func (m *MockGenerator) WithError(agent string, err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agent] = err
	return m
}

// WithDelay 设置所有调用的延迟
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithAgentDelay 设置某调用方的延迟
func (m *MockGenerator) WithAgentDelay(agent string, d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[agent] = d
	return m
}

// WithFallback 设置未配置调用方的响应生成函数
func (m *MockGenerator) WithFallback(fn func(agent string) string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
	return m
}

// Generate 实现 llm.Generator
func (m *MockGenerator) Generate(ctx context.Context, prompt llm.Prompt, opts llm.Options) (string, error) {
	agent := opts.Agent

	m.mu.Lock()
	m.calls = append(m.calls, GeneratorCall{Agent: agent, Prompt: prompt, Opts: opts})
	n := m.seen[agent]
	m.seen[agent] = n + 1
	delay := m.delay
	if d, ok := m.delays[agent]; ok {
		delay = d
	}
	err := m.errs[agent]
	seq := m.responses[agent]
	fallback := m.fallback
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	if len(seq) > 0 {
		if n >= len(seq) {
			n = len(seq) - 1
		}
		return seq[n], nil
	}
	if fallback == nil {
		return "", fmt.Errorf("no response configured for %q", agent)
	}
	return fallback(agent), nil
}

// Calls 返回所有调用记录
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GeneratorCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回某调用方的调用次数
func (m *MockGenerator) CallCount(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[agent]
}

// LastPrompt 返回某调用方最近一次的提示词
func (m *MockGenerator) LastPrompt(agent string) (llm.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].Agent == agent {
			return m.calls[i].Prompt, true
		}
	}
	return llm.Prompt{}, false
}

// Agents 返回被调用过的调用方集合
func (m *MockGenerator) Agents() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.seen))
	for k, v := range m.seen {
		out[k] = v
	}
	return out
}
