package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/consultflow/types"
)

// Prompt 一次生成调用的提示词。
type Prompt struct {
	System string
	User   string
}

// Options 生成参数，零值表示使用 Provider 默认值。
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TraceID     string
	Agent       string // 调用方名称，写入请求元数据用于日志与测试桩匹配
}

// MetadataAgent 请求元数据中记录调用方名称的键。
const MetadataAgent = "agent"

// Generator 是 Agent 使用的语言模型原语：提示词进，文本出。
// 超时与配额错误以 types.Error 返回，调用方据此决定是否降级。
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, opts Options) (string, error)
}

// GeneratorFunc 函数适配器。
type GeneratorFunc func(ctx context.Context, prompt Prompt, opts Options) (string, error)

// Generate 实现 Generator。
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// ProviderGenerator 将 Provider 适配为 Generator。
type ProviderGenerator struct {
	provider Provider
	defaults Options
}

// NewGenerator 基于 Provider 创建 Generator，defaults 填补调用方未指定的参数。
func NewGenerator(provider Provider, defaults Options) *ProviderGenerator {
	return &ProviderGenerator{provider: provider, defaults: defaults}
}

// Generate 实现 Generator。
func (g *ProviderGenerator) Generate(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	if strings.TrimSpace(prompt.User) == "" {
		return "", types.NewError(types.ErrInvalidRequest, "prompt is empty")
	}
	opts = g.merge(opts)

	req := NewChatRequest(opts.Model, prompt.System, prompt.User)
	req.MaxTokens = opts.MaxTokens
	req.Temperature = opts.Temperature
	req.TraceID = opts.TraceID
	if opts.Agent != "" {
		req.Metadata = map[string]string{MetadataAgent: opts.Agent}
	}

	resp, err := g.provider.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (g *ProviderGenerator) merge(opts Options) Options {
	if opts.Model == "" {
		opts.Model = g.defaults.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = g.defaults.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = g.defaults.Temperature
	}
	return opts
}
