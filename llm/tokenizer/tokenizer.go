package tokenizer

import (
	"strings"
	"sync/atomic"
)

// Tokenizer 统一的 Token 计数接口。
type Tokenizer interface {
	CountTokens(text string) (int, error)
	// Truncate 截断到不超过 maxTokens 个 token，maxTokens<=0 返回空串
	Truncate(text string, maxTokens int) (string, error)
	// MaxTokens 模型上下文窗口
	MaxTokens() int
	Name() string
}

// modelSpec 模型族对应的编码与上下文窗口
type modelSpec struct {
	prefix   string
	encoding string
	window   int
}

// 按前缀长度降序排列，gpt-4o 必须先于 gpt-4 命中
var modelSpecs = []modelSpec{
	{"gpt-3.5-turbo", "cl100k_base", 16385},
	{"gpt-4o-mini", "o200k_base", 128000},
	{"gpt-4-turbo", "cl100k_base", 128000},
	{"gpt-4o", "o200k_base", 128000},
	{"gpt-4", "cl100k_base", 8192},
}

var defaultSpec = modelSpec{encoding: "cl100k_base", window: 8192}

func lookupModel(model string) modelSpec {
	for _, s := range modelSpecs {
		if strings.HasPrefix(model, s.prefix) {
			return s
		}
	}
	return defaultSpec
}

// ForModel 返回模型对应的分词器。优先 tiktoken，编码数据加载失败
// （离线环境无法下载 BPE 文件）后永久切换到字符估算。
func ForModel(model string) Tokenizer {
	exact := NewTiktokenTokenizer(model)
	return &fallbackTokenizer{
		primary:   exact,
		secondary: NewEstimatorTokenizer(model, exact.MaxTokens()),
	}
}

type fallbackTokenizer struct {
	primary   Tokenizer
	secondary Tokenizer
	degraded  atomic.Bool
}

func (f *fallbackTokenizer) current() Tokenizer {
	if f.degraded.Load() {
		return f.secondary
	}
	return f.primary
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if !f.degraded.Load() {
		if n, err := f.primary.CountTokens(text); err == nil {
			return n, nil
		}
		f.degraded.Store(true)
	}
	return f.secondary.CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if !f.degraded.Load() {
		if out, err := f.primary.Truncate(text, maxTokens); err == nil {
			return out, nil
		}
		f.degraded.Store(true)
	}
	return f.secondary.Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

func (f *fallbackTokenizer) Name() string { return f.current().Name() }
