// Package offline 提供无需网络的确定性 Provider，用于本地演示与无 API Key 的部署。
package offline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
)

const providerName = "offline"

// Provider 根据提示词生成确定性的模板化回答。
type Provider struct {
	latency time.Duration
}

// New 创建离线 Provider，latency 模拟网络延迟（可为 0）。
func New(latency time.Duration) *Provider {
	return &Provider{latency: latency}
}

// Name 实现 llm.Provider。
func (p *Provider) Name() string { return providerName }

// Completion 实现 llm.Provider。相同请求总是得到相同内容。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = m.Content
		case llm.RoleUser:
			user = m.Content
		}
	}
	if strings.TrimSpace(user) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty user message").WithProvider(providerName)
	}

	content := fmt.Sprintf("%s\n\n%s", headline(system), excerpt(user, 280))
	sum := sha256.Sum256([]byte(system + "\x00" + user))
	words := len(strings.Fields(content))
	return &llm.ChatResponse{
		ID:           "offline-" + hex.EncodeToString(sum[:6]),
		Provider:     providerName,
		Model:        req.Model,
		Content:      content,
		FinishReason: "stop",
		Usage: llm.ChatUsage{
			PromptTokens:     len(strings.Fields(system + " " + user)),
			CompletionTokens: words,
			TotalTokens:      len(strings.Fields(system+" "+user)) + words,
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.HealthChecker。
func (p *Provider) HealthCheck(context.Context) error { return nil }

// headline 取系统提示词的首句作为标题。
func headline(system string) string {
	line := strings.TrimSpace(strings.SplitN(system, "\n", 2)[0])
	if line == "" {
		return "Analysis"
	}
	if i := strings.IndexAny(line, ".!?"); i > 0 {
		line = line[:i]
	}
	return line + ":"
}

// excerpt 取用户提示词中最后一个 "Query:" 段落，没有时取全文，按 rune 截断。
func excerpt(user string, limit int) string {
	text := user
	if i := strings.LastIndex(user, "Query:"); i >= 0 {
		text = user[i+len("Query:"):]
		if j := strings.Index(text, "\n"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit]) + "..."
	}
	return "Regarding \"" + text + "\", start with a focused review of the requirements before committing to a design."
}
