package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenTokenizer struct{ calls int }

func (b *brokenTokenizer) CountTokens(string) (int, error) {
	b.calls++
	return 0, errors.New("encoding unavailable")
}

func (b *brokenTokenizer) Truncate(string, int) (string, error) {
	b.calls++
	return "", errors.New("encoding unavailable")
}

func (b *brokenTokenizer) MaxTokens() int { return 8192 }
func (b *brokenTokenizer) Name() string   { return "broken" }

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{strings.Repeat("a", 40), 10},
		{"你好世界", 2},
		{"こんにちは", 3},
		{"안녕", 1},
	}
	for _, tt := range tests {
		got, err := e.CountTokens(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer("any", 100)
	text := strings.Repeat("word ", 40)

	out, err := e.Truncate(text, 10)
	require.NoError(t, err)
	n, _ := e.CountTokens(out)
	assert.LessOrEqual(t, n, 10)
	assert.True(t, strings.HasPrefix(text, out))

	same, err := e.Truncate("short", 10)
	require.NoError(t, err)
	assert.Equal(t, "short", same)

	empty, err := e.Truncate(text, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFallbackTokenizer_DegradesOnce(t *testing.T) {
	broken := &brokenTokenizer{}
	f := &fallbackTokenizer{primary: broken, secondary: NewEstimatorTokenizer("m", 8192)}

	n, err := f.CountTokens(strings.Repeat("a", 8))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "estimator", f.Name())

	_, err = f.Truncate("abc", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, broken.calls, "primary is not retried after degrading")
	assert.Equal(t, 8192, f.MaxTokens())
}

func TestNewTiktokenTokenizer_ModelLookup(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o-mini-2024-07-18").Name())
	assert.Equal(t, 8192, NewTiktokenTokenizer("gpt-4-0613").MaxTokens())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("unknown-model").Name())
}

func TestLookupModel_LongestPrefixWins(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", lookupModel("gpt-4o-mini").prefix)
	assert.Equal(t, "gpt-4o", lookupModel("gpt-4o-2024-08-06").prefix)
	assert.Equal(t, "gpt-4-turbo", lookupModel("gpt-4-turbo-preview").prefix)
	assert.Equal(t, defaultSpec, lookupModel("claude-3"))
}

func TestEstimator_TruncateKeepsRuneBoundary(t *testing.T) {
	e := NewEstimatorTokenizer("", 0)
	out, err := e.Truncate("你好世界你好世界", 2)
	require.NoError(t, err)
	assert.Equal(t, "你好世界", out)
}
