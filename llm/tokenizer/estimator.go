package tokenizer

import "unicode"

// Per-rune token cost. Han/Kana/Hangul and fullwidth forms run about
// 1.5 runes per token, everything else about 4.
const (
	wideCost   = 1 / 1.5
	narrowCost = 0.25

	defaultWindow = 4096
)

// EstimatorTokenizer approximates token counts from rune classes.
// It needs no encoding data and never returns an error.
type EstimatorTokenizer struct {
	model  string
	window int
}

// NewEstimatorTokenizer creates an estimator; a non-positive window
// defaults to 4096.
func NewEstimatorTokenizer(model string, window int) *EstimatorTokenizer {
	if window <= 0 {
		window = defaultWindow
	}
	return &EstimatorTokenizer{model: model, window: window}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cost float64
	for _, r := range text {
		cost += runeCost(r)
	}
	return max(int(cost), 1), nil
}

// Truncate keeps the longest prefix whose estimate stays within maxTokens.
func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	var cost float64
	for i, r := range text {
		cost += runeCost(r)
		if int(cost) > maxTokens {
			return text[:i], nil
		}
	}
	return text, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.window }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func runeCost(r rune) float64 {
	if isWide(r) {
		return wideCost
	}
	return narrowCost
}

func isWide(r rune) bool {
	switch {
	case unicode.Is(unicode.Han, r),
		unicode.Is(unicode.Hiragana, r),
		unicode.Is(unicode.Katakana, r),
		unicode.Is(unicode.Hangul, r):
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth forms
		return true
	}
	return false
}
