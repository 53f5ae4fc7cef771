package agent

import (
	"context"
	"strings"
	"unicode"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
)

// DefaultLanguage is used when detection fails or is inconclusive.
const DefaultLanguage = "en"

var commonLanguageCodes = []string{"en", "es", "fr", "de", "it", "pt", "ru", "zh", "ja", "ko", "ar"}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
}

// LanguageName returns the English name of a language code.
func LanguageName(code string) string {
	base, _, _ := strings.Cut(strings.ToLower(code), "-")
	if name, ok := languageNames[base]; ok {
		return name
	}
	return "Unknown"
}

// NormalizeLanguage cleans a raw detector answer into a language code.
// Codes of 2 to 7 characters are kept; longer answers are searched for a
// common code; anything else becomes DefaultLanguage.
func NormalizeLanguage(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	code = strings.Trim(code, "\"'`.")
	switch {
	case len(code) >= 2 && len(code) <= 7:
		return code
	case len(code) > 7:
		for _, c := range commonLanguageCodes {
			if containsWord(code, c) {
				return c
			}
		}
	}
	return DefaultLanguage
}

// LanguageDetector determines the language of a query.
type LanguageDetector interface {
	Detect(ctx context.Context, query string, history []types.Turn) (string, error)
}

// LLMLanguageDetector asks the language model for an ISO 639-1 code.
type LLMLanguageDetector struct {
	gen llm.Generator
}

// NewLLMLanguageDetector creates a model-backed detector.
func NewLLMLanguageDetector(gen llm.Generator) *LLMLanguageDetector {
	return &LLMLanguageDetector{gen: gen}
}

// Detect implements LanguageDetector.
func (d *LLMLanguageDetector) Detect(ctx context.Context, query string, history []types.Turn) (string, error) {
	if strings.TrimSpace(query) == "" {
		return DefaultLanguage, nil
	}
	prompt := llm.Prompt{
		System: "You are a language detection assistant. Reply with only the ISO 639-1 code of the user's language, for example 'en' or 'es'.",
		User:   "Conversation so far:\n" + formatHistory(history) + "\n\nUser query: " + query,
	}
	raw, err := d.gen.Generate(ctx, prompt, llm.Options{MaxTokens: 8, Agent: "language_detector"})
	if err != nil {
		return DefaultLanguage, err
	}
	return NormalizeLanguage(raw), nil
}

// stopwords for the heuristic detector, chosen to be rare in the other
// languages of the table.
var stopwords = map[string][]string{
	"en": {"the", "is", "are", "what", "how", "our", "we", "and", "of", "to", "with", "should", "can", "does"},
	"es": {"el", "la", "los", "las", "es", "qué", "que", "cómo", "como", "para", "nuestro", "nuestra", "una", "por", "con", "del"},
	"fr": {"le", "les", "est", "quelle", "quel", "comment", "nous", "notre", "pour", "avec", "une", "des", "du"},
	"de": {"der", "die", "das", "ist", "wie", "wir", "unser", "unsere", "und", "mit", "für", "ein", "eine"},
	"pt": {"o", "os", "é", "qual", "nosso", "nossa", "para", "com", "uma", "não", "do", "da"},
}

// HeuristicLanguageDetector scores stopwords and script ranges. It needs no
// network access.
type HeuristicLanguageDetector struct{}

// Detect implements LanguageDetector.
func (HeuristicLanguageDetector) Detect(_ context.Context, query string, _ []types.Turn) (string, error) {
	return detectHeuristic(query), nil
}

func detectHeuristic(query string) string {
	var han, kana, hangul, cyrillic, arabic int
	for _, r := range query {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		}
	}
	switch {
	case kana > 0:
		return "ja"
	case han > 0:
		return "zh"
	case hangul > 0:
		return "ko"
	case cyrillic > 0:
		return "ru"
	case arabic > 0:
		return "ar"
	}

	words := tokenize(strings.ToLower(query))
	if containsAny(strings.ToLower(query), []string{"¿", "¡", "ñ"}) {
		return "es"
	}
	best, bestScore := DefaultLanguage, 0
	for _, lang := range []string{"en", "es", "fr", "de", "pt"} {
		score := 0
		for _, w := range stopwords[lang] {
			if words[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}

func containsWord(s, word string) bool {
	return tokenize(s)[word]
}
