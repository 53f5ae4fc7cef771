package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/consultflow/types"
)

// Retriever is the similarity search collaborator. An empty result is a
// valid answer.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]types.ContextDocument, error)
}

// Document is a knowledge-base entry.
type Document struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Source    string    `gorm:"size:255" json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements gorm's tabler.
func (Document) TableName() string { return "context_documents" }

const snippetLength = 240

var stopTerms = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "and": true, "or": true, "our": true, "we": true,
	"what": true, "how": true, "do": true, "does": true, "can": true, "i": true, "you": true,
	"el": true, "la": true, "los": true, "las": true, "de": true, "que": true, "qué": true,
	"es": true, "y": true, "en": true, "para": true, "un": true, "una": true,
}

// terms extracts lower-cased search terms without stop words.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopTerms[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// score rates a document against query terms in [0, 1]. Title matches
// weigh double.
func score(doc Document, qterms []string) float64 {
	if len(qterms) == 0 {
		return 0
	}
	title := make(map[string]bool)
	for _, t := range terms(doc.Title) {
		title[t] = true
	}
	body := make(map[string]bool)
	for _, t := range terms(doc.Content) {
		body[t] = true
	}
	var total float64
	for _, t := range qterms {
		switch {
		case title[t]:
			total += 2
		case body[t]:
			total++
		}
	}
	return total / float64(2*len(qterms))
}

// rank scores docs, drops non-matching ones and returns the best k in
// descending score order, ties broken by id.
func rank(docs []Document, query string, k int) []types.ContextDocument {
	qterms := terms(query)
	type scored struct {
		doc   Document
		score float64
	}
	hits := make([]scored, 0, len(docs))
	for _, d := range docs {
		if s := score(d, qterms); s > 0 {
			hits = append(hits, scored{d, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	out := make([]types.ContextDocument, len(hits))
	for i, h := range hits {
		out[i] = types.ContextDocument{
			ID:      h.doc.ID,
			Title:   h.doc.Title,
			Snippet: snippet(h.doc.Content, qterms),
			Score:   h.score,
		}
	}
	return out
}

// snippet returns a window of the content starting near the first matched
// term.
func snippet(content string, qterms []string) string {
	content = strings.Join(strings.Fields(content), " ")
	lower := strings.ToLower(content)
	start := 0
	for _, t := range qterms {
		if i := strings.Index(lower, t); i >= 0 && (start == 0 || i < start) {
			start = i
		}
	}
	// back up to a word boundary a little before the match
	if start > 40 {
		start -= 40
		if sp := strings.IndexByte(content[start:], ' '); sp >= 0 {
			start += sp + 1
		}
	} else {
		start = 0
	}
	for start < len(content) && !utf8.RuneStart(content[start]) {
		start++
	}
	r := []rune(content[start:])
	if len(r) <= snippetLength {
		return string(r)
	}
	return string(r[:snippetLength]) + "..."
}
