package retrieval

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a document seed. A bare list of
// documents is accepted as well.
type seedFile struct {
	Documents []seedDocument `yaml:"documents"`
}

type seedDocument struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	Source  string `yaml:"source"`
}

// LoadDocuments reads documents from a YAML or JSON file. JSON is parsed by
// the YAML decoder since it is a subset. Documents without an id get one
// derived from their position.
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseDocuments(data)
}

// ParseDocuments decodes a seed payload.
func ParseDocuments(data []byte) ([]Document, error) {
	var raw []seedDocument
	var wrapped seedFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil {
		raw = wrapped.Documents
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	docs := make([]Document, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("seed document %d: content is required", i)
		}
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = fmt.Sprintf("doc-%03d", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("seed document %d: duplicate id %q", i, id)
		}
		seen[id] = true
		docs = append(docs, Document{
			ID:      id,
			Title:   strings.TrimSpace(r.Title),
			Content: r.Content,
			Source:  r.Source,
		})
	}
	return docs, nil
}
