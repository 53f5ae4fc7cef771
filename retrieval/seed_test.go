package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocuments(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantIDs []string
		wantErr bool
	}{
		{
			name: "wrapped yaml",
			data: `
documents:
  - id: doc-remote
    title: Remote Work Policy
    content: Employees may work remotely three days per week.
  - title: Security Baseline
    content: Enable MFA.
`,
			wantIDs: []string{"doc-remote", "doc-002"},
		},
		{
			name:    "bare json list",
			data:    `[{"id":"a","title":"A","content":"alpha"},{"id":"b","content":"beta"}]`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "empty",
			data:    "",
			wantIDs: []string{},
		},
		{
			name:    "missing content",
			data:    `[{"id":"a","title":"A"}]`,
			wantErr: true,
		},
		{
			name:    "duplicate id",
			data:    `[{"id":"a","content":"x"},{"id":"a","content":"y"}]`,
			wantErr: true,
		},
		{
			name:    "malformed",
			data:    "documents: [",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := ParseDocuments([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(docs))
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestLoadDocuments_FeedsMemoryRetriever(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: doc-cloud
  title: Cloud Migration Playbook
  content: Assess workloads, choose a landing zone, then migrate in waves.
  source: playbooks/cloud.md
`), 0o600))

	docs, err := LoadDocuments(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "playbooks/cloud.md", docs[0].Source)

	hits, err := NewMemoryRetriever(docs...).Search(context.Background(), "cloud migration", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-cloud", hits[0].ID)
}

func TestLoadDocuments_MissingFile(t *testing.T) {
	_, err := LoadDocuments(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
