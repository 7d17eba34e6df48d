package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCategoriesFile(t *testing.T) {
	path := writeFile(t, `
categories:
  - id: 6f1c2a8e-4a51-4f7e-9d3b-1b0c6a2e9f01
    name: Technology
  - id: 0b7d4e52-8f3a-4c61-a2d9-7e5f1c3b8a02
    name: Performance
`)

	categories, err := LoadCategoriesFile(path)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, uuid.MustParse("6f1c2a8e-4a51-4f7e-9d3b-1b0c6a2e9f01"), categories[0].ID)
	assert.Equal(t, "Performance", categories[1].Name)
}

func TestLoadCategoriesFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing name": "categories:\n  - id: 6f1c2a8e-4a51-4f7e-9d3b-1b0c6a2e9f01\n",
		"bad uuid":     "categories:\n  - id: nope\n    name: X\n",
		"duplicate": `
categories:
  - id: 6f1c2a8e-4a51-4f7e-9d3b-1b0c6a2e9f01
    name: A
  - id: 6f1c2a8e-4a51-4f7e-9d3b-1b0c6a2e9f01
    name: B
`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCategoriesFile(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadCategoriesFile_Missing(t *testing.T) {
	_, err := LoadCategoriesFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
