package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	t.Run("references collect nested link objects", func(t *testing.T) {
		doc := Document{
			KeyID: "https://kg.example.org/instances/self",
			"https://schema.org/author": []any{
				map[string]any{KeyID: "https://kg.example.org/instances/b"},
				map[string]any{KeyID: "https://kg.example.org/instances/a"},
			},
			"https://schema.org/about": map[string]any{KeyID: "https://kg.example.org/instances/a"},
		}
		assert.Equal(t, []string{
			"https://kg.example.org/instances/a",
			"https://kg.example.org/instances/b",
		}, doc.References())
	})

	t.Run("identifiers are stored sorted and unique", func(t *testing.T) {
		doc := Document{}
		doc.SetIdentifiers([]string{"b", "a", "b", ""})
		assert.Equal(t, []string{"a", "b"}, doc.Identifiers())
	})

	t.Run("clone is deep", func(t *testing.T) {
		doc := Document{"k": map[string]any{"nested": "v"}}
		clone := doc.Clone()
		clone["k"].(map[string]any)["nested"] = "changed"
		assert.Equal(t, "v", doc["k"].(map[string]any)["nested"])
	})

	t.Run("canonical encoding ignores insertion order", func(t *testing.T) {
		a := Document{"x": 1, "y": "two"}
		b := Document{"y": "two", "x": 1}
		ca, err := a.Canonical()
		require.NoError(t, err)
		cb, err := b.Canonical()
		require.NoError(t, err)
		assert.Equal(t, ca, cb)
		assert.True(t, a.Equal(b))
	})
}
