package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder produces a deterministic vector per text so ranking is stable
// without a live embeddings API.
type hashEmbedder struct {
	err error
}

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 8)
		for j, r := range text {
			vec[j%8] += float32(r) / 1000
		}
		vectors[i] = vec
	}
	return vectors, nil
}

type plainTextSource struct{}

func (plainTextSource) Supported(path string) bool {
	return filepath.Ext(path) == ".txt"
}

func (plainTextSource) ExtractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestPathsIndexesFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "the quick brown fox")
	b := writeFile(t, dir, "b.txt", "jumps over the lazy dog")

	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{}, store, plainTextSource{})

	count, err := ix.IngestPaths(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored)
}

func TestIngestPathsWalksDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "indexed")
	writeFile(t, dir, "skip.bin", "not indexed")

	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{}, store, plainTextSource{})

	count, err := ix.IngestPaths(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestPathsMissingFile(t *testing.T) {
	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{}, store, plainTextSource{})

	_, err := ix.IngestPaths(context.Background(), []string{"/no/such/file.txt"})
	require.Error(t, err)
}

func TestRetrieveReturnsTopSnippets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "notes about redis persistence")
	writeFile(t, dir, "b.txt", "recipe for apple pie")

	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{}, store, plainTextSource{})
	_, err := ix.IngestPaths(context.Background(), []string{dir})
	require.NoError(t, err)

	snippets := ix.Retrieve(context.Background(), "notes about redis persistence", 1)
	require.Len(t, snippets, 1)
	assert.Equal(t, "notes about redis persistence", snippets[0])
}

func TestRetrieveSwallowsEmbedderErrors(t *testing.T) {
	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{err: errors.New("quota exceeded")}, store, plainTextSource{})

	assert.Empty(t, ix.Retrieve(context.Background(), "anything", 3))
}

func TestRetrieveZeroK(t *testing.T) {
	store := newTestStore(t)
	ix := NewIndexer(&hashEmbedder{}, store, plainTextSource{})
	assert.Empty(t, ix.Retrieve(context.Background(), "anything", 0))
}
