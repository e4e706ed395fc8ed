package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("a short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Empty(t, SplitText(""))
	assert.Empty(t, SplitText("   \n\n  "))
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	// 40 paragraphs of ~90 chars each, forcing multiple chunks.
	para := strings.Repeat("word ", 18)
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 40))

	chunks := SplitText(text)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkSize, "chunk %d exceeds size", i)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitTextNoSeparators(t *testing.T) {
	// A single unbroken run longer than the chunk size must still be split.
	text := strings.Repeat("x", ChunkSize*3)
	chunks := SplitText(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkSize)
	}
	// Adjacent fixed-size chunks share the configured overlap.
	assert.Equal(t, chunks[0][len(chunks[0])-ChunkOverlap:], chunks[1][:ChunkOverlap])
}

func TestSplitTextCoversAllContent(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma. ", 200))
	chunks := SplitText(text)
	joined := strings.Join(chunks, " ")
	assert.Contains(t, joined, "alpha beta gamma")
}
