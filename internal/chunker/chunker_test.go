package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdmemory/internal/config"
)

func newTestChunker(size, overlap int) *Chunker {
	return New(config.ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap})
}

func TestChunk_SingleCharNoOverlap(t *testing.T) {
	c := newTestChunker(1, 0)
	pieces := c.Chunk("abcdefghij")
	require.Len(t, pieces, 10)
	for i, p := range pieces {
		assert.Equal(t, string(rune('a'+i)), p.Content)
		assert.Equal(t, 0, p.SectionLevel)
		assert.Empty(t, p.HeaderPath)
	}
}

func TestChunk_HeaderPathTracksNesting(t *testing.T) {
	c := newTestChunker(800, 200)
	content := "# Project Alpha\n\nIntro text.\n\n## Status\n\nOn track.\n"
	pieces := c.Chunk(content)
	require.NotEmpty(t, pieces)

	var sawTop, sawNested bool
	for _, p := range pieces {
		if len(p.HeaderPath) == 1 && p.HeaderPath[0] == "Project Alpha" {
			sawTop = true
			assert.Equal(t, 1, p.SectionLevel)
		}
		if len(p.HeaderPath) == 2 && p.HeaderPath[1] == "Status" {
			sawNested = true
			assert.Equal(t, []string{"Project Alpha", "Status"}, p.HeaderPath)
			assert.Equal(t, 2, p.SectionLevel)
		}
	}
	assert.True(t, sawTop, "expected a chunk under the top-level header")
	assert.True(t, sawNested, "expected a chunk under the nested header")
}

func TestChunk_PreHeaderTextHasZeroLevel(t *testing.T) {
	c := newTestChunker(800, 200)
	content := "Some preamble.\n\n# First Header\n\nBody.\n"
	pieces := c.Chunk(content)
	require.NotEmpty(t, pieces)
	assert.Equal(t, "Some preamble.", pieces[0].Content)
	assert.Equal(t, 0, pieces[0].SectionLevel)
	assert.Empty(t, pieces[0].HeaderPath)
}

func TestChunk_OverlongHeaderLineIsNotSplit(t *testing.T) {
	c := newTestChunker(10, 2)
	longTitle := strings.Repeat("x", 50)
	content := "# " + longTitle + "\n\nshort body\n"
	pieces := c.Chunk(content)
	require.NotEmpty(t, pieces)
	assert.Equal(t, "# "+longTitle, pieces[0].Content)
}

func TestChunk_EmptyTrimmedChunksDiscarded(t *testing.T) {
	c := newTestChunker(800, 200)
	pieces := c.Chunk("# Title\n\n\n\n   \n\n")
	for _, p := range pieces {
		assert.NotEmpty(t, strings.TrimSpace(p.Content))
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := newTestChunker(40, 10)
	content := "# T\n\nThis is a longer paragraph that will certainly need to be split across more than one chunk to exercise overlap handling."
	a := c.Chunk(content)
	b := c.Chunk(content)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestChunk_RespectsMaxSizeWhenPossible(t *testing.T) {
	c := newTestChunker(30, 5)
	content := "# T\n\n" + strings.Repeat("word ", 40)
	pieces := c.Chunk(content)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p.Content), 60) // allow slack for break-point search window
	}
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := newTestChunker(800, 200)
	assert.Empty(t, c.Chunk(""))
}
