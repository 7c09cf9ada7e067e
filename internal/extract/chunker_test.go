package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBody_Empty(t *testing.T) {
	assert.Nil(t, ChunkBody("", 1024, 128))
	assert.Nil(t, ChunkBody("text", 0, 0))
}

func TestChunkBody_SingleShortWindow(t *testing.T) {
	chunks := ChunkBody("short body", 1024, 128)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "short body", chunks[0].Text)
}

func TestChunkBody_ContiguousZeroBasedIndices(t *testing.T) {
	body := strings.Repeat("x", 5000)
	chunks := ChunkBody(body, 1024, 128)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkBody_OverlapBetweenConsecutiveWindows(t *testing.T) {
	// No section breaks, so every cut is fixed-size and the overlap is exact.
	var sb strings.Builder
	for sb.Len() < 3000 {
		sb.WriteString("abcdefghij")
	}
	body := sb.String()

	chunks := ChunkBody(body, 1000, 100)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		curr := []rune(chunks[i].Text)
		tail := string(prev[len(prev)-100:])
		assert.Equal(t, tail, string(curr[:100]), "window %d must share %d runes with its predecessor", i, 100)
	}
}

func TestChunkBody_FinalWindowMayBeShort(t *testing.T) {
	body := strings.Repeat("y", 1100)
	chunks := ChunkBody(body, 1024, 128)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1024, chunks[0].Length)
	assert.Less(t, chunks[1].Length, 1024)
}

func TestChunkBody_PrefersSectionBreakWithinTolerance(t *testing.T) {
	// Blank line at rune 95-96 falls inside the final eighth of a 100-rune
	// window, so the first cut lands right after it.
	body := strings.Repeat("a", 95) + "\n\n" + strings.Repeat("b", 200)
	chunks := ChunkBody(body, 100, 10)

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))
	assert.Equal(t, 97, chunks[0].Length)
}

func TestChunkBody_FixedCutWhenNoBoundaryInTolerance(t *testing.T) {
	// Blank line sits early in the window, outside the tolerance range.
	body := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 500)
	chunks := ChunkBody(body, 100, 10)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 100, chunks[0].Length)
}

func TestChunkBody_SectionLabelFromHeading(t *testing.T) {
	body := "# Propulsion\n" + strings.Repeat("a", 200) + "\n\n# Telemetry\n" + strings.Repeat("b", 200)
	chunks := ChunkBody(body, 100, 10)

	require.Greater(t, len(chunks), 2)
	assert.Equal(t, "Propulsion", chunks[0].Section)
	assert.Equal(t, "Telemetry", chunks[len(chunks)-1].Section)
}

func TestChunkBody_Deterministic(t *testing.T) {
	body := strings.Repeat("the quick brown fox\n\n", 400)
	first := ChunkBody(body, 1024, 128)

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ChunkBody(body, 1024, 128))
	}
}

func TestChunkBody_CoversWholeBody(t *testing.T) {
	body := strings.Repeat("0123456789", 700)
	chunks := ChunkBody(body, 1024, 128)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(body, last.Text))

	// Every window starts inside its predecessor, so no part of the body
	// is skipped.
	reconstructed := chunks[0].Text
	for i := 1; i < len(chunks); i++ {
		reconstructed = reconstructed[:len(reconstructed)-128] + chunks[i].Text
	}
	assert.Equal(t, body, reconstructed)
}
