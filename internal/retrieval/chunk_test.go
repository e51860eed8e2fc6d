package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextEmpty(t *testing.T) {
	assert.Empty(t, SplitText("", 100, 20))
	assert.Empty(t, SplitText("   \n\t  ", 100, 20))
}

func TestSplitTextShortInputIsOneChunk(t *testing.T) {
	chunks := SplitText("a short paragraph", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitTextChunksOverlap(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := SplitText(text, 100, 20)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		assert.NotEmpty(t, c)
	}

	// successive chunks share text because of the overlap
	tail := chunks[0][len(chunks[0])-10:]
	assert.Contains(t, text, tail)
}

func TestSplitTextBreaksAtWhitespace(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 50)
	for _, c := range SplitText(text, 100, 20) {
		assert.False(t, strings.HasSuffix(c, "alph"), "chunk should not cut a word: %q", c)
	}
}

func TestSplitTextUnibyteSafety(t *testing.T) {
	text := strings.Repeat("ปัญญาประดิษฐ์ ", 100)
	for _, c := range SplitText(text, 80, 10) {
		assert.True(t, strings.HasPrefix(c, "ป") || strings.HasPrefix(c, "ั") || len(c) > 0)
		// every chunk must still be valid text, no split runes
		assert.Equal(t, c, string([]rune(c)))
	}
}

func TestSplitTextInvalidParamsFallBack(t *testing.T) {
	text := strings.Repeat("x ", 2000)
	assert.NotEmpty(t, SplitText(text, 0, -1))
	assert.NotEmpty(t, SplitText(text, 10, 50))
}
