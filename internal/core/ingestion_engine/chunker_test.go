package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 0, CountTokens("   \n\t  "))
	assert.Equal(t, 3, CountTokens("one two three"))
	assert.Equal(t, 3, CountTokens("  one \n two\tthree  "))
	assert.Equal(t, 5, CountTokensAll([]string{"a b", "c", "", "d e"}))
}

func TestChunkTextEmpty(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 10, ChunkOverlapTokens: 2}
	assert.Nil(t, ChunkText("", cfg))
	assert.Nil(t, ChunkText("   \n ", cfg))
}

func TestChunkTextSingleWindow(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 10, ChunkOverlapTokens: 2}
	pieces := ChunkText(words(7), cfg)
	require.Len(t, pieces, 1)
	assert.Equal(t, 0, pieces[0].Position)
	assert.Equal(t, 7, pieces[0].Tokens)
}

func TestChunkTextOverlap(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 10, ChunkOverlapTokens: 3}
	pieces := ChunkText(words(25), cfg)
	require.Len(t, pieces, 4)

	for i, p := range pieces {
		assert.Equal(t, i, p.Position)
		assert.LessOrEqual(t, p.Tokens, cfg.ChunkSizeTokens)
		assert.Equal(t, len(Tokenize(p.Text)), p.Tokens)
	}

	// Consecutive windows share exactly ChunkOverlapTokens tokens.
	for i := 1; i < len(pieces); i++ {
		prev := Tokenize(pieces[i-1].Text)
		cur := Tokenize(pieces[i].Text)
		tail := prev[len(prev)-cfg.ChunkOverlapTokens:]
		head := cur[:cfg.ChunkOverlapTokens]
		assert.Equal(t, tail, head, "windows %d and %d", i-1, i)
	}
}

func TestChunkTextCoversEveryToken(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 8, ChunkOverlapTokens: 2}
	tokens := Tokenize(words(50))
	pieces := ChunkText(words(50), cfg)

	seen := map[string]bool{}
	for _, p := range pieces {
		for _, tok := range Tokenize(p.Text) {
			seen[tok] = true
		}
	}
	for _, tok := range tokens {
		assert.True(t, seen[tok], "token %s missing", tok)
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 12, ChunkOverlapTokens: 4}
	text := words(100)
	assert.Equal(t, ChunkText(text, cfg), ChunkText(text, cfg))
}

func TestChunkTextClampsOverlap(t *testing.T) {
	cfg := ChunkConfig{ChunkSizeTokens: 5, ChunkOverlapTokens: 9}
	pieces := ChunkText(words(12), cfg)
	require.NotEmpty(t, pieces)
	// overlap is clamped to size-1, so the loop still advances
	assert.Greater(t, len(pieces), 1)
	last := pieces[len(pieces)-1]
	assert.Contains(t, last.Text, "w11")
}
