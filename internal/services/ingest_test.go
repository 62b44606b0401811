package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/knowledge-engine/internal/core/ingestion_engine"
)

func testChunkCfg() ingestion_engine.ChunkConfig {
	return ingestion_engine.ChunkConfig{ChunkSizeTokens: 10, ChunkOverlapTokens: 2}
}

func longText(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func TestIngestTextStoresChunksAndUsage(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	tenant := newTestTenant(t, store)
	ing := NewIngestor(store, embedder, testChunkCfg(), 2)

	text := longText(25)
	n, err := ing.IngestText(context.Background(), tenant, text, "https://example.com/a", "example.com")
	require.NoError(t, err)

	pieces := ingestion_engine.ChunkText(text, testChunkCfg())
	assert.Equal(t, len(pieces), n)
	assert.Len(t, store.chunks, len(pieces))

	for _, c := range store.chunks {
		assert.Equal(t, tenant.ID, c.TenantID)
		assert.Equal(t, "https://example.com/a", c.SourceURL)
		assert.Equal(t, "example.com", c.Domain)
		assert.True(t, c.Active)
		assert.Len(t, c.Embedding, 768)
	}

	// One usage row per embedding batch; token totals match the chunker.
	wantTokens := 0
	for _, p := range pieces {
		wantTokens += p.Tokens
	}
	gotTokens := 0
	for _, u := range store.usage {
		gotTokens += u.Tokens
	}
	assert.Equal(t, wantTokens, gotTokens)
	assert.Equal(t, (len(pieces)+1)/2, len(store.usage))
}

func TestIngestTextEmpty(t *testing.T) {
	store := newFakeStore()
	tenant := newTestTenant(t, store)
	ing := NewIngestor(store, &fakeEmbedder{}, testChunkCfg(), 2)

	n, err := ing.IngestText(context.Background(), tenant, "   ", "https://example.com/a", "example.com")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.chunks)
	assert.Empty(t, store.usage)
}

func TestIngestTextEmbedFailure(t *testing.T) {
	store := newFakeStore()
	tenant := newTestTenant(t, store)
	ing := NewIngestor(store, &fakeEmbedder{fail: fmt.Errorf("upstream down")}, testChunkCfg(), 2)

	_, err := ing.IngestText(context.Background(), tenant, longText(25), "https://example.com/a", "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Empty(t, store.chunks)
}

func TestUpdateChunkTextReembeds(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	tenant := newTestTenant(t, store)
	ing := NewIngestor(store, embedder, testChunkCfg(), 2)
	ctx := context.Background()

	_, err := ing.IngestText(ctx, tenant, longText(5), "https://example.com/a", "example.com")
	require.NoError(t, err)
	var chunkID string
	for id := range store.chunks {
		chunkID = id
	}

	before := store.chunks[chunkID].Embedding
	usageBefore := len(store.usage)

	updated, err := ing.UpdateChunkText(ctx, tenant, chunkID, "completely new text here")
	require.NoError(t, err)
	assert.Equal(t, "completely new text here", updated.Text)
	assert.NotEqual(t, before, store.chunks[chunkID].Embedding)
	assert.Len(t, store.usage, usageBefore+1)
	assert.Equal(t, 4, store.usage[len(store.usage)-1].Tokens)
}

func TestUpdateChunkTextValidation(t *testing.T) {
	store := newFakeStore()
	tenant := newTestTenant(t, store)
	ing := NewIngestor(store, &fakeEmbedder{}, testChunkCfg(), 2)
	ctx := context.Background()

	_, err := ing.UpdateChunkText(ctx, tenant, "any", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ing.UpdateChunkText(ctx, tenant, "missing", "text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateChunkTextWrongTenant(t *testing.T) {
	store := newFakeStore()
	tenant := newTestTenant(t, store)
	other := newTestTenant(t, store)
	ing := NewIngestor(store, &fakeEmbedder{}, testChunkCfg(), 2)
	ctx := context.Background()

	_, err := ing.IngestText(ctx, tenant, longText(5), "https://example.com/a", "example.com")
	require.NoError(t, err)
	var chunkID string
	for id := range store.chunks {
		chunkID = id
	}

	_, err = ing.UpdateChunkText(ctx, other, chunkID, "new text")
	assert.ErrorIs(t, err, ErrNotFound)
}
