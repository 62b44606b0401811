package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/core/ingestion_engine"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// Ingestor owns the chunk write path: chunk → embed (batched) → persist,
// plus the usage ledger row per embedding batch. Both the crawler and the
// document pipeline funnel through it.
type Ingestor struct {
	db        core.DbClient
	embedder  core.EmbeddingProvider
	chunkCfg  ingestion_engine.ChunkConfig
	batchSize int
}

func NewIngestor(dbClient core.DbClient, embedder core.EmbeddingProvider, chunkCfg ingestion_engine.ChunkConfig, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Ingestor{db: dbClient, embedder: embedder, chunkCfg: chunkCfg, batchSize: batchSize}
}

// IngestText chunks the text, embeds it in batches with the tenant's fixed
// model and persists the chunks. Returns the number of chunks stored.
// Any embedding failure (after the provider's internal retries) aborts the
// whole text: partially stored batches are possible but the caller treats
// the page/file as not ingested.
func (i *Ingestor) IngestText(ctx context.Context, tenant *models.Tenant, text, sourceURL, domain string) (int, error) {
	pieces := ingestion_engine.ChunkText(text, i.chunkCfg)
	if len(pieces) == 0 {
		return 0, nil
	}

	stored := 0
	for start := 0; start < len(pieces); start += i.batchSize {
		end := start + i.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		tokens := 0
		for k, p := range batch {
			texts[k] = p.Text
			tokens += p.Tokens
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts, tenant.EmbedModel)
		if err != nil {
			return stored, fmt.Errorf("embed %s: %w", sourceURL, err)
		}

		rows := make([]models.Chunk, len(batch))
		for k, p := range batch {
			rows[k] = models.Chunk{
				ID:        uuid.NewString(),
				TenantID:  tenant.ID,
				SourceURL: sourceURL,
				Domain:    domain,
				Position:  p.Position,
				Text:      p.Text,
				Embedding: vecs[k],
				Active:    true,
			}
		}
		if err := i.db.InsertChunks(ctx, rows); err != nil {
			return stored, fmt.Errorf("insert chunks for %s: %w", sourceURL, err)
		}

		if err := i.db.InsertEmbeddingUsage(ctx, &models.EmbeddingUsage{
			ID:       uuid.NewString(),
			TenantID: tenant.ID,
			Tokens:   tokens,
		}); err != nil {
			return stored, fmt.Errorf("record usage: %w", err)
		}
		stored += len(batch)
	}
	return stored, nil
}

// UpdateChunkText edits a chunk's text and re-embeds it with the tenant's
// model; the vector is never left stale relative to the text.
func (i *Ingestor) UpdateChunkText(ctx context.Context, tenant *models.Tenant, chunkID, text string) (*models.Chunk, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	chunk, err := i.db.GetChunkByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil || chunk.TenantID != tenant.ID {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}

	vecs, err := i.embedder.EmbedTexts(ctx, []string{text}, tenant.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embed edited chunk: %w", err)
	}
	if err := i.db.UpdateChunkText(ctx, chunkID, text, vecs[0]); err != nil {
		return nil, err
	}

	if err := i.db.InsertEmbeddingUsage(ctx, &models.EmbeddingUsage{
		ID:       uuid.NewString(),
		TenantID: tenant.ID,
		Tokens:   ingestion_engine.CountTokens(text),
	}); err != nil {
		return nil, err
	}
	return i.db.GetChunkByID(ctx, chunkID)
}
