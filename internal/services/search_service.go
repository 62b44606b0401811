package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// SearchService is the pure read path: embed the query with the tenant's
// fixed model, then nearest-neighbor over the tenant's active chunks.
type SearchService struct {
	db       core.DbClient
	tenants  *TenantService
	embedder core.EmbeddingProvider
}

func NewSearchService(dbClient core.DbClient, tenants *TenantService, embedder core.EmbeddingProvider) *SearchService {
	return &SearchService{db: dbClient, tenants: tenants, embedder: embedder}
}

// Search returns up to limit matches ordered by similarity descending,
// optionally scoped to one domain. A tenant with no chunks yet gets an
// empty list, not an error.
func (s *SearchService) Search(ctx context.Context, tenantID, query string, domain *string, limit int) ([]models.SearchResult, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query}, tenant.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.db.SearchChunks(ctx, tenant.ID, vecs[0], domain, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}
