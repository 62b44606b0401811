package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
)

// UsageSummary aggregates a tenant's embedding token spend over a range.
type UsageSummary struct {
	TenantID string    `json:"tenant_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Tokens   int64     `json:"tokens"`
}

type UsageService struct {
	db      core.DbClient
	tenants *TenantService
}

func NewUsageService(dbClient core.DbClient, tenants *TenantService) *UsageService {
	return &UsageService{db: dbClient, tenants: tenants}
}

func (s *UsageService) Summary(ctx context.Context, tenantID string, from, to time.Time) (*UsageSummary, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrValidation)
	}
	tokens, err := s.db.SumEmbeddingUsage(ctx, tenant.ID, from, to)
	if err != nil {
		return nil, err
	}
	return &UsageSummary{TenantID: tenant.ID, From: from, To: to, Tokens: tokens}, nil
}

// CurrentMonth sums usage from the first of the current month until now.
func (s *UsageService) CurrentMonth(ctx context.Context, tenantID string) (*UsageSummary, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.Summary(ctx, tenantID, from, now)
}
