package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	db "github.com/sitewise-ai/knowledge-engine/internal/core/database"
	"github.com/sitewise-ai/knowledge-engine/internal/core/llm"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

type TenantService struct {
	db core.DbClient
}

func NewTenantService(dbClient core.DbClient) *TenantService {
	return &TenantService{db: dbClient}
}

// Create registers a tenant. The embedding model is fixed here for the
// tenant's lifetime: it determines the dimensionality of every chunk vector
// the tenant will ever store.
func (s *TenantService) Create(ctx context.Context, name, embedModel string, primaryDomain *string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !llm.SupportedModel(embedModel) {
		return nil, fmt.Errorf("%w: unsupported embedding model %q", ErrValidation, embedModel)
	}
	if primaryDomain != nil {
		d := strings.ToLower(strings.TrimSpace(*primaryDomain))
		if d == "" {
			primaryDomain = nil
		} else {
			primaryDomain = &d
		}
	}

	tenant := &models.Tenant{
		ID:            uuid.NewString(),
		Name:          name,
		EmbedModel:    embedModel,
		PrimaryDomain: primaryDomain,
	}
	if err := s.db.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, db.ErrDuplicateDomain) {
			return nil, ErrDuplicateDomain
		}
		return nil, err
	}
	return s.db.GetTenantByID(ctx, tenant.ID)
}

func (s *TenantService) Get(ctx context.Context, id string) (*models.Tenant, error) {
	tenant, err := s.db.GetTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, id)
	}
	return tenant, nil
}

// Delete removes the tenant and cascades its jobs and chunks.
func (s *TenantService) Delete(ctx context.Context, id string) error {
	tenant, err := s.db.GetTenantByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant == nil {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, id)
	}
	return s.db.DeleteTenant(ctx, id)
}
