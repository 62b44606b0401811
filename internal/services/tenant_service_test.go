package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

const testModel = "text-embedding-004"

func newTestTenant(t *testing.T, store *fakeStore) *models.Tenant {
	t.Helper()
	tenant, err := NewTenantService(store).Create(context.Background(), "Acme", testModel, nil)
	require.NoError(t, err)
	return tenant
}

func TestTenantCreate(t *testing.T) {
	store := newFakeStore()
	svc := NewTenantService(store)

	domain := "Example.COM "
	tenant, err := svc.Create(context.Background(), "Acme", testModel, &domain)
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, "Acme", tenant.Name)
	require.NotNil(t, tenant.PrimaryDomain)
	assert.Equal(t, "example.com", *tenant.PrimaryDomain)
}

func TestTenantCreateValidation(t *testing.T) {
	svc := NewTenantService(newFakeStore())

	_, err := svc.Create(context.Background(), "  ", testModel, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), "Acme", "made-up-model", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTenantCreateBlankDomainBecomesNil(t *testing.T) {
	svc := NewTenantService(newFakeStore())
	blank := "   "
	tenant, err := svc.Create(context.Background(), "Acme", testModel, &blank)
	require.NoError(t, err)
	assert.Nil(t, tenant.PrimaryDomain)
}

func TestTenantGetNotFound(t *testing.T) {
	svc := NewTenantService(newFakeStore())
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantDelete(t *testing.T) {
	store := newFakeStore()
	svc := NewTenantService(store)
	tenant := newTestTenant(t, store)

	require.NoError(t, svc.Delete(context.Background(), tenant.ID))
	_, err := svc.Get(context.Background(), tenant.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), tenant.ID), ErrNotFound)
}
