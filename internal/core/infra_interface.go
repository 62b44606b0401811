package core

import (
	"context"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByID(ctx context.Context, id string) (*models.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error

	CreateJob(ctx context.Context, job *models.CrawlJob) error
	GetJobByID(ctx context.Context, id string) (*models.CrawlJob, error)
	ListJobsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]models.CrawlJob, error)
	MarkJobRunning(ctx context.Context, id string) error
	MarkJobCompleted(ctx context.Context, id string) error
	MarkJobFailed(ctx context.Context, id string, message string) error
	SetJobActive(ctx context.Context, id string, active bool) error
	UpdateJobTotals(ctx context.Context, id string, totalPages int) error
	UpdateJobProgress(ctx context.Context, id string, pagesVisited, pagesStored, chunksStored int) error

	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	GetChunkByID(ctx context.Context, id string) (*models.Chunk, error)
	UpdateChunkText(ctx context.Context, id string, text string, embedding []float32) error
	DeactivateChunksByDomain(ctx context.Context, tenantID, domain string) (int, error)
	DeactivateChunksBySourceURL(ctx context.Context, tenantID, sourceURL string) (int, error)
	SearchChunks(ctx context.Context, tenantID string, queryVec []float32, domain *string, limit int) ([]models.SearchResult, error)

	InsertEmbeddingUsage(ctx context.Context, usage *models.EmbeddingUsage) error
	SumEmbeddingUsage(ctx context.Context, tenantID string, from, to time.Time) (int64, error)

	Close() error
}

// EmbeddingProvider turns a batch of texts into vectors for the given model.
// Implementations must return exactly one vector per input text, each with
// the model's fixed dimensionality, and retry transient upstream failures.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// DocumentExtractor converts an uploaded binary document into plain text.
// The contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// ObjectClient defines interactions with S3 or any object storage. Archival
// of uploaded files is optional; a nil client disables it.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
