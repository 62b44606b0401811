package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sitewise-ai/knowledge-engine/internal/config"
	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// ErrDuplicateDomain is returned when a tenant's primary domain is already
// claimed by another tenant.
var ErrDuplicateDomain = errors.New("primary domain already in use")

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Tenants

func (c *DatabaseClient) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return errors.New("nil tenant")
	}
	const q = `
		INSERT INTO tenants (id, name, embed_model, primary_domain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, tenant.ID, tenant.Name, tenant.EmbedModel, tenant.PrimaryDomain)
	if isUniqueViolation(err) {
		return ErrDuplicateDomain
	}
	return err
}

func (c *DatabaseClient) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	const q = `
		SELECT id, name, embed_model, primary_domain, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	var t models.Tenant
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.Name, &t.EmbedModel, &t.PrimaryDomain, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTenant removes the tenant; jobs, chunks and usage rows cascade.
func (c *DatabaseClient) DeleteTenant(ctx context.Context, id string) error {
	const q = `DELETE FROM tenants WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Crawl jobs

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.CrawlJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO crawl_jobs
			(id, tenant_id, domain, start_url, status, active, total_pages_estimated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		job.ID, job.TenantID, job.Domain, job.StartURL, job.Status, job.Active, job.TotalPagesEstimated)
	return err
}

func (c *DatabaseClient) GetJobByID(ctx context.Context, id string) (*models.CrawlJob, error) {
	const q = `
		SELECT id, tenant_id, domain, start_url, status, active,
		       pages_visited, pages_stored, chunks_stored, total_pages_estimated,
		       error_message, created_at, started_at, finished_at, updated_at
		FROM crawl_jobs WHERE id = $1
	`
	var j models.CrawlJob
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.TenantID, &j.Domain, &j.StartURL, &j.Status, &j.Active,
		&j.PagesVisited, &j.PagesStored, &j.ChunksStored, &j.TotalPagesEstimated,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *DatabaseClient) ListJobsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]models.CrawlJob, error) {
	const q = `
		SELECT id, tenant_id, domain, start_url, status, active,
		       pages_visited, pages_stored, chunks_stored, total_pages_estimated,
		       error_message, created_at, started_at, finished_at, updated_at
		FROM crawl_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CrawlJob
	for rows.Next() {
		var j models.CrawlJob
		if err := rows.Scan(
			&j.ID, &j.TenantID, &j.Domain, &j.StartURL, &j.Status, &j.Active,
			&j.PagesVisited, &j.PagesStored, &j.ChunksStored, &j.TotalPagesEstimated,
			&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkJobRunning(ctx context.Context, id string) error {
	const q = `
		UPDATE crawl_jobs
		SET status = 'running', started_at = now(), updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id)
}

func (c *DatabaseClient) MarkJobCompleted(ctx context.Context, id string) error {
	const q = `
		UPDATE crawl_jobs
		SET status = 'completed', finished_at = now(), updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id)
}

func (c *DatabaseClient) MarkJobFailed(ctx context.Context, id string, message string) error {
	const q = `
		UPDATE crawl_jobs
		SET status = 'failed', error_message = $2, finished_at = now(), updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id, message)
}

func (c *DatabaseClient) SetJobActive(ctx context.Context, id string, active bool) error {
	const q = `
		UPDATE crawl_jobs
		SET active = $2, updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id, active)
}

func (c *DatabaseClient) UpdateJobTotals(ctx context.Context, id string, totalPages int) error {
	const q = `
		UPDATE crawl_jobs
		SET total_pages_estimated = $2, updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id, totalPages)
}

func (c *DatabaseClient) UpdateJobProgress(ctx context.Context, id string, pagesVisited, pagesStored, chunksStored int) error {
	const q = `
		UPDATE crawl_jobs
		SET pages_visited = $2, pages_stored = $3, chunks_stored = $4, updated_at = now()
		WHERE id = $1
	`
	return c.execJob(ctx, q, id, pagesVisited, pagesStored, chunksStored)
}

func (c *DatabaseClient) execJob(ctx context.Context, q string, id string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job not found: %s", id)
	}
	return nil
}

// Chunks

// InsertChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunks
			(id, tenant_id, source_url, domain, position, text, embedding, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.TenantID, ch.SourceURL, ch.Domain, ch.Position, ch.Text, vec, ch.Active,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunkByID(ctx context.Context, id string) (*models.Chunk, error) {
	const q = `
		SELECT id, tenant_id, source_url, domain, position, text, embedding, active, created_at
		FROM chunks WHERE id = $1
	`
	var (
		ch  models.Chunk
		emb pgvector.Vector
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&ch.ID, &ch.TenantID, &ch.SourceURL, &ch.Domain, &ch.Position, &ch.Text, &emb, &ch.Active, &ch.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch.Embedding = emb.Slice()
	return &ch, nil
}

// UpdateChunkText replaces a chunk's text together with its re-embedded
// vector; the two always change as a pair.
func (c *DatabaseClient) UpdateChunkText(ctx context.Context, id string, text string, embedding []float32) error {
	const q = `
		UPDATE chunks SET text = $2, embedding = $3
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, text, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("chunk not found: %s", id)
	}
	return nil
}

// DeactivateChunksByDomain soft-deletes: rows stay enumerable for audit but
// drop out of every search read path.
func (c *DatabaseClient) DeactivateChunksByDomain(ctx context.Context, tenantID, domain string) (int, error) {
	const q = `
		UPDATE chunks SET active = FALSE
		WHERE tenant_id = $1 AND domain = $2 AND active
	`
	res, err := c.db.ExecContext(ctx, q, tenantID, domain)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *DatabaseClient) DeactivateChunksBySourceURL(ctx context.Context, tenantID, sourceURL string) (int, error) {
	const q = `
		UPDATE chunks SET active = FALSE
		WHERE tenant_id = $1 AND source_url = $2 AND active
	`
	res, err := c.db.ExecContext(ctx, q, tenantID, sourceURL)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SearchChunks finds top-k active chunks for a tenant by cosine similarity,
// optionally restricted to one domain.
func (c *DatabaseClient) SearchChunks(ctx context.Context, tenantID string, queryVec []float32, domain *string, limit int) ([]models.SearchResult, error) {
	const q = `
		SELECT id, tenant_id, source_url, domain, position, text, active, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM chunks
		WHERE tenant_id = $1 AND active AND ($3::text IS NULL OR domain = $3)
		ORDER BY embedding <=> $2
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, tenantID, vec, domain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.SourceURL, &r.Domain, &r.Position, &r.Text, &r.Active, &r.CreatedAt,
			&r.Similarity,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Embedding usage

func (c *DatabaseClient) InsertEmbeddingUsage(ctx context.Context, usage *models.EmbeddingUsage) error {
	if usage == nil {
		return errors.New("nil usage")
	}
	const q = `
		INSERT INTO embedding_usage (id, tenant_id, tokens, created_at)
		VALUES ($1, $2, $3, now())
	`
	_, err := c.db.ExecContext(ctx, q, usage.ID, usage.TenantID, usage.Tokens)
	return err
}

func (c *DatabaseClient) SumEmbeddingUsage(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	const q = `
		SELECT COALESCE(SUM(tokens), 0)
		FROM embedding_usage
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
	`
	var total int64
	if err := c.db.QueryRowContext(ctx, q, tenantID, from, to).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
