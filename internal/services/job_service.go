package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

const maxErrorMessageLen = 500

// JobService is the crawl job store and orchestrator: pure state
// transitions over job rows plus the derived public view.
// Lifecycle: queued → running → {completed, failed}. The active flag is
// orthogonal and only affects whether the job's chunks are live for search.
type JobService struct {
	db core.DbClient
}

func NewJobService(dbClient core.DbClient) *JobService {
	return &JobService{db: dbClient}
}

func (s *JobService) Create(ctx context.Context, tenantID, domain, startURL string, totalEstimate *int) (*models.CrawlJob, error) {
	job := &models.CrawlJob{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		Domain:              domain,
		StartURL:            startURL,
		Status:              models.JobQueued,
		Active:              true,
		TotalPagesEstimated: totalEstimate,
	}
	if err := s.db.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return s.db.GetJobByID(ctx, job.ID)
}

func (s *JobService) Get(ctx context.Context, id string) (*models.CrawlJob, error) {
	job, err := s.db.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return job, nil
}

func (s *JobService) MarkRunning(ctx context.Context, id string) error {
	return s.db.MarkJobRunning(ctx, id)
}

func (s *JobService) MarkCompleted(ctx context.Context, id string) error {
	return s.db.MarkJobCompleted(ctx, id)
}

// MarkFailed records the failure on the job row so it never silently
// disappears. Messages are clamped to keep rows bounded.
func (s *JobService) MarkFailed(ctx context.Context, id string, message string) error {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	return s.db.MarkJobFailed(ctx, id, message)
}

func (s *JobService) UpdateTotals(ctx context.Context, id string, total int) error {
	return s.db.UpdateJobTotals(ctx, id, total)
}

func (s *JobService) UpdateProgress(ctx context.Context, id string, pagesVisited, pagesStored, chunksStored int) error {
	return s.db.UpdateJobProgress(ctx, id, pagesVisited, pagesStored, chunksStored)
}

// Deactivate excludes the job's chunks from search without deleting them.
// Chunks are located by the job's effective source: source URL for document
// jobs, domain for crawl jobs.
func (s *JobService) Deactivate(ctx context.Context, tenantID, jobID string) (int, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.TenantID != tenantID {
		return 0, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	var count int
	if jobType(job) == models.JobTypeDocs {
		count, err = s.db.DeactivateChunksBySourceURL(ctx, tenantID, job.StartURL)
	} else {
		count, err = s.db.DeactivateChunksByDomain(ctx, tenantID, job.Domain)
	}
	if err != nil {
		return 0, err
	}
	if err := s.db.SetJobActive(ctx, jobID, false); err != nil {
		return count, err
	}
	return count, nil
}

// List pages a tenant's jobs newest first.
func (s *JobService) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.CrawlJob, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.db.ListJobsByTenant(ctx, tenantID, pageSize, (page-1)*pageSize)
}

// View enriches a stored job with its type, a human label, a completion
// percentage when the total is known, and the embedding token usage
// attributed to the tenant between startedAt and finishedAt (or now, while
// still running).
func (s *JobService) View(ctx context.Context, job *models.CrawlJob) (*models.JobView, error) {
	view := &models.JobView{
		CrawlJob: *job,
		Type:     jobType(job),
		Label:    jobLabel(job),
		Percent:  jobPercent(job),
	}

	if job.StartedAt != nil {
		to := time.Now()
		if job.FinishedAt != nil {
			to = *job.FinishedAt
		}
		tokens, err := s.db.SumEmbeddingUsage(ctx, job.TenantID, *job.StartedAt, to)
		if err != nil {
			return nil, err
		}
		view.TokensUsed = tokens
	}
	return view, nil
}

func (s *JobService) Views(ctx context.Context, jobs []models.CrawlJob) ([]models.JobView, error) {
	views := make([]models.JobView, 0, len(jobs))
	for i := range jobs {
		v, err := s.View(ctx, &jobs[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func jobType(job *models.CrawlJob) string {
	if strings.HasPrefix(job.StartURL, "file://") {
		return models.JobTypeDocs
	}
	return models.JobTypeDomain
}

func jobLabel(job *models.CrawlJob) string {
	if jobType(job) == models.JobTypeDocs {
		return path.Base(strings.TrimPrefix(job.StartURL, "file://"))
	}
	return job.Domain
}

func jobPercent(job *models.CrawlJob) *int {
	if job.TotalPagesEstimated == nil || *job.TotalPagesEstimated <= 0 {
		return nil
	}
	pct := job.PagesVisited * 100 / *job.TotalPagesEstimated
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return &pct
}
