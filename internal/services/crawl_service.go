package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/core/crawler"
	"github.com/sitewise-ai/knowledge-engine/internal/core/estimate"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// CrawlService starts full-domain crawl jobs. Each job runs as an
// independent background goroutine that owns exclusive write access to its
// job row: the caller gets an immediate queued acknowledgment while the
// crawl progresses.
type CrawlService struct {
	tenants  *TenantService
	jobs     *JobService
	ingestor *Ingestor
	cache    estimate.Cache
	cfg      crawler.Config
	client   *http.Client
	timeout  time.Duration
}

func NewCrawlService(tenants *TenantService, jobs *JobService, ingestor *Ingestor, cache estimate.Cache, cfg crawler.Config, client *http.Client) *CrawlService {
	return &CrawlService{
		tenants:  tenants,
		jobs:     jobs,
		ingestor: ingestor,
		cache:    cache,
		cfg:      cfg,
		client:   client,
		timeout:  30 * time.Minute,
	}
}

// Start validates, creates the job and fires the background task. When
// estimateID names a cached estimate, the sample is consumed (read-and-
// delete) so the already-fetched pages seed the crawl instead of being
// refetched.
func (s *CrawlService) Start(ctx context.Context, tenantID, domain, estimateID string) (*models.CrawlJob, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	start, err := crawler.NormalizeStartURL(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var seed *estimate.Payload
	var total *int
	if estimateID != "" && s.cache != nil {
		if seed = s.cache.ConsumeByID(estimateID); seed != nil && seed.TotalPagesEstimated > 0 {
			t := seed.TotalPagesEstimated
			total = &t
		}
	}

	job, err := s.jobs.Create(ctx, tenant.ID, start.Host, start.String(), total)
	if err != nil {
		return nil, err
	}

	// Detached from the request context: the caller only waits for the
	// queued acknowledgment.
	go s.run(tenant, job, seed)

	return job, nil
}

func (s *CrawlService) run(tenant *models.Tenant, job *models.CrawlJob, seed *estimate.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		log.Printf("crawl %s: mark running: %v", job.ID, err)
		return
	}

	var pagesVisited, pagesStored, chunksStored int
	progress := func() {
		if err := s.jobs.UpdateProgress(ctx, job.ID, pagesVisited, pagesStored, chunksStored); err != nil {
			log.Printf("crawl %s: progress update: %v", job.ID, err)
		}
	}

	var skip []string
	for _, p := range seedPages(seed) {
		skip = append(skip, p.URL)
		n, err := s.ingestor.IngestText(ctx, tenant, p.Text, p.URL, job.Domain)
		if err != nil {
			log.Printf("crawl %s: seed page %s: %v", job.ID, p.URL, err)
			continue
		}
		pagesVisited++
		pagesStored++
		chunksStored += n
		progress()
	}

	cb := crawler.Callbacks{
		OnTotalsKnown: func(total int) {
			if total <= 0 {
				return
			}
			if err := s.jobs.UpdateTotals(ctx, job.ID, total+len(skip)); err != nil {
				log.Printf("crawl %s: totals update: %v", job.ID, err)
			}
		},
		OnPageVisited: func(url string) {
			pagesVisited++
			progress()
		},
		OnPageStored: func(p crawler.Page) {
			n, err := s.ingestor.IngestText(ctx, tenant, p.Text, p.URL, job.Domain)
			if err != nil {
				// Isolated to this page: logged and skipped, the crawl
				// continues.
				log.Printf("crawl %s: page %s: %v", job.ID, p.URL, err)
				return
			}
			pagesStored++
			chunksStored += n
			progress()
		},
	}

	c := crawler.NewWithClient(s.cfg, s.client)
	if err := c.Crawl(ctx, job.StartURL, skip, cb); err != nil {
		if markErr := s.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			log.Printf("crawl %s: mark failed: %v", job.ID, markErr)
		}
		return
	}
	if err := s.jobs.MarkCompleted(ctx, job.ID); err != nil {
		log.Printf("crawl %s: mark completed: %v", job.ID, err)
	}
}

func seedPages(seed *estimate.Payload) []estimate.SamplePage {
	if seed == nil {
		return nil
	}
	return seed.Pages
}
