package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/knowledge-engine/internal/core/crawler"
	"github.com/sitewise-ai/knowledge-engine/internal/core/estimate"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

func htmlPage(title, body string, links ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>" + title + "</title></head><body><p>" + body + "</p>")
	for _, l := range links {
		sb.WriteString(`<a href="` + l + `">link</a>`)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func testCrawlCfg() crawler.Config {
	return crawler.Config{
		Concurrency: 2,
		MaxPages:    20,
		MaxDepth:    3,
		MinChars:    20,
	}
}

func newCrawlFixture(t *testing.T, cache estimate.Cache) (*CrawlService, *fakeStore, *models.Tenant, *fakeEmbedder) {
	t.Helper()
	store := newFakeStore()
	tenant := newTestTenant(t, store)
	embedder := &fakeEmbedder{}
	tenants := NewTenantService(store)
	jobs := NewJobService(store)
	ing := NewIngestor(store, embedder, testChunkCfg(), 4)
	svc := NewCrawlService(tenants, jobs, ing, cache, testCrawlCfg(), nil)
	return svc, store, tenant, embedder
}

func waitForJob(t *testing.T, store *fakeStore, jobID string) *models.CrawlJob {
	t.Helper()
	var job *models.CrawlJob
	require.Eventually(t, func() bool {
		j, err := store.GetJobByID(context.Background(), jobID)
		if err != nil || j == nil {
			return false
		}
		job = j
		return j.Status == models.JobCompleted || j.Status == models.JobFailed
	}, 10*time.Second, 20*time.Millisecond)
	return job
}

func TestCrawlStartToCompletion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, htmlPage("Home", strings.Repeat("welcome to the home page ", 4), "/about"))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("About", strings.Repeat("all about this company here ", 4)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, store, tenant, _ := newCrawlFixture(t, nil)

	job, err := svc.Start(context.Background(), tenant.ID, srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)

	done := waitForJob(t, store, job.ID)
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, 2, done.PagesVisited)
	assert.Equal(t, 2, done.PagesStored)
	assert.Positive(t, done.ChunksStored)
	// No sitemap, no estimate seed: the total stays unknown so the job view
	// reports no percentage instead of a bogus 100%.
	assert.Nil(t, done.TotalPagesEstimated)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.chunks, done.ChunksStored)
	for _, c := range store.chunks {
		assert.Equal(t, tenant.ID, c.TenantID)
		assert.NotEqual(t, "", c.SourceURL)
	}
}

func TestCrawlUnreachableStartFailsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, store, tenant, _ := newCrawlFixture(t, nil)

	job, err := svc.Start(context.Background(), tenant.ID, srv.URL, "")
	require.NoError(t, err)

	done := waitForJob(t, store, job.ID)
	assert.Equal(t, models.JobFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "start URL unreachable")
}

func TestCrawlStartValidation(t *testing.T) {
	svc, _, tenant, _ := newCrawlFixture(t, nil)

	_, err := svc.Start(context.Background(), tenant.ID, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Start(context.Background(), "missing", "example.com", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCrawlCountersNeverDecrease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, htmlPage("Home", strings.Repeat("welcome to the home page ", 4), "/p1", "/p2", "/p3", "/p4"))
	})
	for _, p := range []string{"/p1", "/p2", "/p3", "/p4"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(5 * time.Millisecond)
			fmt.Fprint(w, htmlPage("Page", strings.Repeat("informative page body text here ", 4)))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, store, tenant, _ := newCrawlFixture(t, nil)

	job, err := svc.Start(context.Background(), tenant.ID, srv.URL, "")
	require.NoError(t, err)

	// Sample progress while the job runs: counters only ever grow.
	var last models.CrawlJob
	require.Eventually(t, func() bool {
		j, err := store.GetJobByID(context.Background(), job.ID)
		if err != nil || j == nil {
			return false
		}
		assert.GreaterOrEqual(t, j.PagesVisited, last.PagesVisited)
		assert.GreaterOrEqual(t, j.PagesStored, last.PagesStored)
		assert.GreaterOrEqual(t, j.ChunksStored, last.ChunksStored)
		last = *j
		return j.Status == models.JobCompleted
	}, 10*time.Second, time.Millisecond)

	assert.Equal(t, 5, last.PagesVisited)
	assert.Equal(t, 5, last.PagesStored)
}

func TestCrawlConsumesEstimateSeed(t *testing.T) {
	var rootFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		rootFetches.Add(1)
		fmt.Fprint(w, htmlPage("Home", strings.Repeat("welcome to the home page ", 4), "/sampled"))
	})
	mux.HandleFunc("/sampled", func(w http.ResponseWriter, r *http.Request) {
		t.Error("seeded page must not be refetched")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := estimate.NewMemoryCache()
	svc, store, tenant, _ := newCrawlFixture(t, cache)

	total := 2
	cache.Set(&estimate.Payload{
		ID:                  "est-1",
		Signature:           "sig-1",
		Domain:              srv.URL,
		TotalPagesEstimated: total,
		Pages: []estimate.SamplePage{
			{URL: srv.URL + "/sampled", Text: strings.Repeat("already sampled page text ", 4), Tokens: 16},
		},
	}, time.Minute)

	job, err := svc.Start(context.Background(), tenant.ID, srv.URL, "est-1")
	require.NoError(t, err)
	require.NotNil(t, job.TotalPagesEstimated)
	assert.Equal(t, total, *job.TotalPagesEstimated)

	done := waitForJob(t, store, job.ID)
	assert.Equal(t, models.JobCompleted, done.Status)

	// Seeded page counted without refetching; the sample is consumed.
	assert.Equal(t, 2, done.PagesVisited)
	assert.Equal(t, 2, done.PagesStored)
	assert.Nil(t, cache.ConsumeByID("est-1"))
	assert.Equal(t, int32(1), rootFetches.Load())
}
