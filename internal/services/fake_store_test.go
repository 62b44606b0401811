package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/core/llm"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// fakeStore is an in-memory core.DbClient mirroring the Postgres client's
// transition semantics, so service tests run without a database.
type fakeStore struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	jobs    map[string]*models.CrawlJob
	chunks  map[string]*models.Chunk
	usage   []models.EmbeddingUsage
}

var _ core.DbClient = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: make(map[string]*models.Tenant),
		jobs:    make(map[string]*models.CrawlJob),
		chunks:  make(map[string]*models.Chunk),
	}
}

func (f *fakeStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := *tenant
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	f.tenants[t.ID] = &t
	return nil
}

func (f *fakeStore) GetTenantByID(_ context.Context, id string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (f *fakeStore) DeleteTenant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tenants, id)
	for jid, j := range f.jobs {
		if j.TenantID == id {
			delete(f.jobs, jid)
		}
	}
	for cid, c := range f.chunks {
		if c.TenantID == id {
			delete(f.chunks, cid)
		}
	}
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *models.CrawlJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := *job
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	f.jobs[j.ID] = &j
	return nil
}

func (f *fakeStore) GetJobByID(_ context.Context, id string) (*models.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

func (f *fakeStore) ListJobsByTenant(_ context.Context, tenantID string, limit, offset int) ([]models.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CrawlJob
	for _, j := range f.jobs {
		if j.TenantID == tenantID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) withJob(id string, fn func(j *models.CrawlJob)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) MarkJobRunning(_ context.Context, id string) error {
	return f.withJob(id, func(j *models.CrawlJob) {
		now := time.Now()
		j.Status = models.JobRunning
		j.StartedAt = &now
	})
}

func (f *fakeStore) MarkJobCompleted(_ context.Context, id string) error {
	return f.withJob(id, func(j *models.CrawlJob) {
		now := time.Now()
		j.Status = models.JobCompleted
		j.FinishedAt = &now
	})
}

func (f *fakeStore) MarkJobFailed(_ context.Context, id string, message string) error {
	return f.withJob(id, func(j *models.CrawlJob) {
		now := time.Now()
		j.Status = models.JobFailed
		j.ErrorMessage = &message
		j.FinishedAt = &now
	})
}

func (f *fakeStore) SetJobActive(_ context.Context, id string, active bool) error {
	return f.withJob(id, func(j *models.CrawlJob) { j.Active = active })
}

func (f *fakeStore) UpdateJobTotals(_ context.Context, id string, totalPages int) error {
	return f.withJob(id, func(j *models.CrawlJob) { j.TotalPagesEstimated = &totalPages })
}

func (f *fakeStore) UpdateJobProgress(_ context.Context, id string, pagesVisited, pagesStored, chunksStored int) error {
	return f.withJob(id, func(j *models.CrawlJob) {
		j.PagesVisited = pagesVisited
		j.PagesStored = pagesStored
		j.ChunksStored = chunksStored
	})
}

func (f *fakeStore) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		cc := c
		cc.CreatedAt = time.Now()
		f.chunks[cc.ID] = &cc
	}
	return nil
}

func (f *fakeStore) GetChunkByID(_ context.Context, id string) (*models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (f *fakeStore) UpdateChunkText(_ context.Context, id string, text string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[id]
	if !ok {
		return fmt.Errorf("chunk not found")
	}
	c.Text = text
	c.Embedding = embedding
	return nil
}

func (f *fakeStore) DeactivateChunksByDomain(_ context.Context, tenantID, domain string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		if c.TenantID == tenantID && c.Domain == domain && c.Active {
			c.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeactivateChunksBySourceURL(_ context.Context, tenantID, sourceURL string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		if c.TenantID == tenantID && c.SourceURL == sourceURL && c.Active {
			c.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SearchChunks(_ context.Context, tenantID string, queryVec []float32, domain *string, limit int) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SearchResult
	for _, c := range f.chunks {
		if c.TenantID != tenantID || !c.Active {
			continue
		}
		if domain != nil && c.Domain != *domain {
			continue
		}
		out = append(out, models.SearchResult{Chunk: *c, Similarity: cosine(queryVec, c.Embedding)})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (f *fakeStore) InsertEmbeddingUsage(_ context.Context, usage *models.EmbeddingUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *usage
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	f.usage = append(f.usage, u)
	return nil
}

func (f *fakeStore) SumEmbeddingUsage(_ context.Context, tenantID string, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, u := range f.usage {
		if u.TenantID == tenantID && !u.CreatedAt.Before(from) && !u.CreatedAt.After(to) {
			total += int64(u.Tokens)
		}
	}
	return total, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeEmbedder returns deterministic unit-norm-ish vectors of the model's
// dimensionality, seeded from the text length so distinct texts differ.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

var _ core.EmbeddingProvider = (*fakeEmbedder)(nil)

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string, model string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	dims, ok := llm.Dimensions(model)
	if !ok {
		return nil, fmt.Errorf("unsupported embedding model %q", model)
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dims)
		v[0] = 1
		if len(t) > 0 {
			v[1] = float32(len(t)%7) / 7
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeArchive records object uploads and deletions in memory.
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
}

var _ core.ObjectClient = (*fakeArchive)(nil)

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: make(map[string][]byte)}
}

func (a *fakeArchive) UploadFile(_ context.Context, _ string, key string, data []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return "https://archive.test/" + key, nil
}

func (a *fakeArchive) DeleteFile(_ context.Context, _ string, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	a.deletes = append(a.deletes, key)
	return nil
}

// fakeExtractor treats the upload bytes as plain text.
type fakeExtractor struct {
	fail error
}

func (e *fakeExtractor) ExtractText(_ context.Context, data []byte, _ string) (string, error) {
	if e.fail != nil {
		return "", e.fail
	}
	return strings.TrimSpace(string(data)), nil
}
