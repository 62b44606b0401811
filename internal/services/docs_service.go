package services

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/core/ingestion_engine"
	"github.com/sitewise-ai/knowledge-engine/internal/models"
)

// docsDomain is the reserved chunk namespace for uploaded documents.
const docsDomain = "docs"

// Per-file outcome statuses.
const (
	FileOK      = "ok"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type FileEstimate struct {
	Name   string `json:"name"`
	Tokens int    `json:"tokens"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type FileResult struct {
	Name   string `json:"name"`
	JobID  string `json:"job_id,omitempty"`
	Chunks int    `json:"chunks"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// DocsService ingests uploaded documents: one job per file, extraction via
// docconv, then the shared chunk/embed/persist path. Failures are isolated
// per file; one unreadable upload never affects its batch mates.
type DocsService struct {
	tenants   *TenantService
	jobs      *JobService
	ingestor  *Ingestor
	extractor core.DocumentExtractor
	archive   core.ObjectClient // optional, nil disables archival
	bucket    string
	minChars  int
}

func NewDocsService(tenants *TenantService, jobs *JobService, ingestor *Ingestor, extractor core.DocumentExtractor, archive core.ObjectClient, bucket string, minChars int) *DocsService {
	return &DocsService{
		tenants:   tenants,
		jobs:      jobs,
		ingestor:  ingestor,
		extractor: extractor,
		archive:   archive,
		bucket:    bucket,
		minChars:  minChars,
	}
}

// Estimate reports the token cost of ingesting each file without storing
// anything, with a skip reason for unreadable or too-short files.
func (s *DocsService) Estimate(ctx context.Context, tenantID string, files []UploadedFile) ([]FileEstimate, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", ErrValidation)
	}

	out := make([]FileEstimate, 0, len(files))
	for _, f := range files {
		text, err := s.extractor.ExtractText(ctx, f.Data, f.ContentType)
		if err != nil {
			out = append(out, FileEstimate{Name: f.Name, Status: FileSkipped, Reason: fmt.Sprintf("unreadable: %v", err)})
			continue
		}
		if len(text) < s.minChars {
			out = append(out, FileEstimate{Name: f.Name, Status: FileSkipped, Reason: "document too short or empty"})
			continue
		}
		out = append(out, FileEstimate{Name: f.Name, Tokens: ingestion_engine.CountTokens(text), Status: FileOK})
	}
	return out, nil
}

// Ingest runs one job per uploaded file. A too-short document completes
// (not fails) with a skipped result; an extraction or embedding failure
// fails that file's job and is recorded on it.
func (s *DocsService) Ingest(ctx context.Context, tenantID string, files []UploadedFile) ([]FileResult, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", ErrValidation)
	}

	out := make([]FileResult, 0, len(files))
	for _, f := range files {
		out = append(out, s.ingestOne(ctx, tenant, f))
	}
	return out, nil
}

func (s *DocsService) ingestOne(ctx context.Context, tenant *models.Tenant, f UploadedFile) FileResult {
	name := filepath.Base(strings.TrimSpace(f.Name))
	if name == "" || name == "." {
		return FileResult{Name: f.Name, Status: FileFailed, Reason: "missing file name"}
	}
	sourceURL := "file://" + name

	job, err := s.jobs.Create(ctx, tenant.ID, docsDomain, sourceURL, nil)
	if err != nil {
		return FileResult{Name: name, Status: FileFailed, Reason: err.Error()}
	}
	res := FileResult{Name: name, JobID: job.ID}

	var archiveKey string
	if s.archive != nil {
		key := path.Join("tenants", tenant.ID, "documents", job.ID, name)
		if _, err := s.archive.UploadFile(ctx, s.bucket, key, f.Data, f.ContentType); err != nil {
			// Archival is best-effort; ingestion proceeds from memory.
			log.Printf("docs %s: archive %s: %v", job.ID, name, err)
		} else {
			archiveKey = key
		}
	}

	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		s.discardArchive(ctx, archiveKey)
		res.Status = FileFailed
		res.Reason = err.Error()
		return res
	}

	text, err := s.extractor.ExtractText(ctx, f.Data, f.ContentType)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("extraction failed: %v", err))
		s.discardArchive(ctx, archiveKey)
		res.Status = FileFailed
		res.Reason = fmt.Sprintf("extraction failed: %v", err)
		return res
	}

	if len(text) < s.minChars {
		// Visited but nothing worth storing; the job still completes.
		s.progress(ctx, job.ID, 1, 0, 0)
		s.complete(ctx, job.ID)
		res.Status = FileSkipped
		res.Reason = "document too short or empty"
		return res
	}

	n, err := s.ingestor.IngestText(ctx, tenant, text, sourceURL, docsDomain)
	if err != nil {
		s.fail(ctx, job.ID, err.Error())
		s.discardArchive(ctx, archiveKey)
		res.Status = FileFailed
		res.Reason = err.Error()
		return res
	}

	s.progress(ctx, job.ID, 1, 1, n)
	s.complete(ctx, job.ID)
	res.Status = FileOK
	res.Chunks = n
	return res
}

// discardArchive removes the archived copy of an upload whose ingestion
// failed, so the bucket only holds documents that were actually ingested.
func (s *DocsService) discardArchive(ctx context.Context, key string) {
	if s.archive == nil || key == "" {
		return
	}
	if err := s.archive.DeleteFile(ctx, s.bucket, key); err != nil {
		log.Printf("docs: discard archive %s: %v", key, err)
	}
}

func (s *DocsService) fail(ctx context.Context, jobID, msg string) {
	if err := s.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		log.Printf("docs %s: mark failed: %v", jobID, err)
	}
}

func (s *DocsService) complete(ctx context.Context, jobID string) {
	if err := s.jobs.MarkCompleted(ctx, jobID); err != nil {
		log.Printf("docs %s: mark completed: %v", jobID, err)
	}
}

func (s *DocsService) progress(ctx context.Context, jobID string, v, p, c int) {
	if err := s.jobs.UpdateProgress(ctx, jobID, v, p, c); err != nil {
		log.Printf("docs %s: progress update: %v", jobID, err)
	}
}
