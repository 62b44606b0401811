package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise-ai/knowledge-engine/internal/core/crawler"
	"github.com/sitewise-ai/knowledge-engine/internal/core/estimate"
	"github.com/sitewise-ai/knowledge-engine/internal/core/ingestion_engine"
)

// EstimateService computes cheap, sampled crawl estimates. Results are
// cached by a deterministic signature over the domain and the crawl and
// chunking configuration, so repeating an estimate with identical config is
// served from cache without refetching a single page.
type EstimateService struct {
	cache       estimate.Cache
	cfg         crawler.Config
	chunkCfg    ingestion_engine.ChunkConfig
	client      *http.Client
	samplePages int
	ttl         time.Duration
	timeout     time.Duration
}

func NewEstimateService(cache estimate.Cache, cfg crawler.Config, chunkCfg ingestion_engine.ChunkConfig, client *http.Client, samplePages int, ttl time.Duration) *EstimateService {
	if samplePages <= 0 {
		samplePages = 8
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EstimateService{
		cache:       cache,
		cfg:         cfg,
		chunkCfg:    chunkCfg,
		client:      client,
		samplePages: samplePages,
		ttl:         ttl,
		timeout:     5 * time.Minute,
	}
}

// Start returns the estimate status. On a cache hit it is completed
// immediately; otherwise computation runs in the background and the caller
// polls Get with the returned id.
func (s *EstimateService) Start(ctx context.Context, domain string) (*estimate.Status, error) {
	if _, err := crawler.NormalizeStartURL(domain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sig := s.signature(domain)
	if p := s.cache.GetBySignature(sig); p != nil {
		status := estimate.Status{ID: p.ID, State: estimate.StatusCompleted, Result: p.Summarize()}
		s.cache.SetStatus(status, s.ttl)
		return &status, nil
	}

	id := uuid.NewString()
	s.cache.SetStatus(estimate.Status{ID: id, State: estimate.StatusRunning}, s.ttl)
	go s.compute(domain, sig, id)

	return &estimate.Status{ID: id, State: estimate.StatusRunning}, nil
}

// Get polls an estimate computation by id.
func (s *EstimateService) Get(ctx context.Context, id string) (*estimate.Status, error) {
	if status := s.cache.GetStatus(id); status != nil {
		return status, nil
	}
	return nil, fmt.Errorf("%w: estimate %s", ErrNotFound, id)
}

func (s *EstimateService) compute(domain, sig, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := s.sample(ctx, domain, sig, id)
	if err != nil {
		log.Printf("estimate %s: %v", id, err)
		s.cache.SetStatus(estimate.Status{ID: id, State: estimate.StatusFailed, Error: err.Error()}, s.ttl)
		return
	}

	s.cache.Set(payload, s.ttl)
	s.cache.SetStatus(estimate.Status{ID: id, State: estimate.StatusCompleted, Result: payload.Summarize()}, s.ttl)
}

// sample crawls up to samplePages pages and extrapolates the site-wide
// token cost from the average tokens per sampled page and the number of
// distinct same-host URLs discovered.
func (s *EstimateService) sample(ctx context.Context, domain, sig, id string) (*estimate.Payload, error) {
	cfg := s.cfg
	cfg.MaxPages = s.samplePages

	var (
		pages      []estimate.SamplePage
		discovered int
	)
	cb := crawler.Callbacks{
		OnDiscovered: func(total int) { discovered = total },
		OnPageStored: func(p crawler.Page) {
			pages = append(pages, estimate.SamplePage{
				URL:    p.URL,
				Text:   p.Text,
				Tokens: ingestion_engine.CountTokens(p.Text),
			})
		},
	}

	c := crawler.NewWithClient(cfg, s.client)
	if err := c.Crawl(ctx, domain, nil, cb); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no usable pages found on %s", domain)
	}

	sampled := 0
	for _, p := range pages {
		sampled += p.Tokens
	}
	avg := sampled / len(pages)

	total := discovered
	if total > s.cfg.MaxPages {
		total = s.cfg.MaxPages
	}
	if total < len(pages) {
		total = len(pages)
	}

	projected := int64(avg) * int64(total)
	return &estimate.Payload{
		ID:                  id,
		Signature:           sig,
		Domain:              domain,
		PagesSampled:        len(pages),
		TotalPagesEstimated: total,
		AvgTokensPerPage:    avg,
		TokensLow:           projected * 80 / 100,
		TokensHigh:          projected * 120 / 100,
		Pages:               pages,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

func (s *EstimateService) signature(domain string) string {
	return estimate.BuildSignature(estimate.SignatureInput{
		Domain:             domain,
		MaxPages:           s.cfg.MaxPages,
		MaxDepth:           s.cfg.MaxDepth,
		MinChars:           s.cfg.MinChars,
		RespectRobots:      s.cfg.RespectRobots,
		ChunkSizeTokens:    s.chunkCfg.ChunkSizeTokens,
		ChunkOverlapTokens: s.chunkCfg.ChunkOverlapTokens,
		SamplePages:        s.samplePages,
	})
}
