package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/config"
	"github.com/sitewise-ai/knowledge-engine/internal/core"
	"github.com/sitewise-ai/knowledge-engine/internal/core/crawler"
	db "github.com/sitewise-ai/knowledge-engine/internal/core/database"
	"github.com/sitewise-ai/knowledge-engine/internal/core/estimate"
	"github.com/sitewise-ai/knowledge-engine/internal/core/ingestion_engine"
	"github.com/sitewise-ai/knowledge-engine/internal/core/llm"
	objectclient "github.com/sitewise-ai/knowledge-engine/internal/core/object-client"
	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

type App struct {
	DBClient core.DbClient
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	var archive core.ObjectClient
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		archive = s3Client
		log.Println("Object client initialized and ready.")
	}

	chunkCfg := ingestion_engine.ChunkConfig{
		ChunkSizeTokens:    cfg.ChunkSizeTokens,
		ChunkOverlapTokens: cfg.ChunkOverlapTokens,
	}
	crawlCfg := crawler.Config{
		Concurrency:   cfg.CrawlConcurrency,
		MaxPages:      cfg.CrawlMaxPages,
		MaxDepth:      cfg.CrawlMaxDepth,
		MinChars:      cfg.CrawlMinChars,
		RespectRobots: cfg.CrawlRespectRobots,
		RatePerSecond: cfg.CrawlRatePerSecond,
		UserAgent:     cfg.CrawlUserAgent,
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)
	cache := estimate.NewMemoryCache()
	ttl := time.Duration(cfg.EstimateTTLMinutes) * time.Minute

	tenants := services.NewTenantService(dbClient)
	jobs := services.NewJobService(dbClient)
	ingestor := services.NewIngestor(dbClient, embedder, chunkCfg, cfg.EmbedBatchSize)
	crawls := services.NewCrawlService(tenants, jobs, ingestor, cache, crawlCfg, nil)
	docs := services.NewDocsService(tenants, jobs, ingestor, extractor, archive, cfg.BucketName, cfg.CrawlMinChars)
	estimates := services.NewEstimateService(cache, crawlCfg, chunkCfg, nil, cfg.EstimateSamplePages, ttl)
	search := services.NewSearchService(dbClient, tenants, embedder)
	usage := services.NewUsageService(dbClient, tenants)

	server := NewServer(cfg, Services{
		Tenants:   tenants,
		Jobs:      jobs,
		Crawls:    crawls,
		Docs:      docs,
		Estimates: estimates,
		Search:    search,
		Usage:     usage,
		Ingestor:  ingestor,
	})

	return &App{DBClient: dbClient, Server: server}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	retryBase := time.Duration(cfg.EmbedRetryBaseMs) * time.Millisecond
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.EmbedAPIKey, cfg.EmbedMaxRetries, retryBase)
	case "openai", "":
		return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			BaseURL:    cfg.EmbedBaseURL,
			APIKey:     cfg.EmbedAPIKey,
			MaxRetries: cfg.EmbedMaxRetries,
			RetryBase:  retryBase,
		})
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
