package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sitewise-ai/knowledge-engine/internal/api/handlers"
	appMiddleware "github.com/sitewise-ai/knowledge-engine/internal/api/middlewares"
	"github.com/sitewise-ai/knowledge-engine/internal/config"
	"github.com/sitewise-ai/knowledge-engine/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// Services is everything the router needs wired in.
type Services struct {
	Tenants   *services.TenantService
	Jobs      *services.JobService
	Crawls    *services.CrawlService
	Docs      *services.DocsService
	Estimates *services.EstimateService
	Search    *services.SearchService
	Usage     *services.UsageService
	Ingestor  *services.Ingestor
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, svc Services) *Server {
	tenantHandler := handlers.NewTenantHandler(svc.Tenants)
	jobHandler := handlers.NewJobHandler(svc.Jobs, svc.Crawls)
	docsHandler := handlers.NewDocsHandler(svc.Docs)
	estimateHandler := handlers.NewEstimateHandler(svc.Estimates)
	searchHandler := handlers.NewSearchHandler(svc.Search, svc.Tenants, svc.Ingestor)
	usageHandler := handlers.NewUsageHandler(svc.Usage)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Internal-Token"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.InternalToken(cfg.InternalToken))

		api.Post("/tenants", tenantHandler.Create)
		api.Get("/tenants/{tenantID}", tenantHandler.Get)
		api.Delete("/tenants/{tenantID}", tenantHandler.Delete)

		api.Post("/tenants/{tenantID}/crawl", jobHandler.StartCrawl)
		api.Get("/tenants/{tenantID}/jobs", jobHandler.List)
		api.Get("/jobs/{jobID}", jobHandler.Get)
		api.Post("/tenants/{tenantID}/jobs/{jobID}/deactivate", jobHandler.Deactivate)

		api.Post("/estimates/crawl", estimateHandler.StartCrawl)
		api.Get("/estimates/crawl/{estimateID}", estimateHandler.GetCrawl)

		api.Post("/tenants/{tenantID}/docs/estimate", docsHandler.Estimate)
		api.Post("/tenants/{tenantID}/docs", docsHandler.Ingest)

		api.Post("/tenants/{tenantID}/search", searchHandler.Search)
		api.Put("/tenants/{tenantID}/chunks/{chunkID}", searchHandler.EditChunk)

		api.Get("/tenants/{tenantID}/usage", usageHandler.Get)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
