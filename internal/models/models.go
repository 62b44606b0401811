package models

import (
	"time"
)

// Crawl job lifecycle statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job types derived from the start URL scheme.
const (
	JobTypeDomain = "domain"
	JobTypeDocs   = "docs"
)

// Tenant is a logical namespace. Its embedding model fixes the vector
// dimensionality for every chunk it owns.
type Tenant struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	EmbedModel    string    `db:"embed_model" json:"embed_model"`
	PrimaryDomain *string   `db:"primary_domain" json:"primary_domain,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CrawlJob is one ingestion run: a full-domain crawl or a single uploaded
// file. An http(s) StartURL means a domain crawl; a file:// pseudo-URL means
// a document job.
type CrawlJob struct {
	ID                  string     `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenant_id"`
	Domain              string     `db:"domain" json:"domain"`
	StartURL            string     `db:"start_url" json:"start_url"`
	Status              string     `db:"status" json:"status"`
	Active              bool       `db:"active" json:"active"`
	PagesVisited        int        `db:"pages_visited" json:"pages_visited"`
	PagesStored         int        `db:"pages_stored" json:"pages_stored"`
	ChunksStored        int        `db:"chunks_stored" json:"chunks_stored"`
	TotalPagesEstimated *int       `db:"total_pages_estimated" json:"total_pages_estimated,omitempty"`
	ErrorMessage        *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	StartedAt           *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt          *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// JobView enriches a stored CrawlJob for API consumers.
type JobView struct {
	CrawlJob
	Type       string `json:"type"`
	Label      string `json:"label"`
	Percent    *int   `json:"percent,omitempty"`
	TokensUsed int64  `json:"tokens_used"`
}

// Chunk is one unit of retrievable content. Chunks are immutable once stored
// except for explicit text edits (which re-embed) and active-flag toggles.
type Chunk struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	SourceURL string    `db:"source_url" json:"source_url"`
	Domain    string    `db:"domain" json:"domain"`
	Position  int       `db:"position" json:"position"`
	Text      string    `db:"text" json:"text"`
	Embedding []float32 `db:"embedding" json:"-"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SearchResult is a chunk match with its cosine similarity score.
type SearchResult struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// EmbeddingUsage records the token cost of one embedding batch, attributed
// to a tenant. Per-job token figures and the usage summary are derived from
// these rows by time range.
type EmbeddingUsage struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Tokens    int       `db:"tokens" json:"tokens"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
