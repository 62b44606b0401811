package estimate

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Estimate job states for async computation polling.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SamplePage is one fetched page retained inside a cached estimate, so a
// crawl seeded from the estimate does not refetch it.
type SamplePage struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// Payload is a cached estimate: the sampled pages plus the computed numbers.
type Payload struct {
	ID                  string       `json:"id"`
	Signature           string       `json:"signature"`
	Domain              string       `json:"domain"`
	PagesSampled        int          `json:"pages_sampled"`
	TotalPagesEstimated int          `json:"total_pages_estimated"`
	AvgTokensPerPage    int          `json:"avg_tokens_per_page"`
	TokensLow           int64        `json:"tokens_low"`
	TokensHigh          int64        `json:"tokens_high"`
	Pages               []SamplePage `json:"pages"`
	CreatedAt           time.Time    `json:"created_at"`
}

// Summary is the caller-facing slice of a Payload: the computed numbers
// without the sampled page bodies.
type Summary struct {
	Domain              string `json:"domain"`
	PagesSampled        int    `json:"pages_sampled"`
	TotalPagesEstimated int    `json:"total_pages_estimated"`
	AvgTokensPerPage    int    `json:"avg_tokens_per_page"`
	TokensLow           int64  `json:"tokens_low"`
	TokensHigh          int64  `json:"tokens_high"`
}

// Summarize strips the page bodies from a payload.
func (p *Payload) Summarize() *Summary {
	return &Summary{
		Domain:              p.Domain,
		PagesSampled:        p.PagesSampled,
		TotalPagesEstimated: p.TotalPagesEstimated,
		AvgTokensPerPage:    p.AvgTokensPerPage,
		TokensLow:           p.TokensLow,
		TokensHigh:          p.TokensHigh,
	}
}

// Status tracks an asynchronous estimate computation so a caller can poll
// without blocking. Result is populated once State is completed.
type Status struct {
	ID     string   `json:"id"`
	State  string   `json:"state"`
	Error  string   `json:"error,omitempty"`
	Result *Summary `json:"result,omitempty"`
}

// Cache is the estimate cache contract. Implementations must degrade
// gracefully: a miss and a backend failure look identical (nil), so the
// cache is never a correctness dependency.
type Cache interface {
	Set(p *Payload, ttl time.Duration)
	GetBySignature(signature string) *Payload
	ConsumeByID(id string) *Payload
	DeleteByID(id string)

	SetStatus(s Status, ttl time.Duration)
	GetStatus(id string) *Status
	ClearStatus(id string)
}

type entry struct {
	compressed []byte
	expiresAt  time.Time
}

type statusEntry struct {
	status    Status
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache. Page payloads are gzip-compressed
// JSON to bound memory; entries expire lazily on read.
type MemoryCache struct {
	mu       sync.Mutex
	bySig    map[string]*entry
	sigByID  map[string]string
	statuses map[string]*statusEntry
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		bySig:    make(map[string]*entry),
		sigByID:  make(map[string]string),
		statuses: make(map[string]*statusEntry),
	}
}

func (c *MemoryCache) Set(p *Payload, ttl time.Duration) {
	if p == nil || p.Signature == "" {
		return
	}
	data, err := compress(p)
	if err != nil {
		// Cache failures are silent: the estimate is simply recomputed later.
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Drop id mappings of any earlier estimate for this signature, so a
	// stale id can never consume the newer payload.
	for id, sig := range c.sigByID {
		if sig == p.Signature && id != p.ID {
			delete(c.sigByID, id)
		}
	}
	c.bySig[p.Signature] = &entry{compressed: data, expiresAt: time.Now().Add(ttl)}
	c.sigByID[p.ID] = p.Signature
}

func (c *MemoryCache) GetBySignature(signature string) *Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(signature)
}

// ConsumeByID reads and deletes, so a sample spent seeding a crawl is never
// reused.
func (c *MemoryCache) ConsumeByID(id string) *Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig, ok := c.sigByID[id]
	if !ok {
		return nil
	}
	p := c.getLocked(sig)
	delete(c.bySig, sig)
	delete(c.sigByID, id)
	return p
}

func (c *MemoryCache) DeleteByID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sig, ok := c.sigByID[id]; ok {
		delete(c.bySig, sig)
		delete(c.sigByID, id)
	}
}

func (c *MemoryCache) SetStatus(s Status, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[s.ID] = &statusEntry{status: s, expiresAt: time.Now().Add(ttl)}
}

func (c *MemoryCache) GetStatus(id string) *Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.statuses[id]
	if !ok {
		return nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.statuses, id)
		return nil
	}
	s := e.status
	return &s
}

func (c *MemoryCache) ClearStatus(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, id)
}

func (c *MemoryCache) getLocked(signature string) *Payload {
	e, ok := c.bySig[signature]
	if !ok {
		return nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.bySig, signature)
		return nil
	}
	p, err := decompress(e.compressed)
	if err != nil {
		delete(c.bySig, signature)
		return nil
	}
	return p
}

func compress(p *Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) (*Payload, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
