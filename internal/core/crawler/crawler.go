// Package crawler implements bounded-concurrency breadth-first crawling of a
// single domain. A fixed-size worker pool drains a shared frontier queue;
// the coordinator goroutine owns the frontier, the visited set and all
// callbacks, so callers see strictly sequential progress reporting.
package crawler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config bounds a crawl.
type Config struct {
	Concurrency    int
	MaxPages       int
	MaxDepth       int
	MinChars       int
	RespectRobots  bool
	RatePerSecond  float64
	RequestTimeout time.Duration
	UserAgent      string
}

// Page is one fetched, cleaned page handed to the caller.
type Page struct {
	URL   string
	Depth int
	Text  string
}

// Callbacks report crawl progress. All callbacks fire from the coordinator
// goroutine, never concurrently.
type Callbacks struct {
	// OnTotalsKnown fires once, when sitemap seeding yields an initial
	// frontier beyond the start URL (capped at MaxPages). Without a sitemap
	// the site size is unknown and it never fires.
	OnTotalsKnown func(total int)
	// OnPageVisited fires for every fetch attempt, including failures and
	// pages discarded as too short.
	OnPageVisited func(url string)
	// OnPageStored fires for pages whose cleaned text meets MinChars.
	OnPageStored func(p Page)
	// OnDiscovered fires whenever the set of known same-host URLs grows,
	// with the running total. The estimator extrapolates site size from it.
	OnDiscovered func(total int)
}

type Crawler struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sitewise-knowledge-engine/1.0"
	}
	return &Crawler{cfg: cfg, client: &http.Client{Timeout: cfg.RequestTimeout}}
}

// NewWithClient swaps the HTTP client, used by tests and the estimator.
func NewWithClient(cfg Config, client *http.Client) *Crawler {
	c := New(cfg)
	if client != nil {
		c.client = client
	}
	return c
}

// NormalizeStartURL canonicalizes a domain into a start URL: https scheme
// when none is given, lowercased host, root path.
func NormalizeStartURL(domain string) (*url.URL, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, fmt.Errorf("empty domain")
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	u, err := url.Parse(domain)
	if err != nil {
		return nil, fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid domain %q: no host", domain)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u, nil
}

type task struct {
	u       *url.URL
	depth   int
	isStart bool
}

type result struct {
	task  task
	page  *parsedPage
	final *url.URL
	err   error
}

// Crawl walks the domain breadth-first within the configured limits.
// skip lists URLs already ingested (e.g. from a consumed estimate sample);
// they are excluded from the frontier. A single page failure is logged and
// skipped; only a start URL failure with nothing stored fails the crawl.
func (c *Crawler) Crawl(ctx context.Context, domain string, skip []string, cb Callbacks) error {
	start, err := NormalizeStartURL(domain)
	if err != nil {
		return err
	}

	var robots *robotstxt.Group
	if c.cfg.RespectRobots {
		robots = c.fetchRobots(ctx, start)
	}

	var limiter *rate.Limiter
	if c.cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), 1)
	}

	scheduled := make(map[string]bool)
	for _, s := range skip {
		if u, err := url.Parse(s); err == nil {
			scheduled[normalizeURL(u)] = true
		}
	}

	var pending []task
	enqueue := func(t task) {
		key := normalizeURL(t.u)
		if scheduled[key] {
			return
		}
		if robots != nil && !robots.Test(t.u.Path) {
			return
		}
		scheduled[key] = true
		pending = append(pending, t)
		if cb.OnDiscovered != nil {
			cb.OnDiscovered(len(scheduled))
		}
	}

	enqueue(task{u: start, depth: 0, isStart: true})
	for _, seed := range c.fetchSitemap(ctx, start) {
		enqueue(task{u: seed, depth: 1})
	}

	// A frontier of just the start URL carries no size signal; reporting a
	// total of 1 would peg progress at 100% from the first visited page.
	if cb.OnTotalsKnown != nil && len(pending) > 1 {
		total := len(pending)
		if total > c.cfg.MaxPages {
			total = c.cfg.MaxPages
		}
		cb.OnTotalsKnown(total)
	}

	workCh := make(chan task)
	resCh := make(chan result)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			for t := range workCh {
				res := c.fetchPage(gctx, limiter, start, t)
				select {
				case resCh <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var (
		dispatched int
		inflight   int
		stored     int
		startErr   error
		ctxErr     error
	)

	for ctxErr == nil && ((len(pending) > 0 && dispatched < c.cfg.MaxPages) || inflight > 0) {
		var sendCh chan task
		var next task
		if len(pending) > 0 && dispatched < c.cfg.MaxPages {
			sendCh = workCh
			next = pending[0]
		}

		select {
		case sendCh <- next:
			pending = pending[1:]
			dispatched++
			inflight++
		case res := <-resCh:
			inflight--
			if cb.OnPageVisited != nil {
				cb.OnPageVisited(res.task.u.String())
			}
			if res.err != nil {
				if res.task.isStart {
					startErr = res.err
				}
				log.Printf("crawler: skip %s: %v", res.task.u, res.err)
				continue
			}
			if len(res.page.Text) >= c.cfg.MinChars {
				stored++
				if cb.OnPageStored != nil {
					cb.OnPageStored(Page{URL: res.final.String(), Depth: res.task.depth, Text: res.page.Text})
				}
			}
			if res.task.depth < c.cfg.MaxDepth {
				for _, link := range res.page.Links {
					enqueue(task{u: link, depth: res.task.depth + 1})
				}
			}
		case <-ctx.Done():
			ctxErr = ctx.Err()
		}
	}

	close(workCh)
	if err := g.Wait(); err != nil && ctxErr == nil {
		ctxErr = err
	}
	if ctxErr != nil {
		return ctxErr
	}
	if stored == 0 && startErr != nil {
		return fmt.Errorf("start URL unreachable: %w", startErr)
	}
	return nil
}

func (c *Crawler) fetchPage(ctx context.Context, limiter *rate.Limiter, start *url.URL, t task) result {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return result{task: t, err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.u.String(), nil)
	if err != nil {
		return result{task: t, err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return result{task: t, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result{task: t, err: fmt.Errorf("fetch %s: %s", t.u, resp.Status)}
	}
	final := resp.Request.URL
	if final.Host != start.Host {
		return result{task: t, err: fmt.Errorf("redirected off-host to %s", final.Host)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return result{task: t, err: fmt.Errorf("unsupported content type %q", ct)}
	}

	page, err := parseHTML(resp.Body, final)
	if err != nil {
		return result{task: t, err: fmt.Errorf("parse %s: %w", t.u, err)}
	}
	return result{task: t, page: page, final: final}
}

// fetchRobots loads and parses robots.txt for the start host. Any failure
// yields a nil group, which disables robots filtering for the crawl.
func (c *Crawler) fetchRobots(ctx context.Context, start *url.URL) *robotstxt.Group {
	ru := *start
	ru.Path = "/robots.txt"
	ru.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ru.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(c.cfg.UserAgent)
}
