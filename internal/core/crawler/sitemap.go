package crawler

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
)

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// fetchSitemap pulls <host>/sitemap.xml and returns the same-host URLs it
// lists. Any failure returns nil: the sitemap is only a frontier hint and an
// early totals signal, never a requirement.
func (c *Crawler) fetchSitemap(ctx context.Context, start *url.URL) []*url.URL {
	smURL := *start
	smURL.Path = "/sitemap.xml"
	smURL.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, smURL.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}

	var out []*url.URL
	for _, entry := range set.URLs {
		u, err := url.Parse(entry.Loc)
		if err != nil {
			continue
		}
		if u.Host != start.Host {
			continue
		}
		out = append(out, u)
	}
	return out
}
