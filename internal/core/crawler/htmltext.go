package crawler

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLines = regexp.MustCompile(`\n\s*\n+`)

// parsedPage is the cleaned result of one fetched HTML document.
type parsedPage struct {
	Text  string
	Links []*url.URL
}

// parseHTML strips boilerplate elements and returns normalized plain text
// plus the resolved same-host links found on the page.
func parseHTML(r io.Reader, base *url.URL) (*parsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript, iframe, svg, nav, header, footer, form").Remove()

	var sb strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	sb.WriteString(doc.Find("body").Text())

	text := whitespace.ReplaceAllString(sb.String(), " ")
	text = blankLines.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	text = strings.Join(out, "\n")

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if u.Host != base.Host {
			return
		}
		links = append(links, u)
	})

	return &parsedPage{Text: text, Links: links}, nil
}

// normalizeURL canonicalizes a URL for frontier deduplication: lowercased
// host, fragment dropped, trailing slash trimmed from the path.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	c.Path = strings.TrimSuffix(c.Path, "/")
	return c.String()
}
