package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/httpretry"
)

const defaultGoogleNewsURL = "https://news.google.com/rss/search"

// GoogleNews searches the Google News RSS feed. No key is needed.
type GoogleNews struct {
	client     httpretry.HTTPDoer
	baseURL    string
	maxResults int
	parser     *gofeed.Parser
}

// NewGoogleNews creates a Google News source. An empty baseURL selects the
// public feed.
func NewGoogleNews(client httpretry.HTTPDoer, baseURL string, maxResults int) *GoogleNews {
	if baseURL == "" {
		baseURL = defaultGoogleNewsURL
	}
	return &GoogleNews{
		client:     client,
		baseURL:    baseURL,
		maxResults: maxResults,
		parser:     gofeed.NewParser(),
	}
}

// Search implements Source.
func (g *GoogleNews) Search(ctx context.Context, query string) ([]domain.ExternalHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("google news: build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google news: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google news: status %d", resp.StatusCode)
	}

	feed, err := g.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google news: parse feed: %w", err)
	}

	hits := make([]domain.ExternalHit, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(hits) >= g.maxResults {
			break
		}
		if hit, ok := parseFeedItem(item); ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// parseFeedItem maps a feed entry to a hit. Google News titles end with
// " - Publisher", which becomes the source label because item links point at
// news.google.com redirects.
func parseFeedItem(item *gofeed.Item) (domain.ExternalHit, bool) {
	if item == nil || item.Link == "" || item.Title == "" {
		return domain.ExternalHit{}, false
	}
	hit := domain.ExternalHit{
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		Snippet:     stripHTML(item.Description),
		SourceLabel: SourceLabel(item.Link),
	}
	if i := strings.LastIndex(hit.Title, " - "); i > 0 {
		hit.SourceLabel = strings.TrimSpace(hit.Title[i+3:])
		hit.Title = strings.TrimSpace(hit.Title[:i])
	}
	if item.PublishedParsed != nil {
		hit.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		hit.PublishedAt = item.UpdatedParsed
	}
	return hit, true
}
