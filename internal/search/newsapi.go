package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/httpretry"
)

const defaultNewsAPIURL = "https://newsapi.org"

// NewsAPI searches the newsapi.org "everything" endpoint.
type NewsAPI struct {
	client     httpretry.HTTPDoer
	baseURL    string
	apiKey     string
	maxResults int
}

// NewNewsAPI creates a NewsAPI source. An empty baseURL selects newsapi.org.
func NewNewsAPI(client httpretry.HTTPDoer, baseURL, apiKey string, maxResults int) *NewsAPI {
	if baseURL == "" {
		baseURL = defaultNewsAPIURL
	}
	return &NewsAPI{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxResults: maxResults,
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Search implements Source.
func (n *NewsAPI) Search(ctx context.Context, query string) ([]domain.ExternalHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("sortBy", "publishedAt")
	q.Set("language", "en")
	q.Set("pageSize", strconv.Itoa(n.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("newsapi: read body: %w", err)
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("newsapi: status %d: decode: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Status != "ok" {
		return nil, fmt.Errorf("newsapi: status %d: %s %s", resp.StatusCode, parsed.Code, parsed.Message)
	}

	hits := make([]domain.ExternalHit, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" {
			continue
		}
		hit := domain.ExternalHit{
			Title:       strings.TrimSpace(a.Title),
			Link:        a.URL,
			Snippet:     stripHTML(a.Description),
			SourceLabel: SourceLabel(a.URL),
		}
		if hit.SourceLabel == "" {
			hit.SourceLabel = a.Source.Name
		}
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			hit.PublishedAt = &ts
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
