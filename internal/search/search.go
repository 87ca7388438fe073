// Package search queries external news sources for mentions of accounts and
// people.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/httpretry"
)

// Source is an external search provider. Implementations return an error on
// any failure; callers decide how to degrade.
type Source interface {
	Search(ctx context.Context, query string) ([]domain.ExternalHit, error)
}

// Provider names accepted by New.
const (
	ProviderNewsAPI    = "newsapi"
	ProviderGoogleNews = "google_news"
)

// Options configures a Source.
type Options struct {
	Provider   string
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

// New builds the configured provider. HTTP calls are made once: the client is
// an httpretry.RetryClient with zero retries.
func New(opts Options) (Source, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	client := httpretry.NewRetryClient(&http.Client{Timeout: opts.Timeout}, 0)

	switch opts.Provider {
	case ProviderNewsAPI, "":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("search: newsapi requires an api key")
		}
		return NewNewsAPI(client, opts.BaseURL, opts.APIKey, opts.MaxResults), nil
	case ProviderGoogleNews:
		return NewGoogleNews(client, opts.BaseURL, opts.MaxResults), nil
	}
	return nil, fmt.Errorf("search: unknown provider %q", opts.Provider)
}

// SourceLabel returns the hostname of link without a leading "www.".
func SourceLabel(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// stripHTML removes markup and collapses whitespace.
func stripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&quot;", `"`, "&#39;", "'", "&lt;", "<", "&gt;", ">").Replace(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
